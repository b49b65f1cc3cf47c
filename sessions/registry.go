// Package sessions tracks the authenticated sessions of the process and
// bounds how many each principal may hold at once.
package sessions

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"math/bits"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/rs/zerolog/log"
	"github.com/thejerf/abtime"
)

const (
	tokenBytes       = 32
	DefaultShards    = 32
	MaxShards        = 256
	DefaultMaxPerKey = 1
)

// entry is the live record behind a Session. lastSeen is unix nanos and is
// updated under the shard's read lock.
type entry struct {
	id        string
	principal string
	createdAt time.Time
	lastSeen  atomic.Int64
}

func (e *entry) snapshot() Session {
	return Session{
		ID:         e.id,
		Principal:  e.principal,
		CreatedAt:  e.createdAt,
		LastSeenAt: time.Unix(0, e.lastSeen.Load()).In(e.createdAt.Location()),
	}
}

// shard holds both indices for the principals hashed to it. Every change to
// either map happens under mu so a session is never in one index only.
type shard struct {
	mu          sync.RWMutex
	byPrincipal map[string][]*entry // oldest first
	byID        map[string]*entry
}

// Registry is the process-wide session table.
//
// Principals are spread over a power-of-two number of shards. The shard index
// is stamped into the first byte of each token, so Validate and Invalidate
// find the owning shard from the token alone.
type Registry struct {
	shardCount int
	shards     []*shard
	mask       byte
	maxPerKey  int
	policy     LimitPolicy
	clock      abtime.AbstractTime
	onEviction func(Session)
}

// RegistryOption defines a function type to modify the Registry instance.
type RegistryOption func(*Registry)

// WithMaxSessions sets the per-principal session limit (minimum 1)
func WithMaxSessions(n int) RegistryOption {
	return func(r *Registry) {
		r.maxPerKey = n
	}
}

func WithLimitPolicy(p LimitPolicy) RegistryOption {
	return func(r *Registry) {
		r.policy = p
	}
}

// WithShards sets the shard count; it must be a power of two up to MaxShards
func WithShards(n int) RegistryOption {
	return func(r *Registry) {
		r.shardCount = n
	}
}

// WithClock sets the time source (primarily for testing)
func WithClock(clock abtime.AbstractTime) RegistryOption {
	return func(r *Registry) {
		r.clock = clock
	}
}

// WithEvictionHook is called, outside any lock, for every session evicted by
// the session limit.
func WithEvictionHook(fn func(Session)) RegistryOption {
	return func(r *Registry) {
		r.onEviction = fn
	}
}

func NewRegistry(options ...RegistryOption) (*Registry, error) {
	r := &Registry{
		shardCount: DefaultShards,
		maxPerKey:  DefaultMaxPerKey,
		policy:     EvictOldest,
		clock:      abtime.NewRealTime(),
	}
	for _, opt := range options {
		opt(r)
	}

	n := r.shardCount
	if n < 1 || n > MaxShards || bits.OnesCount(uint(n)) != 1 {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidConfig, "[sessions.NewRegistry] shard count %d is not a power of two in [1, %d]", n, MaxShards)
	}
	if r.maxPerKey < 1 {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidConfig, "[sessions.NewRegistry] max sessions %d must be at least 1", r.maxPerKey)
	}
	if !r.policy.Valid() {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidConfig, "[sessions.NewRegistry] unknown limit policy %q", r.policy)
	}

	r.mask = byte(n - 1)
	r.shards = make([]*shard, n)
	for i := range r.shards {
		r.shards[i] = &shard{
			byPrincipal: make(map[string][]*entry),
			byID:        make(map[string]*entry),
		}
	}
	return r, nil
}

// Register issues a new session for principal. If the principal would exceed
// the session limit, the oldest session is evicted (EvictOldest) or
// errors.ErrSessionLimitReached is returned and nothing is registered
// (RejectNew). Registration is a single step under one lock.
func (r *Registry) Register(principal string) (Session, error) {
	idx := r.shardIndex(principal)
	id, err := newToken(idx, r.mask)
	if err != nil {
		return Session{}, fmt.Errorf("[Registry.Register] %w", err)
	}
	now := r.clock.Now()
	e := &entry{id: id, principal: principal, createdAt: now}
	e.lastSeen.Store(now.UnixNano())

	s := r.shards[idx]
	s.mu.Lock()
	queue := s.byPrincipal[principal]
	if len(queue) >= r.maxPerKey && r.policy == RejectNew {
		s.mu.Unlock()
		return Session{}, apperrors.ErrSessionLimitReached
	}
	queue = append(queue, e)
	var evicted []*entry
	for len(queue) > r.maxPerKey {
		evicted = append(evicted, queue[0])
		delete(s.byID, queue[0].id)
		queue[0] = nil
		queue = queue[1:]
	}
	s.byPrincipal[principal] = queue
	s.byID[id] = e
	s.mu.Unlock()

	for _, old := range evicted {
		r.evicted(old.snapshot())
	}
	return e.snapshot(), nil
}

// Validate resolves a session id to its session. The second return is false
// when the id was never issued, was invalidated or was evicted.
func (r *Registry) Validate(sessionID string) (Session, bool) {
	idx, ok := r.shardOf(sessionID)
	if !ok {
		return Session{}, false
	}
	s := r.shards[idx]
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[sessionID]
	if !ok {
		return Session{}, false
	}
	e.lastSeen.Store(r.clock.Now().UnixNano())
	return e.snapshot(), true
}

// Invalidate removes a session from both indices. Unknown ids are ignored.
func (r *Registry) Invalidate(sessionID string) {
	idx, ok := r.shardOf(sessionID)
	if !ok {
		return
	}
	s := r.shards[idx]
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[sessionID]
	if !ok {
		return
	}
	delete(s.byID, sessionID)

	queue := s.byPrincipal[e.principal]
	for i, q := range queue {
		if q == e {
			queue = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if len(queue) == 0 {
		delete(s.byPrincipal, e.principal)
		return
	}
	s.byPrincipal[e.principal] = queue
}

// Sessions lists the live sessions of principal, oldest first
func (r *Registry) Sessions(principal string) []Session {
	s := r.shards[r.shardIndex(principal)]
	s.mu.RLock()
	defer s.mu.RUnlock()

	queue := s.byPrincipal[principal]
	out := make([]Session, 0, len(queue))
	for _, e := range queue {
		out = append(out, e.snapshot())
	}
	return out
}

// Len returns the number of live sessions across all principals
func (r *Registry) Len() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.byID)
		s.mu.RUnlock()
	}
	return total
}

func (r *Registry) MaxSessions() int {
	return r.maxPerKey
}

func (r *Registry) evicted(sess Session) {
	log.Info().
		Str("principal", sess.Principal).
		Time("created_at", sess.CreatedAt).
		Msg("session evicted by concurrent session limit")
	if r.onEviction != nil {
		r.onEviction(sess)
	}
}

func (r *Registry) shardIndex(principal string) byte {
	h := fnv.New32a()
	_, _ = h.Write([]byte(principal))
	return byte(h.Sum32()) & r.mask
}

func (r *Registry) shardOf(sessionID string) (byte, bool) {
	if base64.RawURLEncoding.DecodedLen(len(sessionID)) != tokenBytes {
		return 0, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil || len(raw) != tokenBytes {
		return 0, false
	}
	return raw[0] & r.mask, true
}

// newToken returns a random token whose first byte carries the shard index
// in the bits selected by mask.
func newToken(shardIdx, mask byte) (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	b[0] = b[0]&^mask | shardIdx
	return base64.RawURLEncoding.EncodeToString(b), nil
}
