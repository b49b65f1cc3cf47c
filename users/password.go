package users

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const DefaultWorkFactor = bcrypt.DefaultCost

// maxBcryptInput is the longest password bcrypt accepts
const maxBcryptInput = 72

// PasswordHasher produces and checks self-describing salted hashes
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// BcryptHasher hashes with a fixed bcrypt cost. The cost comes from
// configuration only; Verify uses whatever cost is embedded in the hash.
type BcryptHasher struct {
	cost int
}

var _ PasswordHasher = (*BcryptHasher)(nil)

func NewBcryptHasher(workFactor int) (*BcryptHasher, error) {
	if workFactor < bcrypt.MinCost || workFactor > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt work factor %d outside [%d, %d]", workFactor, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: workFactor}, nil
}

// WorkFactor returns the configured bcrypt cost
func (h *BcryptHasher) WorkFactor() int {
	return h.cost
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword(bcryptInput(password), h.cost)
	return string(bytes), err
}

// Verify compares in constant time. A malformed hash is a mismatch.
func (h *BcryptHasher) Verify(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(password))
	return err == nil
}

// bcryptInput passes passwords up to 72 bytes through unchanged so existing
// bcrypt hashes keep verifying. Longer ones are reduced to the base64 of
// their SHA-256 digest, which keeps every byte significant.
func bcryptInput(password string) []byte {
	if len(password) <= maxBcryptInput {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}
