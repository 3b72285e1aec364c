// Package sha256 provides salted SHA-256 hashing for personal identifiers.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Salts used for the two identifier families handled by the intake pipeline.
const (
	AddressSalt = "contact_form_ip"
	EmailSalt   = "contact_form_email"
)

// Hasher produces hex digests of salt + ":" + value.
type Hasher struct {
	salt string
}

// New returns a Hasher bound to salt.
func New(salt string) *Hasher {
	return &Hasher{salt: salt}
}

// NewAddressHasher returns a Hasher for network addresses.
func NewAddressHasher() *Hasher {
	return New(AddressSalt)
}

// NewEmailHasher returns a Hasher for email addresses.
func NewEmailHasher() *Hasher {
	return New(EmailSalt)
}

// Hash hashes value and returns a lowercase hex digest. It never fails.
func (h *Hasher) Hash(value string) string {
	sum := sha256.Sum256([]byte(h.salt + ":" + value))
	return hex.EncodeToString(sum[:])
}
