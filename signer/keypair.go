// Package signer provides the signing identity used to authorize ledger requests.
package signer

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	migrator "github.com/getpup/ledger-migrator"
)

// ErrInvalidKeypair indicates the key material is malformed.
var ErrInvalidKeypair = errors.New("invalid keypair")

// Keypair is an ed25519 signing identity.
type Keypair struct {
	private ed25519.PrivateKey
	public  migrator.Address
}

// Compile-time check that Keypair implements migrator.Signer.
var _ migrator.Signer = (*Keypair)(nil)

// Generate creates a random keypair.
func Generate() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return fromPrivate(priv), nil
}

// FromSeed derives a keypair from a 32-byte seed.
func FromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidKeypair, ed25519.SeedSize, len(seed))
	}
	return fromPrivate(ed25519.NewKeyFromSeed(seed)), nil
}

// FromPrivateKey builds a keypair from the 64-byte seed||public form.
// The embedded public key must match the seed.
func FromPrivateKey(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrInvalidKeypair, ed25519.PrivateKeySize, len(b))
	}
	kp, err := FromSeed(b[:ed25519.SeedSize])
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(kp.public[:], b[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("%w: public key does not match seed", ErrInvalidKeypair)
	}
	return kp, nil
}

// LoadFile reads a keypair file in the Solana CLI format: a JSON array of 64 byte values.
func LoadFile(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair file: %w", err)
	}

	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
	}

	raw := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: value %d at index %d is not a byte", ErrInvalidKeypair, v, i)
		}
		raw[i] = byte(v)
	}
	return FromPrivateKey(raw)
}

// SaveFile writes the keypair in the Solana CLI format with owner-only permissions.
func (k *Keypair) SaveFile(path string) error {
	values := make([]int, len(k.private))
	for i, b := range k.private {
		values[i] = int(b)
	}

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode keypair: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write keypair file: %w", err)
	}
	return nil
}

// PublicKey returns the public identity.
func (k *Keypair) PublicKey() migrator.Address {
	return k.public
}

// Sign returns the ed25519 signature of message.
func (k *Keypair) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(k.private, message), nil
}

func fromPrivate(priv ed25519.PrivateKey) *Keypair {
	kp := &Keypair{private: priv}
	copy(kp.public[:], priv.Public().(ed25519.PublicKey))
	return kp
}
