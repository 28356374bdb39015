// Package address derives the deterministic ledger addresses records are stored at.
//
// Addresses are program-derived: SHA-256 over the seeds (namespace tag, owner key,
// record key), a one-byte bump, the program identity and a fixed marker. The bump is
// searched downward from 255 until the digest is not a valid ed25519 point, so no private
// key can exist for the address. Two tuples differing in any seed hash to different
// addresses; collision resistance is that of SHA-256.
package address

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	migrator "github.com/getpup/ledger-migrator"
)

const (
	// MaxSeedLength is the maximum length of a single seed in bytes.
	MaxSeedLength = 32

	// OwnerKeyLength is the required length of an owner key in bytes.
	OwnerKeyLength = migrator.AddressLength

	pdaMarker = "ProgramDerivedAddress"
)

// ErrNoViableBump indicates every bump produced an on-curve digest.
var ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

// Derive computes the program-derived address for (tag, owner, key) under program.
// It also returns the bump seed that produced the address.
// Fails with migrator.ErrInvalidKeyShape when an input violates the seed constraints.
func Derive(tag migrator.NamespaceTag, owner migrator.OwnerKey, key migrator.RecordKey, program migrator.Address) (migrator.Address, uint8, error) {
	if err := ValidateSeeds(tag, owner, key); err != nil {
		return migrator.Address{}, 0, err
	}

	seeds := [][]byte{[]byte(tag), owner, key}
	for bump := 255; bump > 0; bump-- {
		addr, onCurve := createProgramAddress(seeds, uint8(bump), program)
		if !onCurve {
			return addr, uint8(bump), nil
		}
	}

	return migrator.Address{}, 0, ErrNoViableBump
}

// ValidateSeeds checks the ledger's length constraints for the derivation inputs.
func ValidateSeeds(tag migrator.NamespaceTag, owner migrator.OwnerKey, key migrator.RecordKey) error {
	if len(tag) == 0 || len(tag) > MaxSeedLength {
		return fmt.Errorf("%w: tag length %d must be between 1 and %d", migrator.ErrInvalidKeyShape, len(tag), MaxSeedLength)
	}
	if len(owner) != OwnerKeyLength {
		return fmt.Errorf("%w: owner key length %d must be %d", migrator.ErrInvalidKeyShape, len(owner), OwnerKeyLength)
	}
	if len(key) == 0 || len(key) > MaxSeedLength {
		return fmt.Errorf("%w: record key length %d must be between 1 and %d", migrator.ErrInvalidKeyShape, len(key), MaxSeedLength)
	}
	return nil
}

func createProgramAddress(seeds [][]byte, bump uint8, program migrator.Address) (migrator.Address, bool) {
	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write([]byte{bump})
	h.Write(program[:])
	h.Write([]byte(pdaMarker))

	var addr migrator.Address
	copy(addr[:], h.Sum(nil))
	return addr, IsOnCurve(addr)
}

// IsOnCurve reports whether b decodes to a point on the ed25519 curve.
func IsOnCurve(b migrator.Address) bool {
	_, err := new(edwards25519.Point).SetBytes(b[:])
	return err == nil
}

// Deriver binds the derivation to a single program identity.
type Deriver struct {
	program migrator.Address
}

// NewDeriver creates a Deriver for program.
func NewDeriver(program migrator.Address) *Deriver {
	return &Deriver{program: program}
}

// Program returns the program identity the deriver is bound to.
func (d *Deriver) Program() migrator.Address {
	return d.program
}

// Derive computes the address of (tag, owner, key) under the deriver's program.
func (d *Deriver) Derive(tag migrator.NamespaceTag, owner migrator.OwnerKey, key migrator.RecordKey) (migrator.Address, error) {
	addr, _, err := Derive(tag, owner, key, d.program)
	return addr, err
}
