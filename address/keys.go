package address

import (
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"

	migrator "github.com/getpup/ledger-migrator"
)

// ParseAddress decodes a base58 address.
func ParseAddress(s string) (migrator.Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return migrator.Address{}, fmt.Errorf("failed to decode address %q: %w", s, err)
	}
	if len(raw) != migrator.AddressLength {
		return migrator.Address{}, fmt.Errorf("%w: address %q decodes to %d bytes", migrator.ErrInvalidKeyShape, s, len(raw))
	}
	var addr migrator.Address
	copy(addr[:], raw)
	return addr, nil
}

// MustParseAddress is like ParseAddress but panics on error.
// Intended for constants such as well-known program identities.
func MustParseAddress(s string) migrator.Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// ParseOwner decodes a base58 owner key and checks its length.
func ParseOwner(s string) (migrator.OwnerKey, error) {
	addr, err := ParseAddress(s)
	if err != nil {
		return nil, err
	}
	return migrator.OwnerKey(addr[:]), nil
}

// ParseRecordKey decodes a hex record key and checks its length.
func ParseRecordKey(s string) (migrator.RecordKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode record key %q: %w", s, err)
	}
	if len(raw) == 0 || len(raw) > MaxSeedLength {
		return nil, fmt.Errorf("%w: record key length %d must be between 1 and %d", migrator.ErrInvalidKeyShape, len(raw), MaxSeedLength)
	}
	return migrator.RecordKey(raw), nil
}
