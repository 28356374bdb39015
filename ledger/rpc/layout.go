package rpc

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	migrator "github.com/getpup/ledger-migrator"
)

// DiscriminatorSize is the width of the account type prefix.
const DiscriminatorSize = 8

// ErrUnknownAccount indicates account data whose discriminator matches no layout.
var ErrUnknownAccount = errors.New("unknown account type")

// FieldType is the borsh encoding of a single account field.
type FieldType int

const (
	FieldPubkey FieldType = iota
	FieldUUID
	FieldString
	FieldU8
	FieldU32
	FieldU64
	FieldI64
	FieldEnum
)

// Field describes one field of an account layout.
type Field struct {
	// Name is the payload key, in camelCase.
	Name string
	Type FieldType

	// Variants names the values of a FieldEnum, in declaration order.
	Variants []string
}

// Layout describes how records of one generation are stored on the ledger.
type Layout struct {
	// Account is the account type name the discriminator is derived from.
	Account string

	// Tag is the generation stored with this layout.
	Tag migrator.NamespaceTag

	// OwnerField and KeyField name the fields used as address seeds.
	OwnerField string
	KeyField   string

	Fields []Field
}

// Discriminator returns the first 8 bytes of sha256("account:<Account>").
func (l Layout) Discriminator() [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte("account:" + l.Account))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

var machineStatus = []string{"idle", "forRent", "renting"}

var orderStatus = []string{"preparing", "training", "completed", "failed", "refunded"}

func machineFields() []Field {
	return []Field{
		{Name: "owner", Type: FieldPubkey},
		{Name: "uuid", Type: FieldUUID},
		{Name: "metadata", Type: FieldString},
		{Name: "status", Type: FieldEnum, Variants: machineStatus},
		{Name: "price", Type: FieldU64},
		{Name: "maxDuration", Type: FieldU32},
		{Name: "disk", Type: FieldU32},
		{Name: "completedCount", Type: FieldU32},
		{Name: "failedCount", Type: FieldU32},
		{Name: "score", Type: FieldU8},
		{Name: "claimedPeriodicRewards", Type: FieldU64},
		{Name: "claimedTaskRewards", Type: FieldU64},
		{Name: "orderPda", Type: FieldPubkey},
	}
}

func orderFields() []Field {
	return []Field{
		{Name: "orderId", Type: FieldUUID},
		{Name: "buyer", Type: FieldPubkey},
		{Name: "seller", Type: FieldPubkey},
		{Name: "machineId", Type: FieldUUID},
		{Name: "price", Type: FieldU64},
		{Name: "duration", Type: FieldU32},
		{Name: "total", Type: FieldU64},
		{Name: "metadata", Type: FieldString},
		{Name: "status", Type: FieldEnum, Variants: orderStatus},
		{Name: "orderTime", Type: FieldI64},
		{Name: "startTime", Type: FieldI64},
		{Name: "refundTime", Type: FieldI64},
	}
}

// DefaultLayouts returns the machine and order layouts in both generations.
func DefaultLayouts() []Layout {
	return []Layout{
		{Account: "Machine", Tag: "machine", OwnerField: "owner", KeyField: "uuid", Fields: machineFields()},
		{Account: "MachineNew", Tag: "machine-new", OwnerField: "owner", KeyField: "uuid", Fields: machineFields()},
		{Account: "Order", Tag: "order", OwnerField: "buyer", KeyField: "orderId", Fields: orderFields()},
		{Account: "OrderNew", Tag: "order-new", OwnerField: "buyer", KeyField: "orderId", Fields: orderFields()},
	}
}

// Decode parses account data into a record stored at addr.
// Pubkeys decode to base58 strings, UUIDs to hex and enums to their variant name.
func (l Layout) Decode(addr migrator.Address, data []byte) (migrator.Record, error) {
	if len(data) < DiscriminatorSize {
		return migrator.Record{}, fmt.Errorf("account %s: data too short", addr)
	}
	d := l.Discriminator()
	if [DiscriminatorSize]byte(data[:DiscriminatorSize]) != d {
		return migrator.Record{}, fmt.Errorf("account %s: %w", addr, ErrUnknownAccount)
	}

	r := &reader{buf: data[DiscriminatorSize:]}
	rec := migrator.Record{
		Address:    addr,
		Generation: l.Tag,
		Payload:    make(migrator.Payload, len(l.Fields)),
	}

	for _, f := range l.Fields {
		switch f.Type {
		case FieldPubkey:
			b := r.bytes(migrator.AddressLength)
			if f.Name == l.OwnerField {
				rec.Owner = append(migrator.OwnerKey(nil), b...)
			}
			rec.Payload[f.Name] = base58.Encode(b)
		case FieldUUID:
			b := r.bytes(16)
			if f.Name == l.KeyField {
				rec.Key = append(migrator.RecordKey(nil), b...)
			}
			rec.Payload[f.Name] = hex.EncodeToString(b)
		case FieldString:
			rec.Payload[f.Name] = r.string()
		case FieldU8:
			rec.Payload[f.Name] = r.u8()
		case FieldU32:
			rec.Payload[f.Name] = r.u32()
		case FieldU64:
			rec.Payload[f.Name] = r.u64()
		case FieldI64:
			rec.Payload[f.Name] = int64(r.u64())
		case FieldEnum:
			v := int(r.u8())
			if r.err == nil && v >= len(f.Variants) {
				r.err = fmt.Errorf("field %s: unknown variant %d", f.Name, v)
			}
			if r.err == nil {
				rec.Payload[f.Name] = f.Variants[v]
			}
		default:
			return migrator.Record{}, fmt.Errorf("field %s: unsupported type %d", f.Name, f.Type)
		}
		if r.err != nil {
			return migrator.Record{}, fmt.Errorf("account %s: failed to decode %s: %w", addr, f.Name, r.err)
		}
	}

	if len(rec.Owner) == 0 || len(rec.Key) == 0 {
		return migrator.Record{}, fmt.Errorf("account %s: layout %s has no owner or key field", addr, l.Account)
	}
	return rec, nil
}

var errShortBuffer = errors.New("unexpected end of account data")

// reader decodes little-endian borsh values. The first error sticks.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = errShortBuffer
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) string() string {
	n := r.u32()
	return string(r.bytes(int(n)))
}
