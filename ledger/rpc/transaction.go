package rpc

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	migrator "github.com/getpup/ledger-migrator"
)

// SignatureSize is the width of an ed25519 signature.
const SignatureSize = 64

// maxTransactionSize is the largest serialized transaction a node accepts.
const maxTransactionSize = 1232

// ErrTransactionTooLarge indicates the serialized transaction exceeds the packet limit.
var ErrTransactionTooLarge = errors.New("transaction too large")

// message is a compiled legacy transaction message.
type message struct {
	requiredSignatures uint8
	readonlySigned     uint8
	readonlyUnsigned   uint8
	keys               []migrator.Address
	recentBlockhash    [32]byte
	programIndex       uint8
	accountIndexes     []uint8
	data               []byte
}

// compile orders the instruction's accounts as the ledger requires: writable signers,
// readonly signers, writable non-signers, readonly non-signers. The fee payer comes first.
func compile(payer migrator.Address, ix Instruction, blockhash string) (message, error) {
	hash, err := base58.Decode(blockhash)
	if err != nil || len(hash) != 32 {
		return message{}, fmt.Errorf("invalid blockhash %q", blockhash)
	}

	type meta struct {
		signer   bool
		writable bool
	}
	order := []migrator.Address{payer}
	metas := map[migrator.Address]*meta{payer: {signer: true, writable: true}}
	add := func(key migrator.Address, signer, writable bool) {
		m, ok := metas[key]
		if !ok {
			m = &meta{}
			metas[key] = m
			order = append(order, key)
		}
		m.signer = m.signer || signer
		m.writable = m.writable || writable
	}
	for _, a := range ix.Accounts {
		add(a.Key, a.IsSigner, a.IsWritable)
	}
	add(ix.Program, false, false)

	var msg message
	copy(msg.recentBlockhash[:], hash)

	for _, class := range []meta{{true, true}, {true, false}, {false, true}, {false, false}} {
		for _, key := range order {
			if *metas[key] == class {
				msg.keys = append(msg.keys, key)
			}
		}
	}
	if len(msg.keys) > 255 {
		return message{}, fmt.Errorf("%w: %d accounts", ErrTransactionTooLarge, len(msg.keys))
	}

	index := make(map[migrator.Address]uint8, len(msg.keys))
	for i, key := range msg.keys {
		index[key] = uint8(i)
		m := metas[key]
		switch {
		case m.signer:
			msg.requiredSignatures++
			if !m.writable {
				msg.readonlySigned++
			}
		case !m.writable:
			msg.readonlyUnsigned++
		}
	}

	msg.programIndex = index[ix.Program]
	for _, a := range ix.Accounts {
		msg.accountIndexes = append(msg.accountIndexes, index[a.Key])
	}
	msg.data = ix.Data
	return msg, nil
}

func (m message) serialize() []byte {
	out := []byte{m.requiredSignatures, m.readonlySigned, m.readonlyUnsigned}
	out = appendCompactU16(out, len(m.keys))
	for _, k := range m.keys {
		out = append(out, k[:]...)
	}
	out = append(out, m.recentBlockhash[:]...)

	out = appendCompactU16(out, 1)
	out = append(out, m.programIndex)
	out = appendCompactU16(out, len(m.accountIndexes))
	out = append(out, m.accountIndexes...)
	out = appendCompactU16(out, len(m.data))
	out = append(out, m.data...)
	return out
}

// signTransaction compiles ix, signs it with signer and returns the wire bytes
// together with the transaction signature in base58.
func signTransaction(signer migrator.Signer, ix Instruction, blockhash string) ([]byte, string, error) {
	msg, err := compile(signer.PublicKey(), ix, blockhash)
	if err != nil {
		return nil, "", err
	}
	if msg.requiredSignatures != 1 {
		return nil, "", fmt.Errorf("instruction requires %d signers, only the fee payer can sign", msg.requiredSignatures)
	}

	body := msg.serialize()
	sig, err := signer.Sign(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	if len(sig) != SignatureSize {
		return nil, "", fmt.Errorf("signer returned %d-byte signature", len(sig))
	}

	tx := appendCompactU16(nil, 1)
	tx = append(tx, sig...)
	tx = append(tx, body...)
	if len(tx) > maxTransactionSize {
		return nil, "", fmt.Errorf("%w: %d bytes", ErrTransactionTooLarge, len(tx))
	}
	return tx, base58.Encode(sig), nil
}

// appendCompactU16 appends n in the ledger's shortvec encoding.
func appendCompactU16(b []byte, n int) []byte {
	for {
		elem := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(b, elem)
		}
		b = append(b, elem|0x80)
	}
}
