package rpc

import (
	"crypto/sha256"

	migrator "github.com/getpup/ledger-migrator"
	"github.com/getpup/ledger-migrator/ledger"
)

// SystemProgram is the address of the native system program.
var SystemProgram = migrator.Address{}

// Transition is a relocation from one generation to another.
type Transition struct {
	From migrator.NamespaceTag
	To   migrator.NamespaceTag
}

// Instructions maps ledger requests to program instructions.
type Instructions struct {
	// Relocate names the instruction for each supported transition.
	Relocate map[Transition]string

	// Remove names the removal instruction per generation.
	Remove map[migrator.NamespaceTag]string
}

// DefaultInstructions returns the machine and order migration instructions and the
// admin order removal.
func DefaultInstructions() Instructions {
	return Instructions{
		Relocate: map[Transition]string{
			{From: "machine", To: "machine-new"}: "migrate_machine_new",
			{From: "machine-new", To: "machine"}: "migrate_machine_rename",
			{From: "order", To: "order-new"}:     "migrate_order_new",
			{From: "order-new", To: "order"}:     "migrate_order_rename",
		},
		Remove: map[migrator.NamespaceTag]string{
			"order": "admin_remove_order",
		},
	}
}

// AccountMeta is one account referenced by an instruction.
type AccountMeta struct {
	Key        migrator.Address
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program invocation.
type Instruction struct {
	Program  migrator.Address
	Accounts []AccountMeta
	Data     []byte
}

// instructionData returns the 8-byte selector sha256("global:<name>")[:8].
// None of the supported instructions take arguments.
func instructionData(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:DiscriminatorSize]
}

// Build returns the instruction for req, or ok=false if the request has no instruction.
//
// Relocations reference (before, after, signer, system program); removals reference
// (record, signer). The signer pays for new accounts and receives closed balances.
func (in Instructions) Build(program migrator.Address, req ledger.Request) (Instruction, bool) {
	signer := req.Signer.PublicKey()

	switch req.Kind {
	case ledger.RequestRelocate:
		name, ok := in.Relocate[Transition{From: req.Source.Generation, To: req.TargetGeneration}]
		if !ok {
			return Instruction{}, false
		}
		return Instruction{
			Program: program,
			Accounts: []AccountMeta{
				{Key: req.Source.Address, IsWritable: true},
				{Key: req.Destination, IsWritable: true},
				{Key: signer, IsSigner: true, IsWritable: true},
				{Key: SystemProgram},
			},
			Data: instructionData(name),
		}, true
	case ledger.RequestRemove:
		name, ok := in.Remove[req.Source.Generation]
		if !ok {
			return Instruction{}, false
		}
		return Instruction{
			Program: program,
			Accounts: []AccountMeta{
				{Key: req.Source.Address, IsWritable: true},
				{Key: signer, IsSigner: true, IsWritable: true},
			},
			Data: instructionData(name),
		}, true
	default:
		return Instruction{}, false
	}
}
