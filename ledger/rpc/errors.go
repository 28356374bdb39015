package rpc

import (
	"encoding/json"
	"fmt"
	"sort"
)

// customCodes names the custom instruction error codes the migration instructions
// can fail with. Program errors start at 6000, framework errors below that.
var customCodes = map[int]string{
	0:    "AccountAlreadyInUse",
	2000: "ConstraintMut",
	2001: "ConstraintHasOne",
	2003: "ConstraintRaw",
	2006: "ConstraintSeeds",
	2012: "ConstraintClose",
	3001: "AccountDiscriminatorNotFound",
	3002: "AccountDiscriminatorMismatch",
	3007: "AccountOwnedByWrongProgram",
	3010: "AccountNotSigner",
	3012: "AccountNotInitialized",
	6000: "StringTooLong",
	6001: "IncorrectStatus",
	6002: "DurationTooMuch",
	6003: "InvalidPeriod",
	6004: "RepeatClaim",
}

// rejectionCode condenses a transaction error into a short code, e.g.
// {"InstructionError":[0,{"Custom":2006}]} becomes "ConstraintSeeds".
func rejectionCode(raw json.RawMessage) string {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj) == 0 {
		return string(raw)
	}

	if ie, ok := obj["InstructionError"]; ok {
		var parts []json.RawMessage
		if err := json.Unmarshal(ie, &parts); err == nil && len(parts) == 2 {
			return instructionErrorCode(parts[1])
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0]
}

func instructionErrorCode(raw json.RawMessage) string {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name
	}

	var custom struct {
		Custom *int `json:"Custom"`
	}
	if err := json.Unmarshal(raw, &custom); err == nil && custom.Custom != nil {
		if name, ok := customCodes[*custom.Custom]; ok {
			return name
		}
		return fmt.Sprintf("Custom(%d)", *custom.Custom)
	}
	return rejectionCode(raw)
}

// preflightCode extracts the rejection code from a preflight failure's data.
func preflightCode(e *Error) string {
	var data struct {
		Err json.RawMessage `json:"err"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil || len(data.Err) == 0 || string(data.Err) == "null" {
		return "PreflightFailure"
	}
	return rejectionCode(data.Err)
}
