// Package predicate decides which records a sweep removes.
//
// Predicates see a record's decoded payload under "record" together with its
// identity. Simple cutoffs use Before; multi-field rules can be written as expr or
// CEL expressions:
//
//	record.orderTime < 1714521600 && record.status == "completed"
package predicate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	migrator "github.com/getpup/ledger-migrator"
)

var (
	// ErrFieldMissing indicates the payload lacks a field the predicate reads.
	ErrFieldMissing = errors.New("payload field missing")

	// ErrNotBoolean indicates an expression did not evaluate to a boolean.
	ErrNotBoolean = errors.New("predicate did not evaluate to a boolean")
)

// Predicate selects records.
type Predicate interface {
	Match(rec migrator.Record) (bool, error)
}

// Func adapts a function to a Predicate.
type Func func(rec migrator.Record) (bool, error)

// Match calls f(rec).
func (f Func) Match(rec migrator.Record) (bool, error) {
	return f(rec)
}

// Before matches records whose payload field holds a timestamp strictly earlier
// than cutoff. The field may hold unix seconds, a time.Time or an RFC 3339 string.
func Before(field string, cutoff time.Time) Predicate {
	return Func(func(rec migrator.Record) (bool, error) {
		raw, ok := rec.Payload[field]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrFieldMissing, field)
		}
		ts, err := unixSeconds(raw)
		if err != nil {
			return false, fmt.Errorf("field %s: %w", field, err)
		}
		return ts < cutoff.Unix(), nil
	})
}

// All matches when every predicate matches. An empty All matches everything.
func All(ps ...Predicate) Predicate {
	return Func(func(rec migrator.Record) (bool, error) {
		for _, p := range ps {
			ok, err := p.Match(rec)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}

// Any matches when at least one predicate matches. An empty Any matches nothing.
func Any(ps ...Predicate) Predicate {
	return Func(func(rec migrator.Record) (bool, error) {
		for _, p := range ps {
			ok, err := p.Match(rec)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	})
}

// Not inverts p. Errors are passed through.
func Not(p Predicate) Predicate {
	return Func(func(rec migrator.Record) (bool, error) {
		ok, err := p.Match(rec)
		if err != nil {
			return false, err
		}
		return !ok, nil
	})
}

// Engine names an expression language.
type Engine string

const (
	EngineExpr Engine = "expr"
	EngineCEL  Engine = "cel"
)

// Compile builds an expression predicate for the given engine.
func Compile(engine Engine, src string) (Predicate, error) {
	switch engine {
	case EngineExpr, "":
		return Expr(src)
	case EngineCEL:
		return CEL(src)
	default:
		return nil, fmt.Errorf("unknown predicate engine %q", engine)
	}
}

func unixSeconds(v any) (int64, error) {
	switch t := normalize(v).(type) {
	case int64:
		return t, nil
	case uint64:
		return 0, fmt.Errorf("timestamp %d out of range", t)
	case float64:
		return int64(t), nil
	case time.Time:
		return t.Unix(), nil
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed.Unix(), nil
		}
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot read %q as a timestamp", t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot read %T as a timestamp", v)
	}
}

// normalize widens payload values to the few types expression engines handle
// uniformly: int64 (uint64 only when out of int64 range), float64, string, bool,
// time.Time, and maps and slices of those.
func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return widenUnsigned(uint64(t))
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return widenUnsigned(t)
	case float32:
		return float64(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case migrator.Payload:
		return normalizeMap(t)
	case map[string]any:
		return normalizeMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}

func widenUnsigned(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return u
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

// environment exposes a record to expression predicates.
func environment(rec migrator.Record, now time.Time) map[string]any {
	payload := normalizeMap(rec.Payload)
	return map[string]any{
		"record":     payload,
		"owner":      rec.Owner.String(),
		"key":        rec.Key.String(),
		"address":    rec.Address.String(),
		"generation": string(rec.Generation),
		"now":        now.Unix(),
	}
}
