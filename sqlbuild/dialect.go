// Package sqlbuild contains the pure text-level pieces of the AlierDB
// statement pipeline: identifier/value escaping, the JavaScript-like filter
// expression rewrite, quote-aware statement splitting and aggregate fragment
// construction. Nothing in this package performs I/O; connectors embed a
// Dialect and the statement builders in the root package route every
// identifier and value through it.
package sqlbuild

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// MaxLimit is the "no limit" sentinel emitted when a LIMIT clause must be
// present but the caller did not bound the row count. The value is 2^32-1,
// kept for compatibility with callers that treat it as the row-count ceiling.
const MaxLimit uint64 = 1<<32 - 1

// MaxOffset is the largest accepted OFFSET value (2^53-1, the largest
// integer exactly representable by the descriptor's float64 fields).
const MaxOffset uint64 = 1<<53 - 1

// Dialect carries the engine-specific literal conventions. The zero value is
// not usable; start from ANSI and override fields as needed.
type Dialect struct {
	// BoolLiteral renders a boolean value. Engines without a boolean type
	// (SQLite) map to 0/1, others may use TRUE/FALSE.
	BoolLiteral func(bool) string
}

// ANSI is the default dialect: double-quoted identifiers, single-quoted
// strings, booleans as 0/1 (the most portable choice).
var ANSI = Dialect{
	BoolLiteral: func(b bool) string {
		if b {
			return "1"
		}
		return "0"
	},
}

// Escaper is the escaping surface every connector must provide. The
// statement builders never concatenate raw caller input; identifiers and
// values go through these three methods.
type Escaper interface {
	AsIdentifier(name string) string
	AsString(s string) string
	AsValue(v any) string
}

var _ Escaper = Dialect{}

// AsIdentifier quotes name so it reads as exactly one identifier, whatever
// it contains. Reserved words, embedded quotes and empty names all come out
// harmless.
func (d Dialect) AsIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// AsString produces a single-quoted string literal with doubled-quote
// escaping.
func (d Dialect) AsString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// AsValue maps a native Go value to the literal syntax the engine accepts.
// nil maps to NULL, numbers to plain decimal text, booleans through
// BoolLiteral, and anything without a closer mapping is JSON-encoded into a
// string literal.
func (d Dialect) AsValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return d.AsString(x)
	case bool:
		if d.BoolLiteral != nil {
			return d.BoolLiteral(x)
		}
		return ANSI.BoolLiteral(x)
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return formatFloat(float64(x), d)
	case float64:
		return formatFloat(x, d)
	case *big.Int:
		if x == nil {
			return "NULL"
		}
		return x.String()
	case time.Time:
		return d.AsString(x.UTC().Format(time.RFC3339Nano))
	case []byte:
		return d.AsString(string(x))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return d.AsString(fmt.Sprintf("%v", v))
		}
		return d.AsString(string(data))
	}
}

func formatFloat(f float64, d Dialect) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "NULL"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ClampLimit normalizes a caller-supplied LIMIT value: truncation toward
// zero for fractional input, anything negative, NaN or >= 2^32 clamps to the
// MaxLimit sentinel (unbounded).
func ClampLimit(f float64) uint64 {
	if math.IsNaN(f) || f < 0 || f >= float64(uint64(1)<<32) {
		return MaxLimit
	}
	return uint64(math.Trunc(f))
}

// ClampOffset normalizes a caller-supplied OFFSET value: NaN and negatives
// clamp to 0, values at or above the safe-integer ceiling clamp to it.
func ClampOffset(f float64) uint64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f >= float64(MaxOffset) {
		return MaxOffset
	}
	return uint64(math.Trunc(f))
}
