// Package compare holds the value-equality and numeric-coercion rules
// shared by the query engine's "=" operator and Table's bare-equality
// find/find_one path (§4.5, §4.8), so a criteria value decoded as a Go
// native type (int, int64, bool) compares equal to the same logical
// value decoded from a row file as JSON's float64.
package compare

import "reflect"

// Equal reports whether a and b represent the same value once numeric
// types are normalized. Non-numeric values fall back to
// reflect.DeepEqual.
func Equal(a, b any) bool {
	if af, aok := ToFloat(a); aok {
		if bf, bok := ToFloat(b); bok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

// ToFloat coerces int/float/bool values (the shapes both native Go
// criteria and JSON-decoded row columns take) into a float64 for
// numeric comparison. The second return is false for anything else.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
