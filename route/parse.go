package route

// toInt converts a decoded JSON value to int. JSON numbers arrive as
// float64; direct construction in tests may use int. Reports failure
// rather than defaulting so required fields can be distinguished from
// absent optional ones.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

// toInt64 converts a decoded JSON value to int64 with the same
// tolerance as toInt.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}
