package jsonx

// Str returns the string stored under key, or "".
func Str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// Num returns the number stored under key and whether it was present
// as a JSON number.
func Num(m map[string]any, key string) (float64, bool) {
	n, ok := m[key].(float64)
	return n, ok
}

// StrList coerces a JSON value into a slice of its string elements,
// dropping anything that is not a string.
func StrList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
