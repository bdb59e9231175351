// Package jsonx extracts typed JSON values from unreliable generative-model
// output. It never returns an error for malformed input: callers receive a
// tagged Outcome and branch on how the value was obtained.
package jsonx

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Kind tags how the parsed value was obtained.
type Kind int

const (
	// KindParsed means the raw text was valid as-is.
	KindParsed Kind = iota
	// KindRepaired means the value was recovered by substring extraction,
	// brace balancing, or block merging.
	KindRepaired
	// KindEmpty means nothing could be parsed; Value holds the default
	// empty shape for the requested root key.
	KindEmpty
)

// Outcome is the result of parsing model output.
type Outcome struct {
	Kind  Kind
	Value map[string]any
}

// IsEmpty reports whether parsing recovered nothing.
func (o Outcome) IsEmpty() bool { return o.Kind == KindEmpty }

// List returns the sequence stored under key, or nil.
func (o Outcome) List(key string) []any {
	v, ok := o.Value[key]
	if !ok {
		return nil
	}
	items, _ := v.([]any)
	return items
}

var (
	lastObjectRe    = regexp.MustCompile(`\{[\s\S]*\}\s*$`)
	trailingCommaRe = regexp.MustCompile(`,\s*([\]\}])`)
	terminalCommaRe = regexp.MustCompile(`,\s*$`)
)

// Parse extracts one JSON object from raw model text. If rootKey is non-empty
// the object must contain that key; when several candidate objects carry it,
// their list values are merged. Parse is pure and never fails: the worst case
// is an Outcome of KindEmpty holding the default shape for rootKey.
func Parse(text, rootKey string) Outcome {
	s := strings.TrimSpace(text)
	if s == "" {
		return emptyOutcome(rootKey)
	}

	// 1. Direct parse of the whole text.
	if m, ok := decodeWithRoot(s, rootKey); ok {
		return Outcome{Kind: KindParsed, Value: m}
	}
	// Same, with code fences stripped.
	if fenced := strings.Trim(s, "` \n\t"); fenced != s {
		if m, ok := decodeWithRoot(fenced, rootKey); ok {
			return Outcome{Kind: KindRepaired, Value: m}
		}
	}

	// 2. Right-anchored {...} substring.
	if cand := lastObjectRe.FindString(s); cand != "" {
		if m, ok := decodeWithRoot(cand, rootKey); ok {
			return Outcome{Kind: KindRepaired, Value: m}
		}
	}

	// 3. Balanced-brace scan for top-level objects.
	candidates := scanObjects(s)
	if rootKey != "" {
		var withRoot []map[string]any
		for _, c := range candidates {
			if _, ok := c[rootKey]; ok {
				withRoot = append(withRoot, c)
			}
		}
		switch len(withRoot) {
		case 0:
			// fall through to truncation repair
		case 1:
			return Outcome{Kind: KindRepaired, Value: withRoot[0]}
		default:
			// 5. Merge list values across blocks, first-seen order.
			return Outcome{Kind: KindRepaired, Value: mergeBlocks(withRoot, rootKey)}
		}
	} else if len(candidates) > 0 {
		// Prefer the last candidate: earlier ones are typically partial
		// or example fragments.
		return Outcome{Kind: KindRepaired, Value: candidates[len(candidates)-1]}
	}

	// 4. Truncation repair: strip trailing commas, close open containers.
	if repaired := repairTruncated(s); repaired != "" {
		if m, ok := decodeWithRoot(repaired, rootKey); ok {
			return Outcome{Kind: KindRepaired, Value: m}
		}
	}

	// 6. Nothing parsed.
	return emptyOutcome(rootKey)
}

func emptyOutcome(rootKey string) Outcome {
	v := map[string]any{}
	if rootKey != "" {
		v[rootKey] = []any{}
	}
	return Outcome{Kind: KindEmpty, Value: v}
}

// decodeWithRoot parses s and shapes the result as an object satisfying
// rootKey. Array-wrapped objects are unwrapped to the first element carrying
// the root key.
func decodeWithRoot(s, rootKey string) (map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	switch t := v.(type) {
	case map[string]any:
		if rootKey == "" {
			return t, true
		}
		if _, ok := t[rootKey]; ok {
			return t, true
		}
	case []any:
		if rootKey == "" {
			return nil, false
		}
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				if _, has := m[rootKey]; has {
					return m, true
				}
			}
		}
	}
	return nil, false
}

// scanObjects walks the text tracking brace depth and returns every span
// that parses as a top-level JSON object, in order of appearance.
func scanObjects(s string) []map[string]any {
	var out []map[string]any
	depth := 0
	start := -1
	for i, ch := range s {
		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					var m map[string]any
					if err := json.Unmarshal([]byte(s[start:i+1]), &m); err == nil {
						out = append(out, m)
					}
					start = -1
				}
			}
		}
	}
	return out
}

// repairTruncated closes unbalanced containers. Returns "" when the input is
// already balanced or has no opening bracket at all.
func repairTruncated(s string) string {
	first := strings.IndexAny(s, "{[")
	if first < 0 {
		return ""
	}
	s = s[first:]

	var stack []byte
	for _, ch := range s {
		switch ch {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && byte(ch) == stack[len(stack)-1] {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) == 0 {
		return ""
	}

	repaired := trailingCommaRe.ReplaceAllString(s, "$1")
	// A comma at the very end sits before a closer once balancing appends it.
	repaired = terminalCommaRe.ReplaceAllString(repaired, "")
	var closers strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		closers.WriteByte(stack[i])
	}
	return repaired + closers.String()
}

// mergeBlocks concatenates the list values of rootKey across blocks and
// de-duplicates entries by structural equality, preserving first-seen order.
func mergeBlocks(blocks []map[string]any, rootKey string) map[string]any {
	var merged []any
	seen := make(map[string]bool)
	for _, b := range blocks {
		items, ok := b[rootKey].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			key, err := json.Marshal(item)
			if err != nil {
				continue
			}
			if !seen[string(key)] {
				seen[string(key)] = true
				merged = append(merged, item)
			}
		}
	}
	if merged == nil {
		merged = []any{}
	}
	return map[string]any{rootKey: merged}
}
