package yaradb

import "strings"

// fieldValue resolves a dotted path into body left-to-right. Any
// non-map encountered mid-path, or a missing key at any step, yields
// (nil, false). A null value resolves to (nil, false) too ("no value"),
// matching the original implementation's nested-value lookup.
func fieldValue(body map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	segments := strings.Split(path, ".")

	var cur any = body

	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}

		v, present := m[seg]
		if !present {
			return nil, false
		}

		cur = v
	}

	if cur == nil {
		return nil, false
	}

	return cur, true
}

// indexValues returns the values body should be indexed under for path:
// a single value normally, or one entry per element when the resolved
// value is a list (§4.2: "list-valued leaves expand — the document is
// indexed under each element"). Returns nil if there is no value.
func indexValues(body map[string]any, path string) []any {
	v, ok := fieldValue(body, path)
	if !ok {
		return nil
	}

	list, isList := v.([]any)
	if !isList {
		return []any{v}
	}

	out := make([]any, 0, len(list))

	for _, e := range list {
		if e == nil {
			continue
		}

		out = append(out, e)
	}

	return out
}
