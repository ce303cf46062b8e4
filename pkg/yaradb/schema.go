package yaradb

import "fmt"

// validateSchema checks body against a JSON-Schema-subset object: the
// handful of keywords spec.md §4.5/§8 actually exercises —
// "type": "object", "required": [...], "properties": {field: {"type":
// ...}}, and "additionalProperties": false. There is no $ref, no
// combinators (allOf/anyOf/oneOf), no string/number format constraints:
// the spec's own end-to-end scenarios never need them, and no
// JSON-Schema library appears anywhere in the retrieval pack (see
// DESIGN.md's schema.go entry).
func validateSchema(schema map[string]any, body map[string]any) error {
	if schema == nil {
		return nil
	}

	if t, ok := schema["type"].(string); ok && t != "object" {
		return fmt.Errorf("schema root type %q is not supported", t)
	}

	for _, req := range stringList(schema["required"]) {
		if _, present := body[req]; !present {
			return fmt.Errorf("missing required field %q", req)
		}
	}

	properties, _ := schema["properties"].(map[string]any)

	for field, value := range body {
		propSchema, declared := properties[field]
		if !declared {
			if additionalPropertiesForbidden(schema) {
				return fmt.Errorf("additional property %q is not allowed", field)
			}

			continue
		}

		propMap, ok := propSchema.(map[string]any)
		if !ok {
			continue
		}

		if err := validateType(field, propMap["type"], value); err != nil {
			return err
		}
	}

	return nil
}

func additionalPropertiesForbidden(schema map[string]any) bool {
	allowed, ok := schema["additionalProperties"].(bool)

	return ok && !allowed
}

func validateType(field string, want any, value any) error {
	wantType, ok := want.(string)
	if !ok {
		return nil
	}

	if matchesJSONType(wantType, value) {
		return nil
	}

	return fmt.Errorf("field %q: expected type %q", field, wantType)
}

func matchesJSONType(want string, value any) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		n, ok := value.(float64)
		return ok && n == float64(int64(n))
	case "number":
		_, ok := value.(float64)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}

func stringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}

	out := make([]string, 0, len(list))

	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}

	return out
}

// forceStrictSchema returns schema with additionalProperties forced to
// false, per §4.5's create_new_table contract for strict-mode tables.
// Returns a new map; does not mutate the input.
func forceStrictSchema(schema map[string]any) map[string]any {
	out := cloneBody(schema)
	if out == nil {
		out = make(map[string]any)
	}

	out["additionalProperties"] = false

	return out
}
