package yaradb

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// bodyHash returns the lowercase hex SHA-256 of body serialized as
// canonical JSON: object keys sorted lexicographically, no insignificant
// whitespace, UTF-8 bytes. It is a tamper-detection aid, not a trust
// anchor, and is recomputed on every assignment to a document's body.
func bodyHash(body map[string]any) string {
	sum := sha256.Sum256(canonicalJSON(body))

	return hex.EncodeToString(sum[:])
}

// canonicalJSON encodes v the way Python's json.dumps(v, sort_keys=True)
// does: maps get their keys sorted before encoding, everything else
// round-trips through encoding/json unchanged. encoding/json already
// sorts map[string]any keys when marshaling, so this mostly documents
// the contract; it exists as its own function so body_hash's definition
// doesn't depend on an incidental encoding/json implementation detail.
func canonicalJSON(v any) []byte {
	normalized := canonicalize(v)

	out, err := json.Marshal(normalized)
	if err != nil {
		// v is always built from decoded JSON or plain Go values passed
		// through the public API (validated up front); it cannot contain
		// anything json.Marshal rejects (channels, funcs, cyclic refs).
		panic("yaradb: body is not JSON-encodable: " + err.Error())
	}

	return out
}

// canonicalize walks v recursively, rebuilding every map[string]any and
// []any it finds; any other value (including a map of another type) is
// passed through unchanged. A nil map[string]any comes back as an empty
// map, so a nil body encodes as {} just like an empty one.
func canonicalize(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		out := make(map[string]any, len(vv))
		for _, k := range keys {
			out[k] = canonicalize(vv[k])
		}

		return out
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = canonicalize(e)
		}

		return out
	default:
		return v
	}
}
