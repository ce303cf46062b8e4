package yaradb

import (
	"sort"

	"github.com/google/uuid"
)

// idSet is a set of document ids, the value type every index variant
// maps an indexed value to (§4.2: "set-valued — a key maps to multiple
// document ids").
type idSet map[uuid.UUID]struct{}

func (s idSet) add(id uuid.UUID)      { s[id] = struct{}{} }
func (s idSet) remove(id uuid.UUID)   { delete(s, id) }
func (s idSet) empty() bool           { return len(s) == 0 }

func (s idSet) slice() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })

	return out
}

func unionSets(sets ...idSet) []uuid.UUID {
	merged := make(map[uuid.UUID]struct{})

	for _, s := range sets {
		for id := range s {
			merged[id] = struct{}{}
		}
	}

	out := make([]uuid.UUID, 0, len(merged))
	for id := range merged {
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })

	return out
}

// index is implemented by [hashIndex] and [orderedIndex]. Both are
// single-field-path, set-valued secondary indexes; only [orderedIndex]
// supports range lookup.
type index interface {
	kind() IndexKind
	add(id uuid.UUID, value any)
	remove(id uuid.UUID, value any)
	lookup(value any) []uuid.UUID
}

func newIndex(kind IndexKind) index {
	switch kind {
	case IndexBTree:
		return newOrderedIndex()
	default:
		return newHashIndex()
	}
}

// hashIndex supports O(1) amortized add/remove/lookup and no range
// queries, grounded on the original's HashIndex (a defaultdict(set)).
type hashIndex struct {
	data map[any]idSet
}

func newHashIndex() *hashIndex {
	return &hashIndex{data: make(map[any]idSet)}
}

func (h *hashIndex) kind() IndexKind { return IndexHash }

func (h *hashIndex) add(id uuid.UUID, value any) {
	key, ok := normalizeKey(value)
	if !ok {
		return
	}

	set, exists := h.data[key]
	if !exists {
		set = make(idSet)
		h.data[key] = set
	}

	set.add(id)
}

func (h *hashIndex) remove(id uuid.UUID, value any) {
	key, ok := normalizeKey(value)
	if !ok {
		return
	}

	set, exists := h.data[key]
	if !exists {
		return
	}

	set.remove(id)

	if set.empty() {
		delete(h.data, key)
	}
}

func (h *hashIndex) lookup(value any) []uuid.UUID {
	key, ok := normalizeKey(value)
	if !ok {
		return nil
	}

	return h.data[key].slice()
}

// orderedIndex additionally maintains a sorted slice of distinct keys so
// range_lookup can binary-search its bounds, grounded on the original's
// BTreeIndex (bisect.insort over a plain list).
type orderedIndex struct {
	data       map[any]idSet
	sortedKeys []any
}

func newOrderedIndex() *orderedIndex {
	return &orderedIndex{data: make(map[any]idSet)}
}

func (o *orderedIndex) kind() IndexKind { return IndexBTree }

func (o *orderedIndex) add(id uuid.UUID, value any) {
	key, ok := normalizeKey(value)
	if !ok {
		return
	}

	set, exists := o.data[key]
	if !exists {
		set = make(idSet)
		o.data[key] = set
		o.insertKey(key)
	}

	set.add(id)
}

func (o *orderedIndex) remove(id uuid.UUID, value any) {
	key, ok := normalizeKey(value)
	if !ok {
		return
	}

	set, exists := o.data[key]
	if !exists {
		return
	}

	set.remove(id)

	if set.empty() {
		delete(o.data, key)
		o.removeKey(key)
	}
}

func (o *orderedIndex) lookup(value any) []uuid.UUID {
	key, ok := normalizeKey(value)
	if !ok {
		return nil
	}

	return o.data[key].slice()
}

// rangeLookup returns the union of id-sets for keys k with min <= k <=
// max. A nil bound is open on that side.
func (o *orderedIndex) rangeLookup(min, max any) []uuid.UUID {
	lo := 0
	if min != nil {
		lo = sort.Search(len(o.sortedKeys), func(i int) bool {
			return compareValues(o.sortedKeys[i], min) >= 0
		})
	}

	hi := len(o.sortedKeys)
	if max != nil {
		hi = sort.Search(len(o.sortedKeys), func(i int) bool {
			return compareValues(o.sortedKeys[i], max) > 0
		})
	}

	if lo >= hi {
		return nil
	}

	sets := make([]idSet, 0, hi-lo)
	for _, k := range o.sortedKeys[lo:hi] {
		sets = append(sets, o.data[k])
	}

	return unionSets(sets...)
}

func (o *orderedIndex) insertKey(key any) {
	i := sort.Search(len(o.sortedKeys), func(i int) bool {
		return compareValues(o.sortedKeys[i], key) >= 0
	})

	o.sortedKeys = append(o.sortedKeys, nil)
	copy(o.sortedKeys[i+1:], o.sortedKeys[i:])
	o.sortedKeys[i] = key
}

func (o *orderedIndex) removeKey(key any) {
	i := sort.Search(len(o.sortedKeys), func(i int) bool {
		return compareValues(o.sortedKeys[i], key) >= 0
	})

	if i >= len(o.sortedKeys) || compareValues(o.sortedKeys[i], key) != 0 {
		return
	}

	o.sortedKeys = append(o.sortedKeys[:i], o.sortedKeys[i+1:]...)
}

// normalizeKey rejects values that cannot be a Go map key (objects,
// lists) and folds json.Number-shaped floats/ints together, so a value
// decoded from JSON (always float64) and one constructed in-process as
// int compare and index identically.
func normalizeKey(v any) (any, bool) {
	switch vv := v.(type) {
	case nil:
		return nil, false
	case map[string]any, []any:
		return nil, false
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	default:
		return vv, true
	}
}

// typeClass fixes an ordering between JSON scalar kinds so that
// cross-type comparisons are deterministic even though, per the spec
// this implements, they are not a contract callers may rely on (see
// DESIGN.md's open-question #2).
func typeClass(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64, int, int64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

// compareValues implements the natural ordering [index.go]'s ordered
// index and the repository's sort_by use: within one JSON scalar type it
// is the obvious order; across types it falls back to typeClass so the
// result is at least deterministic.
func compareValues(a, b any) int {
	ca, cb := typeClass(a), typeClass(b)
	if ca != cb {
		if ca < cb {
			return -1
		}

		return 1
	}

	// Fold int/int64 into float64 so a value built in-process (as a Go
	// int literal) and one decoded from JSON (always float64) compare
	// as equal numbers rather than falling through to the zero-value
	// default case below.
	if ca == 2 {
		a, b = toFloat(a), toFloat(b)
	}

	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		}

		if !av {
			return -1
		}

		return 1
	case float64:
		bv := toFloat(b)

		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		bv := b.(string)

		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch vv := v.(type) {
	case float64:
		return vv
	case int:
		return float64(vv)
	case int64:
		return float64(vv)
	default:
		return 0
	}
}
