package yaradb

import (
	"testing"

	"github.com/google/uuid"
)

func TestHashIndex_AddRemoveLookup(t *testing.T) {
	t.Parallel()

	idx := newHashIndex()
	id1, id2 := uuid.New(), uuid.New()

	idx.add(id1, "red")
	idx.add(id2, "red")
	idx.add(id2, "blue")

	red := idx.lookup("red")
	if len(red) != 2 {
		t.Fatalf("lookup(red) = %v, want 2 ids", red)
	}

	blue := idx.lookup("blue")
	if len(blue) != 1 || blue[0] != id2 {
		t.Fatalf("lookup(blue) = %v, want [%v]", blue, id2)
	}

	idx.remove(id2, "blue")
	if got := idx.lookup("blue"); len(got) != 0 {
		t.Fatalf("lookup(blue) after remove = %v, want empty", got)
	}

	// The value key itself must be gone once its set is empty.
	if _, exists := idx.data["blue"]; exists {
		t.Fatal("empty value entry was not removed from the index")
	}
}

func TestHashIndex_NullNeverIndexed(t *testing.T) {
	t.Parallel()

	idx := newHashIndex()
	idx.add(uuid.New(), nil)

	if len(idx.data) != 0 {
		t.Fatalf("nil value should not be indexed, got %d keys", len(idx.data))
	}
}

func TestOrderedIndex_RangeLookup(t *testing.T) {
	t.Parallel()

	idx := newOrderedIndex()
	ids := make([]uuid.UUID, 10)

	for i := range ids {
		ids[i] = uuid.New()
		idx.add(ids[i], float64(i))
	}

	got := idx.rangeLookup(3.0, 6.0)
	if len(got) != 4 {
		t.Fatalf("rangeLookup(3,6) returned %d ids, want 4", len(got))
	}

	// Open lower bound.
	got = idx.rangeLookup(nil, 1.0)
	if len(got) != 2 {
		t.Fatalf("rangeLookup(nil,1) returned %d ids, want 2", len(got))
	}

	// Open upper bound.
	got = idx.rangeLookup(8.0, nil)
	if len(got) != 2 {
		t.Fatalf("rangeLookup(8,nil) returned %d ids, want 2", len(got))
	}

	// Fully open.
	got = idx.rangeLookup(nil, nil)
	if len(got) != 10 {
		t.Fatalf("rangeLookup(nil,nil) returned %d ids, want 10", len(got))
	}
}

func TestOrderedIndex_SortedKeysStayDistinctAndSorted(t *testing.T) {
	t.Parallel()

	idx := newOrderedIndex()
	id := uuid.New()

	idx.add(id, 5.0)
	idx.add(uuid.New(), 1.0)
	idx.add(uuid.New(), 3.0)
	idx.add(uuid.New(), 5.0) // duplicate key, must not add a second sortedKeys entry

	if len(idx.sortedKeys) != 3 {
		t.Fatalf("sortedKeys = %v, want 3 distinct keys", idx.sortedKeys)
	}

	for i := 1; i < len(idx.sortedKeys); i++ {
		if compareValues(idx.sortedKeys[i-1], idx.sortedKeys[i]) >= 0 {
			t.Fatalf("sortedKeys not strictly increasing: %v", idx.sortedKeys)
		}
	}

	idx.remove(id, 5.0)

	found := false
	for _, k := range idx.sortedKeys {
		if k == 5.0 {
			found = true
		}
	}

	if !found {
		t.Fatal("key 5.0 dropped from sortedKeys though its set is non-empty via the other id")
	}
}

func TestOrderedIndex_RemovingLastIDDropsKey(t *testing.T) {
	t.Parallel()

	idx := newOrderedIndex()
	id := uuid.New()

	idx.add(id, 42.0)
	idx.remove(id, 42.0)

	if len(idx.sortedKeys) != 0 {
		t.Fatalf("sortedKeys = %v, want empty after removing the only id", idx.sortedKeys)
	}
}

func TestCompareValues_CrossTypeIsDeterministic(t *testing.T) {
	t.Parallel()

	// Cross-type ordering is not a contract (DESIGN.md open question #2),
	// but it must be stable and antisymmetric.
	if compareValues(nil, "x") >= 0 {
		t.Fatal("nil should sort before string under the fixed type-class order")
	}

	if compareValues("x", nil) <= 0 {
		t.Fatal("compareValues should be antisymmetric across types")
	}

	if compareValues(true, 1.0) >= 0 {
		t.Fatal("bool should sort before number under the fixed type-class order")
	}
}

func TestCompareValues_IntAndFloatFoldTogether(t *testing.T) {
	t.Parallel()

	if compareValues(int(3), float64(3)) != 0 {
		t.Fatal("int and float64 representations of the same number must compare equal")
	}
}

func TestNormalizeKey_RejectsUnhashableValues(t *testing.T) {
	t.Parallel()

	if _, ok := normalizeKey(map[string]any{"a": 1}); ok {
		t.Fatal("map values must not be usable as index keys")
	}

	if _, ok := normalizeKey([]any{1, 2}); ok {
		t.Fatal("list values must not be usable as index keys")
	}

	if _, ok := normalizeKey(nil); ok {
		t.Fatal("nil must not be usable as an index key")
	}
}
