package yaradb

import "github.com/google/uuid"

// indexManager owns one table's live secondary indexes, keyed by field
// path. Declarations (which fields are indexed, and with which kind)
// live on [Table.Indexes]; indexManager is the runtime structure rebuilt
// from documents on snapshot load and after WAL replay (see §9's note on
// keeping declarations and live indexes separate).
type indexManager struct {
	byField map[string]index
}

func newIndexManager() *indexManager {
	return &indexManager{byField: make(map[string]index)}
}

// createIndex registers a new index on path. Returns false if path is
// already indexed (caller maps that to CONFLICT).
func (m *indexManager) createIndex(path string, kind IndexKind) bool {
	if _, exists := m.byField[path]; exists {
		return false
	}

	m.byField[path] = newIndex(kind)

	return true
}

// dropIndex removes the index on path. Idempotent: returns whether an
// index was actually removed.
func (m *indexManager) dropIndex(path string) bool {
	if _, exists := m.byField[path]; !exists {
		return false
	}

	delete(m.byField, path)

	return true
}

func (m *indexManager) hasIndex(path string) bool {
	_, ok := m.byField[path]

	return ok
}

// addDocument indexes id under every declared field path present in
// body.
func (m *indexManager) addDocument(id uuid.UUID, body map[string]any) {
	for path, idx := range m.byField {
		for _, v := range indexValues(body, path) {
			idx.add(id, v)
		}
	}
}

// removeDocument removes id from every declared field path's index.
func (m *indexManager) removeDocument(id uuid.UUID, body map[string]any) {
	for path, idx := range m.byField {
		for _, v := range indexValues(body, path) {
			idx.remove(id, v)
		}
	}
}

// updateDocument re-indexes id where oldBody and newBody disagree on the
// value at a declared path. A field whose value didn't change is left
// untouched.
func (m *indexManager) updateDocument(id uuid.UUID, oldBody, newBody map[string]any) {
	for path, idx := range m.byField {
		oldValues := indexValues(oldBody, path)
		newValues := indexValues(newBody, path)

		if sameValueSet(oldValues, newValues) {
			continue
		}

		for _, v := range oldValues {
			idx.remove(id, v)
		}

		for _, v := range newValues {
			idx.add(id, v)
		}
	}
}

func sameValueSet(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if compareValues(a[i], b[i]) != 0 || typeClass(a[i]) != typeClass(b[i]) {
			return false
		}
	}

	return true
}

// rebuildAll clears every declared index and re-adds each live
// (non-archived) document. Used after snapshot load and after WAL
// replay.
func (m *indexManager) rebuildAll(docs []*Document) {
	for path, idx := range m.byField {
		m.byField[path] = newIndex(idx.kind())
	}

	for _, d := range docs {
		if d.IsArchived() {
			continue
		}

		m.addDocument(d.ID, d.Body)
	}
}

// lookup returns the documents whose value at path equals value, using
// whichever index variant is registered for path. ok is false if path
// isn't indexed.
func (m *indexManager) lookup(path string, value any) (ids []uuid.UUID, ok bool) {
	idx, exists := m.byField[path]
	if !exists {
		return nil, false
	}

	return idx.lookup(value), true
}

// rangeLookup returns the documents whose value at path falls within
// [min, max] (either bound nil means open). ok is false if path isn't
// indexed with an ordered (btree) index.
func (m *indexManager) rangeLookup(path string, min, max any) (ids []uuid.UUID, ok bool) {
	idx, exists := m.byField[path]
	if !exists {
		return nil, false
	}

	ordered, isOrdered := idx.(*orderedIndex)
	if !isOrdered {
		return nil, false
	}

	return ordered.rangeLookup(min, max), true
}
