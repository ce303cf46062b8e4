package yaradb

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// unmarshalRaw decodes raw into v, treating an empty/nil raw as a
// malformed record (every create/create_table op must carry a payload).
func unmarshalRaw(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}

	return json.Unmarshal(raw, v)
}

// docKind distinguishes the two document variants sharing one id
// namespace (invariant 1 in spec.md §3: "id is unique process-wide
// across all document variants").
type docKind int

const (
	kindDocument docKind = iota
	kindCombined
)

// state is the process-wide authoritative in-memory database: the
// document list (split by variant, since the two have different
// shapes), the id→variant index, the table registry, and each table's
// live index manager.
//
// state itself holds no lock; callers (Engine) serialize access via the
// state mutex, acquired before the WAL mutex (§5). Every method here
// assumes that mutex is already held.
type state struct {
	documents map[uuid.UUID]*Document
	combined  map[uuid.UUID]*CombinedDocument
	kinds     map[uuid.UUID]docKind
	order     []uuid.UUID // insertion order, for deterministic iteration

	tables  map[string]*Table
	indexes map[string]*indexManager // table name -> live indexManager
}

func newState() *state {
	return &state{
		documents: make(map[uuid.UUID]*Document),
		combined:  make(map[uuid.UUID]*CombinedDocument),
		kinds:     make(map[uuid.UUID]docKind),
		tables:    make(map[string]*Table),
		indexes:   make(map[string]*indexManager),
	}
}

// reset clears every in-memory collection, used by WipeAllData.
func (s *state) reset() {
	s.documents = make(map[uuid.UUID]*Document)
	s.combined = make(map[uuid.UUID]*CombinedDocument)
	s.kinds = make(map[uuid.UUID]docKind)
	s.order = nil
	s.tables = make(map[string]*Table)
	s.indexes = make(map[string]*indexManager)
}

func (s *state) indexManagerFor(tableName string) *indexManager {
	mgr, ok := s.indexes[tableName]
	if !ok {
		mgr = newIndexManager()
		s.indexes[tableName] = mgr
	}

	return mgr
}

// ensureTable resolves an existing table or lazily creates one with
// default settings. Lazy creation is NOT WAL-logged (§4.5, §9): it is
// only persisted via the next snapshot.
func (s *state) ensureTable(name string) *Table {
	if t, ok := s.tables[name]; ok {
		return t
	}

	t := newTable(name, TableSettings{})
	s.tables[name] = t
	s.indexManagerFor(name)

	return t
}

// --- apply: the single place each WAL op's effect on memory is defined.
// Used both by the live mutation path (immediately after a successful
// WAL append) and by replay (after loading each decoded line). Replay
// idempotency rules from §4.7 live here: create/update/archive/
// create_index/drop_* no-op when the effect is already reflected.

func (s *state) applyCreate(doc *Document) bool {
	if _, exists := s.kinds[doc.ID]; exists {
		return false
	}

	s.documents[doc.ID] = doc
	s.kinds[doc.ID] = kindDocument
	s.order = append(s.order, doc.ID)

	t := s.ensureTable(doc.TableData.Name)
	t.DocumentsCount++

	s.indexManagerFor(doc.TableData.Name).addDocument(doc.ID, doc.Body)

	return true
}

func (s *state) applyCreateCombined(doc *CombinedDocument) bool {
	if _, exists := s.kinds[doc.ID]; exists {
		return false
	}

	s.combined[doc.ID] = doc
	s.kinds[doc.ID] = kindCombined
	s.order = append(s.order, doc.ID)

	return true
}

func (s *state) applyUpdate(id uuid.UUID, version int, body map[string]any, updatedAt time.Time) bool {
	doc, ok := s.documents[id]
	if !ok || doc.IsArchived() {
		return false
	}

	if version <= doc.Version {
		return false
	}

	oldBody := doc.Body
	doc.Body = body
	doc.Version = version
	doc.updateBodyHash()

	ts := updatedAt
	doc.UpdatedAt = &ts

	s.indexManagerFor(doc.TableData.Name).updateDocument(id, oldBody, doc.Body)

	return true
}

func (s *state) applyArchive(id uuid.UUID, version int, updatedAt time.Time) bool {
	doc, ok := s.documents[id]
	if !ok || doc.IsArchived() {
		return false
	}

	ts := updatedAt
	doc.ArchivedAt = &ts
	doc.UpdatedAt = &ts
	doc.Version = version

	s.indexManagerFor(doc.TableData.Name).removeDocument(id, doc.Body)

	t, ok := s.tables[doc.TableData.Name]
	if ok && t.DocumentsCount > 0 {
		t.DocumentsCount--
	}

	return true
}

func (s *state) applyCreateTable(t *Table) bool {
	if _, exists := s.tables[t.Name]; exists {
		return false
	}

	s.tables[t.Name] = t
	s.indexManagerFor(t.Name)

	return true
}

func (s *state) applyDropTable(name string) bool {
	if _, exists := s.tables[name]; !exists {
		return false
	}

	delete(s.tables, name)
	delete(s.indexes, name)

	return true
}

func (s *state) applyCreateIndex(tableName, field string, kind IndexKind) bool {
	t, ok := s.tables[tableName]
	if !ok {
		t = s.ensureTable(tableName)
	}

	if _, declared := t.Indexes[field]; declared {
		return false
	}

	mgr := s.indexManagerFor(tableName)
	if !mgr.createIndex(field, kind) {
		return false
	}

	t.Indexes[field] = kind

	for _, id := range s.order {
		if s.kinds[id] != kindDocument {
			continue
		}

		doc := s.documents[id]
		if doc.TableData.Name != tableName || doc.IsArchived() {
			continue
		}

		for _, v := range indexValues(doc.Body, field) {
			mgr.byField[field].add(id, v)
		}
	}

	return true
}

func (s *state) applyDropIndex(tableName, field string) bool {
	t, ok := s.tables[tableName]
	if ok {
		delete(t.Indexes, field)
	}

	mgr, ok := s.indexes[tableName]
	if !ok {
		return false
	}

	return mgr.dropIndex(field)
}

// apply dispatches a decoded WAL record to the matching apply* method.
// Returns an error only for a structurally invalid record (bad JSON
// payload for doc/table); callers doing replay must log and continue
// rather than abort (§4.7).
func (s *state) apply(rec walRecord) error {
	switch rec.Op {
	case opCreate:
		var doc Document
		if err := unmarshalRaw(rec.Doc, &doc); err != nil {
			return fmt.Errorf("decode create op: %w", err)
		}

		s.applyCreate(&doc)
	case opCreateCombined:
		var doc CombinedDocument
		if err := unmarshalRaw(rec.Doc, &doc); err != nil {
			return fmt.Errorf("decode create_combined op: %w", err)
		}

		s.applyCreateCombined(&doc)
	case opUpdate:
		if rec.DocID == nil || rec.UpdatedAt == nil {
			return fmt.Errorf("malformed update op")
		}

		s.applyUpdate(*rec.DocID, rec.Version, rec.Body, *rec.UpdatedAt)
	case opArchive:
		if rec.DocID == nil || rec.UpdatedAt == nil {
			return fmt.Errorf("malformed archive op")
		}

		s.applyArchive(*rec.DocID, rec.Version, *rec.UpdatedAt)
	case opCreateTable:
		var t Table
		if err := unmarshalRaw(rec.Table, &t); err != nil {
			return fmt.Errorf("decode create_table op: %w", err)
		}

		s.applyCreateTable(&t)
	case opDropTable:
		s.applyDropTable(rec.Name)
	case opCreateIndex:
		s.applyCreateIndex(rec.TableName, rec.Field, IndexKind(rec.IndexType))
	case opDropIndex:
		s.applyDropIndex(rec.TableName, rec.Field)
	default:
		return fmt.Errorf("unknown wal op %q", rec.Op)
	}

	return nil
}

// rebuildAllIndexes rebuilds every table's indexManager from its live
// documents. Run after snapshot load and after WAL replay (§4.7 step 3).
func (s *state) rebuildAllIndexes() {
	byTable := make(map[string][]*Document)

	for _, id := range s.order {
		if s.kinds[id] != kindDocument {
			continue
		}

		doc := s.documents[id]
		byTable[doc.TableData.Name] = append(byTable[doc.TableData.Name], doc)
	}

	for name, t := range s.tables {
		mgr := s.indexManagerFor(name)

		for field, kind := range t.Indexes {
			if !mgr.hasIndex(field) {
				mgr.byField[field] = newIndex(kind)
			}
		}

		mgr.rebuildAll(byTable[name])
	}
}

// recomputeDocumentsCounts recounts each table's live document count by
// scanning, per §4.7 step 1 ("recompute documents_count per table by
// counting non-archived documents").
func (s *state) recomputeDocumentsCounts() {
	counts := make(map[string]int)

	for _, id := range s.order {
		if s.kinds[id] != kindDocument {
			continue
		}

		doc := s.documents[id]
		if doc.IsArchived() {
			continue
		}

		counts[doc.TableData.Name]++
	}

	for name, t := range s.tables {
		t.DocumentsCount = counts[name]
	}
}
