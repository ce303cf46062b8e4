package yaradb

import (
	"time"

	"github.com/google/uuid"
)

// timeFormat is the wire format for timestamps embedded in document
// bodies (§6: "ISO-8601 with UTC offset"). Document struct fields
// themselves are time.Time and get this treatment automatically from
// encoding/json's RFC 3339 marshaling.
const timeFormat = time.RFC3339Nano

// TableRef identifies the table a Document belongs to, fixed at creation.
type TableRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Document is the standard document variant: an arbitrary JSON body owned
// by a table, with a version, an integrity digest, and lifecycle
// timestamps.
//
// Documents are created by [Engine.CreateDocument], mutated only by
// [Engine.UpdateDocument], archived (soft-deleted) by
// [Engine.ArchiveDocument], and destroyed only by [Engine.WipeAllData].
type Document struct {
	ID        uuid.UUID      `json:"_id"`
	Name      string         `json:"name"`
	TableData TableRef       `json:"table_data"`
	Body      map[string]any `json:"body"`
	BodyHash  string         `json:"body_hash"`
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt *time.Time     `json:"updated_at"`
	ArchivedAt *time.Time    `json:"archived_at"`
}

// IsArchived reports whether the document has been soft-deleted.
func (d *Document) IsArchived() bool { return d.ArchivedAt != nil }

// updateBodyHash recomputes BodyHash from the current Body. Callers must
// hold the state mutex; see DESIGN.md's open-question #3 for why this is
// never split from the body assignment it follows.
func (d *Document) updateBodyHash() {
	d.BodyHash = bodyHash(d.Body)
}

// clone returns a deep-enough copy safe to hand to a reader outside the
// state mutex: Body is copied, TableRef and timestamps are value/pointer
// types copied by value (ArchivedAt/UpdatedAt point at immutable instants
// that are never mutated in place, only replaced).
func (d *Document) clone() *Document {
	cp := *d
	cp.Body = cloneBody(d.Body)

	return &cp
}

// CombinedDocument is produced by [Engine.CombineDocuments]. It has the
// same shape as Document except it carries the ids of its source
// documents instead of a TableRef, and is never listed as belonging to a
// table.
type CombinedDocument struct {
	ID          uuid.UUID      `json:"_id"`
	Name        string         `json:"name"`
	DocumentIDs []uuid.UUID    `json:"document_ids"`
	Body        map[string]any `json:"body"`
	BodyHash    string         `json:"body_hash"`
	Version     int            `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   *time.Time     `json:"updated_at"`
	ArchivedAt  *time.Time     `json:"archived_at"`
}

func (d *CombinedDocument) IsArchived() bool { return d.ArchivedAt != nil }

func (d *CombinedDocument) updateBodyHash() {
	d.BodyHash = bodyHash(d.Body)
}

func (d *CombinedDocument) clone() *CombinedDocument {
	cp := *d
	cp.Body = cloneBody(d.Body)
	cp.DocumentIDs = append([]uuid.UUID(nil), d.DocumentIDs...)

	return &cp
}

// CombineStrategy controls how [Engine.CombineDocuments] merges source
// bodies.
type CombineStrategy string

const (
	// StrategyOverwrite does a last-write-wins merge of top-level keys.
	StrategyOverwrite CombineStrategy = "overwrite"
	// StrategyAppend concatenates list-valued keys shared by multiple
	// sources and falls back to overwrite for any other key.
	StrategyAppend CombineStrategy = "append"
	// StrategyNamespace places each source body under its own
	// doc_{index}_{name} key instead of merging.
	StrategyNamespace CombineStrategy = "namespace"
)

// TableSettings configures validation and access rules for a [Table].
type TableSettings struct {
	// Schema, if non-nil, is a JSON-Schema-subset object (see schema.go)
	// every create/update of a document in this table must satisfy.
	Schema map[string]any `json:"schema,omitempty"`

	// ReadOnly rejects all mutations to documents in this table.
	ReadOnly bool `json:"read_only"`

	// UniqueFields lists top-level body fields that must be unique among
	// non-archived documents of this table.
	UniqueFields []string `json:"unique_fields,omitempty"`
}

// IndexKind names the two supported secondary index variants.
type IndexKind string

const (
	IndexHash     IndexKind = "hash"
	IndexBTree    IndexKind = "btree"
)

// Table is a named collection of documents plus the settings and index
// declarations that govern them. The live index structures are not part
// of Table; they're owned by the engine's per-table indexManager and
// rebuilt from documents on load and replay (see §9 of the spec this
// implements).
type Table struct {
	ID       uuid.UUID        `json:"id"`
	Name     string           `json:"name"`
	Settings TableSettings    `json:"settings"`
	Indexes  map[string]IndexKind `json:"indexes"`

	CreatedAt      time.Time `json:"created_at"`
	DocumentsCount int       `json:"documents_count"`
}

func newTable(name string, settings TableSettings) *Table {
	return &Table{
		ID:        uuid.New(),
		Name:      name,
		Settings:  settings,
		Indexes:   make(map[string]IndexKind),
		CreatedAt: now(),
	}
}

func (t *Table) clone() *Table {
	cp := *t
	cp.Indexes = make(map[string]IndexKind, len(t.Indexes))

	for k, v := range t.Indexes {
		cp.Indexes[k] = v
	}

	cp.Settings.UniqueFields = append([]string(nil), t.Settings.UniqueFields...)
	if t.Settings.Schema != nil {
		cp.Settings.Schema = cloneBody(t.Settings.Schema)
	}

	return &cp
}

func cloneBody(body map[string]any) map[string]any {
	if body == nil {
		return nil
	}

	cp := make(map[string]any, len(body))
	for k, v := range body {
		cp[k] = cloneValue(v)
	}

	return cp
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return cloneBody(vv)
	case []any:
		cp := make([]any, len(vv))
		for i, e := range vv {
			cp[i] = cloneValue(e)
		}

		return cp
	default:
		return v
	}
}

// now returns the current UTC wall-clock instant; every timestamp the
// package stamps on documents and tables comes from here.
func now() time.Time {
	return time.Now().UTC()
}
