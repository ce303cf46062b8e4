package yaradb

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// CreateDocumentRequest is the input to [Engine.CreateDocument].
type CreateDocumentRequest struct {
	Name      string
	Body      map[string]any
	TableName string
}

// CreateDocument validates preconditions, mints a new [Document], and
// commits it (§4.5's create_document):
//  1. resolve or lazily create the table (lazy creation is not logged)
//  2. fail READ_ONLY if the table is read-only
//  3. fail CONFLICT on a unique_fields collision
//  4. fail VALIDATION against the table's schema, if any
//  5. log the WAL `create` record, then apply to memory
func (e *Engine) CreateDocument(ctx context.Context, req CreateDocumentRequest) (*Document, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	if err := e.checkClosed(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	table := e.st.ensureTable(req.TableName)

	if table.Settings.ReadOnly {
		return nil, wrap(ErrReadOnly, withTable(req.TableName))
	}

	if err := e.checkUniqueFields(table, req.Body, uuid.Nil); err != nil {
		return nil, err
	}

	if table.Settings.Schema != nil {
		if err := validateSchema(table.Settings.Schema, req.Body); err != nil {
			return nil, wrap(fmt.Errorf("%w: %w", ErrValidation, err), withTable(req.TableName))
		}
	}

	doc := &Document{
		ID:   uuid.New(),
		Name: req.Name,
		TableData: TableRef{
			ID:   table.ID,
			Name: table.Name,
		},
		Body:      cloneBody(req.Body),
		Version:   1,
		CreatedAt: now(),
	}
	doc.updateBodyHash()

	rec, err := recordCreate(doc)
	if err != nil {
		return nil, wrap(fmt.Errorf("%w: %w", ErrDurability, err), withTable(req.TableName))
	}

	if err := e.appendAndApply(rec); err != nil {
		return nil, wrap(err, withTable(req.TableName))
	}

	return doc.clone(), nil
}

// GetDocument returns the standard document with id, or [ErrNotFound]
// if it does not exist or is archived. It looks only at standard
// documents: a combined document's id also yields [ErrNotFound] here;
// [Engine.GetCombinedDocument] and [Engine.Get] return combined
// documents.
func (e *Engine) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	if err := e.checkClosed(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	doc, ok := e.st.documents[id]
	if !ok || doc.IsArchived() {
		return nil, wrap(ErrNotFound, withDocID(id.String()))
	}

	return doc.clone(), nil
}

// GetCombinedDocument returns the combined document with id, or
// [ErrNotFound].
func (e *Engine) GetCombinedDocument(ctx context.Context, id uuid.UUID) (*CombinedDocument, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	if err := e.checkClosed(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	doc, ok := e.st.combined[id]
	if !ok || doc.IsArchived() {
		return nil, wrap(ErrNotFound, withDocID(id.String()))
	}

	return doc.clone(), nil
}

// Get resolves id against the single process-wide id namespace (§3,
// invariant 1) and returns whichever variant it names: a *[Document] or
// a *[CombinedDocument]. This is the untyped equivalent of the spec's
// single get_document operation; [Engine.GetDocument] and
// [Engine.GetCombinedDocument] are the typed, more convenient form most
// callers want.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (any, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	if err := e.checkClosed(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.st.kinds[id] {
	case kindDocument:
		doc := e.st.documents[id]
		if doc.IsArchived() {
			return nil, wrap(ErrNotFound, withDocID(id.String()))
		}

		return doc.clone(), nil
	case kindCombined:
		doc := e.st.combined[id]
		if doc.IsArchived() {
			return nil, wrap(ErrNotFound, withDocID(id.String()))
		}

		return doc.clone(), nil
	default:
		return nil, wrap(ErrNotFound, withDocID(id.String()))
	}
}

// SortOrder controls [FindDocumentsRequest.Order].
type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

// FindDocumentsRequest is the input to [Engine.FindDocuments].
type FindDocumentsRequest struct {
	// Filter is an AND-combined set of equality clauses over dotted
	// body field paths. A field absent from a document's body never
	// matches (§4.5 step 3).
	Filter map[string]any

	TableName       string
	IncludeArchived bool

	SortBy string
	Order  SortOrder

	Limit  int // 0 means "no limit"
	Offset int
}

// FindDocuments implements §4.5's find_documents: index-assisted lookup
// when Filter is a single equality clause on an indexed field of
// TableName, else a scan; archived documents dropped unless
// IncludeArchived; remaining clauses applied as equality AND; optional
// sort (missing field sorts last) then offset/limit pagination.
func (e *Engine) FindDocuments(ctx context.Context, req FindDocumentsRequest) ([]*Document, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	if err := e.checkClosed(); err != nil {
		return nil, err
	}

	e.mu.Lock()

	candidates := e.candidateDocuments(req)

	results := make([]*Document, 0, len(candidates))

	for _, doc := range candidates {
		if !req.IncludeArchived && doc.IsArchived() {
			continue
		}

		if !matchesFilter(doc.Body, req.Filter) {
			continue
		}

		results = append(results, doc.clone())
	}

	e.mu.Unlock()

	if req.SortBy != "" {
		sortDocuments(results, req.SortBy, req.Order)
	}

	return paginate(results, req.Offset, req.Limit), nil
}

// candidateDocuments returns the working set to filter: the full table
// (or whole store if TableName is empty) or, when Filter is a single
// equality clause on an indexed field, just the index's hit set. Must be
// called with e.mu held.
func (e *Engine) candidateDocuments(req FindDocumentsRequest) []*Document {
	if req.TableName != "" && len(req.Filter) == 1 {
		for field, value := range req.Filter {
			mgr, ok := e.st.indexes[req.TableName]
			if !ok {
				break
			}

			ids, indexed := mgr.lookup(field, value)
			if !indexed {
				break
			}

			out := make([]*Document, 0, len(ids))

			for _, id := range ids {
				if doc, ok := e.st.documents[id]; ok {
					out = append(out, doc)
				}
			}

			return out
		}
	}

	out := make([]*Document, 0, len(e.st.order))

	for _, id := range e.st.order {
		if e.st.kinds[id] != kindDocument {
			continue
		}

		doc := e.st.documents[id]
		if req.TableName != "" && doc.TableData.Name != req.TableName {
			continue
		}

		out = append(out, doc)
	}

	return out
}

func matchesFilter(body map[string]any, filter map[string]any) bool {
	for field, want := range filter {
		got, ok := fieldValue(body, field)
		if !ok {
			return false
		}

		if compareValues(got, want) != 0 || typeClass(got) != typeClass(want) {
			return false
		}
	}

	return true
}

func sortDocuments(docs []*Document, field string, order SortOrder) {
	sort.SliceStable(docs, func(i, j int) bool {
		vi, oki := fieldValue(docs[i].Body, field)
		vj, okj := fieldValue(docs[j].Body, field)

		// Missing field sorts last, regardless of order.
		if !oki && !okj {
			return false
		}

		if !oki {
			return false
		}

		if !okj {
			return true
		}

		less := compareValues(vi, vj) < 0
		if order == SortDescending {
			return !less && compareValues(vi, vj) != 0
		}

		return less
	})
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}

	items = items[offset:]

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}

// UpdateDocument implements §4.5's update_document: optimistic
// concurrency via the client-supplied version, re-validation of
// read_only/unique_fields/schema against the new body, then a single
// critical section that logs the WAL record and mutates body, version,
// updated_at and body_hash together (see DESIGN.md's open question #3).
func (e *Engine) UpdateDocument(ctx context.Context, id uuid.UUID, version int, body map[string]any) (*Document, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	if err := e.checkClosed(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	doc, ok := e.st.documents[id]
	if !ok || doc.IsArchived() {
		return nil, wrap(ErrNotFound, withDocID(id.String()))
	}

	if doc.Version != version {
		return nil, wrap(ErrConflict, withDocID(id.String()))
	}

	// A plain lookup, not ensureTable: the owning table may have been
	// deleted out from under this document (DeleteTable orphans
	// documents rather than cascading). Resurrecting it here would
	// make it reappear in ListTables/GetTableDetails and wouldn't
	// replay the same way, since apply() never calls ensureTable from
	// UpdateDocument's path. Matches original_source/core/repository.py's
	// `if table:` skip.
	if table, ok := e.st.tables[doc.TableData.Name]; ok {
		if table.Settings.ReadOnly {
			return nil, wrap(ErrReadOnly, withDocID(id.String()), withTable(table.Name))
		}

		if err := e.checkUniqueFields(table, body, id); err != nil {
			return nil, err
		}

		if table.Settings.Schema != nil {
			if err := validateSchema(table.Settings.Schema, body); err != nil {
				return nil, wrap(fmt.Errorf("%w: %w", ErrValidation, err), withDocID(id.String()), withTable(table.Name))
			}
		}
	}

	newVersion := doc.Version + 1
	updatedAt := now()

	rec := recordUpdate(id, newVersion, cloneBody(body), updatedAt)
	if err := e.appendAndApply(rec); err != nil {
		return nil, wrap(err, withDocID(id.String()))
	}

	return doc.clone(), nil
}

// ArchiveDocument implements §4.5's archive_document: soft-delete,
// invisible to reads and indexes afterward, but retained in the id map
// so further replay by id stays well-defined.
func (e *Engine) ArchiveDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	if err := e.checkClosed(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	doc, ok := e.st.documents[id]
	if !ok || doc.IsArchived() {
		return nil, wrap(ErrNotFound, withDocID(id.String()))
	}

	newVersion := doc.Version + 1
	updatedAt := now()

	rec := recordArchive(id, newVersion, updatedAt)
	if err := e.appendAndApply(rec); err != nil {
		return nil, wrap(err, withDocID(id.String()))
	}

	return doc.clone(), nil
}

// checkUniqueFields scans non-archived documents in table for a
// unique_fields collision with body, excluding excludeID (used by update
// to exclude the document being updated). Must be called with e.mu held.
func (e *Engine) checkUniqueFields(table *Table, body map[string]any, excludeID uuid.UUID) error {
	for _, field := range table.Settings.UniqueFields {
		want, ok := fieldValue(body, field)
		if !ok {
			continue
		}

		for _, id := range e.st.order {
			if id == excludeID || e.st.kinds[id] != kindDocument {
				continue
			}

			other := e.st.documents[id]
			if other.TableData.Name != table.Name || other.IsArchived() {
				continue
			}

			got, ok := fieldValue(other.Body, field)
			if !ok {
				continue
			}

			if compareValues(got, want) == 0 && typeClass(got) == typeClass(want) {
				return wrap(fmt.Errorf("%w: field %q already has value", ErrConflict, field), withTable(table.Name))
			}
		}
	}

	return nil
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return wrap(fmt.Errorf("context is nil"))
	}

	if err := ctx.Err(); err != nil {
		return wrap(err)
	}

	return nil
}
