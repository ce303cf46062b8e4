package yaradb

import (
	"context"
)

// RangeQueryRequest is the input to [Engine.FindDocumentsInRange], the
// index-assisted range lookup §4.2/§9's "no query language beyond
// equality filters plus index-assisted exact/range lookup" allows for
// alongside [Engine.FindDocuments]'s equality filtering.
type RangeQueryRequest struct {
	TableName string
	Field     string // must have a btree index; see [Engine.CreateIndex]

	// Min/Max bound the lookup; a nil bound is open on that side
	// (§4.2: "None for either bound means open on that side").
	Min, Max any

	IncludeArchived bool
	SortBy          string
	Order           SortOrder
	Limit, Offset   int
}

// FindDocumentsInRange returns documents in TableName whose value at
// Field falls within [Min, Max], using the ordered (btree) index
// declared on that field. Returns [ErrValidation] if the field has no
// btree index.
func (e *Engine) FindDocumentsInRange(ctx context.Context, req RangeQueryRequest) ([]*Document, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	if err := e.checkClosed(); err != nil {
		return nil, err
	}

	e.mu.Lock()

	mgr, ok := e.st.indexes[req.TableName]
	if !ok {
		e.mu.Unlock()

		return nil, wrap(errValidationf("table %q has no indexes", req.TableName), withTable(req.TableName))
	}

	ids, ok := mgr.rangeLookup(req.Field, req.Min, req.Max)
	if !ok {
		e.mu.Unlock()

		return nil, wrap(errValidationf("field %q has no ordered (btree) index on table %q", req.Field, req.TableName), withTable(req.TableName), withField(req.Field))
	}

	results := make([]*Document, 0, len(ids))

	for _, id := range ids {
		doc, ok := e.st.documents[id]
		if !ok {
			continue
		}

		if !req.IncludeArchived && doc.IsArchived() {
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
