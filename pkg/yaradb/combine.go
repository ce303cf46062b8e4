package yaradb

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const maxCombineIDs = 100

// CombineDocumentsRequest is the input to [Engine.CombineDocuments].
type CombineDocumentsRequest struct {
	Name     string
	IDs      []uuid.UUID
	Strategy CombineStrategy
}

// CombineDocuments implements §4.5's combine_documents: validates
// 1..100 ids all resolve to live non-archived documents, merges their
// bodies per Strategy, attaches _metadata, and persists the result as a
// single [CombinedDocument] via one `create_combined` WAL record (no
// partial record on a mid-validation failure, §5).
func (e *Engine) CombineDocuments(ctx context.Context, req CombineDocumentsRequest) (*CombinedDocument, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	if err := e.checkClosed(); err != nil {
		return nil, err
	}

	if len(req.IDs) == 0 || len(req.IDs) > maxCombineIDs {
		return nil, wrap(fmt.Errorf("%w: combine requires 1 to %d ids, got %d", ErrValidation, maxCombineIDs, len(req.IDs)))
	}

	switch req.Strategy {
	case StrategyOverwrite, StrategyAppend, StrategyNamespace:
	default:
		return nil, wrap(fmt.Errorf("%w: unknown merge strategy %q", ErrValidation, req.Strategy))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sources := make([]*Document, 0, len(req.IDs))

	for _, id := range req.IDs {
		doc, ok := e.st.documents[id]
		if !ok || doc.IsArchived() {
			return nil, wrap(fmt.Errorf("%w: source document %s", ErrValidation, id), withDocID(id.String()))
		}

		sources = append(sources, doc)
	}

	body := mergeBodies(sources, req.Strategy)
	body["_metadata"] = combineMetadata(sources, req.Strategy)

	combined := &CombinedDocument{
		ID:          uuid.New(),
		Name:        req.Name,
		DocumentIDs: append([]uuid.UUID(nil), req.IDs...),
		Body:        body,
		Version:     1,
		CreatedAt:   now(),
	}
	combined.updateBodyHash()

	rec, err := recordCreateCombined(combined)
	if err != nil {
		return nil, wrap(fmt.Errorf("%w: %w", ErrDurability, err))
	}

	if err := e.appendAndApply(rec); err != nil {
		return nil, wrap(err)
	}

	return combined.clone(), nil
}

func combineMetadata(sources []*Document, strategy CombineStrategy) map[string]any {
	ids := make([]string, len(sources))
	names := make([]string, len(sources))
	versions := make([]int, len(sources))

	for i, d := range sources {
		ids[i] = d.ID.String()
		names[i] = d.Name
		versions[i] = d.Version
	}

	return map[string]any{
		"source_ids":       toAnySlice(ids),
		"source_names":     toAnySlice(names),
		"source_versions":  toIntAnySlice(versions),
		"strategy":         string(strategy),
		"combined_at":      now().Format(timeFormat),
	}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}

	return out
}

func toIntAnySlice(is []int) []any {
	out := make([]any, len(is))
	for i, v := range is {
		out[i] = v
	}

	return out
}

// mergeBodies implements the three documented strategies (§4.5):
// overwrite = last-write-wins merge of top-level keys; append =
// concatenate list-valued keys shared by multiple sources, else
// overwrite; namespace = each source body placed under its own
// doc_{i}_{name} key.
func mergeBodies(sources []*Document, strategy CombineStrategy) map[string]any {
	out := make(map[string]any)

	switch strategy {
	case StrategyNamespace:
		for i, d := range sources {
			key := fmt.Sprintf("doc_%d_%s", i, d.Name)
			out[key] = cloneBody(d.Body)
		}
	case StrategyAppend:
		for _, d := range sources {
			for k, v := range d.Body {
				existing, present := out[k]
				if !present {
					out[k] = cloneValue(v)
					continue
				}

				existingList, existingIsList := existing.([]any)
				newList, newIsList := v.([]any)

				if existingIsList && newIsList {
					out[k] = append(append([]any(nil), existingList...), newList...)
					continue
				}

				out[k] = cloneValue(v)
			}
		}
	default: // StrategyOverwrite
		for _, d := range sources {
			for k, v := range d.Body {
				out[k] = cloneValue(v)
			}
		}
	}

	return out
}
