package yaradb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
)

// snapshotDoc is a single entry in a snapshot's "documents" array. It can
// decode either a Document or a CombinedDocument; the discriminator is
// the presence of "document_ids" (only CombinedDocument has it).
type snapshotDoc struct {
	raw       json.RawMessage
	combined  bool
}

func (s *snapshotDoc) UnmarshalJSON(data []byte) error {
	var probe struct {
		DocumentIDs *[]uuid.UUID `json:"document_ids"`
	}

	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	s.raw = append(json.RawMessage(nil), data...)
	s.combined = probe.DocumentIDs != nil

	return nil
}

// snapshotFile is the current object-shaped snapshot format (§4.4,
// §6): {"tables": [...], "documents": [...]}.
type snapshotFile struct {
	Tables    []*Table      `json:"tables"`
	Documents []snapshotDoc `json:"documents"`
}

// loadSnapshot reads and parses the snapshot at path into a fresh state.
// Accepts both the current object shape and the legacy bare-array shape
// (a supplemented feature, see SPEC_FULL.md §SUPPLEMENTED FEATURES #1).
// Returns an empty state, no error, if the file does not exist.
func loadSnapshot(path string) (*state, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return newState(), nil
		}

		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	s := newState()

	trimmed := strings.TrimLeft(string(data), " \t\r\n")
	if strings.HasPrefix(trimmed, "[") {
		var docs []snapshotDoc
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("decode legacy snapshot: %w", err)
		}

		if err := loadDocuments(s, docs); err != nil {
			return nil, err
		}

		s.recomputeDocumentsCounts()

		return s, nil
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	for _, t := range file.Tables {
		s.tables[t.Name] = t
		s.indexManagerFor(t.Name)
	}

	if err := loadDocuments(s, file.Documents); err != nil {
		return nil, err
	}

	s.recomputeDocumentsCounts()

	return s, nil
}

func loadDocuments(s *state, docs []snapshotDoc) error {
	for _, sd := range docs {
		if sd.combined {
			var doc CombinedDocument
			if err := json.Unmarshal(sd.raw, &doc); err != nil {
				return fmt.Errorf("decode combined document: %w", err)
			}

			s.combined[doc.ID] = &doc
			s.kinds[doc.ID] = kindCombined
			s.order = append(s.order, doc.ID)

			continue
		}

		var doc Document
		if err := json.Unmarshal(sd.raw, &doc); err != nil {
			return fmt.Errorf("decode document: %w", err)
		}

		s.documents[doc.ID] = &doc
		s.kinds[doc.ID] = kindDocument
		s.order = append(s.order, doc.ID)

		// A document's table may not have a Table entry yet if the
		// snapshot predates explicit table creation (lazy creation is
		// never WAL-logged, and pre-first-checkpoint crashes lose it
		// entirely — see §9). Re-materialize a default-settings table
		// from table_data so the document remains reachable.
		if _, ok := s.tables[doc.TableData.Name]; !ok && doc.TableData.Name != "" {
			s.tables[doc.TableData.Name] = &Table{
				ID:        doc.TableData.ID,
				Name:      doc.TableData.Name,
				Indexes:   make(map[string]IndexKind),
				CreatedAt: doc.CreatedAt,
			}
			s.indexManagerFor(doc.TableData.Name)
		}
	}

	return nil
}

// writeSnapshot serializes s to path using the checkpoint protocol
// (§4.4): atomic.WriteFile writes a temporary file in path's directory
// and atomically renames it over path. The temporary file has a
// randomly suffixed name chosen by atomic.WriteFile, not "<path>.tmp".
// Does not touch the WAL; callers run this as step 1-2 of a checkpoint.
func writeSnapshot(path string, s *state) error {
	file := snapshotFile{Tables: make([]*Table, 0, len(s.tables))}

	for _, t := range s.tables {
		file.Tables = append(file.Tables, t)
	}

	for _, id := range s.order {
		switch s.kinds[id] {
		case kindDocument:
			raw, err := json.Marshal(s.documents[id])
			if err != nil {
				return fmt.Errorf("encode document %s: %w", id, err)
			}

			file.Documents = append(file.Documents, snapshotDoc{raw: raw})
		case kindCombined:
			raw, err := json.Marshal(s.combined[id])
			if err != nil {
				return fmt.Errorf("encode combined document %s: %w", id, err)
			}

			file.Documents = append(file.Documents, snapshotDoc{raw: raw, combined: true})
		}
	}

	out, err := json.Marshal(struct {
		Tables    []*Table          `json:"tables"`
		Documents []json.RawMessage `json:"documents"`
	}{
		Tables:    file.Tables,
		Documents: rawDocuments(file.Documents),
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(out)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	return nil
}

func rawDocuments(docs []snapshotDoc) []json.RawMessage {
	out := make([]json.RawMessage, len(docs))
	for i, d := range docs {
		out[i] = d.raw
	}

	return out
}
