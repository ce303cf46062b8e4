package yaradb

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Operation kinds, per the spec's WAL table (§4.4): a closed sum type
// over eight kinds, encoded as a tagged JSON line.
const (
	opCreate         = "create"
	opCreateCombined = "create_combined"
	opUpdate         = "update"
	opArchive        = "archive"
	opCreateTable    = "create_table"
	opDropTable      = "drop_table"
	opCreateIndex    = "create_index"
	opDropIndex      = "drop_index"
)

// walRecord is the on-disk shape of one WAL line: a tagged union over
// the eight operation kinds above. Only the fields relevant to Op are
// populated; everything else is its zero value and omitted on encode.
type walRecord struct {
	Op string `json:"op"`

	// create / create_combined
	Doc json.RawMessage `json:"doc,omitempty"`

	// update / archive
	DocID     *uuid.UUID     `json:"doc_id,omitempty"`
	Version   int            `json:"version,omitempty"`
	Body      map[string]any `json:"body,omitempty"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`

	// create_table / drop_table
	Table json.RawMessage `json:"table,omitempty"`
	Name  string          `json:"name,omitempty"`

	// create_index / drop_index
	TableName string `json:"table_name,omitempty"`
	Field     string `json:"field,omitempty"`
	IndexType string `json:"index_type,omitempty"`
}

func recordCreate(doc *Document) (walRecord, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return walRecord{}, err
	}

	return walRecord{Op: opCreate, Doc: raw}, nil
}

func recordCreateCombined(doc *CombinedDocument) (walRecord, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return walRecord{}, err
	}

	return walRecord{Op: opCreateCombined, Doc: raw}, nil
}

func recordUpdate(id uuid.UUID, version int, body map[string]any, updatedAt time.Time) walRecord {
	return walRecord{Op: opUpdate, DocID: &id, Version: version, Body: body, UpdatedAt: &updatedAt}
}

func recordArchive(id uuid.UUID, version int, updatedAt time.Time) walRecord {
	return walRecord{Op: opArchive, DocID: &id, Version: version, UpdatedAt: &updatedAt}
}

func recordCreateTable(t *Table) (walRecord, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return walRecord{}, err
	}

	return walRecord{Op: opCreateTable, Table: raw}, nil
}

func recordDropTable(name string) walRecord {
	return walRecord{Op: opDropTable, Name: name}
}

func recordCreateIndex(tableName, field string, kind IndexKind) walRecord {
	return walRecord{Op: opCreateIndex, TableName: tableName, Field: field, IndexType: string(kind)}
}

func recordDropIndex(tableName, field string) walRecord {
	return walRecord{Op: opDropIndex, TableName: tableName, Field: field}
}

// wal is the append-only, line-delimited, fsync-on-commit operation log.
// A single writer at a time; guarded by its own mutex so the engine can
// take it independently of the state mutex for the checkpoint protocol
// (state mutex first, then WAL mutex — see state.go).
type wal struct {
	mu             sync.Mutex
	file           *os.File
	w              *bufio.Writer
	path           string
	syncEveryWrite bool
}

// openWAL opens (creating if absent) the WAL file at path and replays
// every decodable line into records, in file order. Lines that don't
// parse as JSON are skipped (never aborts the open), matching the
// "replay must never abort" rule in §4.7. syncEveryWrite controls
// whether append fsyncs after every write (Config.WALSyncEveryWrite);
// when false, durability is traded for speed, matching the buffered
// writer's own flush-without-fsync semantics.
func openWAL(path string, syncEveryWrite bool) (*wal, []walRecord, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open wal: %w", err)
	}

	records, err := scanRecords(file)
	if err != nil {
		_ = file.Close()

		return nil, nil, fmt.Errorf("scan wal: %w", err)
	}

	return &wal{file: file, w: bufio.NewWriter(file), path: path, syncEveryWrite: syncEveryWrite}, records, nil
}

// scanRecords reads every line of f from the start, decoding each as a
// walRecord. It does not move f's write offset (the file was opened
// O_APPEND, so appends always go to EOF regardless of read position).
func scanRecords(f *os.File) ([]walRecord, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var records []walRecord

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec walRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// Malformed line: skip and keep replaying.
			continue
		}

		records = append(records, rec)
	}

	return records, scanner.Err()
}

// append writes rec as one JSON line, flushes, and fsyncs the file
// descriptor before returning, per §4.4's durability contract: a
// mutation is committed only once this returns successfully.
func (w *wal) append(rec walRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return wrap(fmt.Errorf("%w: encode wal record: %w", ErrDurability, err))
	}

	if _, err := w.w.Write(data); err != nil {
		return wrap(fmt.Errorf("%w: write wal: %w", ErrDurability, err))
	}

	if err := w.w.WriteByte('\n'); err != nil {
		return wrap(fmt.Errorf("%w: write wal: %w", ErrDurability, err))
	}

	if err := w.w.Flush(); err != nil {
		return wrap(fmt.Errorf("%w: flush wal: %w", ErrDurability, err))
	}

	if !w.syncEveryWrite {
		return nil
	}

	if err := w.file.Sync(); err != nil {
		return wrap(fmt.Errorf("%w: fsync wal: %w", ErrDurability, err))
	}

	return nil
}

// truncate empties the WAL file after a successful checkpoint. It takes
// the WAL mutex itself; its callers (engine.go's Checkpoint and
// WipeAllData) already hold the state mutex, so the order is state then
// WAL.
func (w *wal) truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flush wal before truncate: %w", err)
	}

	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate wal: %w", err)
	}

	if _, err := w.file.Seek(0, 0); err != nil {
		return fmt.Errorf("seek wal: %w", err)
	}

	w.w.Reset(w.file)

	return w.file.Sync()
}

func (w *wal) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.w.Flush(); err != nil {
		_ = w.file.Close()

		return err
	}

	return w.file.Close()
}
