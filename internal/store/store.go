// Package store persists processed documents, their field value slots and
// classifier training samples in SQLite.
//
// Writes to one document are serialized: two callers updating the same
// document never interleave, so a user edit racing an AI suggestion cannot
// lose either update. Different documents do not block each other.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/a3tai/mcp-form-autofill/internal/form"
	"github.com/a3tai/mcp-form-autofill/internal/intelligence"
)

// ErrNotFound is returned for unknown document or field ids
var ErrNotFound = errors.New("not found")

// Schema creates the store tables
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	source_path TEXT NOT NULL,
	format TEXT NOT NULL,
	document_type TEXT NOT NULL DEFAULT '',
	field_count INTEGER NOT NULL DEFAULT 0,
	snapshot TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS field_values (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	field_id TEXT NOT NULL,
	user_value TEXT NOT NULL DEFAULT '',
	ai_value TEXT NOT NULL DEFAULT '',
	enhanced INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (document_id, field_id)
);
CREATE TABLE IF NOT EXISTS training_samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	text TEXT NOT NULL,
	field_type TEXT NOT NULL DEFAULT '',
	document_type TEXT NOT NULL DEFAULT '',
	context TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at);
`

// dsnPragmas apply to every pooled connection
const dsnPragmas = "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)"

// ValueSource names the slot a value is written to
type ValueSource string

const (
	SourceUser ValueSource = "user"
	SourceAI   ValueSource = "ai"
)

// ParseValueSource accepts "user" and "ai"; empty means user
func ParseValueSource(s string) (ValueSource, error) {
	switch ValueSource(s) {
	case "", SourceUser:
		return SourceUser, nil
	case SourceAI:
		return SourceAI, nil
	}
	return "", fmt.Errorf("unknown value source %q (want user or ai)", s)
}

// DocumentSummary is one row of ListDocuments
type DocumentSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	SourcePath   string    `json:"source_path"`
	Format       string    `json:"format"`
	DocumentType string    `json:"document_type"`
	FieldCount   int       `json:"field_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is a SQLite backed document store
type Store struct {
	db     *sql.DB
	logger *logrus.Entry

	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	sync.Mutex
	refs int
}

// Open opens or creates the database at path and applies the schema
func Open(path string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?"+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time; SQLite upgrades of concurrent read
	// transactions fail instead of waiting
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.WithField("component", "store"),
		locks:  map[string]*docLock{},
	}
	s.logger.WithField("path", path).Debug("Store opened")
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// lock serializes writers of one document; the returned func unlocks
func (s *Store) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &docLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveDocument stores a layout snapshot and the value slots of its fields,
// replacing any earlier snapshot under the same id.
func (s *Store) SaveDocument(ctx context.Context, layout *form.DocumentLayout) error {
	if layout == nil || layout.ID == "" {
		return fmt.Errorf("layout has no id")
	}
	snapshot, err := json.Marshal(layout)
	if err != nil {
		return fmt.Errorf("failed to encode layout: %w", err)
	}

	unlock := s.lock(layout.ID)
	defer unlock()

	now := time.Now().UnixNano()
	created := layout.CreatedAt.UnixNano()
	if layout.CreatedAt.IsZero() {
		created = now
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (id, title, source_path, format, document_type, field_count, snapshot, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				source_path = excluded.source_path,
				format = excluded.format,
				document_type = excluded.document_type,
				field_count = excluded.field_count,
				snapshot = excluded.snapshot,
				updated_at = excluded.updated_at`,
			layout.ID, layout.Title, layout.SourcePath, string(layout.Format), layout.DocumentType,
			len(layout.Fields), string(snapshot), created, now)
		if err != nil {
			return fmt.Errorf("failed to save document: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM field_values WHERE document_id = ?`, layout.ID); err != nil {
			return fmt.Errorf("failed to clear field values: %w", err)
		}
		for _, f := range layout.Fields {
			if f.Values == (form.ValueSlots{}) {
				continue
			}
			if err := putSlots(ctx, tx, layout.ID, f.ID, f.Values, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": layout.ID,
		"fields":      len(layout.Fields),
	}).Debug("Document saved")
	return nil
}

func putSlots(ctx context.Context, tx *sql.Tx, docID, fieldID string, v form.ValueSlots, now int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO field_values (document_id, field_id, user_value, ai_value, enhanced, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, field_id) DO UPDATE SET
			user_value = excluded.user_value,
			ai_value = excluded.ai_value,
			enhanced = excluded.enhanced,
			updated_at = excluded.updated_at`,
		docID, fieldID, v.UserValue, v.AIValue, v.Enhanced, now)
	if err != nil {
		return fmt.Errorf("failed to save value of field %s: %w", fieldID, err)
	}
	return nil
}

// GetDocument loads a layout with the current value slots of its fields
func (s *Store) GetDocument(ctx context.Context, id string) (*form.DocumentLayout, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM documents WHERE id = ?`, id).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}

	var layout form.DocumentLayout
	if err := json.Unmarshal([]byte(snapshot), &layout); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}

	slots, err := s.fieldValues(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range layout.Fields {
		layout.Fields[i].Values = slots[layout.Fields[i].ID]
	}
	return &layout, nil
}

func (s *Store) fieldValues(ctx context.Context, docID string) (map[string]form.ValueSlots, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field_id, user_value, ai_value, enhanced FROM field_values WHERE document_id = ?`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to load field values: %w", err)
	}
	defer rows.Close()

	out := map[string]form.ValueSlots{}
	for rows.Next() {
		var (
			fieldID string
			v       form.ValueSlots
		)
		if err := rows.Scan(&fieldID, &v.UserValue, &v.AIValue, &v.Enhanced); err != nil {
			return nil, fmt.Errorf("failed to read field value: %w", err)
		}
		out[fieldID] = v
	}
	return out, rows.Err()
}

// ListDocuments returns stored documents, most recently updated first
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, source_path, format, document_type, field_count, created_at, updated_at
		FROM documents ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	out := make([]DocumentSummary, 0)
	for rows.Next() {
		var (
			d                DocumentSummary
			created, updated int64
		)
		if err := rows.Scan(&d.ID, &d.Title, &d.SourcePath, &d.Format, &d.DocumentType, &d.FieldCount, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to read document row: %w", err)
		}
		d.CreatedAt = time.Unix(0, created).UTC()
		d.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDocument removes a document and its values
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	unlock := s.lock(id)
	defer unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetFieldValue writes value into the user or AI slot of one field and
// returns the resulting slots. An AI value never replaces the user value.
func (s *Store) SetFieldValue(ctx context.Context, docID, fieldID, value string, source ValueSource) (form.ValueSlots, error) {
	unlock := s.lock(docID)
	defer unlock()

	var slots form.ValueSlots
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var snapshot string
		err := tx.QueryRowContext(ctx, `SELECT snapshot FROM documents WHERE id = ?`, docID).Scan(&snapshot)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("document %s: %w", docID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to load document %s: %w", docID, err)
		}
		var layout form.DocumentLayout
		if err := json.Unmarshal([]byte(snapshot), &layout); err != nil {
			return fmt.Errorf("failed to decode document %s: %w", docID, err)
		}
		if _, ok := layout.FieldByID(fieldID); !ok {
			return fmt.Errorf("field %s in document %s: %w", fieldID, docID, ErrNotFound)
		}

		err = tx.QueryRowContext(ctx,
			`SELECT user_value, ai_value, enhanced FROM field_values WHERE document_id = ? AND field_id = ?`,
			docID, fieldID).Scan(&slots.UserValue, &slots.AIValue, &slots.Enhanced)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read field value: %w", err)
		}

		switch source {
		case SourceAI:
			slots.SetAI(value)
		default:
			slots.SetUser(value)
		}
		now := time.Now().UnixNano()
		if err := putSlots(ctx, tx, docID, fieldID, slots, now); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE documents SET updated_at = ? WHERE id = ?`, now, docID)
		return err
	})
	if err != nil {
		return form.ValueSlots{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": docID,
		"field_id":    fieldID,
		"source":      source,
	}).Debug("Field value set")
	return slots, nil
}

// AddSamples appends training samples and returns the stored total
func (s *Store) AddSamples(ctx context.Context, samples []intelligence.TrainingSample) (int, error) {
	now := time.Now().UnixNano()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO training_samples (text, field_type, document_type, context, confidence, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare sample insert: %w", err)
		}
		defer stmt.Close()
		for _, smp := range samples {
			if _, err := stmt.ExecContext(ctx, smp.Text, string(smp.FieldType), string(smp.DocumentType),
				smp.Context, smp.Confidence, now); err != nil {
				return fmt.Errorf("failed to store sample: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return s.SampleCount(ctx)
}

// Samples returns every stored training sample in insertion order
func (s *Store) Samples(ctx context.Context) ([]intelligence.TrainingSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT text, field_type, document_type, context, confidence
		FROM training_samples ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load samples: %w", err)
	}
	defer rows.Close()

	out := make([]intelligence.TrainingSample, 0)
	for rows.Next() {
		var (
			smp    intelligence.TrainingSample
			ft, dt string
		)
		if err := rows.Scan(&smp.Text, &ft, &dt, &smp.Context, &smp.Confidence); err != nil {
			return nil, fmt.Errorf("failed to read sample: %w", err)
		}
		smp.FieldType = form.FieldType(ft)
		smp.DocumentType = intelligence.DocumentType(dt)
		out = append(out, smp)
	}
	return out, rows.Err()
}

// SampleCount returns the number of stored training samples
func (s *Store) SampleCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM training_samples`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	return n, nil
}
