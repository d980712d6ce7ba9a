// Package store keeps the local worklist in SQLite: imported documents, the
// latest result per document and an audit log of every validation attempt.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"comprobantes/internal/logger"
	"comprobantes/pkg/models"
)

// Document states. Result states are the models.Record* values.
const (
	StatusPending = "pending"
)

// ErrDocumentNotFound is returned for unknown document ids.
var ErrDocumentNotFound = errors.New("document not found")

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	source_path TEXT,
	mime_type TEXT,
	image BLOB,
	ocr_json TEXT,
	fields_json TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status, created_at);

CREATE TABLE IF NOT EXISTS validation_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	status TEXT NOT NULL,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	perturbation TEXT,
	outcome_json TEXT,
	counterparty_json TEXT,
	error TEXT,
	verified_at TIMESTAMP,
	FOREIGN KEY(document_id) REFERENCES documents(id)
);

CREATE TABLE IF NOT EXISTS validation_attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	perturbation TEXT,
	issuer_tax_id TEXT,
	document_type TEXT,
	series TEXT,
	number TEXT,
	issue_date TEXT,
	amount TEXT,
	status TEXT NOT NULL,
	FOREIGN KEY(document_id) REFERENCES documents(id)
);
`

// Store implements services.DocumentStore on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	const op = "Open"

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open database at %s: %w", op, path, err)
	}
	// One connection keeps ":memory:" databases and SQLite locking simple.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: failed to create tables: %w", op, err)
	}

	s := &Store{db: db, now: time.Now, log: logger.WithComponent("store")}
	s.log.Debug().Str("path", path).Msg("Database tables ensured")
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddDocument inserts a pending document, or resets an existing one to pending
// with the new content.
func (s *Store) AddDocument(ctx context.Context, doc models.Document, sourcePath string) error {
	const op = "AddDocument"

	ocrJSON, err := marshalNullable(doc.OCR)
	if err != nil {
		return fmt.Errorf("%s: encode OCR result: %w", op, err)
	}
	fieldsJSON, err := marshalNullable(doc.Fields)
	if err != nil {
		return fmt.Errorf("%s: encode fields: %w", op, err)
	}

	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, source_path, mime_type, image, ocr_json, fields_json, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_path = excluded.source_path,
			mime_type = excluded.mime_type,
			image = excluded.image,
			ocr_json = excluded.ocr_json,
			fields_json = excluded.fields_json,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		doc.ID, sourcePath, doc.MimeType, doc.Image, ocrJSON, fieldsJSON, StatusPending, now, now)
	if err != nil {
		return fmt.Errorf("%s: insert %s: %w", op, doc.ID, err)
	}
	return nil
}

// ListPending returns pending documents and documents whose last run ended in
// an error, oldest first.
func (s *Store) ListPending(ctx context.Context, limit int) ([]models.Document, error) {
	const op = "ListPending"

	query := `SELECT id, mime_type, image, ocr_json, fields_json FROM documents
		WHERE status IN (?, ?) ORDER BY created_at, id`
	args := []interface{}{StatusPending, models.RecordError}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var (
			doc        models.Document
			mimeType   sql.NullString
			ocrJSON    sql.NullString
			fieldsJSON sql.NullString
		)
		if err := rows.Scan(&doc.ID, &mimeType, &doc.Image, &ocrJSON, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		doc.MimeType = mimeType.String
		if ocrJSON.Valid {
			doc.OCR = &models.OCRResult{}
			if err := json.Unmarshal([]byte(ocrJSON.String), doc.OCR); err != nil {
				return nil, fmt.Errorf("%s: decode OCR result of %s: %w", op, doc.ID, err)
			}
		}
		if fieldsJSON.Valid {
			doc.Fields = &models.ExtractedInvoiceFields{}
			if err := json.Unmarshal([]byte(fieldsJSON.String), doc.Fields); err != nil {
				return nil, fmt.Errorf("%s: decode fields of %s: %w", op, doc.ID, err)
			}
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return docs, nil
}

// SaveResult stores the document's fields and status, the result row and one
// audit row per attempt, in a single transaction.
func (s *Store) SaveResult(ctx context.Context, record models.ValidationRecord) error {
	const op = "SaveResult"

	// Records without extracted fields keep whatever the document already had.
	var fieldsJSON interface{}
	if !record.Fields.IsEmpty() {
		encoded, err := json.Marshal(record.Fields)
		if err != nil {
			return fmt.Errorf("%s: encode fields: %w", op, err)
		}
		fieldsJSON = string(encoded)
	}
	outcomeJSON, err := marshalNullable(record.Outcome)
	if err != nil {
		return fmt.Errorf("%s: encode outcome: %w", op, err)
	}
	counterpartyJSON, err := marshalNullable(record.Counterparty)
	if err != nil {
		return fmt.Errorf("%s: encode counterparty: %w", op, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET fields_json = COALESCE(?, fields_json), status = ?, updated_at = ? WHERE id = ?`,
		fieldsJSON, record.Status, s.now().UTC(), record.DocumentID)
	if err != nil {
		return fmt.Errorf("%s: update document: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w: %s", op, ErrDocumentNotFound, record.DocumentID)
	}

	var verifiedAt interface{}
	if !record.VerifiedAt.IsZero() {
		verifiedAt = record.VerifiedAt.UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO validation_results (run_id, document_id, status, attempt_count, perturbation, outcome_json, counterparty_json, error, verified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RunID, record.DocumentID, record.Status, record.AttemptCount, record.Perturbation,
		outcomeJSON, counterpartyJSON, record.Error, verifiedAt); err != nil {
		return fmt.Errorf("%s: insert result: %w", op, err)
	}

	for _, a := range record.Attempts {
		q := a.Query
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO validation_attempts (run_id, document_id, sequence, perturbation, issuer_tax_id, document_type, series, number, issue_date, amount, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.RunID, record.DocumentID, a.SequenceNumber, a.Perturbation,
			q.IssuerTaxID, q.DocumentTypeCode, q.Series, q.Number, q.DateString(), q.AmountString(),
			string(a.Outcome.Status)); err != nil {
			return fmt.Errorf("%s: insert attempt %d: %w", op, a.SequenceNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	s.log.Debug().
		Str("document_id", record.DocumentID).
		Str("status", record.Status).
		Int("attempts", len(record.Attempts)).
		Msg("Saved validation result")
	return nil
}

// DocumentStatus returns the current worklist state of a document.
func (s *Store) DocumentStatus(ctx context.Context, id string) (string, error) {
	const op = "DocumentStatus"

	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w: %s", op, ErrDocumentNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return status, nil
}

// AttemptLog is one audited authority query.
type AttemptLog struct {
	RunID        string
	Sequence     int
	Perturbation string
	Series       string
	Number       string
	IssueDate    string
	Amount       string
	Status       models.ValidationStatus
}

// Attempts returns the audit log of a document in query order.
func (s *Store) Attempts(ctx context.Context, documentID string) ([]AttemptLog, error) {
	const op = "Attempts"

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, sequence, COALESCE(perturbation, ''), series, number, issue_date, amount, status
		FROM validation_attempts WHERE document_id = ? ORDER BY id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []AttemptLog
	for rows.Next() {
		var a AttemptLog
		var status string
		if err := rows.Scan(&a.RunID, &a.Sequence, &a.Perturbation, &a.Series, &a.Number, &a.IssueDate, &a.Amount, &status); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		a.Status = models.ValidationStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountByStatus summarises the worklist.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	const op = "CountByStatus"

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func marshalNullable[T any](v *T) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
