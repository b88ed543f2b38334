package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/care-records/internal/core/domain"
)

const schemaLockKey int64 = 2026050401

const fileColumns = `id, owner_id, stored_name, original_name, mime_type, size_bytes, category, blob_handle,
	description, extracted_text, summary, metadata, uploaded_at, processed, processed_at`

type FileRepository struct {
	db *sql.DB
}

func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *FileRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	stored_name TEXT NOT NULL,
	original_name TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	category TEXT NOT NULL,
	blob_handle TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	extracted_text TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	metadata JSONB,
	uploaded_at TIMESTAMPTZ NOT NULL,
	processed BOOLEAN NOT NULL DEFAULT FALSE,
	processed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_files_owner ON files(owner_id, uploaded_at);
CREATE INDEX IF NOT EXISTS idx_files_owner_category ON files(owner_id, category);
CREATE INDEX IF NOT EXISTS idx_files_unprocessed ON files(uploaded_at) WHERE NOT processed;
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *FileRepository) Create(ctx context.Context, record domain.FileRecord) error {
	metadata, err := marshalMetadata(record.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO files (`+fileColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		record.ID, record.OwnerID, record.StoredName, record.OriginalName, record.MimeType, record.SizeBytes,
		string(record.Category), record.BlobHandle, record.Description, record.ExtractedText, record.Summary,
		metadata, record.UploadedAt, record.Processed, nullTime(record.ProcessedAt),
	)
	if err != nil {
		return domain.WrapError(domain.ErrStorage, "insert file", err)
	}
	return nil
}

func (r *FileRepository) GetByID(ctx context.Context, id string) (domain.FileRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id)
	record, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.FileRecord{}, domain.WrapError(domain.ErrNotFound, "get file", fmt.Errorf("id=%s", id))
		}
		return domain.FileRecord{}, domain.WrapError(domain.ErrStorage, "scan file", err)
	}
	return record, nil
}

func (r *FileRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.FileRecord, error) {
	return r.list(ctx, "list files by owner", `WHERE owner_id = $1`, ownerID)
}

func (r *FileRepository) ListByOwnerAndCategory(ctx context.Context, ownerID string, category domain.Category) ([]domain.FileRecord, error) {
	return r.list(ctx, "list files by category", `WHERE owner_id = $1 AND category = $2`, ownerID, string(category))
}

func (r *FileRepository) ListUnprocessed(ctx context.Context) ([]domain.FileRecord, error) {
	return r.list(ctx, "list unprocessed files", `WHERE NOT processed`)
}

func (r *FileRepository) ListByOwnerAndProcessed(ctx context.Context, ownerID string, processed bool) ([]domain.FileRecord, error) {
	return r.list(ctx, "list files by processed state", `WHERE owner_id = $1 AND processed = $2`, ownerID, processed)
}

// MarkProcessed writes text, summary, metadata and the processed flag in a
// single statement so readers never observe a half-processed row.
func (r *FileRepository) MarkProcessed(ctx context.Context, record domain.FileRecord) error {
	metadata, err := marshalMetadata(record.Metadata)
	if err != nil {
		return err
	}
	processedAt := time.Now().UTC()
	if record.ProcessedAt != nil {
		processedAt = record.ProcessedAt.UTC()
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE files
SET extracted_text = $2, summary = $3, metadata = $4, processed = TRUE, processed_at = $5
WHERE id = $1
`, record.ID, record.ExtractedText, record.Summary, metadata, processedAt)
	if err != nil {
		return domain.WrapError(domain.ErrStorage, "mark file processed", err)
	}
	return requireAffected(res, "mark file processed", record.ID)
}

func (r *FileRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return domain.WrapError(domain.ErrStorage, "delete file", err)
	}
	return requireAffected(res, "delete file", id)
}

func (r *FileRepository) list(ctx context.Context, op, where string, args ...any) ([]domain.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM files `+where+` ORDER BY uploaded_at ASC, id ASC`, args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorage, op, err)
	}
	defer rows.Close()

	records := make([]domain.FileRecord, 0)
	for rows.Next() {
		record, err := scanFile(rows)
		if err != nil {
			return nil, domain.WrapError(domain.ErrStorage, op, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrStorage, op, err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (domain.FileRecord, error) {
	var (
		record      domain.FileRecord
		category    string
		metadataRaw []byte
		processedAt sql.NullTime
	)
	err := row.Scan(
		&record.ID, &record.OwnerID, &record.StoredName, &record.OriginalName, &record.MimeType,
		&record.SizeBytes, &category, &record.BlobHandle, &record.Description, &record.ExtractedText,
		&record.Summary, &metadataRaw, &record.UploadedAt, &record.Processed, &processedAt,
	)
	if err != nil {
		return domain.FileRecord{}, err
	}

	record.Category = domain.Category(category)
	record.UploadedAt = record.UploadedAt.UTC()
	if processedAt.Valid {
		at := processedAt.Time.UTC()
		record.ProcessedAt = &at
	}
	if len(metadataRaw) > 0 && string(metadataRaw) != "null" {
		var meta domain.FileMetadata
		if err := json.Unmarshal(metadataRaw, &meta); err != nil {
			return domain.FileRecord{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
		record.Metadata = &meta
	}
	return record, nil
}

func marshalMetadata(meta *domain.FileMetadata) (any, error) {
	if meta == nil {
		return nil, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "marshal metadata", err)
	}
	return raw, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func requireAffected(res sql.Result, op, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.WrapError(domain.ErrStorage, op, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, op, fmt.Errorf("id=%s", id))
	}
	return nil
}
