package tracker

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const timeLayout = time.RFC3339Nano

const selectBatchSQL = `
	SELECT id, total_files, processed_files, error_files, status, created_at, completed_at
	FROM batches WHERE id = ?`

// SQLiteStore keeps batches in a SQLite database so progress survives restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// embedded migrations. An empty path or ":memory:" opens a private in-memory
// database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	var dsn string
	if path == "" || path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	} else {
		dsn = fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
			path,
		)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: writes are serialized and the in-memory database lives
	// as long as the pool does.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// runMigrations applies all embedded up migrations. The migrate instance is
// not closed because that would close db.
func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *SQLiteStore) CreateBatch(ctx context.Context, b *types.Batch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (id, total_files, processed_files, error_files, status, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.TotalFiles, b.ProcessedFiles, b.ErrorFiles, string(b.Status),
		b.CreatedAt.UTC().Format(timeLayout), formatTimePtr(b.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert batch %s: %w", b.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetBatch(ctx context.Context, id string) (*types.Batch, error) {
	return scanBatch(s.db.QueryRowContext(ctx, selectBatchSQL, id))
}

func (s *SQLiteStore) UpdateBatch(ctx context.Context, id string, fn func(*types.Batch) error) (*types.Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	b, err := scanBatch(tx.QueryRowContext(ctx, selectBatchSQL, id))
	if err != nil {
		return nil, err
	}
	if err := fn(b); err != nil {
		return nil, err
	}
	if err := updateBatch(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return b, nil
}

func (s *SQLiteStore) AppendOutcome(ctx context.Context, id string, o *types.ProcessingOutcome, fn func(*types.Batch) error) (*types.Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	b, err := scanBatch(tx.QueryRowContext(ctx, selectBatchSQL, id))
	if err != nil {
		return nil, err
	}
	if err := fn(b); err != nil {
		return nil, err
	}
	if err := updateBatch(ctx, tx, b); err != nil {
		return nil, err
	}

	var record, warnings sql.NullString
	if o.Record != nil {
		data, err := json.Marshal(o.Record)
		if err != nil {
			return nil, fmt.Errorf("encode record: %w", err)
		}
		record = sql.NullString{String: string(data), Valid: true}
	}
	if len(o.Warnings) > 0 {
		data, err := json.Marshal(o.Warnings)
		if err != nil {
			return nil, fmt.Errorf("encode warnings: %w", err)
		}
		warnings = sql.NullString{String: string(data), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outcomes (batch_id, seq, file_name, status, record, error_message, checksum, warnings, processed_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM outcomes WHERE batch_id = ?), ?, ?, ?, ?, ?, ?, ?)`,
		id, id, o.FileName, string(o.Status), record, o.ErrorMessage, o.Checksum, warnings,
		o.ProcessedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert outcome: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return b, nil
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, id string) ([]*types.ProcessingOutcome, error) {
	if _, err := s.GetBatch(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT file_name, status, record, error_message, checksum, warnings, processed_at
		FROM outcomes WHERE batch_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []*types.ProcessingOutcome
	for rows.Next() {
		var (
			o                        types.ProcessingOutcome
			status, processedAt      string
			record, errMsg, warnings sql.NullString
			checksum                 sql.NullString
		)
		if err := rows.Scan(&o.FileName, &status, &record, &errMsg, &checksum, &warnings, &processedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Status = types.OutcomeStatus(status)
		o.ErrorMessage = errMsg.String
		o.Checksum = checksum.String
		if record.Valid {
			o.Record = &types.FiscalRecord{}
			if err := json.Unmarshal([]byte(record.String), o.Record); err != nil {
				return nil, fmt.Errorf("decode record of %s: %w", o.FileName, err)
			}
		}
		if warnings.Valid {
			if err := json.Unmarshal([]byte(warnings.String), &o.Warnings); err != nil {
				return nil, fmt.Errorf("decode warnings of %s: %w", o.FileName, err)
			}
		}
		if o.ProcessedAt, err = time.Parse(timeLayout, processedAt); err != nil {
			return nil, fmt.Errorf("decode processed_at of %s: %w", o.FileName, err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// HELPERS
// =============================================================================

func updateBatch(ctx context.Context, tx *sql.Tx, b *types.Batch) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE batches
		SET processed_files = ?, error_files = ?, status = ?, completed_at = ?
		WHERE id = ?`,
		b.ProcessedFiles, b.ErrorFiles, string(b.Status), formatTimePtr(b.CompletedAt), b.ID,
	)
	if err != nil {
		return fmt.Errorf("update batch %s: %w", b.ID, err)
	}
	return nil
}

func scanBatch(row *sql.Row) (*types.Batch, error) {
	var (
		b           types.Batch
		status      string
		createdAt   string
		completedAt sql.NullString
	)
	err := row.Scan(&b.ID, &b.TotalFiles, &b.ProcessedFiles, &b.ErrorFiles, &status, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan batch: %w", err)
	}

	b.Status = types.BatchStatus(status)
	if b.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if completedAt.Valid {
		t, err := time.Parse(timeLayout, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("decode completed_at: %w", err)
		}
		b.CompletedAt = &t
	}
	return &b, nil
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}
