package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/cloudbench/internal/model"
)

// ExecutionFilter narrows a history query. Zero fields match everything.
type ExecutionFilter struct {
	Node   string
	Status model.ExecutionStatus
}

// ExecutionHistory defines the interface for remote command history storage
type ExecutionHistory interface {
	// Store stores an execution record
	Store(ctx context.Context, record *model.ExecutionRecord) error

	// Update updates an existing execution record
	Update(ctx context.Context, record *model.ExecutionRecord) error

	// Get retrieves an execution record by ID
	Get(ctx context.Context, id string) (*model.ExecutionRecord, error)

	// List retrieves execution records, newest first
	List(ctx context.Context, filter ExecutionFilter, offset, limit int) ([]*model.ExecutionRecord, error)

	// Count returns the number of records matching the filter
	Count(ctx context.Context, filter ExecutionFilter) (int, error)

	// DeleteBefore deletes records started before the given time
	DeleteBefore(ctx context.Context, before time.Time) error
}

// SQLiteExecutionHistory implements ExecutionHistory using SQLite
type SQLiteExecutionHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteExecutionHistory opens (or creates) the history database at dbPath
func NewSQLiteExecutionHistory(logger *zap.Logger, dbPath string) (*SQLiteExecutionHistory, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Recorder writes from dispatcher goroutines; sqlite wants one writer.
	db.SetMaxOpenConns(1)

	storage := &SQLiteExecutionHistory{
		logger: logger.Named("history"),
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

func (s *SQLiteExecutionHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS execution_history (
			id TEXT PRIMARY KEY,
			node TEXT NOT NULL,
			command TEXT NOT NULL,
			status TEXT NOT NULL,
			output TEXT,
			error TEXT,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			duration INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_execution_history_node ON execution_history(node);
		CREATE INDEX IF NOT EXISTS idx_execution_history_status ON execution_history(status);
		CREATE INDEX IF NOT EXISTS idx_execution_history_started_at ON execution_history(started_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store implements ExecutionHistory.Store
func (s *SQLiteExecutionHistory) Store(ctx context.Context, record *model.ExecutionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_history (
			id, node, command, status, started_at
		) VALUES (?, ?, ?, ?, ?)`,
		record.ID,
		record.Node,
		record.Command,
		record.Status,
		record.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store execution record: %w", err)
	}
	return nil
}

// Update implements ExecutionHistory.Update
func (s *SQLiteExecutionHistory) Update(ctx context.Context, record *model.ExecutionRecord) error {
	var completedAt sql.NullTime
	if record.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *record.CompletedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE execution_history SET
			status = ?,
			output = ?,
			error = ?,
			completed_at = ?,
			duration = ?
		WHERE id = ?`,
		record.Status,
		sql.NullString{String: record.Output, Valid: record.Output != ""},
		sql.NullString{String: record.Error, Valid: record.Error != ""},
		completedAt,
		sql.NullInt64{Int64: int64(record.Duration), Valid: record.Duration != 0},
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution record: %w", err)
	}
	return nil
}

const selectColumns = "SELECT id, node, command, status, output, error, started_at, completed_at, duration FROM execution_history"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.ExecutionRecord, error) {
	record := &model.ExecutionRecord{}
	var output, errorStr sql.NullString
	var completedAt sql.NullTime
	var durationNanos sql.NullInt64

	err := row.Scan(
		&record.ID,
		&record.Node,
		&record.Command,
		&record.Status,
		&output,
		&errorStr,
		&record.StartedAt,
		&completedAt,
		&durationNanos,
	)
	if err != nil {
		return nil, err
	}

	record.Output = output.String
	record.Error = errorStr.String
	if completedAt.Valid {
		record.CompletedAt = &completedAt.Time
	}
	if durationNanos.Valid {
		record.Duration = time.Duration(durationNanos.Int64)
	}
	return record, nil
}

// Get implements ExecutionHistory.Get. A missing record yields nil, nil.
func (s *SQLiteExecutionHistory) Get(ctx context.Context, id string) (*model.ExecutionRecord, error) {
	record, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan execution record: %w", err)
	}
	return record, nil
}

func (f ExecutionFilter) where() (string, []any) {
	var clauses []string
	var args []any
	if f.Node != "" {
		clauses = append(clauses, "node = ?")
		args = append(args, f.Node)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// List implements ExecutionHistory.List
func (s *SQLiteExecutionHistory) List(ctx context.Context, filter ExecutionFilter, offset, limit int) ([]*model.ExecutionRecord, error) {
	where, args := filter.where()
	query := selectColumns + where + " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution history: %w", err)
	}
	defer rows.Close()

	var records []*model.ExecutionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}

// Count implements ExecutionHistory.Count
func (s *SQLiteExecutionHistory) Count(ctx context.Context, filter ExecutionFilter) (int, error) {
	where, args := filter.where()

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM execution_history"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count execution history: %w", err)
	}
	return count, nil
}

// DeleteBefore implements ExecutionHistory.DeleteBefore
func (s *SQLiteExecutionHistory) DeleteBefore(ctx context.Context, before time.Time) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM execution_history WHERE started_at < ?", before)
	if err != nil {
		return fmt.Errorf("failed to delete execution history: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old execution records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return nil
}

// Close closes the database connection
func (s *SQLiteExecutionHistory) Close() error {
	return s.db.Close()
}
