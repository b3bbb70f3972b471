package update

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// DefaultHistorySize is the in-memory ring buffer capacity.
const DefaultHistorySize = 100

// History is a fixed-capacity ring buffer of finished update attempts.
// The oldest entry is evicted when the buffer is full.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type History struct {
	mu       sync.Mutex
	entries  []UpdateState
	next     int
	size     int
	capacity int
}

// NewHistory creates a ring buffer. A non-positive capacity falls back
// to DefaultHistorySize.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{
		entries:  make([]UpdateState, capacity),
		capacity: capacity,
	}
}

// Add records a finished update attempt.
func (h *History) Add(state UpdateState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.next] = state
	h.next = (h.next + 1) % h.capacity
	if h.size < h.capacity {
		h.size++
	}
}

// Recent returns up to limit entries, newest first. A non-positive
// limit returns everything in the buffer.
func (h *History) Recent(limit int) []UpdateState {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limit <= 0 || limit > h.size {
		limit = h.size
	}
	out := make([]UpdateState, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (h.next - i + h.capacity) % h.capacity
		out = append(out, h.entries[idx])
	}
	return out
}

// Len returns the number of entries currently buffered.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Archiver persists finished update attempts beyond process restarts.
//
// Implementations must be thread-safe and use UTC timestamps.
type Archiver interface {
	// RecordUpdate persists one finished update attempt.
	RecordUpdate(ctx context.Context, state UpdateState) error

	// GetHistory returns recent attempts across all devices, newest
	// first. Implementations may clamp the limit.
	GetHistory(ctx context.Context, limit int) ([]UpdateState, error)
}

const (
	defaultArchiveLimit = 50
	maxArchiveLimit     = 200
)

// SQLiteArchiver implements Archiver using the update_history table.
type SQLiteArchiver struct {
	db *sql.DB
}

// NewSQLiteArchiver creates a new SQLite update archiver.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteArchiver: Archiver instance ready for use
func NewSQLiteArchiver(db *sql.DB) *SQLiteArchiver {
	return &SQLiteArchiver{db: db}
}

// RecordUpdate inserts one finished update attempt.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - state: Terminal update record to persist
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (a *SQLiteArchiver) RecordUpdate(ctx context.Context, state UpdateState) error {
	if state.ID == "" {
		return fmt.Errorf("update id is required")
	}
	if state.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}

	_, err := a.db.ExecContext(ctx,
		`INSERT INTO update_history
		 (id, device_id, status, from_version, to_version, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		state.ID,
		state.DeviceID,
		string(state.Status),
		state.FromVersion,
		state.ToVersion,
		state.Error,
		state.StartedAt.UTC().Format(time.RFC3339),
		state.FinishedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting update history: %w", err)
	}

	return nil
}

// GetHistory returns recent update attempts, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []UpdateState: Attempts ordered by started_at DESC
//   - error: nil on success, otherwise the underlying query error
func (a *SQLiteArchiver) GetHistory(ctx context.Context, limit int) ([]UpdateState, error) {
	if limit <= 0 {
		limit = defaultArchiveLimit
	}
	if limit > maxArchiveLimit {
		limit = maxArchiveLimit
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT id, device_id, status, from_version, to_version, error, started_at, finished_at
		 FROM update_history
		 ORDER BY started_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying update history: %w", err)
	}
	defer rows.Close()

	entries := make([]UpdateState, 0, limit)
	for rows.Next() {
		var entry UpdateState
		var status, startedAt, finishedAt string

		if err := rows.Scan(&entry.ID, &entry.DeviceID, &status,
			&entry.FromVersion, &entry.ToVersion, &entry.Error,
			&startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning update history: %w", err)
		}
		entry.Status = Status(status)

		if entry.StartedAt, err = parseArchiveTimestamp(startedAt); err != nil {
			return nil, err
		}
		if entry.FinishedAt, err = parseArchiveTimestamp(finishedAt); err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating update history: %w", err)
	}

	return entries, nil
}

// parseArchiveTimestamp parses a timestamp stored in SQLite.
func parseArchiveTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	timestamp, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	return timestamp, nil
}
