package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dwrandle/automation-bridge/internal/board"
	"github.com/dwrandle/automation-bridge/internal/infrastructure/database"
)

// defaultRetentionRows caps the snapshot table when no limit is configured.
const defaultRetentionRows = 10000

// schema is applied on every startup; all statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    taken   INTEGER NOT NULL,
    payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_taken ON snapshots(taken);

CREATE TABLE IF NOT EXISTS commands (
    id     INTEGER PRIMARY KEY AUTOINCREMENT,
    ts     INTEGER NOT NULL,
    source TEXT NOT NULL,
    verb   TEXT NOT NULL,
    args   TEXT NOT NULL DEFAULT '',
    ok     INTEGER NOT NULL,
    detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_commands_ts ON commands(ts);
`

// Snapshot is one stored board state with its capture time.
type Snapshot struct {
	ID     int64              `json:"id"`
	Taken  time.Time          `json:"taken"`
	Status board.DeviceStatus `json:"status"`
}

// CommandRecord is one stored command outcome.
type CommandRecord struct {
	ID     int64     `json:"id"`
	Time   time.Time `json:"time"`
	Source string    `json:"source"` // "mqtt" or "http"
	Verb   string    `json:"verb"`
	Args   string    `json:"args,omitempty"`
	OK     bool      `json:"ok"`
	Detail string    `json:"detail,omitempty"`
}

// Logger is the minimal logging interface the store needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Store reads and writes bridge history in SQLite.
type Store struct {
	db        *database.DB
	logger    Logger
	retention int
}

// New creates a Store and applies the schema.
func New(db *database.DB, retentionRows int, logger Logger) (*Store, error) {
	if retentionRows <= 0 {
		retentionRows = defaultRetentionRows
	}

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("applying history schema: %w", err)
	}

	return &Store{
		db:        db,
		logger:    logger,
		retention: retentionRows,
	}, nil
}

// RecordSnapshot stores a board snapshot and prunes beyond retention.
func (s *Store) RecordSnapshot(ctx context.Context, status board.DeviceStatus, taken time.Time) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (taken, payload) VALUES (?, ?)`,
		taken.UnixMilli(), string(payload),
	); err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	return s.pruneSnapshots(ctx)
}

// RecordCommand stores the outcome of a state-changing command.
// Failures are logged, not returned: history must never block control.
func (s *Store) RecordCommand(ctx context.Context, source, verb, args string, ok bool, detail string) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO commands (ts, source, verb, args, ok, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().UnixMilli(), source, verb, args, boolToInt(ok), detail,
	); err != nil {
		s.logger.Warn("recording command failed", "verb", verb, "error", err)
		return
	}
	s.pruneCommands(ctx)
}

// RecentSnapshots returns up to limit snapshots, newest first.
func (s *Store) RecentSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 || limit > s.retention {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, taken, payload FROM snapshots ORDER BY taken DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var out []Snapshot
	for rows.Next() {
		var (
			snap    Snapshot
			takenMs int64
			payload string
		)
		if err := rows.Scan(&snap.ID, &takenMs, &payload); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snap.Taken = time.UnixMilli(takenMs)
		if err := json.Unmarshal([]byte(payload), &snap.Status); err != nil {
			// A corrupt row should not hide the rest of the history.
			s.logger.Warn("skipping corrupt snapshot row", "id", snap.ID, "error", err)
			continue
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return out, nil
}

// RecentCommands returns up to limit command records, newest first.
func (s *Store) RecentCommands(ctx context.Context, limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, source, verb, args, ok, detail FROM commands ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var out []CommandRecord
	for rows.Next() {
		var (
			rec  CommandRecord
			tsMs int64
			ok   int
		)
		if err := rows.Scan(&rec.ID, &tsMs, &rec.Source, &rec.Verb, &rec.Args, &ok, &rec.Detail); err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		rec.Time = time.UnixMilli(tsMs)
		rec.OK = ok != 0
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}
	return out, nil
}

// SnapshotCount returns the number of stored snapshots.
func (s *Store) SnapshotCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return n, nil
}

// pruneSnapshots deletes the oldest rows beyond the retention cap.
func (s *Store) pruneSnapshots(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id NOT IN (
		    SELECT id FROM snapshots ORDER BY taken DESC, id DESC LIMIT ?
		)`, s.retention)
	if err != nil {
		return fmt.Errorf("pruning snapshots: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("pruned snapshots", "rows", n)
	}
	return nil
}

// pruneCommands deletes the oldest command rows beyond the retention
// cap. Best effort, matching RecordCommand's never-block contract.
func (s *Store) pruneCommands(ctx context.Context) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM commands WHERE id NOT IN (
		    SELECT id FROM commands ORDER BY ts DESC, id DESC LIMIT ?
		)`, s.retention)
	if err != nil {
		s.logger.Warn("pruning commands failed", "error", err)
		return
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("pruned commands", "rows", n)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
