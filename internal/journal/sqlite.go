package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/chat-memory/internal/model"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a cycle does not exist.
var ErrNotFound = errors.New("cycle not found")

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens or creates a SQLite journal at the given path.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	j := &SQLiteJournal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return j, nil
}

func (j *SQLiteJournal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cycles (
		id           TEXT PRIMARY KEY,
		site         TEXT NOT NULL,
		source       TEXT NOT NULL,
		outcome      TEXT NOT NULL,
		raw          TEXT NOT NULL,
		composed     TEXT,
		memories     INTEGER NOT NULL DEFAULT 0,
		search_error TEXT,
		error        TEXT,
		started_at   TEXT NOT NULL,
		finished_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cycles_site ON cycles(site);
	CREATE INDEX IF NOT EXISTS idx_cycles_outcome ON cycles(outcome);
	CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at DESC);

	CREATE TABLE IF NOT EXISTS operations (
		cycle_id   TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		event      TEXT NOT NULL,
		memory_id  TEXT,
		memory     TEXT,
		error      TEXT,
		created_at TEXT NOT NULL,
		PRIMARY KEY (cycle_id, seq)
	);
	`
	_, err := j.db.Exec(schema)
	return err
}

func (j *SQLiteJournal) RecordCycle(ctx context.Context, c model.Cycle) error {
	if c.ID == "" {
		return fmt.Errorf("cycle id is required")
	}
	started := c.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	finished := c.FinishedAt
	if finished.IsZero() {
		finished = started
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cycles
			(id, site, source, outcome, raw, composed, memories, search_error, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Site, c.Source, c.Outcome, c.Raw, nullable(c.Composed), c.Memories,
		nullable(c.SearchErr), nullable(c.Err),
		started.UTC().Format(timeLayout), finished.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	return nil
}

// RecordOperations may run before the cycle row exists; adds finish
// independently of the cycle that dispatched them.
func (j *SQLiteJournal) RecordOperations(ctx context.Context, cycleID string, ops []model.OperationRecord, addErr error) error {
	now := time.Now().UTC().Format(timeLayout)

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM operations WHERE cycle_id = ?`, cycleID).Scan(&seq); err != nil {
		return err
	}

	if addErr != nil {
		seq++
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO operations (cycle_id, seq, event, error, created_at) VALUES (?, ?, 'ERROR', ?, ?)`,
			cycleID, seq, addErr.Error(), now); err != nil {
			return fmt.Errorf("record operation: %w", err)
		}
	}
	for _, op := range ops {
		event := strings.ToUpper(op.Event)
		if !model.ValidEvents[event] {
			event = "NONE"
		}
		seq++
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO operations (cycle_id, seq, event, memory_id, memory, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			cycleID, seq, event, nullable(op.ID), nullable(op.Memory), now); err != nil {
			return fmt.Errorf("record operation: %w", err)
		}
	}
	return tx.Commit()
}

func (j *SQLiteJournal) List(ctx context.Context, p ListParams) ([]model.Cycle, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"1 = 1"}
	var args []interface{}
	if p.Site != "" {
		where = append(where, "site = ?")
		args = append(args, p.Site)
	}
	if p.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, p.Outcome)
	}
	args = append(args, limit)

	query := `SELECT id, site, source, outcome, raw, composed, memories, search_error, error, started_at, finished_at
	          FROM cycles WHERE ` + strings.Join(where, " AND ") + `
	          ORDER BY started_at DESC, id DESC LIMIT ?`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []model.Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

func (j *SQLiteJournal) Get(ctx context.Context, id string) (*Entry, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT id, site, source, outcome, raw, composed, memories, search_error, error, started_at, finished_at
		 FROM cycles WHERE id = ?`, id)
	c, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT cycle_id, event, memory_id, memory, error, created_at
		 FROM operations WHERE cycle_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entry := &Entry{Cycle: c}
	for rows.Next() {
		var op Operation
		var memID, mem, opErr sql.NullString
		var created string
		if err := rows.Scan(&op.CycleID, &op.Event, &memID, &mem, &opErr, &created); err != nil {
			return nil, err
		}
		op.MemoryID = memID.String
		op.Memory = mem.String
		op.Error = opErr.String
		op.CreatedAt, _ = time.Parse(timeLayout, created)
		entry.Operations = append(entry.Operations, op)
	}
	return entry, rows.Err()
}

func (j *SQLiteJournal) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format(timeLayout)

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM operations WHERE cycle_id IN (SELECT id FROM cycles WHERE started_at < ?)`, cutoff); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM cycles WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), tx.Commit()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCycle(row scanner) (model.Cycle, error) {
	var c model.Cycle
	var composed, searchErr, cycleErr sql.NullString
	var started, finished string

	err := row.Scan(&c.ID, &c.Site, &c.Source, &c.Outcome, &c.Raw, &composed, &c.Memories,
		&searchErr, &cycleErr, &started, &finished)
	if err != nil {
		return c, err
	}
	c.Composed = composed.String
	c.SearchErr = searchErr.String
	c.Err = cycleErr.String
	c.StartedAt, _ = time.Parse(timeLayout, started)
	c.FinishedAt, _ = time.Parse(timeLayout, finished)
	return c, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ParseAge parses an age like "7d", "24h", "30m" into a time.Duration.
var ageRegex = regexp.MustCompile(`^(\d+)([dhms])$`)

func ParseAge(s string) (time.Duration, error) {
	m := ageRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid format %q (use e.g. 7d, 24h, 30m, 60s)", s)
	}
	n, _ := strconv.Atoi(m[1])
	switch m[2] {
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "s":
		return time.Duration(n) * time.Second, nil
	}
	return 0, fmt.Errorf("unknown unit %q", m[2])
}
