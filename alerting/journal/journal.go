// Package journal records emitted alerts in a SQLite database.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/uuid"
	migrate "github.com/rubenv/sql-migrate"
	_ "modernc.org/sqlite" // Register the sqlite driver.

	"github.com/safing/scanguard/alerting"
)

//go:embed migrations/*
var dbMigrations embed.FS

func getMigrations() migrate.EmbedFileSystemMigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: dbMigrations,
		Root:       "migrations",
	}
}

// Journal persists alerts in SQLite.
// Only alerts are stored, never tracked activity.
type Journal struct {
	db    *sql.DB
	path  string
	runID string
}

// Entry is a recorded alert.
type Entry struct {
	ID int64
	// RunID identifies the sensor run that raised the alert.
	RunID string
	alerting.Alert
}

// SourceSummary aggregates the alerts of one source.
type SourceSummary struct {
	Source    netip.Addr
	Alerts    int
	LastAlert time.Time
}

var _ alerting.Sink = (*Journal)(nil)

// Open opens (or creates) the SQLite database at the provided path and
// ensures the schema exists.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path must not be empty")
	}

	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA synchronous = NORMAL;`,
		`PRAGMA busy_timeout = 5000;`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}

	n, err := migrate.Exec(db, "sqlite3", getMigrations(), migrate.Up)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	if n > 0 {
		slog.Debug("journal: applied migrations", "path", path, "count", n)
	}

	runID, err := uuid.NewV4()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create run id: %w", err)
	}

	return &Journal{
		db:    db,
		path:  path,
		runID: runID.String(),
	}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o0755) //nolint:gosec
}

// Name implements alerting.Sink.
func (j *Journal) Name() string {
	return "journal"
}

// Send implements alerting.Sink.
func (j *Journal) Send(ctx context.Context, alert alerting.Alert) error {
	_, err := j.Record(ctx, alert)
	return err
}

// Record stores the alert and returns its ID.
func (j *Journal) Record(ctx context.Context, alert alerting.Alert) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO alerts (run_id, created_at, source, port_count, window_seconds) VALUES (?, ?, ?, ?, ?);`,
		j.runID,
		alert.Time.UTC().UnixMilli(),
		alert.Source.String(),
		alert.PortCount,
		int64(alert.Window/time.Second),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record alert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get alert id: %w", err)
	}
	return id, nil
}

// Recent returns the latest alerts, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT id, run_id, created_at, source, port_count, window_seconds
FROM alerts
ORDER BY created_at DESC, id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			createdAt int64
			source    string
			windowSec int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &createdAt, &source, &e.PortCount, &windowSec); err != nil {
			return nil, fmt.Errorf("failed to read alert: %w", err)
		}
		e.Time = time.UnixMilli(createdAt).UTC()
		e.Window = time.Duration(windowSec) * time.Second
		if e.Source, err = netip.ParseAddr(source); err != nil {
			return nil, fmt.Errorf("invalid source %q in alert %d: %w", source, e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Sources returns a summary per alerting source, most alerts first.
func (j *Journal) Sources(ctx context.Context) ([]SourceSummary, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT source, COUNT(*), MAX(created_at)
FROM alerts
GROUP BY source
ORDER BY COUNT(*) DESC, source ASC;
`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var summaries []SourceSummary
	for rows.Next() {
		var (
			s        SourceSummary
			source   string
			lastSeen int64
		)
		if err := rows.Scan(&source, &s.Alerts, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to read source: %w", err)
		}
		if s.Source, err = netip.ParseAddr(source); err != nil {
			return nil, fmt.Errorf("invalid source %q: %w", source, err)
		}
		s.LastAlert = time.UnixMilli(lastSeen).UTC()
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// RunID returns the identifier stored with the alerts of this run.
func (j *Journal) RunID() string {
	return j.runID
}

// Path returns the database path.
func (j *Journal) Path() string {
	return j.path
}

// Close releases the underlying database resources.
func (j *Journal) Close() error {
	return j.db.Close()
}
