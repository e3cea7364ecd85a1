package persist

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

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteWriter is a Writer that keeps a local ledger of completed results.
type SQLiteWriter struct {
	db  *sql.DB
	now func() time.Time
}

var _ Writer = (*SQLiteWriter)(nil)

// OpenSQLite opens (creating if needed) the ledger at path and applies the
// schema migrations. Use ":memory:" for a throwaway ledger.
func OpenSQLite(ctx context.Context, path string) (*SQLiteWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every new connection would see its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	w := &SQLiteWriter{db: db, now: time.Now}
	if err := w.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLiteWriter) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := migratesqlite.WithInstance(w.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}

func (w *SQLiteWriter) MarkReportCompleted(ctx context.Context, countryID, reportID, year string, output json.RawMessage) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO reports (country_id, report_id, status, year, output, updated_at)
		VALUES (?, ?, 'complete', ?, ?, ?)
		ON CONFLICT (country_id, report_id) DO UPDATE SET
			status = excluded.status,
			year = excluded.year,
			output = excluded.output,
			updated_at = excluded.updated_at`,
		countryID, reportID, year, string(output), w.now().UTC())
	if err != nil {
		return fmt.Errorf("upsert report %q: %w", reportID, err)
	}
	return nil
}

func (w *SQLiteWriter) UpdateSimulationOutput(ctx context.Context, countryID, simulationID string, output json.RawMessage) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO simulations (country_id, simulation_id, output, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (country_id, simulation_id) DO UPDATE SET
			output = excluded.output,
			updated_at = excluded.updated_at`,
		countryID, simulationID, string(output), w.now().UTC())
	if err != nil {
		return fmt.Errorf("upsert simulation %q: %w", simulationID, err)
	}
	return nil
}

// StoredReport is a row of the reports table.
type StoredReport struct {
	Status string
	Year   string
	Output json.RawMessage
}

// Report reads back a stored report. ok is false when none exists.
func (w *SQLiteWriter) Report(ctx context.Context, countryID, reportID string) (StoredReport, bool, error) {
	var (
		r   StoredReport
		out string
	)
	err := w.db.QueryRowContext(ctx,
		`SELECT status, year, output FROM reports WHERE country_id = ? AND report_id = ?`,
		countryID, reportID).Scan(&r.Status, &r.Year, &out)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredReport{}, false, nil
	}
	if err != nil {
		return StoredReport{}, false, err
	}
	r.Output = json.RawMessage(out)
	return r, true, nil
}

// SimulationOutput reads back a stored simulation output.
func (w *SQLiteWriter) SimulationOutput(ctx context.Context, countryID, simulationID string) (json.RawMessage, bool, error) {
	var out string
	err := w.db.QueryRowContext(ctx,
		`SELECT output FROM simulations WHERE country_id = ? AND simulation_id = ?`,
		countryID, simulationID).Scan(&out)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return json.RawMessage(out), true, nil
}
