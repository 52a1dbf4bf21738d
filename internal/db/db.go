// Package db caches per-year surveillance grids and estimate runs in SQLite
// so the estimators can run without re-reading the yearly CSV files.
package db

import (
	"compress/gzip"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/dengue.report/internal/estimate"
	"github.com/banshee-data/dengue.report/internal/monitoring"
	"github.com/banshee-data/dengue.report/internal/surveillance"
)

// pragmas are applied by the driver to every pooled connection.
const pragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)" +
	"&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"

type DB struct {
	*sql.DB
	path string
}

// OpenDB opens the database without touching the schema. The migrate
// command uses it so that migrations alone manage the tables.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+pragmas)
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// NewDB opens the database and applies every pending migration.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// StoredYear describes one cached dataset.
type StoredYear struct {
	Year     int       `json:"year"`
	Partial  bool      `json:"partial"`
	Records  int       `json:"records"`
	Skipped  int       `json:"skipped"`
	Source   string    `json:"source"`
	LoadedAt time.Time `json:"loaded_at"`
}

// SaveYear replaces the cached grid of y.Year in one transaction. Saving a
// partial year clears the partial flag of every other cached year.
func (db *DB) SaveYear(y *surveillance.YearAggregate, source string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM year_counts WHERE year = ?`, y.Year); err != nil {
		return fmt.Errorf("clear year %d: %w", y.Year, err)
	}
	if _, err := tx.Exec(`
		INSERT INTO years (year, partial, records, skipped, source, loaded_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (year) DO UPDATE SET
			partial = excluded.partial,
			records = excluded.records,
			skipped = excluded.skipped,
			source = excluded.source,
			loaded_at = excluded.loaded_at`,
		y.Year, y.Partial, y.Records, y.Skipped, source,
	); err != nil {
		return fmt.Errorf("save year %d: %w", y.Year, err)
	}
	if y.Partial {
		if _, err := tx.Exec(`UPDATE years SET partial = 0 WHERE year <> ?`, y.Year); err != nil {
			return fmt.Errorf("clear partial flags: %w", err)
		}
	}

	stmt, err := tx.Prepare(`
		INSERT INTO year_counts (year, month, band, notified, confirmed, negative, deaths)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for month := 1; month <= 12; month++ {
		for _, b := range surveillance.Bands() {
			c := y.Grid.Cell(month, b)
			if c == (surveillance.Counts{}) {
				continue
			}
			if _, err := stmt.Exec(y.Year, month, int(b),
				c[surveillance.MetricNotified], c[surveillance.MetricConfirmed],
				c[surveillance.MetricNegative], c[surveillance.MetricDeaths],
			); err != nil {
				return fmt.Errorf("save year %d month %d: %w", y.Year, month, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	monitoring.Logf("cached year %d from %s", y.Year, source)
	return nil
}

// Years lists the cached datasets in ascending year order.
func (db *DB) Years() ([]StoredYear, error) {
	rows, err := db.Query(`SELECT year, partial, records, skipped, source, loaded_at FROM years ORDER BY year`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredYear
	for rows.Next() {
		var s StoredYear
		if err := rows.Scan(&s.Year, &s.Partial, &s.Records, &s.Skipped, &s.Source, &s.LoadedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LoadYears rebuilds the cached years as aggregates. A partialYear of zero
// designates the latest cached year, as when loading dataset files; the
// stored partial flags are informational only.
func (db *DB) LoadYears(partialYear int) ([]*surveillance.YearAggregate, error) {
	stored, err := db.Years()
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, nil
	}

	grids := make(map[int]*surveillance.Grid, len(stored))
	for _, s := range stored {
		grids[s.Year] = new(surveillance.Grid)
	}

	rows, err := db.Query(`SELECT year, month, band, notified, confirmed, negative, deaths FROM year_counts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var year, month, band int
		var c surveillance.Counts
		if err := rows.Scan(&year, &month, &band,
			&c[surveillance.MetricNotified], &c[surveillance.MetricConfirmed],
			&c[surveillance.MetricNegative], &c[surveillance.MetricDeaths],
		); err != nil {
			return nil, err
		}
		g, ok := grids[year]
		if !ok || month < 1 || month > 12 || band < 0 || band >= surveillance.NumBands {
			return nil, fmt.Errorf("corrupt cache row: year %d month %d band %d", year, month, band)
		}
		g[month-1][band] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// stored is in ascending year order.
	if partialYear == 0 {
		partialYear = stored[len(stored)-1].Year
	}
	out := make([]*surveillance.YearAggregate, 0, len(stored))
	for _, s := range stored {
		agg := surveillance.FromGrid(s.Year, *grids[s.Year], partialYear)
		agg.Records = s.Records
		agg.Skipped = s.Skipped
		out = append(out, agg)
	}
	return out, nil
}

// EstimateRun is a stored estimate.
type EstimateRun struct {
	RunID      string    `json:"run_id"`
	CreatedAt  time.Time `json:"created_at"`
	Method     string    `json:"method"`
	Quarter    int       `json:"quarter"`
	Metric     string    `json:"metric"`
	Observed   int       `json:"observed"`
	Years      int       `json:"years"`
	Confidence float64   `json:"confidence"`
	Point      float64   `json:"point"`
	Low        float64   `json:"low"`
	High       float64   `json:"high"`
}

// RecordEstimate stores r under a new run ID and returns the ID.
func (db *DB) RecordEstimate(r *estimate.Result) (string, error) {
	if r == nil {
		return "", errors.New("nil estimate")
	}
	id := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO estimate_runs (run_id, method, quarter, metric, observed, years, confidence, point, low, high)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.Query.Method.String(), int(r.Query.Quarter), r.Query.Metric.String(),
		r.Query.Observed, r.Years, r.Confidence, r.Point, r.Min, r.Max,
	)
	if err != nil {
		return "", fmt.Errorf("record estimate: %w", err)
	}
	return id, nil
}

// EstimateRuns returns up to limit runs, newest first. A limit of zero or
// less returns them all.
func (db *DB) EstimateRuns(limit int) ([]EstimateRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		SELECT run_id, created_at, method, quarter, metric, observed, years, confidence, point, low, high
		FROM estimate_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []EstimateRun
	for rows.Next() {
		var e EstimateRun
		if err := rows.Scan(&e.RunID, &e.CreatedAt, &e.Method, &e.Quarter, &e.Metric, &e.Observed,
			&e.Years, &e.Confidence, &e.Point, &e.Low, &e.High); err != nil {
			return nil, err
		}
		runs = append(runs, e)
	}
	return runs, rows.Err()
}

// AttachAdminRoutes mounts tailsql and a backup download under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Dengue cache",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the cache now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("dengue-backup-%d.db", time.Now().UnixNano()))
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("failed to remove backup file: %v", err)
		}
	}()

	f, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		monitoring.Logf("backup copy failed: %v", err)
	}
}
