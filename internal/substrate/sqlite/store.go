// Package sqlite provides a SQLite-backed substrate implementation for
// batches too large to hold in memory.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/loadgen/profiler/internal/profile"
	"github.com/loadgen/profiler/pkg/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS metrics (
	family_id  TEXT NOT NULL,
	name       TEXT NOT NULL,
	value      REAL NOT NULL,
	ts         INTEGER NOT NULL,
	source     TEXT NOT NULL,
	tags       TEXT NOT NULL,
	is_delta   INTEGER NOT NULL,
	raw_length INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_family ON metrics(family_id);

CREATE TABLE IF NOT EXISTS histograms (
	granularity TEXT NOT NULL,
	ts          INTEGER NOT NULL,
	count       INTEGER NOT NULL,
	centroids   TEXT NOT NULL,
	raw_length  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS spans (
	operation   TEXT NOT NULL,
	source      TEXT NOT NULL,
	tags        TEXT NOT NULL,
	start_ms    INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	raw_length  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_spans_operation ON spans(operation);
`

// Store is a SQLite-backed substrate.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	pending []models.Record
	batch   int
}

// Config holds SQLite store configuration.
type Config struct {
	DBPath    string
	BatchSize int
}

// DefaultConfig returns default SQLite configuration.
func DefaultConfig(dbPath string) Config {
	return Config{
		DBPath:    dbPath,
		BatchSize: 500,
	}
}

// New creates a new SQLite store with the given configuration.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}
	return &Store{db: db, batch: batch}, nil
}

// Put buffers one record; buffered records are flushed in a single
// transaction once the batch size is reached.
func (s *Store) Put(ctx context.Context, rec models.Record) error {
	switch rec.(type) {
	case *models.Metric, *models.Histogram, *models.Span:
	default:
		return fmt.Errorf("unsupported record type %q", rec.RecordType())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, rec)
	if len(s.pending) >= s.batch {
		return s.flushLocked(ctx)
	}
	return nil
}

// Flush writes all buffered records. Read operations flush implicitly.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *Store) flushLocked(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range s.pending {
		var err error
		switch r := rec.(type) {
		case *models.Metric:
			err = insertMetric(tx, r)
		case *models.Histogram:
			err = insertHistogram(tx, r)
		case *models.Span:
			err = insertSpan(tx, r)
		}
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.pending = s.pending[:0]
	return nil
}

func insertMetric(tx *sql.Tx, m *models.Metric) error {
	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO metrics (family_id, name, value, ts, source, tags, is_delta, raw_length)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		profile.MetricFamilyID(m), m.Name, m.Value, m.Timestamp, m.Source, string(tags), m.IsDelta, m.RawLength,
	)
	if err != nil {
		return fmt.Errorf("inserting metric: %w", err)
	}
	return nil
}

func insertHistogram(tx *sql.Tx, h *models.Histogram) error {
	centroids, err := json.Marshal(h.Centroids)
	if err != nil {
		return fmt.Errorf("encoding centroids: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO histograms (granularity, ts, count, centroids, raw_length) VALUES (?, ?, ?, ?, ?)`,
		string(h.Granularity), h.Timestamp, h.Count, string(centroids), h.RawLength,
	)
	if err != nil {
		return fmt.Errorf("inserting histogram: %w", err)
	}
	return nil
}

func insertSpan(tx *sql.Tx, sp *models.Span) error {
	tags, err := json.Marshal(sp.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO spans (operation, source, tags, start_ms, duration_ms, raw_length)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sp.Operation, sp.Source, string(tags), sp.StartMillis, sp.DurationMillis, sp.RawLength,
	)
	if err != nil {
		return fmt.Errorf("inserting span: %w", err)
	}
	return nil
}

// Families lists all metric families, ordered by family id.
func (s *Store) Families(ctx context.Context) ([]models.FamilyInfo, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT family_id, name, COUNT(*) FROM metrics GROUP BY family_id, name ORDER BY family_id`)
	if err != nil {
		return nil, fmt.Errorf("querying families: %w", err)
	}
	defer rows.Close()

	var families []models.FamilyInfo
	for rows.Next() {
		var fi models.FamilyInfo
		if err := rows.Scan(&fi.ID, &fi.Name, &fi.Count); err != nil {
			return nil, fmt.Errorf("scanning family row: %w", err)
		}
		families = append(families, fi)
	}
	return families, rows.Err()
}

// ScanFamily streams every metric of a family through fn in ingestion order.
func (s *Store) ScanFamily(ctx context.Context, familyID string, fn func(*models.Metric) error) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, value, ts, source, tags, is_delta, raw_length FROM metrics WHERE family_id = ? ORDER BY rowid`,
		familyID)
	if err != nil {
		return fmt.Errorf("querying family %s: %w", familyID, err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SampleFamily returns up to limit metrics drawn uniformly at random.
func (s *Store) SampleFamily(ctx context.Context, familyID string, limit int) ([]*models.Metric, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}

	query := `SELECT name, value, ts, source, tags, is_delta, raw_length FROM metrics WHERE family_id = ?`
	args := []any{familyID}
	if limit > 0 {
		query += ` ORDER BY RANDOM() LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sampling family %s: %w", familyID, err)
	}
	defer rows.Close()

	var out []*models.Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMetric(rows *sql.Rows) (*models.Metric, error) {
	var m models.Metric
	var tags string
	if err := rows.Scan(&m.Name, &m.Value, &m.Timestamp, &m.Source, &tags, &m.IsDelta, &m.RawLength); err != nil {
		return nil, fmt.Errorf("scanning metric row: %w", err)
	}
	if tags != "null" {
		if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags: %w", err)
		}
	}
	return &m, nil
}

// ScanHistograms streams every histogram record through fn.
func (s *Store) ScanHistograms(ctx context.Context, fn func(*models.Histogram) error) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT granularity, ts, count, centroids, raw_length FROM histograms ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("querying histograms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h models.Histogram
		var gran, centroids string
		if err := rows.Scan(&gran, &h.Timestamp, &h.Count, &centroids, &h.RawLength); err != nil {
			return fmt.Errorf("scanning histogram row: %w", err)
		}
		h.Granularity = models.Granularity(gran)
		if err := json.Unmarshal([]byte(centroids), &h.Centroids); err != nil {
			return fmt.Errorf("decoding centroids: %w", err)
		}
		if err := fn(&h); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SpanOperations lists distinct span operation names, ordered by name.
func (s *Store) SpanOperations(ctx context.Context) ([]string, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT operation FROM spans ORDER BY operation`)
	if err != nil {
		return nil, fmt.Errorf("querying span operations: %w", err)
	}
	defer rows.Close()

	var ops []string
	for rows.Next() {
		var op string
		if err := rows.Scan(&op); err != nil {
			return nil, fmt.Errorf("scanning operation row: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// OperationSpans streams every span of one operation through fn.
func (s *Store) OperationSpans(ctx context.Context, operation string, fn func(*models.Span) error) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT operation, source, tags, start_ms, duration_ms, raw_length FROM spans WHERE operation = ? ORDER BY rowid`,
		operation)
	if err != nil {
		return fmt.Errorf("querying spans for %s: %w", operation, err)
	}
	defer rows.Close()

	for rows.Next() {
		var sp models.Span
		var tags string
		if err := rows.Scan(&sp.Operation, &sp.Source, &tags, &sp.StartMillis, &sp.DurationMillis, &sp.RawLength); err != nil {
			return fmt.Errorf("scanning span row: %w", err)
		}
		if tags != "null" {
			if err := json.Unmarshal([]byte(tags), &sp.Tags); err != nil {
				return fmt.Errorf("decoding tags: %w", err)
			}
		}
		if err := fn(&sp); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SourceCounts groups a family's records by source.
func (s *Store) SourceCounts(ctx context.Context, familyID string, limit int) (*models.GroupedCounts, error) {
	return s.groupFamily(ctx, familyID, `source`, `1`, limit)
}

// TopTagValues groups a family's records by the value of one tag key.
func (s *Store) TopTagValues(ctx context.Context, familyID, key string, limit int) (*models.GroupedCounts, error) {
	expr := `json_extract(tags, '$.' || ?)`
	return s.groupFamily(ctx, familyID, expr, expr+` IS NOT NULL`, limit, key)
}

// groupFamily runs a GROUP BY count over one family. keyArgs are bound once
// per occurrence of the key expression (group, filter, then again for the
// total/distinct pass).
func (s *Store) groupFamily(ctx context.Context, familyID, keyExpr, filter string, limit int, keyArgs ...any) (*models.GroupedCounts, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`SELECT %s AS v, COUNT(*) AS c FROM metrics WHERE family_id = ? AND %s GROUP BY v ORDER BY c DESC, MIN(rowid)`,
		keyExpr, filter)
	args := append(append([]any{}, keyArgs...), familyID)
	args = append(args, keyArgs...)
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("grouping family %s: %w", familyID, err)
	}
	defer rows.Close()

	gc := &models.GroupedCounts{}
	for rows.Next() {
		var vc models.ValueCount
		if err := rows.Scan(&vc.Value, &vc.Count); err != nil {
			return nil, fmt.Errorf("scanning group row: %w", err)
		}
		gc.Top = append(gc.Top, vc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	totalQuery := fmt.Sprintf(
		`SELECT COUNT(*), COUNT(DISTINCT %s) FROM metrics WHERE family_id = ? AND %s`,
		keyExpr, filter)
	totalArgs := append(append([]any{}, keyArgs...), familyID)
	totalArgs = append(totalArgs, keyArgs...)
	if err := s.db.QueryRowContext(ctx, totalQuery, totalArgs...).Scan(&gc.Total, &gc.Distinct); err != nil {
		return nil, fmt.Errorf("counting family %s: %w", familyID, err)
	}
	return gc, nil
}

// MinuteCounts returns per-minute record counts for a family.
func (s *Store) MinuteCounts(ctx context.Context, familyID string) ([]int64, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT COUNT(*) FROM metrics WHERE family_id = ? AND ts > 0 GROUP BY ts/60 ORDER BY ts/60`,
		familyID)
	if err != nil {
		return nil, fmt.Errorf("querying minute counts: %w", err)
	}
	defer rows.Close()

	var counts []int64
	for rows.Next() {
		var c int64
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scanning minute row: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Close flushes buffered records and closes the database.
func (s *Store) Close() error {
	if err := s.Flush(context.Background()); err != nil {
		return err
	}
	return s.db.Close()
}
