package store

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/ghalamif/sensorflow/internal/domain"
	"github.com/ghalamif/sensorflow/internal/ports"
)

// SQLiteStore is the embedded store used for the generator's local copy and for
// single-node consumers. Timestamps are stored as unix nanoseconds.
type SQLiteStore struct {
	pool   *sqlitex.Pool
	path   string
	logger *slog.Logger
}

type SQLiteConfig struct {
	Path     string
	PoolSize int
	Logger   *slog.Logger
}

func OpenSQLite(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = max(runtime.NumCPU(), 4)
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: opening %s: %w", cfg.Path, err)
	}
	logger.Info("sqlite_store_opened", "path", cfg.Path, "pool_size", size)
	return &SQLiteStore{pool: pool, path: cfg.Path, logger: logger}, nil
}

func prepareConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, p, nil); err != nil {
			return fmt.Errorf("sqlite store: %s: %w", p, err)
		}
	}

	var cols strings.Builder
	for _, c := range domain.FieldColumns {
		cols.WriteString(", ")
		cols.WriteString(c)
		cols.WriteString(" REAL")
	}
	schema := []string{
		"CREATE TABLE IF NOT EXISTS sensor_readings (id INTEGER PRIMARY KEY AUTOINCREMENT, sensor_id TEXT NOT NULL, sensor_type TEXT NOT NULL, ts INTEGER NOT NULL, processed INTEGER NOT NULL DEFAULT 0" + cols.String() + ")",
		"CREATE INDEX IF NOT EXISTS sensor_readings_ts_idx ON sensor_readings (ts DESC, id DESC)",
		"CREATE INDEX IF NOT EXISTS sensor_readings_sensor_idx ON sensor_readings (sensor_id, sensor_type, ts DESC)",
		"CREATE TABLE IF NOT EXISTS sensor_errors (sensor_id TEXT NOT NULL, sensor_type TEXT NOT NULL, error_count INTEGER NOT NULL, last_error_ts INTEGER NOT NULL, last_error_message TEXT NOT NULL, PRIMARY KEY (sensor_id, sensor_type))",
	}
	for _, s := range schema {
		if err := sqlitex.ExecuteTransient(conn, s, nil); err != nil {
			return fmt.Errorf("sqlite store: schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

const sqliteReadingColumns = "id, sensor_id, sensor_type, ts, processed"

func (s *SQLiteStore) InsertReading(ctx context.Context, r *domain.Reading) error {
	// ts is stored as int64 nanoseconds
	if !domain.TimestampInRange(r.Timestamp) {
		return fmt.Errorf("sqlite store: insert reading: %w: timestamp %s out of range", domain.ErrMalformed, r.Timestamp.UTC().Format(time.RFC3339))
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite store: insert reading: %w", err)
	}
	defer s.pool.Put(conn)

	fs := r.Fields()
	cols := fs.Columns()
	args := make([]any, 0, 4+len(cols))
	args = append(args, r.SensorID, string(r.Type()), r.Timestamp.UTC().UnixNano(), r.Processed)
	for _, c := range cols {
		args = append(args, nullable(*c))
	}

	q := "INSERT INTO sensor_readings (sensor_id, sensor_type, ts, processed, " + strings.Join(domain.FieldColumns, ", ") +
		") VALUES (" + strings.TrimSuffix(strings.Repeat("?,", len(args)), ",") + ")"
	if err := sqlitex.Execute(conn, q, &sqlitex.ExecOptions{Args: args}); err != nil {
		return fmt.Errorf("sqlite store: insert reading: %w", err)
	}
	r.ID = conn.LastInsertRowID()
	return nil
}

func (s *SQLiteStore) QueryReadings(ctx context.Context, f ports.ReadingFilter) ([]domain.Reading, error) {
	var (
		conds []string
		args  []any
	)
	if f.SensorID != "" {
		conds = append(conds, "sensor_id = ?")
		args = append(args, f.SensorID)
	}
	if f.Type != "" {
		conds = append(conds, "sensor_type = ?")
		args = append(args, string(f.Type))
	}
	q := "SELECT " + sqliteReadingColumns + ", " + strings.Join(domain.FieldColumns, ", ") + " FROM sensor_readings"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY ts DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return s.queryReadings(ctx, q, args)
}

// LatestPerSensor ranks each group with ROW_NUMBER and keeps the first row.
func (s *SQLiteStore) LatestPerSensor(ctx context.Context, typ domain.SensorType) ([]domain.Reading, error) {
	cols := sqliteReadingColumns + ", " + strings.Join(domain.FieldColumns, ", ")
	inner := "SELECT " + cols + ", ROW_NUMBER() OVER (PARTITION BY sensor_id, sensor_type ORDER BY ts DESC, id DESC) AS rn FROM sensor_readings"
	var args []any
	if typ != "" {
		inner += " WHERE sensor_type = ?"
		args = append(args, string(typ))
	}
	q := "SELECT " + cols + " FROM (" + inner + ") WHERE rn = 1 ORDER BY sensor_id, sensor_type"
	return s.queryReadings(ctx, q, args)
}

func (s *SQLiteStore) queryReadings(ctx context.Context, q string, args []any) ([]domain.Reading, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: query readings: %w", err)
	}
	defer s.pool.Put(conn)

	var out []domain.Reading
	err = sqlitex.Execute(conn, q, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			r, err := scanSQLiteReading(stmt)
			if err != nil {
				return err
			}
			out = append(out, r)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: query readings: %w", err)
	}
	return out, nil
}

func scanSQLiteReading(stmt *sqlite.Stmt) (domain.Reading, error) {
	// Columns: id(0), sensor_id(1), sensor_type(2), ts(3), processed(4), fields(5..)
	r := domain.Reading{
		ID:        stmt.ColumnInt64(0),
		SensorID:  stmt.ColumnText(1),
		Processed: stmt.ColumnInt64(4) != 0,
	}
	var fs domain.FieldSet
	for i, c := range fs.Columns() {
		if !stmt.ColumnIsNull(5 + i) {
			*c = domain.Float(stmt.ColumnFloat(5 + i))
		}
	}
	return buildReading(r, stmt.ColumnText(2), time.Unix(0, stmt.ColumnInt64(3)), fs)
}

func (s *SQLiteStore) UpsertError(ctx context.Context, key domain.ErrorKey, delta int64, at time.Time, msg string) (rec domain.SensorErrorRecord, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return rec, fmt.Errorf("sqlite store: upsert error: %w", err)
	}
	defer s.pool.Put(conn)

	endTx, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return rec, fmt.Errorf("sqlite store: begin transaction: %w", err)
	}
	defer endTx(&err)

	err = sqlitex.Execute(conn,
		"INSERT INTO sensor_errors (sensor_id, sensor_type, error_count, last_error_ts, last_error_message) VALUES (?, ?, ?, ?, ?)"+
			" ON CONFLICT (sensor_id, sensor_type) DO UPDATE SET error_count = error_count + excluded.error_count,"+
			" last_error_ts = excluded.last_error_ts, last_error_message = excluded.last_error_message",
		&sqlitex.ExecOptions{Args: []any{key.SensorID, string(key.SensorType), delta, at.UTC().UnixNano(), msg}})
	if err != nil {
		return rec, fmt.Errorf("sqlite store: upsert error %s: %w", key, err)
	}

	rec = domain.SensorErrorRecord{SensorID: key.SensorID, SensorType: key.SensorType}
	err = sqlitex.Execute(conn,
		"SELECT error_count, last_error_ts, last_error_message FROM sensor_errors WHERE sensor_id = ? AND sensor_type = ?",
		&sqlitex.ExecOptions{
			Args: []any{key.SensorID, string(key.SensorType)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rec.ErrorCount = stmt.ColumnInt64(0)
				rec.LastErrorTimestamp = time.Unix(0, stmt.ColumnInt64(1)).UTC()
				rec.LastErrorMessage = stmt.ColumnText(2)
				return nil
			},
		})
	if err != nil {
		return rec, fmt.Errorf("sqlite store: read error %s: %w", key, err)
	}
	return rec, nil
}

func (s *SQLiteStore) QueryErrors(ctx context.Context, limit int) ([]domain.SensorErrorRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: query errors: %w", err)
	}
	defer s.pool.Put(conn)

	q := "SELECT sensor_id, sensor_type, error_count, last_error_ts, last_error_message FROM sensor_errors" +
		" ORDER BY error_count DESC, last_error_ts DESC, sensor_id ASC"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	var out []domain.SensorErrorRecord
	err = sqlitex.Execute(conn, q, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out = append(out, domain.SensorErrorRecord{
				SensorID:           stmt.ColumnText(0),
				SensorType:         domain.SensorType(stmt.ColumnText(1)),
				ErrorCount:         stmt.ColumnInt64(2),
				LastErrorTimestamp: time.Unix(0, stmt.ColumnInt64(3)).UTC(),
				LastErrorMessage:   stmt.ColumnText(4),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: query errors: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite store: ping: %w", err)
	}
	defer s.pool.Put(conn)
	return sqlitex.ExecuteTransient(conn, "SELECT 1", nil)
}

func (s *SQLiteStore) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("sqlite store: closing %s: %w", s.path, err)
	}
	s.logger.Info("sqlite_store_closed", "path", s.path)
	return nil
}

var (
	_ ports.Store                = (*SQLiteStore)(nil)
	_ ports.LatestPerSensorStore = (*SQLiteStore)(nil)
)
