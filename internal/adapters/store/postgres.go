package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ghalamif/sensorflow/internal/domain"
	"github.com/ghalamif/sensorflow/internal/ports"
)

// PostgresStore keeps readings and error records in two tables. The driver is registered
// by the caller (lib/pq in the runtime).
type PostgresStore struct {
	db            *sql.DB
	readingsTable string
	errorsTable   string
}

func NewPostgresStore(db *sql.DB, readingsTable, errorsTable string) *PostgresStore {
	if readingsTable == "" {
		readingsTable = "sensor_readings"
	}
	if errorsTable == "" {
		errorsTable = "sensor_errors"
	}
	return &PostgresStore{db: db, readingsTable: readingsTable, errorsTable: errorsTable}
}

func (p *PostgresStore) Name() string { return "postgres" }

// EnsureSchema creates the tables and indexes when missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	var cols strings.Builder
	for _, c := range domain.FieldColumns {
		cols.WriteString(", ")
		cols.WriteString(c)
		cols.WriteString(" DOUBLE PRECISION")
	}
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS " + p.readingsTable + " (id BIGSERIAL PRIMARY KEY, sensor_id TEXT NOT NULL, sensor_type TEXT NOT NULL, ts TIMESTAMPTZ NOT NULL, processed BOOLEAN NOT NULL DEFAULT FALSE" + cols.String() + ")",
		"CREATE INDEX IF NOT EXISTS " + p.readingsTable + "_ts_idx ON " + p.readingsTable + " (ts DESC, id DESC)",
		"CREATE INDEX IF NOT EXISTS " + p.readingsTable + "_sensor_idx ON " + p.readingsTable + " (sensor_id, sensor_type, ts DESC)",
		"CREATE TABLE IF NOT EXISTS " + p.errorsTable + " (sensor_id TEXT NOT NULL, sensor_type TEXT NOT NULL, error_count BIGINT NOT NULL, last_error_ts TIMESTAMPTZ NOT NULL, last_error_message TEXT NOT NULL, PRIMARY KEY (sensor_id, sensor_type))",
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (p *PostgresStore) readingColumns() string {
	return "sensor_id, sensor_type, ts, processed, " + strings.Join(domain.FieldColumns, ", ")
}

func (p *PostgresStore) InsertReading(ctx context.Context, r *domain.Reading) error {
	fs := r.Fields()
	cols := fs.Columns()

	args := make([]any, 0, 4+len(cols))
	args = append(args, r.SensorID, string(r.Type()), r.Timestamp.UTC(), r.Processed)
	for _, c := range cols {
		args = append(args, nullable(*c))
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(p.readingsTable)
	b.WriteString(" (")
	b.WriteString(p.readingColumns())
	b.WriteString(") VALUES (")
	for i := range args {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("$%d", i+1))
	}
	b.WriteString(") RETURNING id")

	if err := p.db.QueryRowContext(ctx, b.String(), args...).Scan(&r.ID); err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (p *PostgresStore) QueryReadings(ctx context.Context, f ports.ReadingFilter) ([]domain.Reading, error) {
	var (
		conds []string
		args  []any
	)
	if f.SensorID != "" {
		args = append(args, f.SensorID)
		conds = append(conds, fmt.Sprintf("sensor_id = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		conds = append(conds, fmt.Sprintf("sensor_type = $%d", len(args)))
	}

	q := "SELECT id, " + p.readingColumns() + " FROM " + p.readingsTable
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY ts DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return p.queryReadings(ctx, q, args...)
}

// LatestPerSensor uses DISTINCT ON to pick the newest row of each group.
func (p *PostgresStore) LatestPerSensor(ctx context.Context, typ domain.SensorType) ([]domain.Reading, error) {
	q := "SELECT DISTINCT ON (sensor_id, sensor_type) id, " + p.readingColumns() + " FROM " + p.readingsTable
	var args []any
	if typ != "" {
		q += " WHERE sensor_type = $1"
		args = append(args, string(typ))
	}
	q += " ORDER BY sensor_id, sensor_type, ts DESC, id DESC"
	return p.queryReadings(ctx, q, args...)
}

func (p *PostgresStore) queryReadings(ctx context.Context, q string, args ...any) ([]domain.Reading, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []domain.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(s rowScanner) (domain.Reading, error) {
	var (
		r        domain.Reading
		typ      string
		ts       time.Time
		fs       domain.FieldSet
		nullVals = make([]sql.NullFloat64, len(domain.FieldColumns))
	)
	dest := []any{&r.ID, &r.SensorID, &typ, &ts, &r.Processed}
	for i := range nullVals {
		dest = append(dest, &nullVals[i])
	}
	if err := s.Scan(dest...); err != nil {
		return r, fmt.Errorf("scan reading: %w", err)
	}
	for i, c := range fs.Columns() {
		if nullVals[i].Valid {
			*c = domain.Float(nullVals[i].Float64)
		}
	}
	return buildReading(r, typ, ts, fs)
}

func buildReading(r domain.Reading, typ string, ts time.Time, fs domain.FieldSet) (domain.Reading, error) {
	t, err := domain.ParseSensorType(typ)
	if err != nil {
		return r, fmt.Errorf("reading %d: %w", r.ID, err)
	}
	m, err := domain.MeasurementFor(t, fs)
	if err != nil {
		return r, err
	}
	r.Timestamp = ts.UTC()
	r.Measurement = m
	return r, nil
}

func (p *PostgresStore) UpsertError(ctx context.Context, key domain.ErrorKey, delta int64, at time.Time, msg string) (domain.SensorErrorRecord, error) {
	q := "INSERT INTO " + p.errorsTable + " (sensor_id, sensor_type, error_count, last_error_ts, last_error_message) VALUES ($1,$2,$3,$4,$5)" +
		" ON CONFLICT (sensor_id, sensor_type) DO UPDATE SET error_count = " + p.errorsTable + ".error_count + EXCLUDED.error_count," +
		" last_error_ts = EXCLUDED.last_error_ts, last_error_message = EXCLUDED.last_error_message" +
		" RETURNING error_count, last_error_ts, last_error_message"

	rec := domain.SensorErrorRecord{SensorID: key.SensorID, SensorType: key.SensorType}
	err := p.db.QueryRowContext(ctx, q, key.SensorID, string(key.SensorType), delta, at.UTC(), msg).
		Scan(&rec.ErrorCount, &rec.LastErrorTimestamp, &rec.LastErrorMessage)
	if err != nil {
		return rec, fmt.Errorf("upsert error %s: %w", key, err)
	}
	rec.LastErrorTimestamp = rec.LastErrorTimestamp.UTC()
	return rec, nil
}

func (p *PostgresStore) QueryErrors(ctx context.Context, limit int) ([]domain.SensorErrorRecord, error) {
	q := "SELECT sensor_id, sensor_type, error_count, last_error_ts, last_error_message FROM " + p.errorsTable +
		" ORDER BY error_count DESC, last_error_ts DESC, sensor_id ASC"
	var args []any
	if limit > 0 {
		q += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query errors: %w", err)
	}
	defer rows.Close()

	var out []domain.SensorErrorRecord
	for rows.Next() {
		var (
			rec domain.SensorErrorRecord
			typ string
		)
		if err := rows.Scan(&rec.SensorID, &typ, &rec.ErrorCount, &rec.LastErrorTimestamp, &rec.LastErrorMessage); err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		rec.SensorType = domain.SensorType(typ)
		rec.LastErrorTimestamp = rec.LastErrorTimestamp.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) Close() error { return p.db.Close() }

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

var (
	_ ports.Store                = (*PostgresStore)(nil)
	_ ports.LatestPerSensorStore = (*PostgresStore)(nil)
)
