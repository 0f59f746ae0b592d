package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/aquabot/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Repository = (*PostgresRepository)(nil)

const pgUniqueViolation = "23505"

// PostgresRepository stores telemetry in PostgreSQL through a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to dsn and makes sure the schema exists.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("ping postgres", err)
	}
	r := &PostgresRepository{pool: pool}
	if err := r.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// EnsureSchema creates the telemetry tables when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS telemetry_documents (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			site_id TEXT NOT NULL,
			sent_at TIMESTAMPTZ NOT NULL,
			seq BIGINT NOT NULL DEFAULT 0,
			received_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_documents_lookup
			ON telemetry_documents(device_id, site_id, sent_at)`,
		`CREATE TABLE IF NOT EXISTS telemetry_measurements (
			document_id TEXT NOT NULL REFERENCES telemetry_documents(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			parameter TEXT NOT NULL,
			param_key TEXT NOT NULL DEFAULT '',
			value DOUBLE PRECISION NOT NULL,
			unit TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (document_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_measurements_param
			ON telemetry_measurements(param_key, document_id)`,
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return unavailable("ensure schema", err)
		}
	}
	return nil
}

// Store implements Repository.
func (r *PostgresRepository) Store(ctx context.Context, doc models.TelemetryDocument) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO telemetry_documents (id, device_id, site_id, sent_at, seq)
			VALUES ($1, $2, $3, $4, $5)`,
			doc.ID, doc.DeviceID, doc.SiteID, doc.SentAt, int64(doc.Seq),
		)
		if err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for i, m := range doc.Measurements {
			batch.Queue(`
				INSERT INTO telemetry_measurements (document_id, position, parameter, param_key, value, unit)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				doc.ID, i, m.Parameter, paramKey(m.Parameter), m.Value, m.Unit,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateDocument, doc.ID)
		}
		return unavailable("store document", err)
	}
	return nil
}

// FetchLatest implements roles.TelemetrySource.
func (r *PostgresRepository) FetchLatest(ctx context.Context, deviceID, siteID string) (*models.TelemetryDocument, error) {
	var doc models.TelemetryDocument
	var seq int64
	err := r.pool.QueryRow(ctx, `
		SELECT id, device_id, site_id, sent_at, seq
		FROM telemetry_documents
		WHERE device_id = $1 AND site_id = $2
		ORDER BY sent_at DESC, id DESC
		LIMIT 1`,
		deviceID, siteID,
	).Scan(&doc.ID, &doc.DeviceID, &doc.SiteID, &doc.SentAt, &seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("fetch latest", err)
	}
	doc.Seq = uint64(seq)

	rows, err := r.pool.Query(ctx, `
		SELECT parameter, value, unit
		FROM telemetry_measurements
		WHERE document_id = $1
		ORDER BY position`,
		doc.ID,
	)
	if err != nil {
		return nil, unavailable("fetch measurements", err)
	}
	measurements, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Measurement, error) {
		var m models.Measurement
		err := row.Scan(&m.Parameter, &m.Value, &m.Unit)
		return m, err
	})
	if err != nil {
		return nil, unavailable("scan measurements", err)
	}
	doc.Measurements = measurements
	return &doc, nil
}

// FetchRange implements roles.TelemetrySource.
func (r *PostgresRepository) FetchRange(ctx context.Context, deviceID, siteID string, param models.WaterParameter, start, end time.Time) (models.Series, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT d.sent_at, m.value, m.unit
		FROM telemetry_documents d
		JOIN telemetry_measurements m ON m.document_id = d.id
		WHERE d.device_id = $1 AND d.site_id = $2
		  AND d.sent_at BETWEEN $3 AND $4
		  AND m.param_key = $5
		ORDER BY d.sent_at, d.id, m.position`,
		deviceID, siteID, start, end, string(param),
	)
	if err != nil {
		return nil, unavailable("fetch range", err)
	}
	points, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.MeasurementPoint, error) {
		var ts time.Time
		var m models.Measurement
		if err := row.Scan(&ts, &m.Value, &m.Unit); err != nil {
			return models.MeasurementPoint{}, err
		}
		return pointOf(ts, m, param), nil
	})
	if err != nil {
		return nil, unavailable("scan points", err)
	}
	return models.Series(points), nil
}

// Close releases the pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Ping checks the pool can reach the server.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
