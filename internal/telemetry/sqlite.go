package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/aquabot/pkg/models"
)

var _ Repository = (*SQLiteRepository)(nil)

// SQLiteRepository stores telemetry in the shared SQLite database.
// sent_at is kept as Unix nanoseconds so ordering and range filters are
// plain integer comparisons.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on db. The telemetry migrations
// must already be applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Store inserts the document and its measurements in one transaction.
func (r *SQLiteRepository) Store(ctx context.Context, doc models.TelemetryDocument) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO telemetry_documents (id, device_id, site_id, sent_at, seq, received_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.DeviceID, doc.SiteID, doc.SentAt.UnixNano(), int64(doc.Seq), time.Now().UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateDocument, doc.ID)
		}
		return unavailable("insert document", err)
	}

	for i, m := range doc.Measurements {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO telemetry_measurements (document_id, position, parameter, param_key, value, unit)
			VALUES (?, ?, ?, ?, ?, ?)`,
			doc.ID, i, m.Parameter, paramKey(m.Parameter), m.Value, m.Unit,
		)
		if err != nil {
			return unavailable("insert measurement", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

// FetchLatest implements roles.TelemetrySource.
func (r *SQLiteRepository) FetchLatest(ctx context.Context, deviceID, siteID string) (*models.TelemetryDocument, error) {
	var doc models.TelemetryDocument
	var sentAt, seq int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, device_id, site_id, sent_at, seq
		FROM telemetry_documents
		WHERE device_id = ? AND site_id = ?
		ORDER BY sent_at DESC, id DESC
		LIMIT 1`,
		deviceID, siteID,
	).Scan(&doc.ID, &doc.DeviceID, &doc.SiteID, &sentAt, &seq)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, unavailable("fetch latest", err)
	}
	doc.SentAt = time.Unix(0, sentAt).UTC()
	doc.Seq = uint64(seq)

	rows, err := r.db.QueryContext(ctx, `
		SELECT parameter, value, unit
		FROM telemetry_measurements
		WHERE document_id = ?
		ORDER BY position`,
		doc.ID,
	)
	if err != nil {
		return nil, unavailable("fetch measurements", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Measurement
		if err := rows.Scan(&m.Parameter, &m.Value, &m.Unit); err != nil {
			return nil, unavailable("scan measurement", err)
		}
		doc.Measurements = append(doc.Measurements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate measurements", err)
	}
	return &doc, nil
}

// FetchRange implements roles.TelemetrySource.
func (r *SQLiteRepository) FetchRange(ctx context.Context, deviceID, siteID string, param models.WaterParameter, start, end time.Time) (models.Series, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT d.sent_at, m.value, m.unit
		FROM telemetry_documents d
		JOIN telemetry_measurements m ON m.document_id = d.id
		WHERE d.device_id = ? AND d.site_id = ?
		  AND d.sent_at >= ? AND d.sent_at <= ?
		  AND m.param_key = ?
		ORDER BY d.sent_at, d.id, m.position`,
		deviceID, siteID, start.UnixNano(), end.UnixNano(), string(param),
	)
	if err != nil {
		return nil, unavailable("fetch range", err)
	}
	defer rows.Close()

	var out models.Series
	for rows.Next() {
		var sentAt int64
		var m models.Measurement
		if err := rows.Scan(&sentAt, &m.Value, &m.Unit); err != nil {
			return nil, unavailable("scan point", err)
		}
		out = append(out, pointOf(time.Unix(0, sentAt).UTC(), m, param))
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate points", err)
	}
	return out, nil
}

// Close is a no-op: the shared database is owned by the server.
func (r *SQLiteRepository) Close() error {
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
