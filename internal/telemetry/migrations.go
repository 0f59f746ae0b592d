package telemetry

import (
	"database/sql"

	"github.com/HerbHall/aquabot/pkg/plugin"
)

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create telemetry tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS telemetry_documents (
						id TEXT PRIMARY KEY,
						device_id TEXT NOT NULL,
						site_id TEXT NOT NULL,
						sent_at INTEGER NOT NULL,
						seq INTEGER NOT NULL DEFAULT 0,
						received_at INTEGER NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_telemetry_documents_lookup
						ON telemetry_documents(device_id, site_id, sent_at)`,

					`CREATE TABLE IF NOT EXISTS telemetry_measurements (
						document_id TEXT NOT NULL REFERENCES telemetry_documents(id) ON DELETE CASCADE,
						position INTEGER NOT NULL,
						parameter TEXT NOT NULL,
						param_key TEXT NOT NULL DEFAULT '',
						value REAL NOT NULL,
						unit TEXT NOT NULL DEFAULT '',
						PRIMARY KEY (document_id, position)
					)`,
					`CREATE INDEX IF NOT EXISTS idx_telemetry_measurements_param
						ON telemetry_measurements(param_key, document_id)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
