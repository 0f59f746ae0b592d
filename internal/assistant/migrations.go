package assistant

import (
	"database/sql"

	"github.com/HerbHall/aquabot/pkg/plugin"
)

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create assistant_messages table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS assistant_messages (
						id          INTEGER PRIMARY KEY AUTOINCREMENT,
						session_id  TEXT NOT NULL,
						role        TEXT NOT NULL,
						content     TEXT NOT NULL,
						intent      TEXT NOT NULL DEFAULT '',
						outcome     TEXT NOT NULL DEFAULT '',
						created_at  INTEGER NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_assistant_messages_session ON assistant_messages(session_id, id)`,
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
