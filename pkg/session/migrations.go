package session

type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered schema history. Append only.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create session map",
		SQL: `
			CREATE TABLE sessions (
				conversation_key TEXT PRIMARY KEY,
				session_id       TEXT NOT NULL,
				updated_at       TEXT NOT NULL
			);
		`,
	},
	{
		Version: 2,
		Name:    "index sessions by update time",
		SQL:     `CREATE INDEX idx_sessions_updated ON sessions (updated_at);`,
	},
}
