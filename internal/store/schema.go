package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS traces (
	trace_id        TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	start_time      REAL NOT NULL,
	end_time        REAL,
	span_count      INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT 'unset',
	tags            TEXT NOT NULL DEFAULT '{}',
	total_cost_usd  REAL NOT NULL DEFAULT 0,
	total_tokens    INTEGER NOT NULL DEFAULT 0,
	sdk_language    TEXT,
	created_at      REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_traces_created_at ON traces(created_at);
CREATE INDEX IF NOT EXISTS idx_traces_status ON traces(status);

CREATE TABLE IF NOT EXISTS spans (
	span_id         TEXT PRIMARY KEY,
	trace_id        TEXT NOT NULL REFERENCES traces(trace_id) ON DELETE CASCADE,
	parent_span_id  TEXT,
	span_type       TEXT NOT NULL DEFAULT '',
	name            TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'unset',
	error_message   TEXT,
	start_time      REAL NOT NULL,
	end_time        REAL,
	attributes      TEXT NOT NULL DEFAULT '{}',
	annotations     TEXT NOT NULL DEFAULT '[]',
	sdk_language    TEXT,
	created_at      REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_spans_trace_id ON spans(trace_id);
CREATE INDEX IF NOT EXISTS idx_spans_parent_span_id ON spans(parent_span_id);
CREATE INDEX IF NOT EXISTS idx_spans_span_type ON spans(span_type);
CREATE INDEX IF NOT EXISTS idx_spans_start_time ON spans(start_time);
CREATE INDEX IF NOT EXISTS idx_spans_name ON spans(name);

CREATE TABLE IF NOT EXISTS replay_runs (
	replay_id        TEXT PRIMARY KEY,
	original_span_id TEXT NOT NULL REFERENCES spans(span_id) ON DELETE CASCADE,
	trace_id         TEXT NOT NULL REFERENCES traces(trace_id) ON DELETE CASCADE,
	modified_input   TEXT NOT NULL DEFAULT '',
	new_output       TEXT NOT NULL DEFAULT '',
	diff             TEXT NOT NULL DEFAULT '',
	created_at       REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS prompt_versions (
	version_id   TEXT PRIMARY KEY,
	span_id      TEXT NOT NULL REFERENCES spans(span_id) ON DELETE CASCADE,
	prompt_text  TEXT NOT NULL DEFAULT '',
	label        TEXT,
	created_at   REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prompt_versions_span_id ON prompt_versions(span_id);
`

// runMigrations applies lightweight forward-only column additions for
// databases created by an older version of beaconobs, the same way the
// original beacon backend's database.py does it: check PRAGMA table_info,
// ALTER TABLE ADD COLUMN if missing. This is a safety net on top of the
// CREATE TABLE IF NOT EXISTS above, not the primary schema authority.
func (s *SQLiteStore) runMigrations() error {
	addIfMissing := func(table, column, ddl string) error {
		rows, err := s.db.Query(`SELECT name FROM pragma_table_info(?)`, table)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			if name == column {
				return nil
			}
		}
		_, err = s.db.Exec(`ALTER TABLE ` + table + ` ADD COLUMN ` + ddl)
		return err
	}

	if err := addIfMissing("spans", "annotations", "annotations TEXT DEFAULT '[]'"); err != nil {
		return err
	}
	if err := addIfMissing("spans", "sdk_language", "sdk_language TEXT"); err != nil {
		return err
	}
	if err := addIfMissing("traces", "sdk_language", "sdk_language TEXT"); err != nil {
		return err
	}
	return nil
}
