package store

// schema is the persisted table set from spec.md §6. Schema migration
// tooling is explicitly out of scope (spec.md §1); the engine only
// ensures these tables exist, idempotently, on open.
const schema = `
CREATE TABLE IF NOT EXISTS person (
	id                    INTEGER PRIMARY KEY,
	display_name          TEXT NOT NULL,
	chat_identity         TEXT NOT NULL DEFAULT '',
	access_mask           INTEGER NOT NULL DEFAULT 0,
	watched_tiles_count   INTEGER NOT NULL DEFAULT 0,
	active_projects_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS project (
	id                     INTEGER PRIMARY KEY,
	owner_id               INTEGER NOT NULL REFERENCES person(id),
	name                   TEXT NOT NULL,
	state                  INTEGER NOT NULL,
	rect_x                 INTEGER NOT NULL,
	rect_y                 INTEGER NOT NULL,
	rect_w                 INTEGER NOT NULL,
	rect_h                 INTEGER NOT NULL,
	first_seen             INTEGER NOT NULL,
	max_completion_percent REAL NOT NULL DEFAULT 0,
	total_progress         INTEGER NOT NULL DEFAULT 0,
	total_regress          INTEGER NOT NULL DEFAULT 0,
	largest_regress_pixels INTEGER NOT NULL DEFAULT 0,
	largest_regress_at     INTEGER NOT NULL DEFAULT 0,
	streak                 TEXT NOT NULL DEFAULT '',
	last_log_message       TEXT NOT NULL DEFAULT '',
	UNIQUE (owner_id, name)
);

CREATE TABLE IF NOT EXISTS tile (
	id           INTEGER PRIMARY KEY,
	x            INTEGER NOT NULL,
	y            INTEGER NOT NULL,
	heat         INTEGER NOT NULL DEFAULT 999,
	last_checked INTEGER NOT NULL DEFAULT 0,
	last_update  INTEGER NOT NULL DEFAULT 0,
	etag         TEXT NOT NULL DEFAULT '',
	UNIQUE (x, y)
);
CREATE INDEX IF NOT EXISTS idx_tile_heat ON tile(heat);

CREATE TABLE IF NOT EXISTS tile_project (
	tile_id    INTEGER NOT NULL REFERENCES tile(id),
	project_id INTEGER NOT NULL REFERENCES project(id),
	PRIMARY KEY (tile_id, project_id)
);

CREATE TABLE IF NOT EXISTS history_change (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id         INTEGER NOT NULL REFERENCES project(id),
	timestamp          INTEGER NOT NULL,
	status             INTEGER NOT NULL,
	pixels_remaining   INTEGER NOT NULL,
	completion_percent REAL NOT NULL,
	delta_progress     INTEGER NOT NULL,
	delta_regress      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_project ON history_change(project_id, timestamp);
`

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(schema)
	if err != nil {
		return wrapDBError("ensure schema", err)
	}
	return nil
}
