package store

// migration is one forward-only schema change, applied inside its own
// transaction, ending with an insert into schema_version (see migrate.go).
type migration struct {
	version int
	sql     string
}

// migrations is applied in order on Open. New changes append a new entry
// with the next version number; existing entries are never edited, per
// spec.md §6 "forward-only migrations".
var migrations = []migration{
	{version: 1, sql: schemaV1},
	{version: 2, sql: schemaV2},
}

// schemaV1 creates the bit-exact table set spec.md §6 requires: devices,
// projects, sources, cursors, ciphertexts, events, schema_version, plus the
// events_fts virtual table kept in sync via triggers.
const schemaV1 = `
CREATE TABLE devices (
	device_id    TEXT PRIMARY KEY,
	nickname     TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	last_seen_at TEXT NOT NULL
);

CREATE TABLE projects (
	project_id   TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	git_remote   TEXT,
	root_path    TEXT NOT NULL,
	share_policy TEXT NOT NULL DEFAULT 'private',
	created_at   TEXT NOT NULL
);

CREATE TABLE sources (
	source_id         TEXT PRIMARY KEY,
	kind              TEXT NOT NULL,
	locator           TEXT NOT NULL,
	device_id         TEXT NOT NULL REFERENCES devices(device_id),
	project_id        TEXT REFERENCES projects(project_id),
	session_id        TEXT,
	status            TEXT NOT NULL DEFAULT 'active',
	error_message     TEXT,
	last_seen_at      TEXT NOT NULL,
	redact_secrets    INTEGER NOT NULL DEFAULT 1,
	retain_on_delete  INTEGER NOT NULL DEFAULT 1,
	encrypt_originals INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL,
	UNIQUE (device_id, locator)
);

CREATE TABLE cursors (
	source_id     TEXT PRIMARY KEY REFERENCES sources(source_id),
	file_inode    INTEGER,
	file_size     INTEGER,
	file_mtime    TEXT,
	byte_offset   INTEGER,
	diff_mtime    TEXT,
	last_event_id TEXT,
	last_rowid    INTEGER,
	updated_at    TEXT NOT NULL
);

CREATE TABLE ciphertexts (
	source_id  TEXT NOT NULL REFERENCES sources(source_id),
	source_seq REAL NOT NULL,
	nonce      BLOB NOT NULL,
	ciphertext BLOB NOT NULL,
	PRIMARY KEY (source_id, source_seq)
);

CREATE TABLE events (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id                TEXT NOT NULL UNIQUE,
	source_id               TEXT NOT NULL REFERENCES sources(source_id),
	source_seq              REAL NOT NULL,
	device_id               TEXT NOT NULL,
	project_id              TEXT,
	session_id              TEXT,
	event_ts                TEXT NOT NULL,
	ingest_ts               TEXT NOT NULL,
	source_kind             TEXT NOT NULL,
	event_type              TEXT NOT NULL,
	text_redacted           TEXT,
	tool_name               TEXT,
	tool_args_json          TEXT,
	file_paths_json         TEXT,
	meta_json               TEXT,
	redaction_manifest_json TEXT
);

CREATE INDEX idx_events_project    ON events(project_id);
CREATE INDEX idx_events_session    ON events(session_id);
CREATE INDEX idx_events_type       ON events(event_type);
CREATE INDEX idx_events_ts         ON events(event_ts);
CREATE INDEX idx_events_source_seq ON events(source_id, source_seq);
CREATE INDEX idx_events_ingest_ts  ON events(ingest_ts);

CREATE VIRTUAL TABLE events_fts USING fts5(
	text_redacted,
	tool_name,
	content = 'events',
	content_rowid = 'id'
);

CREATE TRIGGER events_fts_ai AFTER INSERT ON events BEGIN
	INSERT INTO events_fts(rowid, text_redacted, tool_name)
	VALUES (new.id, new.text_redacted, new.tool_name);
END;

CREATE TRIGGER events_fts_ad AFTER DELETE ON events BEGIN
	INSERT INTO events_fts(events_fts, rowid, text_redacted, tool_name)
	VALUES ('delete', old.id, old.text_redacted, old.tool_name);
END;

CREATE TRIGGER events_fts_au AFTER UPDATE ON events BEGIN
	INSERT INTO events_fts(events_fts, rowid, text_redacted, tool_name)
	VALUES ('delete', old.id, old.text_redacted, old.tool_name);
	INSERT INTO events_fts(rowid, text_redacted, tool_name)
	VALUES (new.id, new.text_redacted, new.tool_name);
END;

CREATE TABLE schema_version (
	version    INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);
`

// schemaV2 adds a device_id index used by multi-device deployments; it
// demonstrates the forward-migration mechanism spec.md §6 requires without
// altering any table this release's worked examples depend on.
const schemaV2 = `
CREATE INDEX idx_events_device ON events(device_id);
`
