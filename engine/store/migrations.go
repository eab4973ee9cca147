package store

// Timestamps are unix seconds; zero means unset.
const migrationsSQL = `
CREATE TABLE IF NOT EXISTS sources (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	url TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	fetch_interval_secs INTEGER NOT NULL DEFAULT 900,
	min_quality REAL NOT NULL DEFAULT 0,
	keywords TEXT NOT NULL DEFAULT '[]',
	selectors TEXT NOT NULL DEFAULT '{}',
	fields TEXT NOT NULL DEFAULT '{}',
	last_run INTEGER NOT NULL DEFAULT 0,
	next_run INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
	external_id TEXT NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	author TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	word_count INTEGER NOT NULL DEFAULT 0,
	published_at INTEGER NOT NULL DEFAULT 0,
	ingested_at INTEGER NOT NULL,
	fingerprint TEXT NOT NULL,
	simhash INTEGER NOT NULL DEFAULT 0,
	duplicate_of INTEGER NOT NULL DEFAULT 0,
	q_completeness REAL NOT NULL DEFAULT 0,
	q_readability REAL NOT NULL DEFAULT 0,
	q_relevance REAL NOT NULL DEFAULT 0,
	q_freshness REAL NOT NULL DEFAULT 0,
	q_enrichment REAL NOT NULL DEFAULT 0,
	q_composite REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	UNIQUE (source_id, external_id)
);

CREATE INDEX IF NOT EXISTS idx_items_status ON items (status, ingested_at);
CREATE INDEX IF NOT EXISTS idx_items_fingerprint ON items (fingerprint);

CREATE TABLE IF NOT EXISTS moderation_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	decision TEXT NOT NULL,
	actor TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_moderation_item ON moderation_log (item_id, created_at);

CREATE TABLE IF NOT EXISTS source_metrics (
	source_id INTEGER PRIMARY KEY REFERENCES sources(id) ON DELETE CASCADE,
	crawls INTEGER NOT NULL DEFAULT 0,
	items INTEGER NOT NULL DEFAULT 0,
	errors INTEGER NOT NULL DEFAULT 0,
	last_run INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS options (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
)
`
