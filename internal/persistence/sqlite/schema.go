package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS homes (
	home_id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	node_id TEXT NOT NULL,
	state TEXT NOT NULL,
	lease_expires_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_homes_node ON homes(node_id);
CREATE INDEX IF NOT EXISTS idx_homes_state ON homes(state);

CREATE TABLE IF NOT EXISTS home_transitions (
	home_id TEXT NOT NULL,
	ts INTEGER NOT NULL,
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	triggered_by TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (home_id, ts)
);

CREATE TABLE IF NOT EXISTS audit_entries (
	id TEXT PRIMARY KEY,
	ts INTEGER NOT NULL,
	agent_id TEXT NOT NULL DEFAULT '',
	home_id TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	level TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_agent ON audit_entries(agent_id);
CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_entries(ts);

CREATE TABLE IF NOT EXISTS channels (
	channel_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	topic TEXT NOT NULL DEFAULT '',
	created_by TEXT NOT NULL DEFAULT '',
	members TEXT NOT NULL DEFAULT '[]',
	archived INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS channel_messages (
	channel_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	agent_id TEXT NOT NULL,
	content TEXT NOT NULL,
	ts INTEGER NOT NULL,
	PRIMARY KEY (channel_id, seq)
);

CREATE TABLE IF NOT EXISTS bridges (
	bridge_id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	external_channel_id TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	webhook_url TEXT NOT NULL DEFAULT '',
	account_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_bridges_channel ON bridges(channel_id);
CREATE INDEX IF NOT EXISTS idx_bridges_external ON bridges(platform, external_channel_id);

CREATE TABLE IF NOT EXISTS agent_loops (
	agent_id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	last_tick_at INTEGER,
	awakened_at INTEGER,
	slept_at INTEGER,
	sleep_reason TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS assignments (
	agent_id TEXT PRIMARY KEY,
	node_id TEXT NOT NULL,
	assigned_at INTEGER NOT NULL,
	portable_path TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS migration_tickets (
	migration_id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	source_node TEXT NOT NULL,
	source_home TEXT NOT NULL,
	source_endpoint TEXT NOT NULL,
	target_node TEXT NOT NULL,
	target_home TEXT NOT NULL,
	target_endpoint TEXT NOT NULL,
	phase TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	snapshot_digest TEXT NOT NULL DEFAULT '',
	snapshot_size_bytes INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tickets_agent ON migration_tickets(agent_id);
`
