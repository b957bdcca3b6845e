package store

const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT UNIQUE NOT NULL,
	name TEXT NOT NULL,
	role TEXT NOT NULL,
	status TEXT NOT NULL,
	verified BOOLEAN NOT NULL DEFAULT 0,

	-- Earnings stats, system currency, stored as exact decimal strings
	total_earnings TEXT NOT NULL DEFAULT '0',
	available_balance TEXT NOT NULL DEFAULT '0',
	pending_payouts TEXT NOT NULL DEFAULT '0',

	payout_method TEXT NOT NULL,
	payout_currency TEXT NOT NULL,
	minimum_payout_amount TEXT NOT NULL DEFAULT '0',

	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS royalties (
	id TEXT PRIMARY KEY,
	track_id TEXT NOT NULL,
	store_id TEXT NOT NULL,
	period_start DATETIME NOT NULL,
	period_end DATETIME NOT NULL,

	quantity INTEGER NOT NULL DEFAULT 0,
	unit_rate TEXT NOT NULL DEFAULT '0',

	gross_amount TEXT NOT NULL DEFAULT '0',
	source_currency TEXT NOT NULL,
	exchange_rate TEXT NOT NULL DEFAULT '1',
	amount TEXT NOT NULL DEFAULT '0',
	tax_amount TEXT NOT NULL DEFAULT '0',
	net_amount TEXT NOT NULL DEFAULT '0',

	splits TEXT NOT NULL DEFAULT '[]',  -- JSON array
	status TEXT NOT NULL,

	attached_payout_id TEXT,
	reversed_at DATETIME,

	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_royalties_status ON royalties(status);
CREATE INDEX IF NOT EXISTS idx_royalties_track ON royalties(track_id);
CREATE INDEX IF NOT EXISTS idx_royalties_eligible ON royalties(status, attached_payout_id)
WHERE status = 'processed' AND attached_payout_id IS NULL;

CREATE TABLE IF NOT EXISTS payouts (
	id TEXT PRIMARY KEY,
	recipient_id TEXT NOT NULL,
	currency TEXT NOT NULL,

	amount TEXT NOT NULL DEFAULT '0',
	fee_amount TEXT NOT NULL DEFAULT '0',
	tax_amount TEXT NOT NULL DEFAULT '0',
	net_amount TEXT NOT NULL DEFAULT '0',

	method TEXT NOT NULL,
	status TEXT NOT NULL,
	items TEXT NOT NULL DEFAULT '[]',  -- JSON array

	payment_reference TEXT,
	payment_date DATETIME,
	failure_reason TEXT,
	reversed_at DATETIME,

	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,

	FOREIGN KEY (recipient_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_payouts_recipient ON payouts(recipient_id);
CREATE INDEX IF NOT EXISTS idx_payouts_status ON payouts(status);

CREATE TABLE IF NOT EXISTS analytics_events (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	user_id TEXT,
	track_id TEXT,

	country TEXT NOT NULL DEFAULT '',
	device TEXT NOT NULL DEFAULT '',
	os TEXT NOT NULL DEFAULT '',
	browser TEXT NOT NULL DEFAULT '',

	value REAL NOT NULL DEFAULT 0,
	extra TEXT NOT NULL DEFAULT '{}',  -- JSON object
	occurred_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_occurred_at ON analytics_events(occurred_at);

CREATE TABLE IF NOT EXISTS analytics_summaries (
	date TEXT PRIMARY KEY,  -- UTC calendar day, YYYY-MM-DD

	total_events INTEGER NOT NULL DEFAULT 0,
	total_plays INTEGER NOT NULL DEFAULT 0,
	total_downloads INTEGER NOT NULL DEFAULT 0,
	total_likes INTEGER NOT NULL DEFAULT 0,
	total_shares INTEGER NOT NULL DEFAULT 0,
	total_signups INTEGER NOT NULL DEFAULT 0,
	total_logins INTEGER NOT NULL DEFAULT 0,
	total_uploads INTEGER NOT NULL DEFAULT 0,
	total_payout_requests INTEGER NOT NULL DEFAULT 0,
	total_other INTEGER NOT NULL DEFAULT 0,
	unique_users INTEGER NOT NULL DEFAULT 0,

	by_country TEXT NOT NULL DEFAULT '{}',  -- JSON object
	by_device TEXT NOT NULL DEFAULT '{}',
	by_os TEXT NOT NULL DEFAULT '{}',
	by_browser TEXT NOT NULL DEFAULT '{}',
	by_hour TEXT NOT NULL DEFAULT '[]',  -- JSON array, 24 slots

	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS api_keys (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	key TEXT UNIQUE NOT NULL,
	scopes TEXT NOT NULL DEFAULT '[]',  -- JSON array

	expires_at DATETIME,
	active BOOLEAN NOT NULL DEFAULT 1,
	last_used DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,

	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id);
`
