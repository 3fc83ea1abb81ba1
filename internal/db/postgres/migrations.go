package postgres

// Migration: одна встроенная миграция.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations применяются строго по возрастанию Version.
// SQL-миграции встроены в код для упрощения деплоя.
var Migrations = []Migration{
	{1, "ledger", migration001Ledger},
	{2, "blocked_apps", migration002BlockedApps},
	{3, "free_passes", migration003FreePasses},
	{4, "app_groups", migration004AppGroups},
	{5, "preferences", migration005Preferences},
	{6, "owner", migration006Owner},
}

var migration001Ledger = `
CREATE TABLE IF NOT EXISTS point_transactions (
    id BIGSERIAL PRIMARY KEY,
    amount BIGINT NOT NULL,
    type VARCHAR(16) NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_point_transactions_created_at ON point_transactions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_point_transactions_type ON point_transactions(type);
`

var migration002BlockedApps = `
CREATE TABLE IF NOT EXISTS blocked_apps (
    package_name VARCHAR(255) PRIMARY KEY,
    app_name VARCHAR(255) NOT NULL,
    blocked_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

var migration003FreePasses = `
CREATE TABLE IF NOT EXISTS free_pass_items (
    item_type VARCHAR(32) PRIMARY KEY,
    quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
    last_purchase_time TIMESTAMPTZ,
    last_use_time TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS daily_usage_records (
    date VARCHAR(10) PRIMARY KEY,
    standard_ticket_used_count INTEGER NOT NULL DEFAULT 0
);
`

var migration004AppGroups = `
CREATE TABLE IF NOT EXISTS app_groups (
    package_name VARCHAR(255) NOT NULL,
    group_type VARCHAR(8) NOT NULL,
    is_included BOOLEAN NOT NULL,
    PRIMARY KEY (package_name, group_type)
);
CREATE TABLE IF NOT EXISTS installed_apps (
    package_name VARCHAR(255) PRIMARY KEY,
    app_name VARCHAR(255) NOT NULL,
    category VARCHAR(32) NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

var migration005Preferences = `
CREATE TABLE IF NOT EXISTS preferences (
    key VARCHAR(128) PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

var migration006Owner = `
CREATE TABLE IF NOT EXISTS owner_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    session_token VARCHAR(255) UNIQUE NOT NULL,
    authenticated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_owner_sessions_user ON owner_sessions(user_id, expires_at DESC);
CREATE TABLE IF NOT EXISTS owner_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    success BOOLEAN NOT NULL,
    attempted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_owner_login_attempts_user ON owner_login_attempts(user_id, attempted_at DESC);
`
