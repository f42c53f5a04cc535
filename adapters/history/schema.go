package history

// SchemaVersion is the current database schema version
const SchemaVersion = 1

const schema = `
-- One row per completed estimation run
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    generated_at TIMESTAMP NOT NULL,
    plan_path TEXT NOT NULL,
    currency TEXT NOT NULL,
    total TEXT NOT NULL,
    resources INTEGER NOT NULL,
    unresolved INTEGER NOT NULL,
    recommendations INTEGER NOT NULL,
    projected_savings TEXT NOT NULL,
    report TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_generated_at ON runs(generated_at);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);
`

const insertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`

const getSchemaVersion = `SELECT version FROM schema_version LIMIT 1`
