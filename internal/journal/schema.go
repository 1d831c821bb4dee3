package journal

// Schema DDL. Tables are created if missing so the journal survives across
// runs.
const (
	createRuns = `CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    partition TEXT NOT NULL,
    mode TEXT NOT NULL,
    dry_run INTEGER NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    created INTEGER NOT NULL,
    updated INTEGER NOT NULL,
    unchanged INTEGER NOT NULL,
    conflicts INTEGER NOT NULL,
    skipped INTEGER NOT NULL,
    errors INTEGER NOT NULL
);`

	createRunErrors = `CREATE TABLE IF NOT EXISTS run_errors (
    run_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    task_id INTEGER,
    file TEXT,
    message TEXT NOT NULL,
    PRIMARY KEY (run_id, seq),
    FOREIGN KEY (run_id) REFERENCES runs(run_id)
);`

	createRunsIndex = `CREATE INDEX IF NOT EXISTS idx_runs_partition_started
    ON runs (partition, started_at);`
)

var schemaStatements = []string{createRuns, createRunErrors, createRunsIndex}
