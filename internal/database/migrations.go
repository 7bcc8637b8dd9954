package database

const schema = `
CREATE TABLE IF NOT EXISTS ingest_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ingest_id TEXT NOT NULL UNIQUE,
    uid INTEGER NOT NULL,
    message_id TEXT,
    sender TEXT,
    subject TEXT,
    outcome TEXT NOT NULL,
    reason TEXT,
    barcode TEXT,
    output_path TEXT,
    error TEXT,
    notified BOOLEAN DEFAULT false,
    received_at DATETIME,
    processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_ingest_barcode ON ingest_log(barcode);
CREATE INDEX IF NOT EXISTS idx_ingest_outcome ON ingest_log(outcome);
`
