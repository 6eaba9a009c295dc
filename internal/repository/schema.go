package repository

// Schema definitions for the mulegraph database. Compatible with both
// SQLite and PostgreSQL. Batches and reports are stored as opaque JSON
// payloads alongside a few indexed summary columns, since the engine
// itself never reads them back.

const schemaBatches = `
CREATE TABLE IF NOT EXISTS batches (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    transaction_count INTEGER NOT NULL,
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_batches_tenant ON batches(tenant_id);
CREATE INDEX IF NOT EXISTS idx_batches_created ON batches(tenant_id, created_at);
`

const schemaReports = `
CREATE TABLE IF NOT EXISTS reports (
    batch_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    fraud_rings_detected INTEGER NOT NULL,
    suspicious_accounts_flagged INTEGER NOT NULL,
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (batch_id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_reports_tenant ON reports(tenant_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaBatches,
		schemaReports,
	}
}
