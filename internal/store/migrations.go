package store

import "context"

// schema is applied idempotently on demand; Migrate is safe to run at boot.
const schema = `
CREATE TABLE IF NOT EXISTS solves (
    id          TEXT PRIMARY KEY,
    tenant_id   TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    orders      INT NOT NULL,
    vehicles    INT NOT NULL,
    solution    JSONB NOT NULL,
    stats       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS solves_tenant_idx ON solves (tenant_id, id);

CREATE TABLE IF NOT EXISTS solver_config (
    tenant_id   TEXT PRIMARY KEY,
    config      JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id          TEXT PRIMARY KEY,
    tenant_id   TEXT NOT NULL,
    url         TEXT NOT NULL,
    events      JSONB NOT NULL,
    secret      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS subscriptions_tenant_idx ON subscriptions (tenant_id, id);

CREATE TABLE IF NOT EXISTS webhook_deliveries (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    subscription_id TEXT NOT NULL,
    event_type      TEXT NOT NULL,
    url             TEXT NOT NULL,
    secret          TEXT NOT NULL DEFAULT '',
    payload         BYTEA,
    status          TEXT NOT NULL DEFAULT 'pending',
    attempts        INT NOT NULL DEFAULT 0,
    next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    delivered_at    TIMESTAMPTZ,
    last_error      TEXT,
    response_code   INT,
    latency_ms      INT
);
CREATE INDEX IF NOT EXISTS webhook_deliveries_due_idx ON webhook_deliveries (status, next_attempt_at);
`

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}
