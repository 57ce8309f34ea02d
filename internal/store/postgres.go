package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetopt/internal/model"
)

// Postgres persists solves, subscriptions and the webhook queue. Tables are
// expected to exist; see deploy notes for the schema.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) SaveSolve(ctx context.Context, rec model.SolveRecord) error {
	sol, err := json.Marshal(rec.Solution)
	if err != nil {
		return err
	}
	stats, err := json.Marshal(rec.Stats)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO solves (id, tenant_id, created_at, orders, vehicles, solution, stats) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, rec.TenantID, rec.CreatedAt, rec.Orders, rec.Vehicles, sol, stats)
	return err
}

func (p *Postgres) GetSolve(ctx context.Context, tenantID, id string) (model.SolveRecord, error) {
	var rec model.SolveRecord
	var sol, stats []byte
	row := p.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, created_at, orders, vehicles, solution, stats FROM solves WHERE tenant_id=$1 AND id=$2`,
		tenantID, id)
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.CreatedAt, &rec.Orders, &rec.Vehicles, &sol, &stats); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, ErrNotFound
		}
		return rec, err
	}
	if err := json.Unmarshal(sol, &rec.Solution); err != nil {
		return rec, err
	}
	if err := json.Unmarshal(stats, &rec.Stats); err != nil {
		return rec, err
	}
	return rec, nil
}

func (p *Postgres) ListSolves(ctx context.Context, tenantID, cursor string, limit int) ([]model.SolveSummary, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id, created_at, orders, solution FROM solves WHERE tenant_id=$1 AND id > $2 ORDER BY id LIMIT $3`,
			tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id, created_at, orders, solution FROM solves WHERE tenant_id=$1 ORDER BY id LIMIT $2`,
			tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.SolveSummary{}
	var last string
	for rows.Next() {
		var s model.SolveSummary
		var sol []byte
		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.Orders, &sol); err != nil {
			return nil, "", err
		}
		var solution model.Solution
		if err := json.Unmarshal(sol, &solution); err != nil {
			return nil, "", err
		}
		s.Assigned = len(solution.Assignments)
		s.Violations = len(solution.Violations)
		s.TotalCost = solution.TotalCost
		out = append(out, s)
		last = s.ID
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) SolveStats(ctx context.Context, tenantID string) (map[string]any, error) {
	var solves, orders int
	row := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(orders),0) FROM solves WHERE tenant_id=$1`, tenantID)
	if err := row.Scan(&solves, &orders); err != nil {
		return nil, err
	}
	var assigned, violations int
	var cost float64
	rows, err := p.db.QueryContext(ctx, `SELECT solution FROM solves WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var sol model.Solution
		if err := json.Unmarshal(raw, &sol); err != nil {
			return nil, err
		}
		assigned += len(sol.Assignments)
		violations += len(sol.Violations)
		cost += sol.TotalCost
	}
	avgCost := 0.0
	if solves > 0 {
		avgCost = cost / float64(solves)
	}
	return map[string]any{
		"solves":     solves,
		"orders":     orders,
		"assigned":   assigned,
		"violations": violations,
		"avgCost":    avgCost,
	}, rows.Err()
}

func (p *Postgres) GetSolverConfig(ctx context.Context, tenantID string) (map[string]any, error) {
	var raw []byte
	row := p.db.QueryRowContext(ctx, `SELECT config FROM solver_config WHERE tenant_id=$1`, tenantID)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p *Postgres) SaveSolverConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO solver_config (tenant_id, config) VALUES ($1,$2)
		 ON CONFLICT (tenant_id) DO UPDATE SET config=EXCLUDED.config`,
		tenantID, raw)
	return err
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	events, err := json.Marshal(s.Events)
	if err != nil {
		return model.Subscription{}, err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.TenantID, s.URL, events, s.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return s, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, url, events, secret FROM subscriptions WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Subscription
	for rows.Next() {
		s := model.Subscription{TenantID: tenantID}
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(events, &s.Events); err != nil {
			return nil, err
		}
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id, url, events, secret FROM subscriptions WHERE tenant_id=$1 AND id > $2 ORDER BY id LIMIT $3`,
			tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id, url, events, secret FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`,
			tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	var last string
	for rows.Next() {
		s := model.Subscription{TenantID: tenantID}
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil {
			return nil, "", err
		}
		if err := json.Unmarshal(events, &s.Events); err != nil {
			return nil, "", err
		}
		out = append(out, s)
		last = s.ID
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`,
		id, tenantID, subscriptionID, eventType, url, secret, payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts
		 FROM webhook_deliveries
		 WHERE status IN ('pending','retry') AND next_attempt_at <= now()
		 ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx,
			`UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, response_code=$2, latency_ms=$3, delivered_at=now() WHERE id=$1`,
			id, responseCode, latencyMs)
		return err
	}
	next := time.Now().Add(1 * time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx,
		`UPDATE webhook_deliveries SET status='retry', attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4, next_attempt_at=$5 WHERE id=$1`,
		id, lastError, responseCode, latencyMs, next)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE webhook_deliveries SET status='failed', last_error=$2, response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, lastError, responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id, event_type, status, attempts, url, next_attempt_at, last_error FROM webhook_deliveries WHERE tenant_id=$1 AND status=$2 ORDER BY id LIMIT $3`,
			tenantID, status, limit)
	} else {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id, event_type, status, attempts, url, next_attempt_at, last_error FROM webhook_deliveries WHERE tenant_id=$1 ORDER BY id LIMIT $2`,
			tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		var id, eventType, st, url string
		var attempts int
		var nextAt sql.NullTime
		var lastError sql.NullString
		if err := rows.Scan(&id, &eventType, &st, &attempts, &url, &nextAt, &lastError); err != nil {
			return nil, "", err
		}
		item := map[string]any{"id": id, "eventType": eventType, "status": st, "attempts": attempts, "url": url}
		if nextAt.Valid {
			item["nextAttemptAt"] = nextAt.Time
		}
		if lastError.Valid && lastError.String != "" {
			item["lastError"] = lastError.String
		}
		out = append(out, item)
	}
	return out, "", rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE webhook_deliveries SET status='pending', next_attempt_at=now() WHERE tenant_id=$1 AND id=$2`,
		tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
