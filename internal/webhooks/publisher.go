// Package webhooks fans solver events out to tenant-registered endpoints.
// Emit enqueues one delivery per matching subscription; a background worker
// drains the queue with exponential backoff and HMAC-signed requests.
package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"fleetopt/internal/store"
)

// Event types published by the API server.
const (
	EventSolveCompleted = "solve.completed"
	EventETARecorded    = "eta.recorded"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit enqueues the event for every subscription of the tenant that listens
// on eventType. Delivery is asynchronous; Emit never blocks on the network.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":       "evt_" + uuid.New().String(),
		"type":     eventType,
		"tenantId": tenantID,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"data":     data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body)
	}
}
