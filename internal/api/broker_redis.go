package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so progress streams
// survive running more than one API replica.
type RedisBroker struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs map[chan SSEEvent]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisBroker{rdb: redis.NewClient(opt), subs: map[chan SSEEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(solveID string) chan SSEEvent {
	ch := make(chan SSEEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(solveID))
	// initial receive confirms the subscription is live
	_, _ = ps.Receive(ctx)
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	// the forwarder is the only closer of ch; it exits when ps is closed
	go forwardPubSub(ps.Channel(), ch)
	return ch
}

// forwardPubSub copies decoded messages onto ch until msgs closes, then
// closes ch. Slow subscribers drop events, matching the in-memory broker.
func forwardPubSub(msgs <-chan *redis.Message, ch chan SSEEvent) {
	defer close(ch)
	for msg := range msgs {
		var evt SSEEvent
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
			select {
			case ch <- evt:
			default:
			}
		}
	}
}

// Unsubscribe closes the Redis subscription; the forwarder drains and then
// closes ch, so late publishes never hit a closed channel.
func (b *RedisBroker) Unsubscribe(solveID string, ch chan SSEEvent) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(solveID string, evt SSEEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, b.chanName(solveID), data).Err()
}

func (b *RedisBroker) chanName(solveID string) string { return "solve:" + solveID }
