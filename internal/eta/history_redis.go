package eta

import (
	"context"
	"strconv"

	redis "github.com/redis/go-redis/v9"
)

// RedisHistory keeps route sample rings in Redis lists so estimates survive
// restarts and are shared across instances. Semantics match MemoryHistory:
// last MaxSamples entries per key, last-write-wins.
type RedisHistory struct {
	rdb *redis.Client
}

func NewRedisHistory(url string) (*RedisHistory, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisHistory{rdb: redis.NewClient(opt)}, nil
}

func (h *RedisHistory) Append(ctx context.Context, key string, minutes float64) error {
	k := h.key(key)
	pipe := h.rdb.TxPipeline()
	pipe.RPush(ctx, k, minutes)
	pipe.LTrim(ctx, k, -MaxSamples, -1)
	_, err := pipe.Exec(ctx)
	return err
}

func (h *RedisHistory) Samples(ctx context.Context, key string) ([]float64, error) {
	vals, err := h.rdb.LRange(ctx, h.key(key), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (h *RedisHistory) key(routeKey string) string { return "eta:hist:" + routeKey }
