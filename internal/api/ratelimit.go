package api

import (
	"sync"

	"golang.org/x/time/rate"

	"fleetopt/internal/config"
)

// tenantLimiters rate-limits solve requests per tenant. A solve can burn a
// lot of CPU, so the limit is deliberately coarse.
type tenantLimiters struct {
	mu    sync.Mutex
	per   map[string]*rate.Limiter
	limit rate.Limit
	burst int
}

func newTenantLimiters(cfg config.LimitsConfig) *tenantLimiters {
	perMinute := cfg.SolvePerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	burst := cfg.SolveBurst
	if burst <= 0 {
		burst = 10
	}
	return &tenantLimiters{
		per:   map[string]*rate.Limiter{},
		limit: rate.Limit(float64(perMinute) / 60.0),
		burst: burst,
	}
}

func (t *tenantLimiters) allow(tenant string) bool {
	t.mu.Lock()
	l := t.per[tenant]
	if l == nil {
		l = rate.NewLimiter(t.limit, t.burst)
		t.per[tenant] = l
	}
	t.mu.Unlock()
	return l.Allow()
}
