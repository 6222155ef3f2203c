package exchange

import (
	"fmt"
	"sync"
	"time"
)

// TenantCredentials is the per-tenant override named in spec §6
// ("credentials pulled from environment/secret store; per-tenant
// credentials override").
type TenantCredentials struct {
	TenantID   int64
	Venue      string // "binance" or "bybit"
	APIKey     string
	APISecret  string
	UseTestnet bool
}

// Registry lazily constructs and caches one Port per tenant, guarded by a
// one-shot initializer per key (spec §5: "singleton exchange client is
// initialized lazily and guarded by a one-shot initializer; once constructed
// it is immutable"). Switching venues for a tenant requires re-registering
// its credentials and a process restart in production, matching spec §5.
type Registry struct {
	timeout time.Duration

	mu    sync.Mutex
	once  map[int64]*sync.Once
	ports map[int64]Port
}

func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		timeout: timeout,
		once:    map[int64]*sync.Once{},
		ports:   map[int64]Port{},
	}
}

// Get returns the Port for a tenant, building it exactly once.
func (r *Registry) Get(creds TenantCredentials) (Port, error) {
	r.mu.Lock()
	once, ok := r.once[creds.TenantID]
	if !ok {
		once = &sync.Once{}
		r.once[creds.TenantID] = once
	}
	r.mu.Unlock()

	var buildErr error
	once.Do(func() {
		var p Port
		venue := creds.Venue
		switch creds.Venue {
		case "binance", "":
			venue = "binance"
			p = NewBinance(creds.APIKey, creds.APISecret, creds.UseTestnet, r.timeout)
		case "bybit":
			p = NewBybit(creds.APIKey, creds.APISecret, creds.UseTestnet, r.timeout)
		default:
			buildErr = fmt.Errorf("exchange: unknown venue %q", creds.Venue)
			return
		}
		r.mu.Lock()
		r.ports[creds.TenantID] = instrument(venue, p)
		r.mu.Unlock()
	})
	if buildErr != nil {
		return nil, buildErr
	}

	r.mu.Lock()
	p := r.ports[creds.TenantID]
	r.mu.Unlock()
	if p == nil {
		return nil, fmt.Errorf("exchange: port for tenant %d failed to initialize", creds.TenantID)
	}
	return p, nil
}
