package tenantcache

import (
	"context"
	"errors"
	"sync"

	"github.com/coursekit/tenantcache/backend"
	"github.com/coursekit/tenantcache/backend/redisnative"
	"github.com/coursekit/tenantcache/backend/redisrest"
)

// NewClient constructs a backend client for cfg.Provider. Prefer this with
// explicit ownership (you close it) over the GetClient registry.
func NewClient(cfg backend.Config) (backend.Client, error) {
	switch coalesce[backend.Provider](cfg.Provider, backend.ProviderRedis) {
	case backend.ProviderRedis:
		return redisnative.New(cfg)
	case backend.ProviderREST:
		return redisrest.New(cfg)
	default:
		return nil, &backend.ConfigError{Provider: cfg.Provider, Missing: []string{"Provider (unknown)"}}
	}
}

var (
	clientMu sync.Mutex
	clients  = map[backend.Provider]backend.Client{}
)

// GetClient returns a lazily-constructed, process-lifetime client for
// cfg.Provider, building it on first use. Later calls with the same
// provider return the existing client and ignore cfg changes. Missing
// connection parameters surface here as a *backend.ConfigError, before
// any network traffic.
//
// The registry owns these clients; release them with CloseClients during
// shutdown (or use NewClient and manage lifetime yourself).
func GetClient(cfg backend.Config) (backend.Client, error) {
	p := coalesce[backend.Provider](cfg.Provider, backend.ProviderRedis)

	clientMu.Lock()
	defer clientMu.Unlock()
	if cl, ok := clients[p]; ok {
		return cl, nil
	}
	cl, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	clients[p] = cl
	return cl, nil
}

// CloseClients closes and forgets every registry-owned client.
func CloseClients(ctx context.Context) error {
	clientMu.Lock()
	defer clientMu.Unlock()
	var errs []error
	for p, cl := range clients {
		if err := cl.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		delete(clients, p)
	}
	return errors.Join(errs...)
}
