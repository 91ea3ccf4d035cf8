// Package lookup serves slow-changing reference data (session config,
// role and category tables) through the request gateway, with a
// TTL-cached read path so repeated reads cost no network calls.
package lookup

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/cache"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/gateway"
)

// DefaultTTL bounds how stale a served lookup table may be.
const DefaultTTL = 5 * time.Minute

const endpointLookups = "/lookups/"

type Service struct {
	gw  *gateway.Client
	reg *cache.Registry
	ttl time.Duration
}

func New(gw *gateway.Client, reg *cache.Registry, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{gw: gw, reg: reg, ttl: ttl}
}

// Get returns the named lookup table, served from the cache registry
// while fresh and fetched through the gateway on a miss.
func (s *Service) Get(ctx context.Context, name string) (any, error) {
	if v, ok := s.reg.Get(ctx, cacheKey(name)); ok {
		return v, nil
	}
	var out any
	if err := s.gw.CallJSON(ctx, endpointLookups+name, gateway.CallOptions{RequiresAuth: true}, &out); err != nil {
		return nil, err
	}
	if err := s.reg.Set(ctx, cacheKey(name), out, s.ttl); err != nil {
		// Served value is still good; only the cache write failed.
		log.WithError(err).Warnf("failed to cache lookup %q", name)
	}
	return out, nil
}

// SessionConfig returns the per-session configuration blob the server
// exposes as a lookup.
func (s *Service) SessionConfig(ctx context.Context) (any, error) {
	return s.Get(ctx, "session-config")
}

// Invalidate drops every cached lookup so the next Get refetches.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.reg.Invalidate(ctx, "lookups:*")
}

func cacheKey(name string) string {
	return "lookups:" + name
}
