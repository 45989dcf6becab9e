// Package health tracks the availability of the service's dependencies
// and aggregates them into a single service health flag.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Pinger is implemented by components that expose a liveness probe.
// HealthPing must return nil when the component is healthy.
type Pinger interface {
	HealthPing(ctx context.Context) error
}

const probeTimeout = 3 * time.Second

// Check wraps a single dependency probe with a cached result.
type Check struct {
	name    string
	pinger  Pinger
	healthy atomic.Bool
}

func NewCheck(name string, p Pinger) *Check {
	c := &Check{name: name, pinger: p}
	c.healthy.Store(false)
	return c
}

func (c *Check) Name() string  { return c.name }
func (c *Check) Healthy() bool { return c.healthy.Load() }

func (c *Check) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	c.healthy.Store(c.pinger.HealthPing(pctx) == nil)
}

// Monitor periodically probes all registered checks and caches an
// aggregate service health flag.
type Monitor struct {
	checks  []*Check
	healthy atomic.Bool
	log     zerolog.Logger
}

func NewMonitor(log zerolog.Logger, checks ...*Check) *Monitor {
	m := &Monitor{checks: checks, log: log.With().Str("component", "health").Logger()}
	m.healthy.Store(false)
	return m
}

// Healthy returns the cached aggregate health.
func (m *Monitor) Healthy() bool { return m.healthy.Load() }

// Status reports per-dependency health by check name.
func (m *Monitor) Status() map[string]bool {
	out := make(map[string]bool, len(m.checks))
	for _, c := range m.checks {
		out[c.Name()] = c.Healthy()
	}
	return out
}

// Run probes every interval until ctx is cancelled, logging transitions.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := false
	eval := func() {
		all := true
		for _, c := range m.checks {
			c.probe(ctx)
			if !c.Healthy() {
				all = false
			}
		}
		m.healthy.Store(all)
		if all != prev {
			if all {
				m.log.Info().Msg("service health: UP")
			} else {
				m.log.Error().Interface("checks", m.Status()).Msg("service health: DOWN")
			}
			prev = all
		}
	}

	eval()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			eval()
		}
	}
}
