/*
stats.go - Background refresh of mandate statistics

PURPOSE:
  Periodically recomputes the active mandate's aggregates (case count,
  settled count, total collected) so the dashboard endpoint answers from
  a warm cache instead of scanning on every request.

DESIGN:
  - robfig/cron drives the schedule ("@every 5m" by default)
  - The cache invalidates itself after 2x the refresh interval would
    normally have elapsed; a stale cache falls back to a live query
  - No active mandate simply clears the cache, never an error

USAGE:
  sched := NewStatsScheduler(registry, cronSpec)
  handler.Stats = sched.Cache
  sched.Start()
  // ... later
  sched.Stop()

SEE ALSO:
  - handlers.go: GetActiveStatistiques reads the cache
  - mandat/registry.go: Statistiques computation
*/
package api

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sodeca/contentieux-engine/mandat"
)

// statsTTL bounds how long a cached snapshot is served.
const statsTTL = 15 * time.Minute

// StatsCache holds the latest statistics snapshot for the active mandate.
type StatsCache struct {
	mu    sync.RWMutex
	stats mandat.Statistiques
	valid bool
}

// Current returns the cached snapshot if one is fresh.
func (c *StatsCache) Current() (mandat.Statistiques, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid || time.Since(c.stats.RefreshedAt) > statsTTL {
		return mandat.Statistiques{}, false
	}
	return c.stats, true
}

func (c *StatsCache) set(s mandat.Statistiques) {
	c.mu.Lock()
	c.stats = s
	c.valid = true
	c.mu.Unlock()
}

func (c *StatsCache) clear() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

// StatsScheduler refreshes the cache on a cron schedule.
type StatsScheduler struct {
	Registry *mandat.Registry
	Cache    *StatsCache

	spec string
	cron *cron.Cron
}

// NewStatsScheduler creates a scheduler. An empty spec disables it.
func NewStatsScheduler(registry *mandat.Registry, spec string) *StatsScheduler {
	return &StatsScheduler{
		Registry: registry,
		Cache:    &StatsCache{},
		spec:     spec,
	}
}

// Start registers the cron job and begins running it.
func (s *StatsScheduler) Start() error {
	if s.spec == "" {
		log.Println("[Stats] Scheduler disabled")
		return nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.spec, s.refresh); err != nil {
		return err
	}
	s.cron.Start()

	// Warm the cache immediately instead of waiting a full interval.
	go s.refresh()

	log.Printf("[Stats] Scheduler started with schedule: %s", s.spec)
	return nil
}

// Stop halts the scheduler and waits for a running refresh to finish.
func (s *StatsScheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	log.Println("[Stats] Scheduler stopped")
}

func (s *StatsScheduler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	active, err := s.Registry.ActiveMandat(ctx)
	if err != nil && !errors.Is(err, mandat.ErrAucunMandatActif) {
		log.Printf("[Stats] Failed to resolve active mandat: %v", err)
		return
	}
	if active == nil {
		s.Cache.clear()
		return
	}

	stats, err := s.Registry.Statistiques(ctx, active.Numero)
	if err != nil {
		log.Printf("[Stats] Failed to refresh statistics for %s: %v", active.Numero, err)
		return
	}
	s.Cache.set(stats)
}
