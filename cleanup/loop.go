// Package cleanup implements the per-database cleanup/compactor
// background loop: a single periodic worker that progresses each
// collection's barrier list, runs index cleanup hooks on a slower
// cadence, and sweeps expired cursors and compactor locks.
package cleanup

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vocbase/voccore/barrier"
)

// CleanableIndex is the subset of index.Index the cleanup loop needs:
// just the periodic maintenance hook. Kept narrow so this package does
// not need to import the index package's concrete variants.
type CleanableIndex interface {
	Cleanup() (warning int, err error)
}

// Collection is the subset of collection state the cleanup loop touches.
type Collection struct {
	Name    string
	Barrier *barrier.List
	Indexes []CleanableIndex
}

// CursorRegistry matches the "cursor registry" collaborator from §6:
// cleanup(force) either reaps everything (force) or only expired cursors.
type CursorRegistry interface {
	Cleanup(force bool)
}

// Compactor matches the compactor collaborator: a non-blocking try-lock
// plus an expired-lock sweep.
type Compactor interface {
	TryLock() bool
	Unlock()
	CleanupExpired()
}

// CollectionSource snapshots the current collection list under a read
// lock, matching "snapshots the collection list under a read lock" in
// §4.5 step 2.
type CollectionSource interface {
	Snapshot() []*Collection
}

// Options configures the loop's tick cadence, in the original's own
// vocabulary (CLEANUP_INTERVAL etc.) so the mapping back to spec.md stays
// obvious to a reader.
type Options struct {
	Interval         time.Duration
	IndexIterations  int
	ShadowIterations int
}

// DefaultOptions returns the cadence used by the original implementation
// this was distilled from, translated from microseconds to a
// time.Duration.
func DefaultOptions() Options {
	return Options{
		Interval:         1 * time.Second,
		IndexIterations:  10,
		ShadowIterations: 20,
	}
}

// Loop is the single per-database background cleanup worker.
type Loop struct {
	opts       Options
	source     CollectionSource
	cursors    CursorRegistry
	compactor  Compactor
	log        zerolog.Logger
	shutdownCh chan struct{}
	forceCh    chan struct{}
	wg         sync.WaitGroup

	ticks int64

	indexCleanups   prometheus.Counter
	barrierProgress prometheus.Counter
	tickGauge       prometheus.Gauge
}

// New builds a cleanup loop. reg may be nil, in which case the loop's
// collectors are created but not registered anywhere (useful in tests — no
// global registration side effects).
func New(opts Options, source CollectionSource, cursors CursorRegistry, compactor Compactor, log zerolog.Logger, reg prometheus.Registerer) *Loop {
	l := &Loop{
		opts:       opts,
		source:     source,
		cursors:    cursors,
		compactor:  compactor,
		log:        log.With().Str("component", "cleanup").Logger(),
		shutdownCh: make(chan struct{}),
		forceCh:    make(chan struct{}, 1),

		indexCleanups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voccore_cleanup_index_cleanups_total",
			Help: "Number of index cleanup hook invocations.",
		}),
		barrierProgress: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voccore_cleanup_barrier_callbacks_total",
			Help: "Number of barrier-list callbacks executed.",
		}),
		tickGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voccore_cleanup_ticks_total",
			Help: "Number of cleanup loop ticks performed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(l.indexCleanups, l.barrierProgress, l.tickGauge)
	}
	return l
}

// Start launches the loop's goroutine. Cancel ctx or call Stop to shut it
// down; both are honored cooperatively (§9's "shutdown flag plus a
// bounded sleep that can be interrupted" pattern).
func (l *Loop) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.run(ctx)
}

// ForceCursorCleanup requests the next tick treat cursor cleanup as
// forced, matching "shutdown-phase 2" in §4.5 step 1.
func (l *Loop) ForceCursorCleanup() {
	select {
	case l.forceCh <- struct{}{}:
	default:
	}
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.log.Debug().Msg("cleanup loop stopping: context cancelled")
			return
		case <-l.shutdownCh:
			l.log.Debug().Msg("cleanup loop stopping: shutdown requested")
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *Loop) tick() {
	n := atomic.AddInt64(&l.ticks, 1)
	l.tickGauge.Set(float64(n))

	force := false
	select {
	case <-l.forceCh:
		force = true
	default:
	}
	if force {
		l.cursors.Cleanup(true)
	}

	if l.compactor.TryLock() {
		defer l.compactor.Unlock()

		collections := l.source.Snapshot()
		for _, c := range collections {
			if n%int64(l.opts.IndexIterations) == 0 {
				for _, idx := range c.Indexes {
					if _, err := idx.Cleanup(); err != nil {
						l.log.Warn().Err(err).Str("collection", c.Name).Msg("index cleanup failed")
					}
					l.indexCleanups.Inc()
				}
			}

			executed, completed := c.Barrier.Progress()
			l.barrierProgress.Add(float64(executed))
			if completed {
				l.log.Info().Str("collection", c.Name).Msg("collection lifecycle callback completed; stopping iteration")
				continue
			}
		}
	}

	if !force && n%int64(l.opts.ShadowIterations) == 0 {
		l.cursors.Cleanup(false)
	}

	l.compactor.CleanupExpired()
}

// Stop signals the loop to exit and waits for it to do so.
func (l *Loop) Stop() {
	close(l.shutdownCh)
	l.wg.Wait()
}
