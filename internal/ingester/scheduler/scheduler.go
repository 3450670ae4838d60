// Package scheduler runs the registry of periodic fetch tasks. Tasks run
// sequentially within a tick, in registration order, each inside its own database
// transaction. A failing task never stops the loop or its neighbours; it is retried
// no sooner than its own interval.
package scheduler

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/gridstats/gridstats/internal/ingester/gridb"
	"github.com/gridstats/gridstats/internal/ingester/metrics"
)

// Action is one unit of polling work. It receives a transaction-scoped store: its
// writes commit as a unit when it returns nil and roll back when it returns an error.
type Action func(ctx context.Context, tx *gridb.Store) error

type task struct {
	name     string
	interval time.Duration
	action   Action
	lastRun  time.Time
}

func (t *task) due(now time.Time) bool {
	return t.lastRun.IsZero() || now.Sub(t.lastRun) > t.interval
}

type Scheduler struct {
	db           *gridb.Store
	metrics      *metrics.Metrics
	tickInterval time.Duration
	tasks        []*task
	// Used for all timing decisions so tests can substitute a fake
	clock clock.Clock
	// Test hook: replaces the transaction scope around each action
	wrapTx func(ctx context.Context, action Action) error
}

func New(db *gridb.Store, m *metrics.Metrics, tickInterval time.Duration) *Scheduler {
	s := &Scheduler{
		db:           db,
		metrics:      m,
		tickInterval: tickInterval,
		clock:        clock.RealClock{},
	}
	s.wrapTx = func(ctx context.Context, action Action) error {
		return db.WithTx(ctx, func(tx *gridb.Store) error {
			return action(ctx, tx)
		})
	}
	return s
}

// Register adds a task. Name is for logging only; duplicate names are allowed.
// Registration order is execution order within a tick, so a task that populates a
// reference table must be registered before tasks that depend on it.
func (s *Scheduler) Register(name string, interval time.Duration, action Action) {
	s.tasks = append(s.tasks, &task{name: name, interval: interval, action: action})
}

// Run evaluates due tasks every tick until ctx is cancelled. An in-flight task
// completes (and its transaction commits or rolls back) before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Infof("Poll scheduler starting with %d tasks", len(s.tasks))
	ticker := s.clock.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			log.Info("Poll scheduler stopping")
			return nil
		case <-ticker.C():
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	for _, t := range s.tasks {
		if ctx.Err() != nil {
			return
		}
		now := s.clock.Now()
		if !t.due(now) {
			continue
		}
		s.runTask(ctx, t)
		// Advances even on failure: a broken task retries at its own interval,
		// not every tick.
		t.lastRun = now
	}
}

func (s *Scheduler) runTask(ctx context.Context, t *task) {
	start := s.clock.Now()
	err := s.wrapTx(ctx, t.action)
	duration := s.clock.Since(start)
	s.metrics.RecordTaskRun(t.name, duration, err)
	if err != nil {
		log.WithError(err).Errorf("Task %s failed after %.2fs", t.name, duration.Seconds())
		return
	}
	log.Infof("Task %s took %.2fs", t.name, duration.Seconds())
}
