// Package ingester composes the two ingestion loops: the poll scheduler fetching
// REST and file sources on intervals, and the stream router consuming the push
// feed. Both write through the same idempotent upsert store, so the loops can
// safely overlap on the same rows.
package ingester

import (
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/jackc/pgx/v4/pgxpool"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gridstats/gridstats/internal/common/app"
	"github.com/gridstats/gridstats/internal/common/database"
	"github.com/gridstats/gridstats/internal/common/serve"
	"github.com/gridstats/gridstats/internal/ingester/configuration"
	"github.com/gridstats/gridstats/internal/ingester/feed"
	"github.com/gridstats/gridstats/internal/ingester/gridb"
	"github.com/gridstats/gridstats/internal/ingester/handlers"
	"github.com/gridstats/gridstats/internal/ingester/metrics"
	"github.com/gridstats/gridstats/internal/ingester/router"
	"github.com/gridstats/gridstats/internal/ingester/scheduler"
	"github.com/gridstats/gridstats/internal/ingester/tasks"
)

// Run starts the ingester and blocks until shutdown. Startup failures are fatal;
// once running, per-task and per-envelope failures are contained by their loops.
func Run(config *configuration.IngesterConfiguration) error {
	log.Info("Grid ingester starting")
	m := metrics.Get()

	shutdownMetrics := serve.ServeMetrics(config.MetricsPort)
	defer shutdownMetrics()

	ctx := app.CreateContextWithShutdown()

	var pool *pgxpool.Pool
	err := retry.Do(func() error {
		var err error
		pool, err = database.OpenPgxPool(ctx, config.Postgres.Connection)
		return err
	}, retry.Attempts(5), retry.Context(ctx))
	if err != nil {
		return err
	}
	defer pool.Close()

	var conn *feed.Conn
	err = retry.Do(func() error {
		var err error
		conn, err = feed.Connect(config.Feed, config.Elexon.ApiKey, m)
		return err
	}, retry.Attempts(5), retry.Context(ctx))
	if err != nil {
		return err
	}
	defer conn.Close()

	db := gridb.NewStore(pool)
	client := &http.Client{Timeout: 2 * time.Minute}

	s := scheduler.New(db, m, config.TickInterval)
	tasks.New(config, client).RegisterAll(s)

	r := router.New(conn, config.Feed.Topic, m)
	handlers.New(db).RegisterAll(r)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(ctx) })
	g.Go(func() error { return r.Run(ctx) })
	err = g.Wait()
	log.Info("Grid ingester stopped")
	return err
}
