// Package tasks contains the periodic polling tasks. Each task documents the
// table(s) it writes and their natural keys; everything is persisted through the
// idempotent upsert contract, so overlapping fetch windows are harmless.
package tasks

import (
	"context"
	"net/http"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/gridstats/gridstats/internal/ingester/configuration"
	"github.com/gridstats/gridstats/internal/ingester/gridb"
	"github.com/gridstats/gridstats/internal/ingester/scheduler"
	"github.com/gridstats/gridstats/internal/ingester/sources"
)

// Store is the subset of the grid database used by tasks.
type Store interface {
	UpsertMany(ctx context.Context, table gridb.Table, rows []goqu.Record) error
	Exec(ctx context.Context, sql string, args ...interface{}) error
	FuelTypeID(ctx context.Context, ref string) (int64, error)
	FuelTypeRefs(ctx context.Context) (map[string]int64, error)
	GSPGroupRegions(ctx context.Context) (map[string]int64, error)
	UnitIDByNGRef(ctx context.Context, ref string) (int64, error)
}

type Tasks struct {
	elexon    *sources.ElexonClient
	portal    *sources.PortalClient
	ngeso     *sources.NGESOClient
	intensity *sources.CarbonIntensityClient
	pvlive    *sources.PVLiveClient
	wikidata  *sources.WikidataClient
}

const wikidataUserAgent = "gridstats fetcher (https://github.com/gridstats/gridstats)"

func New(config *configuration.IngesterConfiguration, client *http.Client) *Tasks {
	return &Tasks{
		elexon:    sources.NewElexonClient(config.Elexon.ApiUrl, client),
		portal:    sources.NewPortalClient(config.Elexon.PortalUrl, config.Elexon.ApiKey, client),
		ngeso:     sources.NewNGESOClient(config.NgesoUrl, client),
		intensity: sources.NewCarbonIntensityClient(config.CarbonIntensityUrl, client),
		pvlive:    sources.NewPVLiveClient(config.PvLiveUrl, client),
		wikidata:  sources.NewWikidataClient(config.WikidataUrl, wikidataUserAgent, client),
	}
}

// RegisterAll adds every task to the scheduler. Registration order is execution
// order within a tick: the reference tasks (fuel types, BM units) come before the
// time-series tasks that look those references up.
func (t *Tasks) RegisterAll(s *scheduler.Scheduler) {
	register := func(name string, interval time.Duration, task func(ctx context.Context, db Store) error) {
		s.Register(name, interval, func(ctx context.Context, tx *gridb.Store) error {
			return task(ctx, tx)
		})
	}

	register("fetch_parties", 12*time.Hour, t.FetchParties)
	register("fetch_units", time.Hour, t.FetchUnits)
	register("fetch_units_detail", 12*time.Hour, t.FetchUnitsDetail)
	register("fetch_fuel_types", time.Hour, t.FetchFuelTypes)
	register("fetch_wikidata_plants", 15*time.Minute, t.FetchWikidataPlants)

	register("fetch_rolling_system_demand", 30*time.Second, t.FetchRollingSystemDemand)

	register("fetch_carbon_intensity", 2*time.Minute, t.FetchCarbonIntensity)
	register("fetch_demand_outturn", 2*time.Minute, t.FetchDemandOutturn)
	register("fetch_generation_hh", 2*time.Minute, t.FetchGenerationHH)
	register("fetch_generation_inst", 5*time.Minute, t.FetchGenerationInst)
	register("fetch_demand_data_update", 2*time.Minute, t.FetchDemandDataUpdate)
	register("fetch_demand_forecast", 2*time.Minute, t.FetchDemandForecast)
	register("fetch_pv_live", 2*time.Minute, t.FetchPVLive)
}
