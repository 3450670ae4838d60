package tasks

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/gridstats/gridstats/internal/ingester/gridb"
	"github.com/gridstats/gridstats/internal/ingester/sources"
)

var (
	systemDemandTable = gridb.Table{
		Name:   "system_demand",
		Key:    []string{"time"},
		Values: []string{"demand"},
	}
	carbonIntensityTable = gridb.Table{
		Name:   "carbon_intensity_national",
		Key:    []string{"time"},
		Values: []string{"intensity"},
	}
	carbonIntensityForecastTable = gridb.Table{
		Name:   "carbon_intensity_national_forecast",
		Key:    []string{"time"},
		Values: []string{"intensity"},
	}
	demandOutturnTable = gridb.Table{
		Name:   "initial_demand_outturn",
		Key:    []string{"time"},
		Values: []string{"demand_outturn", "transmission_demand_outturn"},
	}
	generationHHTable = gridb.Table{
		Name:   "generation_by_fuel_type_hh",
		Key:    []string{"time", "fuel_type"},
		Values: []string{"settlement_period", "generation"},
	}
	generationInstTable = gridb.Table{
		Name:   "generation_by_fuel_type_inst",
		Key:    []string{"time", "fuel_type"},
		Values: []string{"generation"},
	}
	embeddedGenerationTable = gridb.Table{
		Name:   "embedded_generation",
		Key:    []string{"time"},
		Values: []string{"solar_generation", "solar_capacity", "wind_generation", "wind_capacity"},
	}
	embeddedGenerationForecastTable = gridb.Table{
		Name:   "embedded_generation_forecast",
		Key:    []string{"time"},
		Values: []string{"solar_generation", "solar_capacity", "wind_generation", "wind_capacity"},
	}
	demandForecastTable = gridb.Table{
		Name:   "demand_forecast",
		Key:    []string{"time"},
		Values: []string{"transmission_demand", "national_demand"},
	}
	pvLiveTable = gridb.Table{
		Name:   "pv_live",
		Key:    []string{"time"},
		Values: []string{"pv_generation"},
	}
)

// FetchRollingSystemDemand ingests the rolling system demand series into
// system_demand (time).
func (t *Tasks) FetchRollingSystemDemand(ctx context.Context, db Store) error {
	data, err := t.elexon.RollingSystemDemand(ctx)
	if err != nil {
		return err
	}
	rows := make([]goqu.Record, 0, len(data))
	for _, row := range data {
		rows = append(rows, goqu.Record{"time": row.StartTime, "demand": row.Demand})
	}
	return db.UpsertMany(ctx, systemDemandTable, rows)
}

// FetchCarbonIntensity ingests actual and forecast national carbon intensity into
// carbon_intensity_national (time) and carbon_intensity_national_forecast (time).
// The source publishes a ±14 day window, so re-polling repairs revisions.
func (t *Tasks) FetchCarbonIntensity(ctx context.Context, db Store) error {
	now := time.Now()
	data, err := t.intensity.Intensity(ctx, now.Add(-14*24*time.Hour), now.Add(14*24*time.Hour))
	if err != nil {
		return err
	}

	var actuals, forecasts []goqu.Record
	for _, row := range data {
		if row.Actual != nil {
			actuals = append(actuals, goqu.Record{"time": row.From, "intensity": *row.Actual})
		}
		if row.Forecast != nil {
			forecasts = append(forecasts, goqu.Record{"time": row.From, "intensity": *row.Forecast})
		}
	}
	if err := db.UpsertMany(ctx, carbonIntensityTable, actuals); err != nil {
		return err
	}
	return db.UpsertMany(ctx, carbonIntensityForecastTable, forecasts)
}

// FetchDemandOutturn ingests the initial demand outturn into
// initial_demand_outturn (time).
func (t *Tasks) FetchDemandOutturn(ctx context.Context, db Store) error {
	data, err := t.elexon.DemandOutturn(ctx)
	if err != nil {
		return err
	}
	rows := make([]goqu.Record, 0, len(data))
	for _, row := range data {
		date, err := time.Parse("2006-01-02", row.SettlementDate)
		if err != nil {
			return err
		}
		rows = append(rows, goqu.Record{
			"time":                        row.StartTime,
			"settlement_date":             date,
			"settlement_period":           row.SettlementPeriod,
			"demand_outturn":              row.InitialDemandOutturn,
			"transmission_demand_outturn": row.InitialTransmissionSystemDemandOutturn,
		})
	}
	return db.UpsertMany(ctx, demandOutturnTable, rows)
}

// FetchGenerationHH ingests half-hourly generation into
// generation_by_fuel_type_hh (time, fuel_type).
func (t *Tasks) FetchGenerationHH(ctx context.Context, db Store) error {
	data, err := t.elexon.FuelHH(ctx)
	if err != nil {
		return err
	}
	rows := make([]goqu.Record, 0, len(data))
	for _, row := range data {
		fuelType, err := db.FuelTypeID(ctx, row.FuelType)
		if err != nil {
			return err
		}
		rows = append(rows, goqu.Record{
			"time":              row.StartTime,
			"fuel_type":         fuelType,
			"settlement_period": row.SettlementPeriod,
			"generation":        row.Generation,
		})
	}
	return db.UpsertMany(ctx, generationHHTable, rows)
}

// FetchGenerationInst ingests instantaneous generation into
// generation_by_fuel_type_inst (time, fuel_type). The FUELINST push handler writes
// the same table; this task repairs any gaps in the feed.
func (t *Tasks) FetchGenerationInst(ctx context.Context, db Store) error {
	now := time.Now()
	data, err := t.elexon.FuelInst(ctx, now.Add(-30*time.Minute), now)
	if err != nil {
		return err
	}
	rows := make([]goqu.Record, 0, len(data))
	for _, row := range data {
		fuelType, err := db.FuelTypeID(ctx, row.FuelType)
		if err != nil {
			return err
		}
		rows = append(rows, goqu.Record{
			"time":       row.StartTime,
			"fuel_type":  fuelType,
			"generation": row.Generation,
		})
	}
	return db.UpsertMany(ctx, generationInstTable, rows)
}

// FetchDemandDataUpdate ingests embedded solar/wind actuals and forecasts into
// embedded_generation (time) and embedded_generation_forecast (time).
func (t *Tasks) FetchDemandDataUpdate(ctx context.Context, db Store) error {
	actuals, err := t.ngeso.DemandDataUpdate(ctx, false)
	if err != nil {
		return err
	}
	if err := db.UpsertMany(ctx, embeddedGenerationTable, embeddedGenerationRecords(actuals)); err != nil {
		return err
	}

	forecasts, err := t.ngeso.DemandDataUpdate(ctx, true)
	if err != nil {
		return err
	}
	return db.UpsertMany(ctx, embeddedGenerationForecastTable, embeddedGenerationRecords(forecasts))
}

// FetchDemandForecast ingests the day-ahead demand forecast into
// demand_forecast (time).
func (t *Tasks) FetchDemandForecast(ctx context.Context, db Store) error {
	data, err := t.elexon.DemandForecast(ctx)
	if err != nil {
		return err
	}
	rows := make([]goqu.Record, 0, len(data))
	for _, row := range data {
		rows = append(rows, goqu.Record{
			"time":                row.StartTime,
			"settlement_period":   row.SettlementPeriod,
			"transmission_demand": row.TransmissionSystemDemand,
			"national_demand":     row.NationalDemand,
		})
	}
	return db.UpsertMany(ctx, demandForecastTable, rows)
}

// FetchPVLive ingests the PV Live national solar estimate into pv_live (time),
// looking back 24 hours to pick up revisions.
func (t *Tasks) FetchPVLive(ctx context.Context, db Store) error {
	data, err := t.pvlive.Generation(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return err
	}
	rows := make([]goqu.Record, 0, len(data))
	for _, row := range data {
		rows = append(rows, goqu.Record{"time": row.Time, "pv_generation": row.Generation})
	}
	return db.UpsertMany(ctx, pvLiveTable, rows)
}

func embeddedGenerationRecords(data []sources.EmbeddedGenerationRow) []goqu.Record {
	rows := make([]goqu.Record, 0, len(data))
	for _, row := range data {
		rows = append(rows, goqu.Record{
			"time":             row.Time,
			"solar_generation": row.SolarGeneration,
			"solar_capacity":   row.SolarCapacity,
			"wind_generation":  row.WindGeneration,
			"wind_capacity":    row.WindCapacity,
		})
	}
	return rows
}
