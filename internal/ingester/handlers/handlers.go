// Package handlers contains the per-message-type handlers for the push feed. Each
// handler decodes the rows of one logical message and upserts them, so re-delivered
// messages and overlap with the polling tasks are harmless.
package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"

	"github.com/gridstats/gridstats/internal/ingester/gridb"
	"github.com/gridstats/gridstats/internal/ingester/router"
	"github.com/gridstats/gridstats/internal/ingester/settlement"
)

// Store is the subset of the grid database used by handlers.
type Store interface {
	UpsertMany(ctx context.Context, table gridb.Table, rows []goqu.Record) error
	FuelTypeID(ctx context.Context, ref string) (int64, error)
}

var (
	frequencyTable = gridb.Table{
		Name:   "frequency",
		Key:    []string{"time"},
		Values: []string{"frequency"},
	}
	generationInstTable = gridb.Table{
		Name:   "generation_by_fuel_type_inst",
		Key:    []string{"time", "fuel_type"},
		Values: []string{"generation"},
	}
	systemWarningTable = gridb.Table{
		Name:   "system_warning",
		Key:    []string{"time"},
		Values: []string{"warning"},
	}
	stableExportLimitTable = gridb.Table{
		Name:   "stable_export_limit",
		Key:    []string{"time", "unit"},
		Values: []string{"export_limit"},
	}
	maximumExportLimitTable = gridb.Table{
		Name:   "maximum_export_limit",
		Key:    []string{"time", "unit"},
		Values: []string{"export_limit"},
	}
	maximumImportLimitTable = gridb.Table{
		Name:   "maximum_import_limit",
		Key:    []string{"time", "unit"},
		Values: []string{"import_limit"},
	}
	physicalNotificationTable = gridb.Table{
		Name:   "physical_notification",
		Key:    []string{"time", "unit"},
		Values: []string{"level"},
	}
	lolpDMTable = gridb.Table{
		Name:   "lolp_dm",
		Key:    []string{"time"},
		Values: []string{"loss_of_load_probability", "derated_margin"},
	}
)

type Handlers struct {
	db Store
}

func New(db Store) *Handlers {
	return &Handlers{db: db}
}

// RegisterAll adds every handler to the router. MELS/MILS and FPN are aliases for
// the same payloads as MEL/MIL and PN and share their handlers.
func (h *Handlers) RegisterAll(r *router.Router) {
	r.Register("FREQ", h.HandleFrequency)
	r.Register("FUELINST", h.HandleFuelInst)
	r.Register("SYS_WARN", h.HandleSystemWarning)
	r.Register("SEL", h.HandleStableExportLimit)
	r.Register("MEL", h.HandleMaximumExportLimit)
	r.Register("MELS", h.HandleMaximumExportLimit)
	r.Register("MIL", h.HandleMaximumImportLimit)
	r.Register("MILS", h.HandleMaximumImportLimit)
	r.Register("PN", h.HandlePhysicalNotification)
	r.Register("FPN", h.HandlePhysicalNotification)
	r.Register("LOLPDM", h.HandleLOLPDM)
}

// HandleFrequency writes system frequency samples to frequency (time).
func (h *Handlers) HandleFrequency(ctx context.Context, msg *router.Message) error {
	rows := make([]goqu.Record, 0, len(msg.Rows))
	for _, row := range msg.Rows {
		ts, err := router.ParseTimestamp(row.TS)
		if err != nil {
			return errors.WithStack(err)
		}
		frequency, err := strconv.ParseFloat(row.SF, 64)
		if err != nil {
			return errors.WithStack(err)
		}
		rows = append(rows, goqu.Record{"time": ts, "frequency": frequency})
	}
	return h.db.UpsertMany(ctx, frequencyTable, rows)
}

// HandleFuelInst writes instantaneous generation to
// generation_by_fuel_type_inst (time, fuel_type), the same table the polling gap
// repair task writes. An unknown fuel type is a hard error and fails the envelope.
func (h *Handlers) HandleFuelInst(ctx context.Context, msg *router.Message) error {
	rows := make([]goqu.Record, 0, len(msg.Rows))
	for _, row := range msg.Rows {
		ts, err := router.ParseTimestamp(row.TS)
		if err != nil {
			return errors.WithStack(err)
		}
		fuelType, err := h.db.FuelTypeID(ctx, row.FT)
		if err != nil {
			return err
		}
		generation, err := strconv.Atoi(row.FG)
		if err != nil {
			return errors.WithStack(err)
		}
		rows = append(rows, goqu.Record{"time": ts, "fuel_type": fuelType, "generation": generation})
	}
	return h.db.UpsertMany(ctx, generationInstTable, rows)
}

// HandleSystemWarning writes operator warnings to system_warning (time), keyed on
// the publish time as warnings carry no spot time.
func (h *Handlers) HandleSystemWarning(ctx context.Context, msg *router.Message) error {
	rows := make([]goqu.Record, 0, len(msg.Rows))
	for _, row := range msg.Rows {
		ts, err := router.ParseTimestamp(row.TP)
		if err != nil {
			return errors.WithStack(err)
		}
		rows = append(rows, goqu.Record{"time": ts, "warning": row.SW})
	}
	return h.db.UpsertMany(ctx, systemWarningTable, rows)
}

// HandleStableExportLimit writes per-unit stable export limits to
// stable_export_limit (time, unit), keyed on the effective time.
func (h *Handlers) HandleStableExportLimit(ctx context.Context, msg *router.Message) error {
	return h.unitSeries(ctx, msg, stableExportLimitTable, "export_limit",
		func(row router.Row) (string, string) { return row.TE, row.SE })
}

// HandleMaximumExportLimit writes per-unit maximum export limits to
// maximum_export_limit (time, unit).
func (h *Handlers) HandleMaximumExportLimit(ctx context.Context, msg *router.Message) error {
	return h.unitSeries(ctx, msg, maximumExportLimitTable, "export_limit",
		func(row router.Row) (string, string) { return row.TS, row.VE })
}

// HandleMaximumImportLimit writes per-unit maximum import limits to
// maximum_import_limit (time, unit).
func (h *Handlers) HandleMaximumImportLimit(ctx context.Context, msg *router.Message) error {
	return h.unitSeries(ctx, msg, maximumImportLimitTable, "import_limit",
		func(row router.Row) (string, string) { return row.TS, row.VF })
}

// HandlePhysicalNotification writes per-unit physical notification levels to
// physical_notification (time, unit).
func (h *Handlers) HandlePhysicalNotification(ctx context.Context, msg *router.Message) error {
	return h.unitSeries(ctx, msg, physicalNotificationTable, "level",
		func(row router.Row) (string, string) { return row.TS, row.VP })
}

// HandleLOLPDM writes loss of load probability and de-rated margin to
// lolp_dm (time), with the time derived from the row's settlement date and period.
func (h *Handlers) HandleLOLPDM(ctx context.Context, msg *router.Message) error {
	rows := make([]goqu.Record, 0, len(msg.Rows))
	for _, row := range msg.Rows {
		date, err := time.Parse("2006-01-02", row.SD)
		if err != nil {
			return errors.WithStack(err)
		}
		period, err := strconv.Atoi(row.SP)
		if err != nil {
			return errors.WithStack(err)
		}
		ts, err := settlement.TimeOfDate(date, period)
		if err != nil {
			return err
		}
		lolp, err := strconv.ParseFloat(row.LP, 64)
		if err != nil {
			return errors.WithStack(err)
		}
		margin, err := strconv.ParseFloat(row.DR, 64)
		if err != nil {
			return errors.WithStack(err)
		}
		rows = append(rows, goqu.Record{
			"time":                     ts,
			"loss_of_load_probability": lolp,
			"derated_margin":           margin,
		})
	}
	return h.db.UpsertMany(ctx, lolpDMTable, rows)
}

// unitSeries writes a per-unit float series. The unit comes from the message
// subject; a subject without one fails the message.
func (h *Handlers) unitSeries(ctx context.Context, msg *router.Message, table gridb.Table,
	column string, pick func(row router.Row) (ts, value string)) error {
	unit, ok := router.UnitFromSubject(msg.Subject)
	if !ok {
		return errors.Errorf("no unit in subject %q", msg.Subject)
	}
	rows := make([]goqu.Record, 0, len(msg.Rows))
	for _, row := range msg.Rows {
		tsString, valueString := pick(row)
		ts, err := router.ParseTimestamp(tsString)
		if err != nil {
			return errors.WithStack(err)
		}
		value, err := strconv.ParseFloat(valueString, 64)
		if err != nil {
			return errors.WithStack(err)
		}
		rows = append(rows, goqu.Record{"time": ts, "unit": unit, column: value})
	}
	return h.db.UpsertMany(ctx, table, rows)
}
