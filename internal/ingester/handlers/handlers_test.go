package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridstats/gridstats/internal/ingester/gridb"
	"github.com/gridstats/gridstats/internal/ingester/griderrors"
	"github.com/gridstats/gridstats/internal/ingester/metrics"
	"github.com/gridstats/gridstats/internal/ingester/router"
)

type upsert struct {
	table gridb.Table
	rows  []goqu.Record
}

type fakeStore struct {
	upserts   []upsert
	fuelTypes map[string]int64
}

func (f *fakeStore) UpsertMany(ctx context.Context, table gridb.Table, rows []goqu.Record) error {
	f.upserts = append(f.upserts, upsert{table: table, rows: rows})
	return nil
}

func (f *fakeStore) FuelTypeID(ctx context.Context, ref string) (int64, error) {
	if id, ok := f.fuelTypes[ref]; ok {
		return id, nil
	}
	return 0, &griderrors.ErrMissingReference{Type: "fuel_type", Value: ref}
}

func message(t *testing.T, subject string, rows ...router.Row) *router.Message {
	t.Helper()
	return &router.Message{Subject: subject, Rows: rows}
}

func TestHandleFrequency(t *testing.T) {
	db := &fakeStore{}
	h := New(db)

	msg := message(t, "BMRA.SYSTEM.FREQ",
		router.Row{TS: "2022-12-01 12:00:00:GMT", SF: "49.95"},
		router.Row{TS: "2022-12-01 12:00:15:GMT", SF: "50.021"})
	require.NoError(t, h.HandleFrequency(context.Background(), msg))

	require.Len(t, db.upserts, 1)
	u := db.upserts[0]
	assert.Equal(t, "frequency", u.table.Name)
	require.Len(t, u.rows, 2)
	assert.Equal(t, time.Date(2022, 12, 1, 12, 0, 0, 0, time.UTC), u.rows[0]["time"].(time.Time).UTC())
	assert.Equal(t, 49.95, u.rows[0]["frequency"])
	assert.Equal(t, 50.021, u.rows[1]["frequency"])
}

func TestHandleFuelInst(t *testing.T) {
	db := &fakeStore{fuelTypes: map[string]int64{"CCGT": 3}}
	h := New(db)

	msg := message(t, "BMRA.SYSTEM.FUELINST",
		router.Row{TS: "2022-12-01 12:00:00:GMT", FT: "CCGT", FG: "14321"})
	require.NoError(t, h.HandleFuelInst(context.Background(), msg))

	require.Len(t, db.upserts, 1)
	u := db.upserts[0]
	assert.Equal(t, "generation_by_fuel_type_inst", u.table.Name)
	assert.Equal(t, []string{"time", "fuel_type"}, u.table.Key)
	require.Len(t, u.rows, 1)
	assert.Equal(t, int64(3), u.rows[0]["fuel_type"])
	assert.Equal(t, 14321, u.rows[0]["generation"])
}

func TestHandleFuelInstUnknownFuelType(t *testing.T) {
	db := &fakeStore{fuelTypes: map[string]int64{}}
	h := New(db)

	msg := message(t, "BMRA.SYSTEM.FUELINST",
		router.Row{TS: "2022-12-01 12:00:00:GMT", FT: "NEWFUEL", FG: "1"})
	err := h.HandleFuelInst(context.Background(), msg)

	var missing *griderrors.ErrMissingReference
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "NEWFUEL", missing.Value)
	assert.Empty(t, db.upserts)
}

func TestHandleSystemWarning(t *testing.T) {
	db := &fakeStore{}
	h := New(db)

	msg := message(t, "BMRA.SYSTEM.SYS_WARN",
		router.Row{TP: "2022-12-01 17:05:00:GMT", SW: "NATIONAL GRID NOTIFICATION of Demand Flexibility Service"})
	require.NoError(t, h.HandleSystemWarning(context.Background(), msg))

	require.Len(t, db.upserts, 1)
	u := db.upserts[0]
	assert.Equal(t, "system_warning", u.table.Name)
	require.Len(t, u.rows, 1)
	assert.Equal(t, time.Date(2022, 12, 1, 17, 5, 0, 0, time.UTC), u.rows[0]["time"].(time.Time).UTC())
	assert.Contains(t, u.rows[0]["warning"], "Demand Flexibility")
}

func TestUnitScopedHandlers(t *testing.T) {
	tests := map[string]struct {
		handle func(h *Handlers) router.Handler
		row    router.Row
		table  string
		column string
		value  float64
	}{
		"SEL": {
			handle: func(h *Handlers) router.Handler { return h.HandleStableExportLimit },
			row:    router.Row{TE: "2022-12-01 12:00:00:GMT", SE: "520.5"},
			table:  "stable_export_limit",
			column: "export_limit",
			value:  520.5,
		},
		"MEL": {
			handle: func(h *Handlers) router.Handler { return h.HandleMaximumExportLimit },
			row:    router.Row{TS: "2022-12-01 12:00:00:GMT", VE: "600"},
			table:  "maximum_export_limit",
			column: "export_limit",
			value:  600,
		},
		"MIL": {
			handle: func(h *Handlers) router.Handler { return h.HandleMaximumImportLimit },
			row:    router.Row{TS: "2022-12-01 12:00:00:GMT", VF: "-45"},
			table:  "maximum_import_limit",
			column: "import_limit",
			value:  -45,
		},
		"PN": {
			handle: func(h *Handlers) router.Handler { return h.HandlePhysicalNotification },
			row:    router.Row{TS: "2022-12-01 12:00:00:GMT", VP: "480"},
			table:  "physical_notification",
			column: "level",
			value:  480,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			db := &fakeStore{}
			h := New(db)

			msg := message(t, "BMRA.DYNAMIC.T_MEDP-1."+name, tc.row)
			require.NoError(t, tc.handle(h)(context.Background(), msg))

			require.Len(t, db.upserts, 1)
			u := db.upserts[0]
			assert.Equal(t, tc.table, u.table.Name)
			assert.Equal(t, []string{"time", "unit"}, u.table.Key)
			require.Len(t, u.rows, 1)
			assert.Equal(t, "T_MEDP-1", u.rows[0]["unit"])
			assert.Equal(t, tc.value, u.rows[0][tc.column])
		})
	}
}

func TestUnitScopedHandlerRejectsSubjectWithoutUnit(t *testing.T) {
	db := &fakeStore{}
	h := New(db)

	msg := message(t, "BMRA.SYSTEM.FREQ", router.Row{TS: "2022-12-01 12:00:00:GMT", VP: "480"})
	err := h.HandlePhysicalNotification(context.Background(), msg)

	require.Error(t, err)
	assert.Empty(t, db.upserts)
}

func TestHandleLOLPDM(t *testing.T) {
	db := &fakeStore{}
	h := New(db)

	msg := message(t, "BMRA.SYSTEM.LOLPDM",
		router.Row{SD: "2022-06-15", SP: "21", LP: "0.001", DR: "6500"})
	require.NoError(t, h.HandleLOLPDM(context.Background(), msg))

	require.Len(t, db.upserts, 1)
	u := db.upserts[0]
	assert.Equal(t, "lolp_dm", u.table.Name)
	require.Len(t, u.rows, 1)
	// period 21 on a BST day starts at 10:00 wall time, 09:00 UTC
	assert.Equal(t, time.Date(2022, 6, 15, 9, 0, 0, 0, time.UTC), u.rows[0]["time"])
	assert.Equal(t, 0.001, u.rows[0]["loss_of_load_probability"])
	assert.Equal(t, 6500.0, u.rows[0]["derated_margin"])
}

func TestHandleLOLPDMOutOfRangePeriod(t *testing.T) {
	db := &fakeStore{}
	h := New(db)

	msg := message(t, "BMRA.SYSTEM.LOLPDM",
		router.Row{SD: "2022-06-15", SP: "49", LP: "0.001", DR: "6500"})
	err := h.HandleLOLPDM(context.Background(), msg)

	require.Error(t, err)
	assert.Empty(t, db.upserts)
}

type fakeSubscription struct {
	envelopes chan *router.Envelope
}

func (f *fakeSubscription) Subscribe(topic string) (<-chan *router.Envelope, error) {
	return f.envelopes, nil
}

// End to end through the router: a MELS envelope lands in the MEL table.
func TestRegisterAllAliases(t *testing.T) {
	db := &fakeStore{}
	h := New(db)

	body := []byte(`<msg>
		<subject>BMRA.DYNAMIC.T_MEDP-1.MELS</subject>
		<row><TS>2022-12-01 12:00:00:GMT</TS><VE>600</VE></row>
	</msg>`)
	sub := &fakeSubscription{envelopes: make(chan *router.Envelope, 1)}
	sub.envelopes <- &router.Envelope{Type: "MELS", Body: body}
	close(sub.envelopes)

	r := router.New(sub, "test", metrics.Get())
	h.RegisterAll(r)
	require.NoError(t, r.Run(context.Background()))

	require.Len(t, db.upserts, 1)
	assert.Equal(t, "maximum_export_limit", db.upserts[0].table.Name)
}
