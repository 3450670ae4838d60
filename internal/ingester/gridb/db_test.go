package gridb

import (
	"context"
	"testing"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridstats/gridstats/internal/ingester/griderrors"
)

var testTable = Table{
	Name:   "generation_by_fuel_type_inst",
	Key:    []string{"time", "fuel_type"},
	Values: []string{"generation"},
}

func TestBuildUpsert(t *testing.T) {
	ts := time.Date(2022, time.October, 9, 12, 0, 0, 0, time.UTC)
	sql, args, err := buildUpsert(testTable, []goqu.Record{
		{"time": ts, "fuel_type": int64(1), "generation": 100},
		{"time": ts, "fuel_type": int64(2), "generation": 200},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, `INSERT INTO "generation_by_fuel_type_inst"`)
	assert.Contains(t, sql, "ON CONFLICT (time, fuel_type) DO UPDATE")
	assert.Contains(t, sql, "excluded.generation")
	// Prepared statement: one arg per column per row
	assert.Len(t, args, 6)
}

func TestBuildUpsertNoValueColumns(t *testing.T) {
	table := Table{Name: "fuel_type", Key: []string{"ref"}}
	sql, args, err := buildUpsert(table, []goqu.Record{{"ref": "CCGT"}})
	require.NoError(t, err)
	assert.Contains(t, sql, "ON CONFLICT DO NOTHING")
	assert.Len(t, args, 1)
}

func TestConflate(t *testing.T) {
	ts := time.Date(2022, time.October, 9, 12, 0, 0, 0, time.UTC)
	rows := conflate(testTable, []goqu.Record{
		{"time": ts, "fuel_type": int64(1), "generation": 100},
		{"time": ts, "fuel_type": int64(2), "generation": 150},
		{"time": ts, "fuel_type": int64(1), "generation": 300},
	})
	require.Len(t, rows, 2)
	// Last write for a key wins, original position is kept
	assert.Equal(t, 300, rows[0]["generation"])
	assert.Equal(t, int64(1), rows[0]["fuel_type"])
	assert.Equal(t, 150, rows[1]["generation"])
}

func TestConflateEmpty(t *testing.T) {
	assert.Empty(t, conflate(testTable, nil))
}

func TestFuelTypeIDCaching(t *testing.T) {
	q := &fakeQuerier{rowValue: 42}
	s := &Store{q: q, fuelTypes: cache.New(cache.NoExpiration, 0)}

	id, err := s.FuelTypeID(context.Background(), "CCGT")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, 1, q.queryRowCalls)

	// Second lookup is served from the cache
	id, err = s.FuelTypeID(context.Background(), "CCGT")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, 1, q.queryRowCalls)
}

func TestFuelTypeIDMissing(t *testing.T) {
	q := &fakeQuerier{rowErr: pgx.ErrNoRows}
	s := &Store{q: q, fuelTypes: cache.New(cache.NoExpiration, 0)}

	_, err := s.FuelTypeID(context.Background(), "NOPE")
	var missing *griderrors.ErrMissingReference
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "fuel_type", missing.Type)
	assert.Equal(t, "NOPE", missing.Value)

	// Misses are not cached
	_, err = s.FuelTypeID(context.Background(), "NOPE")
	assert.Error(t, err)
	assert.Equal(t, 2, q.queryRowCalls)
}

func TestUpsertManyEmpty(t *testing.T) {
	q := &fakeQuerier{}
	s := &Store{q: q}
	require.NoError(t, s.UpsertMany(context.Background(), testTable, nil))
	assert.Equal(t, 0, q.execCalls)
}

type fakeQuerier struct {
	execCalls     int
	queryRowCalls int
	rowValue      int64
	rowErr        error
}

func (f *fakeQuerier) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.execCalls++
	return nil, nil
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	f.queryRowCalls++
	return &fakeRow{value: f.rowValue, err: f.rowErr}
}

type fakeRow struct {
	value int64
	err   error
}

func (r *fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.value
	return nil
}
