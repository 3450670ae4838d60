// Package gridb persists grid time-series rows. All writes go through idempotent
// upserts keyed on each table's natural key, so re-polling and re-delivery of the
// same data is always safe, including when the poll scheduler and the stream router
// race on the same key.
package gridb

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/gridstats/gridstats/internal/ingester/griderrors"
)

var dialect = goqu.Dialect("postgres")

// Table describes the destination of an upsert: the table name, the columns forming
// the natural key and the measured columns. A conflicting write replaces the measured
// columns only; key columns are never updated.
type Table struct {
	Name   string
	Key    []string
	Values []string
}

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Store executes writes against the grid database. It is safe for use from both
// ingestion loops concurrently.
type Store struct {
	pool *pgxpool.Pool
	q    querier
	// Fuel type refs never change once created, and the keyspace is small, so the
	// cache grows without bound and is never invalidated.
	fuelTypes *cache.Cache
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:      pool,
		q:         pool,
		fuelTypes: cache.New(cache.NoExpiration, 0),
	}
}

// WithTx runs action inside a transaction, committing if it returns nil and rolling
// back otherwise. The Store passed to the action is bound to the transaction and
// shares the fuel type cache with its parent.
func (s *Store) WithTx(ctx context.Context, action func(tx *Store) error) error {
	if s.pool == nil {
		return errors.New("already inside a transaction")
	}
	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		return action(&Store{q: tx, fuelTypes: s.fuelTypes})
	})
}

// UpsertMany writes rows to table, inserting where the natural key is absent and
// overwriting the measured columns where it is present. Rows sharing a key are
// conflated before writing (last wins) as postgres rejects multi-row inserts that
// touch the same conflict target twice.
func (s *Store) UpsertMany(ctx context.Context, table Table, rows []goqu.Record) error {
	rows = conflate(table, rows)
	if len(rows) == 0 {
		return nil
	}
	sql, args, err := buildUpsert(table, rows)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = s.q.Exec(ctx, sql, args...)
	return errors.Wrapf(err, "upserting %d rows into %s", len(rows), table.Name)
}

// Exec runs a single statement. Used by the reference tasks for the few writes that
// don't fit the upsert shape.
func (s *Store) Exec(ctx context.Context, sql string, args ...interface{}) error {
	_, err := s.q.Exec(ctx, sql, args...)
	return errors.WithStack(err)
}

// FuelTypeID resolves a fuel type code to its surrogate id, caching the result for
// the process lifetime. A code absent from the reference table is a hard error: the
// table is populated by an earlier-scheduled task, never implicitly here.
func (s *Store) FuelTypeID(ctx context.Context, ref string) (int64, error) {
	if id, ok := s.fuelTypes.Get(ref); ok {
		return id.(int64), nil
	}
	var id int64
	err := s.q.QueryRow(ctx, "SELECT id FROM fuel_type WHERE ref = $1", ref).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &griderrors.ErrMissingReference{Type: "fuel_type", Value: ref}
	}
	if err != nil {
		return 0, errors.WithStack(err)
	}
	s.fuelTypes.SetDefault(ref, id)
	return id, nil
}

// FuelTypeRefs returns the full code → id mapping of the fuel type table.
func (s *Store) FuelTypeRefs(ctx context.Context) (map[string]int64, error) {
	rows, err := s.q.Query(ctx, "SELECT id, ref FROM fuel_type")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()
	refs := map[string]int64{}
	for rows.Next() {
		var id int64
		var ref string
		if err := rows.Scan(&id, &ref); err != nil {
			return nil, errors.WithStack(err)
		}
		refs[ref] = id
	}
	return refs, errors.WithStack(rows.Err())
}

// GSPGroupRegions returns the GSP group → region id mapping of the region table.
func (s *Store) GSPGroupRegions(ctx context.Context) (map[string]int64, error) {
	rows, err := s.q.Query(ctx, "SELECT id, gsp_group FROM region")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()
	regions := map[string]int64{}
	for rows.Next() {
		var id int64
		var gspGroup string
		if err := rows.Scan(&id, &gspGroup); err != nil {
			return nil, errors.WithStack(err)
		}
		regions[gspGroup] = id
	}
	return regions, errors.WithStack(rows.Err())
}

// UnitIDByNGRef resolves a National Grid BM unit reference to its surrogate id.
func (s *Store) UnitIDByNGRef(ctx context.Context, ref string) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, "SELECT id FROM bm_unit WHERE ng_ref = $1", ref).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &griderrors.ErrMissingReference{Type: "bm_unit", Value: ref}
	}
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return id, nil
}

func buildUpsert(table Table, rows []goqu.Record) (string, []interface{}, error) {
	records := make([]interface{}, len(rows))
	for i, row := range rows {
		records[i] = row
	}
	ds := dialect.Insert(table.Name).Prepared(true).Rows(records...)
	if len(table.Values) == 0 {
		ds = ds.OnConflict(goqu.DoNothing())
	} else {
		update := goqu.Record{}
		for _, col := range table.Values {
			update[col] = goqu.L("excluded." + col)
		}
		ds = ds.OnConflict(goqu.DoUpdate(strings.Join(table.Key, ", "), update))
	}
	return ds.ToSQL()
}

func conflate(table Table, rows []goqu.Record) []goqu.Record {
	out := make([]goqu.Record, 0, len(rows))
	seen := make(map[string]int, len(rows))
	for _, row := range rows {
		k := naturalKey(table, row)
		if i, ok := seen[k]; ok {
			out[i] = row
		} else {
			seen[k] = len(out)
			out = append(out, row)
		}
	}
	return out
}

func naturalKey(table Table, row goqu.Record) string {
	parts := make([]string, len(table.Key))
	for i, col := range table.Key {
		parts[i] = fmt.Sprintf("%v", row[col])
	}
	return strings.Join(parts, "\x1f")
}
