package tasks

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/gridstats/gridstats/internal/ingester/gridb"
	"github.com/gridstats/gridstats/internal/ingester/griderrors"
)

var (
	participantTable = gridb.Table{
		Name:   "participant",
		Key:    []string{"ref"},
		Values: []string{"name", "last_seen"},
	}
	fuelTypeTable = gridb.Table{
		Name: "fuel_type",
		Key:  []string{"ref"},
	}
	bmUnitTable = gridb.Table{
		Name:   "bm_unit",
		Key:    []string{"elexon_ref"},
		Values: []string{"ng_ref", "fuel", "party_name", "type", "fpn", "last_seen"},
	}
	bmUnitDetailTable = gridb.Table{
		Name:   "bm_unit",
		Key:    []string{"elexon_ref"},
		Values: []string{"name", "region", "participant", "prod_cons", "last_seen"},
	}
	wikidataPlantsTable = gridb.Table{
		Name:   "wikidata_plants",
		Key:    []string{"wd_id"},
		Values: []string{"name"},
	}
	wdBMUnitTable = gridb.Table{
		Name:   "wd_bm_unit",
		Key:    []string{"bm_unit"},
		Values: []string{"wd_id"},
	}
)

// FetchParties ingests the registered trading parties file into participant (ref).
func (t *Tasks) FetchParties(ctx context.Context, db Store) error {
	data, err := t.portal.RegisteredParticipants(ctx)
	if err != nil {
		return err
	}
	rows := make([]goqu.Record, 0, len(data))
	for _, row := range data {
		rows = append(rows, goqu.Record{
			"ref":       row["Trading Party ID"],
			"name":      row["Trading Party Name"],
			"last_seen": goqu.L("now()"),
		})
	}
	return db.UpsertMany(ctx, participantTable, rows)
}

// FetchFuelTypes populates the fuel_type (ref) reference table and marks
// interconnectors with their names. Scheduled ahead of every task that resolves
// fuel type ids.
func (t *Tasks) FetchFuelTypes(ctx context.Context, db Store) error {
	fuelTypes, err := t.elexon.FuelTypes(ctx)
	if err != nil {
		return err
	}
	rows := make([]goqu.Record, 0, len(fuelTypes))
	for _, fuelType := range fuelTypes {
		rows = append(rows, goqu.Record{"ref": fuelType})
	}
	if err := db.UpsertMany(ctx, fuelTypeTable, rows); err != nil {
		return err
	}

	interconnectors, err := t.elexon.Interconnectors(ctx)
	if err != nil {
		return err
	}
	for _, row := range interconnectors {
		err := db.Exec(ctx,
			"UPDATE fuel_type SET name = $1, interconnector = TRUE WHERE ref = $2 AND interconnector = FALSE",
			row.InterconnectorName, row.InterconnectorId)
		if err != nil {
			return err
		}
	}
	return nil
}

// FetchUnits ingests the BM unit reference data into bm_unit (elexon_ref). Units
// with a fuel type not yet present in the reference table get a null fuel.
func (t *Tasks) FetchUnits(ctx context.Context, db Store) error {
	data, err := t.elexon.BMUnits(ctx)
	if err != nil {
		return err
	}
	fuelTypes, err := db.FuelTypeRefs(ctx)
	if err != nil {
		return err
	}

	rows := make([]goqu.Record, 0, len(data))
	for _, unit := range data {
		var fuel interface{}
		if id, ok := fuelTypes[unit.FuelType]; ok {
			fuel = id
		}
		rows = append(rows, goqu.Record{
			"elexon_ref": unit.ElexonBmUnit,
			"ng_ref":     nullIfEmpty(unit.NationalGridBmUnit),
			"fuel":       fuel,
			"party_name": unit.LeadPartyName,
			"type":       unit.BmUnitType,
			"fpn":        unit.FpnFlag,
			"last_seen":  goqu.L("now()"),
		})
	}
	return db.UpsertMany(ctx, bmUnitTable, rows)
}

// FetchUnitsDetail enriches bm_unit (elexon_ref) with names, regions and
// producer/consumer flags from the portal registration file.
func (t *Tasks) FetchUnitsDetail(ctx context.Context, db Store) error {
	data, err := t.portal.RegisteredBMUnits(ctx)
	if err != nil {
		return err
	}
	regions, err := db.GSPGroupRegions(ctx)
	if err != nil {
		return err
	}

	prodCons := map[string]string{"P": "producer", "C": "consumer"}

	rows := make([]goqu.Record, 0, len(data))
	for _, row := range data {
		var name interface{}
		if row["BMU Name"] != row["BM Unit ID"] {
			name = nullIfEmpty(row["BMU Name"])
		}
		var region interface{}
		if id, ok := regions[row["GSP Group Id"]]; ok {
			region = id
		}
		var pc interface{}
		if v, ok := prodCons[row["Prod/Cons Flag"]]; ok {
			pc = v
		}
		rows = append(rows, goqu.Record{
			"elexon_ref":  row["BM Unit ID"],
			"ng_ref":      nullIfEmpty(row["NGC BMU Name"]),
			"name":        name,
			"region":      region,
			"participant": row["Party ID"],
			"prod_cons":   pc,
			"last_seen":   goqu.L("now()"),
		})
	}
	return db.UpsertMany(ctx, bmUnitDetailTable, rows)
}

// FetchWikidataPlants links Wikidata power station entities to BM units, writing
// wikidata_plants (wd_id) and wd_bm_unit (bm_unit). BM units Wikidata knows about
// but we don't are logged and skipped.
func (t *Tasks) FetchWikidataPlants(ctx context.Context, db Store) error {
	plants, err := t.wikidata.Plants(ctx)
	if err != nil {
		return err
	}

	names := map[string]string{}
	bmrsIDs := map[string][]string{}
	for _, plant := range plants {
		names[plant.ID] = plant.Name
		bmrsIDs[plant.ID] = append(bmrsIDs[plant.ID], plant.BMRSID)
	}

	nameRows := make([]goqu.Record, 0, len(names))
	for wdID, name := range names {
		nameRows = append(nameRows, goqu.Record{"wd_id": wdID, "name": name})
	}
	if err := db.UpsertMany(ctx, wikidataPlantsTable, nameRows); err != nil {
		return err
	}

	var unitRows []goqu.Record
	for wdID, units := range bmrsIDs {
		for _, unit := range units {
			id, err := db.UnitIDByNGRef(ctx, unit)
			var missing *griderrors.ErrMissingReference
			if errors.As(err, &missing) {
				log.Infof("Missing bm_unit from Wikidata: %s (%s)", unit, wdID)
				continue
			}
			if err != nil {
				return err
			}
			unitRows = append(unitRows, goqu.Record{"wd_id": wdID, "bm_unit": id})
		}
	}
	return db.UpsertMany(ctx, wdBMUnitTable, unitRows)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
