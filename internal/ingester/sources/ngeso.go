package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gridstats/gridstats/internal/ingester/griderrors"
	"github.com/gridstats/gridstats/internal/ingester/settlement"
)

// demandDataUpdateResource is the NGESO datastore resource holding the embedded
// generation demand data update.
const demandDataUpdateResource = "177f6fa4-ae49-4182-81ea-0c6b35f26ca6"

// NGESOClient queries the National Grid ESO data portal, which exposes its
// datastore through an SQL-over-HTTP endpoint.
type NGESOClient struct {
	endpoint string
	client   *http.Client
}

func NewNGESOClient(endpoint string, client *http.Client) *NGESOClient {
	return &NGESOClient{endpoint: endpoint, client: client}
}

type EmbeddedGenerationRow struct {
	Time            time.Time
	SolarGeneration int
	SolarCapacity   int
	WindGeneration  int
	WindCapacity    int
}

// DemandDataUpdate returns embedded solar and wind generation figures, either
// actuals (most recent first) or forecasts (earliest first).
func (c *NGESOClient) DemandDataUpdate(ctx context.Context, forecast bool) ([]EmbeddedGenerationRow, error) {
	indicator, order := "A", "DESC"
	if forecast {
		indicator, order = "F", "ASC"
	}
	records, err := c.fetchSQL(ctx, fmt.Sprintf(
		`SELECT * FROM "%s" WHERE "FORECAST_ACTUAL_INDICATOR" = '%s' ORDER BY "SETTLEMENT_DATE" %s LIMIT 250`,
		demandDataUpdateResource, indicator, order))
	if err != nil {
		return nil, err
	}

	rows := make([]EmbeddedGenerationRow, 0, len(records))
	for _, record := range records {
		row, err := embeddedGenerationRow(record)
		if err != nil {
			return nil, &griderrors.ErrParse{Source: "ngeso", Message: err.Error()}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func embeddedGenerationRow(record map[string]interface{}) (EmbeddedGenerationRow, error) {
	date, err := time.Parse("2006-01-02", fieldString(record, "SETTLEMENT_DATE"))
	if err != nil {
		return EmbeddedGenerationRow{}, err
	}
	period, err := fieldInt(record, "SETTLEMENT_PERIOD")
	if err != nil {
		return EmbeddedGenerationRow{}, err
	}
	ts, err := settlement.TimeOfDate(date, period)
	if err != nil {
		return EmbeddedGenerationRow{}, err
	}
	row := EmbeddedGenerationRow{Time: ts}
	if row.SolarGeneration, err = fieldInt(record, "EMBEDDED_SOLAR_GENERATION"); err != nil {
		return row, err
	}
	if row.SolarCapacity, err = fieldInt(record, "EMBEDDED_SOLAR_CAPACITY"); err != nil {
		return row, err
	}
	if row.WindGeneration, err = fieldInt(record, "EMBEDDED_WIND_GENERATION"); err != nil {
		return row, err
	}
	if row.WindCapacity, err = fieldInt(record, "EMBEDDED_WIND_CAPACITY"); err != nil {
		return row, err
	}
	return row, nil
}

func (c *NGESOClient) fetchSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	query = strings.TrimSpace(strings.ReplaceAll(query, "\n", ""))
	log.Debugf("Running NGESO query: %s", query)

	params := url.Values{}
	params.Set("sql", query)
	body, err := get(ctx, c.client, "ngeso", c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var res struct {
		Success bool `json:"success"`
		Result  struct {
			Records []map[string]interface{} `json:"records"`
		} `json:"result"`
	}
	decoder := json.NewDecoder(body)
	decoder.UseNumber()
	if err := decoder.Decode(&res); err != nil {
		return nil, &griderrors.ErrParse{Source: "ngeso", Message: err.Error()}
	}
	if !res.Success {
		return nil, &griderrors.ErrTransport{Source: "ngeso", Message: "query error"}
	}
	return res.Result.Records, nil
}

// The datastore is loosely typed: numeric columns arrive as strings or numbers
// depending on the resource.
func fieldString(record map[string]interface{}, name string) string {
	if v, ok := record[name]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func fieldInt(record map[string]interface{}, name string) (int, error) {
	s := fieldString(record, name)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f), nil
	}
	return 0, fmt.Errorf("field %s: cannot parse %q as a number", name, s)
}
