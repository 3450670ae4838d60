package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gridstats/gridstats/internal/ingester/griderrors"
)

// timestamps from the carbon intensity API omit seconds
const carbonIntensityTimeLayout = "2006-01-02T15:04Z07:00"

// CarbonIntensityClient fetches the national carbon intensity series.
// https://api.carbonintensity.org.uk/
type CarbonIntensityClient struct {
	baseUrl string
	client  *http.Client
}

func NewCarbonIntensityClient(baseUrl string, client *http.Client) *CarbonIntensityClient {
	return &CarbonIntensityClient{baseUrl: baseUrl, client: client}
}

type CarbonIntensityRow struct {
	From time.Time
	// Either value may be absent: actuals lag, forecasts stop being published
	// once an actual exists.
	Actual   *int
	Forecast *int
}

func (c *CarbonIntensityClient) Intensity(ctx context.Context, from, to time.Time) ([]CarbonIntensityRow, error) {
	path := fmt.Sprintf("intensity/%s/%s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	body, err := get(ctx, c.client, "carbonintensity", c.baseUrl+path, nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var res struct {
		Data []struct {
			From      string `json:"from"`
			Intensity struct {
				Actual   *int `json:"actual"`
				Forecast *int `json:"forecast"`
			} `json:"intensity"`
		} `json:"data"`
	}
	if err := json.NewDecoder(body).Decode(&res); err != nil {
		return nil, &griderrors.ErrParse{Source: "carbonintensity", Message: err.Error()}
	}

	rows := make([]CarbonIntensityRow, 0, len(res.Data))
	for _, entry := range res.Data {
		ts, err := time.Parse(carbonIntensityTimeLayout, entry.From)
		if err != nil {
			return nil, &griderrors.ErrParse{Source: "carbonintensity", Message: err.Error()}
		}
		rows = append(rows, CarbonIntensityRow{From: ts, Actual: entry.Intensity.Actual, Forecast: entry.Intensity.Forecast})
	}
	return rows, nil
}
