package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/gridstats/gridstats/internal/ingester/griderrors"
)

// PVLiveClient fetches the Sheffield Solar PV Live national estimate.
// https://www.solar.sheffield.ac.uk/pvlive/api/
type PVLiveClient struct {
	baseUrl string
	client  *http.Client
}

func NewPVLiveClient(baseUrl string, client *http.Client) *PVLiveClient {
	return &PVLiveClient{baseUrl: baseUrl, client: client}
}

type PVGenerationRow struct {
	Time time.Time
	// Absent for periods not yet estimated
	Generation *float64
}

// Generation returns 5-minute national PV output estimates from the given start
// time (GSP 0 covers the whole country).
func (c *PVLiveClient) Generation(ctx context.Context, from time.Time) ([]PVGenerationRow, error) {
	params := url.Values{}
	params.Set("start", from.Format(time.RFC3339))
	params.Set("period", "5")
	body, err := get(ctx, c.client, "pvlive", c.baseUrl+"gsp/0?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	// Rows are positional arrays of [gsp_id, datetime, generation]
	var res struct {
		Data [][]interface{} `json:"data"`
	}
	if err := json.NewDecoder(body).Decode(&res); err != nil {
		return nil, &griderrors.ErrParse{Source: "pvlive", Message: err.Error()}
	}

	rows := make([]PVGenerationRow, 0, len(res.Data))
	for _, entry := range res.Data {
		if len(entry) < 3 {
			return nil, &griderrors.ErrParse{Source: "pvlive", Message: "row with fewer than 3 columns"}
		}
		tsString, ok := entry[1].(string)
		if !ok {
			return nil, &griderrors.ErrParse{Source: "pvlive", Message: "non-string timestamp column"}
		}
		ts, err := time.Parse(time.RFC3339, tsString)
		if err != nil {
			return nil, &griderrors.ErrParse{Source: "pvlive", Message: err.Error()}
		}
		row := PVGenerationRow{Time: ts}
		if generation, ok := entry[2].(float64); ok {
			row.Generation = &generation
		}
		rows = append(rows, row)
	}
	return rows, nil
}
