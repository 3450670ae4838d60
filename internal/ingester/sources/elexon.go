// Package sources contains the per-provider fetch clients used by the polling
// tasks. Each client is stateless apart from its configuration, fails with a
// transport error on non-success responses and with a parse error on bodies it
// cannot decode, and returns normalized records.
package sources

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gridstats/gridstats/internal/ingester/griderrors"
)

type ElexonClient struct {
	apiUrl string
	client *http.Client
}

func NewElexonClient(apiUrl string, client *http.Client) *ElexonClient {
	return &ElexonClient{apiUrl: apiUrl, client: client}
}

type FuelHHRow struct {
	StartTime        time.Time `json:"startTime"`
	SettlementPeriod int       `json:"settlementPeriod"`
	FuelType         string    `json:"fuelType"`
	Generation       int       `json:"generation"`
}

// FuelHH returns half-hourly generation by fuel type. The similar
// generation/outturn/summary endpoint is not used as it does not report negative
// interconnector flows.
func (c *ElexonClient) FuelHH(ctx context.Context) ([]FuelHHRow, error) {
	var res struct {
		Data []FuelHHRow `json:"data"`
	}
	if err := c.fetch(ctx, "datasets/FUELHH", nil, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

type FuelInstRow struct {
	StartTime  time.Time `json:"startTime"`
	FuelType   string    `json:"fuelType"`
	Generation int       `json:"generation"`
}

// FuelInst returns instantaneous (5-minute) generation by fuel type for the given
// settlement date window.
func (c *ElexonClient) FuelInst(ctx context.Context, from, to time.Time) ([]FuelInstRow, error) {
	params := url.Values{}
	params.Set("settlementDateFrom", from.Format(time.RFC3339))
	params.Set("settlementDateTo", to.Format(time.RFC3339))
	var res struct {
		Data []FuelInstRow `json:"data"`
	}
	if err := c.fetch(ctx, "datasets/FUELINST", params, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

type SystemDemandRow struct {
	StartTime time.Time `json:"startTime"`
	Demand    int       `json:"demand"`
}

func (c *ElexonClient) RollingSystemDemand(ctx context.Context) ([]SystemDemandRow, error) {
	var res struct {
		Data []SystemDemandRow `json:"data"`
	}
	if err := c.fetch(ctx, "demand/rollingSystemDemand", nil, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

type DemandOutturnRow struct {
	StartTime                              time.Time `json:"startTime"`
	SettlementDate                         string    `json:"settlementDate"`
	SettlementPeriod                       int       `json:"settlementPeriod"`
	InitialDemandOutturn                   int       `json:"initialDemandOutturn"`
	InitialTransmissionSystemDemandOutturn int       `json:"initialTransmissionSystemDemandOutturn"`
}

// DemandOutturn returns the initial demand outturn series. Unlike most endpoints
// this one streams a bare array rather than a data-wrapped object.
func (c *ElexonClient) DemandOutturn(ctx context.Context) ([]DemandOutturnRow, error) {
	var res []DemandOutturnRow
	if err := c.fetch(ctx, "demand/stream", nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

type DemandForecastRow struct {
	StartTime                time.Time `json:"startTime"`
	SettlementPeriod         int       `json:"settlementPeriod"`
	TransmissionSystemDemand int       `json:"transmissionSystemDemand"`
	NationalDemand           int       `json:"nationalDemand"`
}

func (c *ElexonClient) DemandForecast(ctx context.Context) ([]DemandForecastRow, error) {
	var res struct {
		Data []DemandForecastRow `json:"data"`
	}
	if err := c.fetch(ctx, "forecast/demand/day-ahead", nil, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (c *ElexonClient) FuelTypes(ctx context.Context) ([]string, error) {
	var res []string
	if err := c.fetch(ctx, "reference/fueltypes/all", nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

type InterconnectorRow struct {
	InterconnectorId   string `json:"interconnectorId"`
	InterconnectorName string `json:"interconnectorName"`
}

func (c *ElexonClient) Interconnectors(ctx context.Context) ([]InterconnectorRow, error) {
	var res []InterconnectorRow
	if err := c.fetch(ctx, "reference/interconnectors/all", nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

type BMUnitRow struct {
	NationalGridBmUnit string `json:"nationalGridBmUnit"`
	ElexonBmUnit       string `json:"elexonBmUnit"`
	FuelType           string `json:"fuelType"`
	LeadPartyName      string `json:"leadPartyName"`
	BmUnitType         string `json:"bmUnitType"`
	FpnFlag            bool   `json:"fpnFlag"`
}

func (c *ElexonClient) BMUnits(ctx context.Context) ([]BMUnitRow, error) {
	var res []BMUnitRow
	if err := c.fetch(ctx, "reference/bmunits/all", nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *ElexonClient) fetch(ctx context.Context, path string, params url.Values, out interface{}) error {
	target := c.apiUrl + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	body, err := get(ctx, c.client, "elexon", target, nil)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return &griderrors.ErrParse{Source: "elexon", Message: err.Error()}
	}
	return nil
}

// get performs a GET request and returns the response body, converting request
// failures and non-success statuses into transport errors.
func get(ctx context.Context, client *http.Client, source, target string, headers map[string]string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &griderrors.ErrTransport{Source: source, Message: err.Error()}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, &griderrors.ErrTransport{Source: source, Message: err.Error()}
	}
	if res.StatusCode != http.StatusOK {
		message, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		res.Body.Close()
		return nil, &griderrors.ErrTransport{Source: source, Status: res.StatusCode, Message: string(message)}
	}
	return res.Body, nil
}
