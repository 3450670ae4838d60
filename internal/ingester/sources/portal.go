package sources

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"strings"

	"github.com/gridstats/gridstats/internal/ingester/griderrors"
)

// PortalClient downloads keyed CSV files from the Elexon portal.
type PortalClient struct {
	portalUrl string
	apiKey    string
	client    *http.Client
}

func NewPortalClient(portalUrl, apiKey string, client *http.Client) *PortalClient {
	return &PortalClient{portalUrl: portalUrl, apiKey: apiKey, client: client}
}

func (c *PortalClient) RegisteredParticipants(ctx context.Context) ([]map[string]string, error) {
	return c.download(ctx, "REGISTERED_PARTICIPANTS_FILE")
}

func (c *PortalClient) RegisteredBMUnits(ctx context.Context) ([]map[string]string, error) {
	return c.download(ctx, "REGISTERED_BMUNITS_FILE")
}

// download fetches a portal file and returns its CSV rows keyed by header name.
// Portal files carry preamble lines around the CSV payload; only comma-bearing
// lines are parsed.
func (c *PortalClient) download(ctx context.Context, file string) ([]map[string]string, error) {
	body, err := get(ctx, c.client, "elexon-portal", c.portalUrl+file+"?key="+c.apiKey, nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, &griderrors.ErrTransport{Source: "elexon-portal", Message: err.Error()}
	}

	var csvLines []string
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.Contains(line, ",") {
			csvLines = append(csvLines, line)
		}
	}
	if len(csvLines) == 0 {
		return nil, &griderrors.ErrParse{Source: "elexon-portal", Message: "no CSV content in " + file}
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(csvLines, "\n")))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, &griderrors.ErrParse{Source: "elexon-portal", Message: err.Error()}
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := map[string]string{}
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
