package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gridstats/gridstats/internal/ingester/griderrors"
)

const plantsQuery = `
SELECT DISTINCT ?item ?itemLabel ?bmrs_id WHERE {
?item wdt:P11610 ?bmrs_id.
SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
}
`

// WikidataClient runs SPARQL queries against the Wikidata query service.
type WikidataClient struct {
	endpoint  string
	userAgent string
	client    *http.Client
}

func NewWikidataClient(endpoint, userAgent string, client *http.Client) *WikidataClient {
	return &WikidataClient{endpoint: endpoint, userAgent: userAgent, client: client}
}

type Plant struct {
	// Wikidata entity id, e.g. Q1654704
	ID     string
	Name   string
	BMRSID string
}

// Plants returns all power stations carrying a BMRS unit id. One plant appears once
// per associated BM unit.
func (c *WikidataClient) Plants(ctx context.Context) ([]Plant, error) {
	bindings, err := c.query(ctx, plantsQuery)
	if err != nil {
		return nil, err
	}
	plants := make([]Plant, 0, len(bindings))
	for _, binding := range bindings {
		item := binding["item"].Value
		plants = append(plants, Plant{
			ID:     item[strings.LastIndex(item, "/")+1:],
			Name:   binding["itemLabel"].Value,
			BMRSID: binding["bmrs_id"].Value,
		})
	}
	return plants, nil
}

type sparqlValue struct {
	Value string `json:"value"`
}

func (c *WikidataClient) query(ctx context.Context, query string) ([]map[string]sparqlValue, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("format", "json")
	headers := map[string]string{
		"User-Agent": c.userAgent,
		"Accept":     "application/sparql-results+json",
	}
	body, err := get(ctx, c.client, "wikidata", c.endpoint+"?"+params.Encode(), headers)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var res struct {
		Results struct {
			Bindings []map[string]sparqlValue `json:"bindings"`
		} `json:"results"`
	}
	if err := json.NewDecoder(body).Decode(&res); err != nil {
		return nil, &griderrors.ErrParse{Source: "wikidata", Message: err.Error()}
	}
	return res.Results.Bindings, nil
}
