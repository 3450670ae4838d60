package configuration

import (
	"time"
)

type IngesterConfiguration struct {
	// Database configuration
	Postgres PostgresConfig
	// Metrics configuration
	MetricsPort uint16
	// Elexon BMRS REST API and portal file downloads
	Elexon ElexonConfig
	// NGESO data portal SQL endpoint
	NgesoUrl string
	// Carbon intensity API base url
	CarbonIntensityUrl string
	// PV Live API base url
	PvLiveUrl string
	// Wikidata SPARQL endpoint
	WikidataUrl string
	// Push feed connection details
	Feed FeedConfig
	// Interval at which the poll scheduler wakes up to evaluate due tasks.
	// Must be shorter than the shortest task interval.
	TickInterval time.Duration
}

type PostgresConfig struct {
	Connection map[string]string
}

type ElexonConfig struct {
	// API key used for portal file downloads and the push feed
	ApiKey string
	// BMRS REST API base url, e.g. https://data.elexon.co.uk/bmrs/api/v1/
	ApiUrl string
	// Portal file download base url
	PortalUrl string
}

type FeedConfig struct {
	Servers []string
	// Topic carrying the push feed envelopes
	Topic string
}
