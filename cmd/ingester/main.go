package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gridstats/gridstats/internal/common"
	"github.com/gridstats/gridstats/internal/ingester"
	"github.com/gridstats/gridstats/internal/ingester/configuration"
)

const customConfigLocation string = "config"

func init() {
	pflag.StringSlice(customConfigLocation, []string{}, "Fully qualified path to application configuration file (for multiple config files repeat this arg or use commas)")
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.IngesterConfiguration
	userSpecifiedConfigs := viper.GetStringSlice(customConfigLocation)
	common.LoadConfig(&config, "./config/ingester", userSpecifiedConfigs)

	if err := ingester.Run(&config); err != nil {
		log.Errorf("Grid ingester failed: %+v", err)
		os.Exit(1)
	}
}
