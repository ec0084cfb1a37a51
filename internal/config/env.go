package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvOverrides are settings taken from the process environment. Unset
// variables leave the file configuration alone.
type EnvOverrides struct {
	Dataset      string `env:"FAIRSEARCH_DATASET"`
	Output       string `env:"FAIRSEARCH_OUTPUT"`
	Plot         string `env:"FAIRSEARCH_PLOT"`
	Store        string `env:"FAIRSEARCH_STORE"`
	Workers      *int   `env:"FAIRSEARCH_WORKERS"`
	Seed         *int64 `env:"FAIRSEARCH_SEED"`
	OTelEndpoint string `env:"FAIRSEARCH_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"FAIRSEARCH_OTEL_ENABLED" envDefault:"true"`
}

// ParseEnv loads overrides from environment variables.
func ParseEnv() (EnvOverrides, error) {
	var e EnvOverrides
	if err := env.Parse(&e); err != nil {
		return EnvOverrides{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// Apply copies the set overrides onto c.
func (e EnvOverrides) Apply(c *Config) {
	if e.Dataset != "" {
		c.Dataset.Path = e.Dataset
	}
	if e.Output != "" {
		c.Output.CSV = e.Output
	}
	if e.Plot != "" {
		c.Output.Plot = e.Plot
	}
	if e.Store != "" {
		c.Output.Store = e.Store
	}
	if e.Workers != nil {
		c.Run.Workers = *e.Workers
	}
	if e.Seed != nil {
		c.Run.Seed = *e.Seed
	}
	if e.OTelEndpoint != "" {
		c.Telemetry.Endpoint = e.OTelEndpoint
	}
	c.Telemetry.Enabled = e.OTelEnabled && c.Telemetry.Endpoint != ""
}
