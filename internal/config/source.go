package config

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// DataSourceSpec is the plain description of a data source, as written in a
// catalog file or in code. NewDataSource turns it into an immutable DataSource.
type DataSourceSpec struct {
	Key                string `yaml:"key" validate:"required"`
	Name               string `yaml:"name" validate:"required"`
	BaseURL            string `yaml:"base_url" validate:"required,url"`
	CredentialEnvVar   string `yaml:"credential_env_var" validate:"required"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute" validate:"gt=0"`
	Active             *bool  `yaml:"active"`
}

// DataSource describes one external market data provider. It is a value type
// with no setters; replacing a source means building a new one.
type DataSource struct {
	key                string
	name               string
	baseURL            string
	credentialEnvVar   string
	rateLimitPerMinute int
	active             bool
}

// NewDataSource checks the shape of spec and returns the matching descriptor.
// Sources are active unless spec.Active is explicitly false.
func NewDataSource(spec DataSourceSpec) (DataSource, error) {
	if err := validate.Struct(spec); err != nil {
		return DataSource{}, fmt.Errorf("data source %q: %w", spec.Key, describeValidation(err))
	}

	active := true
	if spec.Active != nil {
		active = *spec.Active
	}

	return DataSource{
		key:                spec.Key,
		name:               spec.Name,
		baseURL:            spec.BaseURL,
		credentialEnvVar:   spec.CredentialEnvVar,
		rateLimitPerMinute: spec.RateLimitPerMinute,
		active:             active,
	}, nil
}

func (d DataSource) Key() string { return d.key }
func (d DataSource) Name() string { return d.name }
func (d DataSource) BaseURL() string { return d.baseURL }
func (d DataSource) CredentialEnvVar() string { return d.credentialEnvVar }
func (d DataSource) RateLimitPerMinute() int { return d.rateLimitPerMinute }
func (d DataSource) Active() bool { return d.active }

// Limiter returns a fresh token bucket that admits RateLimitPerMinute calls
// per minute with no burst. Each caller gets its own bucket. Collectors
// outside this module wait on it before calling the provider; the inspection
// API builds its reload bucket the same way.
func (d DataSource) Limiter() *rate.Limiter {
	return PerMinute(d.rateLimitPerMinute)
}

// PerMinute returns a token bucket admitting n events per minute, one at a
// time. A non-positive n admits nothing.
func PerMinute(n int) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(0, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
}

// DefaultSources returns the built-in provider catalog in precedence order.
func DefaultSources() []DataSourceSpec {
	return []DataSourceSpec{
		{
			Key:                "binance",
			Name:               "Binance",
			BaseURL:            "https://api.binance.com",
			CredentialEnvVar:   "BINANCE_API_KEY",
			RateLimitPerMinute: 1200,
		},
		{
			Key:                "alpha_vantage",
			Name:               "Alpha Vantage",
			BaseURL:            "https://www.alphavantage.co/query",
			CredentialEnvVar:   "ALPHA_VANTAGE_API_KEY",
			RateLimitPerMinute: 5,
		},
		{
			Key:                "polygon",
			Name:               "Polygon.io",
			BaseURL:            "https://api.polygon.io",
			CredentialEnvVar:   "POLYGON_API_KEY",
			RateLimitPerMinute: 5,
		},
	}
}
