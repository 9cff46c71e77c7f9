package config

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Registry is the validated configuration of one AODE process. It is only
// ever handed out after validation succeeded and has no mutating methods.
type Registry struct {
	settings     Settings
	assetClasses []AssetClass
	sources      []DataSource
	index        map[string]int

	lookup Lookup
	logger *zap.Logger
}

// Option configures New.
type Option func(*options)

type options struct {
	lookup  Lookup
	logger  *zap.Logger
	catalog Catalog
}

// WithLookup sets where settings and credentials are read from. Defaults to
// the process environment.
func WithLookup(l Lookup) Option {
	return func(o *options) {
		if l != nil {
			o.lookup = l
		}
	}
}

// WithLogger sets the logger for validation failures and unknown-source lookups.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCatalog replaces the built-in data sources and asset classes.
func WithCatalog(cat Catalog) Option {
	return func(o *options) {
		o.catalog = cat
	}
}

// New reads settings, builds the source catalog and validates the result.
// When anything is wrong it logs every problem in a single critical record
// and returns a *ValidationError; no Registry is returned in that case.
func New(opts ...Option) (*Registry, error) {
	o := options{
		lookup:  Env(),
		logger:  zap.NewNop(),
		catalog: DefaultCatalog(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	settings, problems, err := readSettings(o.lookup)
	if err != nil {
		return nil, err
	}

	classes, classProblems := resolveAssetClasses(o.lookup, o.catalog)
	problems = append(problems, classProblems...)

	sources, index, sourceProblems := buildSources(o.catalog.Sources)
	problems = append(problems, sourceProblems...)

	problems = append(problems, Validate(settings, sources, o.lookup)...)

	if len(problems) > 0 {
		verr := &ValidationError{Problems: problems}
		o.logger.Error("configuration validation failed",
			zap.String("severity", "critical"),
			zap.Strings("errors", verr.Messages()),
		)
		return nil, verr
	}

	return &Registry{
		settings:     settings,
		assetClasses: classes,
		sources:      sources,
		index:        index,
		lookup:       o.lookup,
		logger:       o.logger,
	}, nil
}

func resolveAssetClasses(lookup Lookup, cat Catalog) ([]AssetClass, []Problem) {
	if raw, ok := lookup.Lookup(EnvAssetClasses); ok && strings.TrimSpace(raw) != "" {
		classes, err := parseAssetClasses(strings.Split(raw, ","))
		if err != nil {
			return nil, []Problem{{Kind: KindInvalidSetting, Message: fmt.Sprintf("%s: %v", EnvAssetClasses, err)}}
		}
		return classes, nil
	}

	if len(cat.AssetClasses) == 0 {
		return DefaultAssetClasses(), nil
	}
	classes, err := parseAssetClasses(cat.AssetClasses)
	if err != nil {
		return nil, []Problem{{Kind: KindInvalidSetting, Message: fmt.Sprintf("asset_classes: %v", err)}}
	}
	return classes, nil
}

func buildSources(specs []DataSourceSpec) ([]DataSource, map[string]int, []Problem) {
	var problems []Problem
	sources := make([]DataSource, 0, len(specs))
	index := make(map[string]int, len(specs))

	for _, spec := range specs {
		src, err := NewDataSource(spec)
		if err != nil {
			problems = append(problems, Problem{Kind: KindInvalidSource, Message: err.Error()})
			continue
		}
		if _, dup := index[src.Key()]; dup {
			problems = append(problems, Problem{
				Kind:    KindInvalidSource,
				Message: fmt.Sprintf("duplicate data source key %q", src.Key()),
			})
			continue
		}
		index[src.Key()] = len(sources)
		sources = append(sources, src)
	}

	return sources, index, problems
}

// Settings returns a copy of the scalar settings.
func (r *Registry) Settings() Settings {
	return r.settings
}

// AssetClasses returns the enabled asset classes in precedence order.
func (r *Registry) AssetClasses() []AssetClass {
	return append([]AssetClass(nil), r.assetClasses...)
}

// SupportsAssetClass reports whether ac is enabled.
func (r *Registry) SupportsAssetClass(ac AssetClass) bool {
	for _, enabled := range r.assetClasses {
		if enabled == ac {
			return true
		}
	}
	return false
}

// Sources returns every data source in catalog order.
func (r *Registry) Sources() []DataSource {
	return append([]DataSource(nil), r.sources...)
}

// Source returns the descriptor registered under key.
func (r *Registry) Source(key string) (DataSource, bool) {
	i, ok := r.index[key]
	if !ok {
		return DataSource{}, false
	}
	return r.sources[i], true
}

// APIKey resolves the credential for the named source. The value is read
// from the lookup on every call so rotated credentials are picked up without a
// restart. An unknown key is logged and reported as absent, as is a
// credential variable that is not defined; a defined but empty variable
// returns "", true.
func (r *Registry) APIKey(key string) (string, bool) {
	src, ok := r.Source(key)
	if !ok {
		r.logger.Error("unknown data source", zap.String("source", key))
		return "", false
	}
	return r.lookup.Lookup(src.CredentialEnvVar())
}

// CredentialConfigured reports whether a non-empty credential is currently
// available for key, without exposing it.
func (r *Registry) CredentialConfigured(key string) bool {
	src, ok := r.Source(key)
	if !ok {
		return false
	}
	v, ok := r.lookup.Lookup(src.CredentialEnvVar())
	return ok && v != ""
}

// Limiter returns a new rate limiter honouring the named source's per-minute
// budget. It fails with ErrUnknownSource for keys outside the catalog.
//
// Nothing in this module calls providers; Limiter is the hook for the
// collectors that do.
func (r *Registry) Limiter(key string) (*rate.Limiter, error) {
	src, ok := r.Source(key)
	if !ok {
		return nil, fmt.Errorf("limiter for %q: %w", key, ErrUnknownSource)
	}
	return src.Limiter(), nil
}
