package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
)

// Environment variable names read by the registry.
const (
	EnvDebug                   = "AODE_DEBUG"
	EnvSystemName              = "AODE_SYSTEM_NAME"
	EnvFirebaseCredentialsPath = "FIREBASE_CREDENTIALS_PATH"
	EnvFirebaseProjectID       = "FIREBASE_PROJECT_ID"
	EnvPollingInterval         = "POLLING_INTERVAL"
	EnvMaxRetries              = "AODE_MAX_RETRIES"
	EnvRetryDelay              = "AODE_RETRY_DELAY"
	EnvConfidenceThreshold     = "AODE_CONFIDENCE_THRESHOLD"
	EnvAnomalyZScoreThreshold  = "AODE_ANOMALY_Z_THRESHOLD"
	EnvAssetClasses            = "AODE_ASSET_CLASSES"
)

// maxDurationSeconds is the largest whole number of seconds that still fits
// in a time.Duration.
const maxDurationSeconds = int64(math.MaxInt64 / int64(time.Second))

// Settings holds the scalar configuration values. Defaults live in the
// default tags and range rules in the validate tags; both are keyed by the
// environment variable that overrides the field. The upper bounds on the
// second-valued fields equal maxDurationSeconds.
type Settings struct {
	Debug                   bool    `env:"AODE_DEBUG"`
	SystemName              string  `env:"AODE_SYSTEM_NAME" default:"AODE v1.0" validate:"required"`
	FirebaseCredentialsPath string  `env:"FIREBASE_CREDENTIALS_PATH"`
	FirebaseProjectID       string  `env:"FIREBASE_PROJECT_ID"`
	PollingIntervalSeconds  int     `env:"POLLING_INTERVAL" default:"300" validate:"gt=0,lte=9223372036"`
	MaxRetries              int     `env:"AODE_MAX_RETRIES" default:"3" validate:"gte=0"`
	RetryDelaySeconds       float64 `env:"AODE_RETRY_DELAY" default:"2.0" validate:"gte=0,lte=9223372036"`
	ConfidenceThreshold     float64 `env:"AODE_CONFIDENCE_THRESHOLD" default:"0.75" validate:"gte=0,lte=1"`
	AnomalyZScoreThreshold  float64 `env:"AODE_ANOMALY_Z_THRESHOLD" default:"3.0" validate:"gt=0"`
}

// DefaultSettings returns Settings populated only from the default tags.
func DefaultSettings() (Settings, error) {
	var s Settings
	if err := defaults.Set(&s); err != nil {
		return Settings{}, fmt.Errorf("apply setting defaults: %w", err)
	}
	return s, nil
}

// PollingInterval is the default delay between collection rounds.
func (s Settings) PollingInterval() time.Duration {
	return time.Duration(s.PollingIntervalSeconds) * time.Second
}

// RetryDelay is the pause between retries of a failed collection call.
func (s Settings) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelaySeconds * float64(time.Second))
}

// settingsReader overlays values from a Lookup onto defaults, recording
// unparseable values as problems instead of stopping at the first one.
type settingsReader struct {
	lookup   Lookup
	problems []Problem
}

func readSettings(lookup Lookup) (Settings, []Problem, error) {
	s, err := DefaultSettings()
	if err != nil {
		return Settings{}, nil, err
	}

	r := &settingsReader{lookup: lookup}
	if raw, ok := r.value(EnvDebug); ok {
		s.Debug = strings.EqualFold(raw, "true")
	}
	r.readString(EnvSystemName, &s.SystemName)
	r.readVerbatim(EnvFirebaseCredentialsPath, &s.FirebaseCredentialsPath)
	r.readString(EnvFirebaseProjectID, &s.FirebaseProjectID)
	r.readInt(EnvPollingInterval, &s.PollingIntervalSeconds)
	r.readInt(EnvMaxRetries, &s.MaxRetries)
	r.readFloat(EnvRetryDelay, &s.RetryDelaySeconds)
	r.readFloat(EnvConfidenceThreshold, &s.ConfidenceThreshold)
	r.readFloat(EnvAnomalyZScoreThreshold, &s.AnomalyZScoreThreshold)

	return s, r.problems, nil
}

// value returns the trimmed value for key; blank values count as unset.
func (r *settingsReader) value(key string) (string, bool) {
	raw, ok := r.lookup.Lookup(key)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	return raw, true
}

func (r *settingsReader) readString(key string, dst *string) {
	if raw, ok := r.value(key); ok {
		*dst = raw
	}
}

// readVerbatim keeps whitespace so a path made of spaces is reported as a
// missing file rather than an unset variable.
func (r *settingsReader) readVerbatim(key string, dst *string) {
	if raw, ok := r.lookup.Lookup(key); ok && raw != "" {
		*dst = raw
	}
}

func (r *settingsReader) readInt(key string, dst *int) {
	raw, ok := r.value(key)
	if !ok {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.invalid("%s must be an integer, got %q", key, raw)
		return
	}
	*dst = v
}

func (r *settingsReader) readFloat(key string, dst *float64) {
	raw, ok := r.value(key)
	if !ok {
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.invalid("%s must be a number, got %q", key, raw)
		return
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		r.invalid("%s must be a finite number, got %q", key, raw)
		return
	}
	*dst = v
}

func (r *settingsReader) invalid(format string, args ...any) {
	r.problems = append(r.problems, Problem{Kind: KindInvalidSetting, Message: fmt.Sprintf(format, args...)})
}
