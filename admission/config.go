/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/acronis/go-appkit/config"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Default values for the optional Config fields.
const (
	DefaultMaxRetryWait   = time.Second
	DefaultAdjustInterval = time.Second * 10
	DefaultMinSamples     = 10
	DefaultWindowSize     = 1000
	DefaultDecreaseFactor = 0.9
	DefaultIncreaseFactor = 1.1
	DefaultHighLatency    = time.Second
	DefaultLowLatency     = time.Millisecond * 100
	DefaultMaxErrorRate   = 0.05
)

// Rate describes the frequency of requests.
type Rate struct {
	Count    int
	Duration time.Duration
}

// PerSecond returns the rate normalized to tokens per second.
func (r Rate) PerSecond() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Count) / r.Duration.Seconds()
}

// String returns a text representation of the rate like "100/m".
// Implements fmt.Stringer interface.
func (r Rate) String() string {
	switch r.Duration {
	case 0:
		return ""
	case time.Second:
		return strconv.Itoa(r.Count) + "/s"
	case time.Minute:
		return strconv.Itoa(r.Count) + "/m"
	case time.Hour:
		return strconv.Itoa(r.Count) + "/h"
	default:
		return fmt.Sprintf("%d/%s", r.Count, r.Duration)
	}
}

// MarshalText implements the encoding.TextMarshaler interface.
func (r Rate) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (r *Rate) UnmarshalText(text []byte) error {
	return r.unmarshal(string(text))
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (r *Rate) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	return r.unmarshal(text)
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (r *Rate) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err != nil {
		return err
	}
	return r.unmarshal(text)
}

func (r *Rate) unmarshal(s string) error {
	if s == "" {
		*r = Rate{}
		return nil
	}
	countStr, unit, ok := strings.Cut(s, "/")
	if !ok {
		return fmt.Errorf("invalid rate %q: expected <count>/<unit>, e.g. 10/s or 100/m", s)
	}
	count, err := strconv.Atoi(strings.TrimSpace(countStr))
	if err != nil || count < 0 {
		return fmt.Errorf("invalid rate %q: count must be a non-negative integer", s)
	}
	var dur time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "s":
		dur = time.Second
	case "m":
		dur = time.Minute
	case "h":
		dur = time.Hour
	default:
		return fmt.Errorf("invalid rate %q: unit must be s, m, or h", s)
	}
	*r = Rate{Count: count, Duration: dur}
	return nil
}

// Config represents a configuration of a single Controller, i.e. of a single
// protected resource. Different resources have different baseline capacities,
// so each gets its own independent Config.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// Capacity is the maximum burst size of the token bucket in tokens.
	Capacity float64 `mapstructure:"capacity" yaml:"capacity" json:"capacity"`

	// RefillRate is the initial token refill rate.
	RefillRate Rate `mapstructure:"refillRate" yaml:"refillRate" json:"refillRate"`

	// MinRate is the hard floor for the adaptively adjusted refill rate.
	MinRate Rate `mapstructure:"minRate" yaml:"minRate" json:"minRate"`

	// MaxRate is the hard cap for the adaptively adjusted refill rate.
	MaxRate Rate `mapstructure:"maxRate" yaml:"maxRate" json:"maxRate"`

	// QueueSize is the maximum number of requests waiting for admission.
	// Zero disables queuing: requests that cannot be admitted immediately are rejected.
	QueueSize int `mapstructure:"queueSize" yaml:"queueSize" json:"queueSize"`

	// MaxRetryWait caps the time a queued request sleeps before its retry attempt.
	MaxRetryWait time.Duration `mapstructure:"maxRetryWait" yaml:"maxRetryWait" json:"maxRetryWait"`

	// HighLatency is the moving average latency above which the refill rate is decreased.
	HighLatency time.Duration `mapstructure:"highLatency" yaml:"highLatency" json:"highLatency"`

	// LowLatency is the moving average latency below which the refill rate
	// may be increased (provided the error rate is near zero).
	LowLatency time.Duration `mapstructure:"lowLatency" yaml:"lowLatency" json:"lowLatency"`

	// MaxErrorRate is the moving error rate above which the refill rate is decreased.
	MaxErrorRate float64 `mapstructure:"maxErrorRate" yaml:"maxErrorRate" json:"maxErrorRate"`

	// AdjustInterval is the minimum time between two rate adjustments.
	AdjustInterval time.Duration `mapstructure:"adjustInterval" yaml:"adjustInterval" json:"adjustInterval"`

	// MinSamples is the minimum number of samples in the performance window
	// required for an adjustment to be applied.
	MinSamples int `mapstructure:"minSamples" yaml:"minSamples" json:"minSamples"`

	// WindowSize is the number of recent request outcomes retained for computing
	// the moving average latency and error rate.
	WindowSize int `mapstructure:"windowSize" yaml:"windowSize" json:"windowSize"`

	// DecreaseFactor is the multiplicative factor applied to the refill rate
	// when the observed performance is bad. Must be in (0, 1).
	DecreaseFactor float64 `mapstructure:"decreaseFactor" yaml:"decreaseFactor" json:"decreaseFactor"`

	// IncreaseFactor is the multiplicative factor applied to the refill rate
	// when the observed performance is good. Must be greater than 1.
	IncreaseFactor float64 `mapstructure:"increaseFactor" yaml:"increaseFactor" json:"increaseFactor"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	var opts configOptions
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(_ config.DataProvider) {
}

// Set sets configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	if err := dp.Unmarshal(c, func(decoderConfig *mapstructure.DecoderConfig) {
		decoderConfig.DecodeHook = MapstructureDecodeHook()
	}); err != nil {
		return err
	}
	return c.Validate()
}

// MapstructureDecodeHook returns a DecodeHookFunc for mapstructure to handle custom types.
func MapstructureDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

// Validate validates configuration.
func (c *Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %v", c.Capacity)
	}
	if c.RefillRate.PerSecond() <= 0 {
		return fmt.Errorf("refill rate must be positive, got %q", c.RefillRate)
	}
	if c.MinRate.PerSecond() <= 0 {
		return fmt.Errorf("min rate must be positive, got %q", c.MinRate)
	}
	if c.MaxRate.PerSecond() < c.MinRate.PerSecond() {
		return fmt.Errorf("max rate %q must not be less than min rate %q", c.MaxRate, c.MinRate)
	}
	if rate := c.RefillRate.PerSecond(); rate < c.MinRate.PerSecond() || rate > c.MaxRate.PerSecond() {
		return fmt.Errorf("refill rate %q must be within [%q, %q]", c.RefillRate, c.MinRate, c.MaxRate)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue size must not be negative, got %d", c.QueueSize)
	}
	if c.MaxRetryWait < 0 {
		return fmt.Errorf("max retry wait must not be negative, got %s", c.MaxRetryWait)
	}
	if c.HighLatency < 0 || c.LowLatency < 0 {
		return fmt.Errorf("latency thresholds must not be negative")
	}
	if c.HighLatency != 0 && c.LowLatency != 0 && c.LowLatency >= c.HighLatency {
		return fmt.Errorf("low latency threshold %s must be less than high latency threshold %s",
			c.LowLatency, c.HighLatency)
	}
	if c.MaxErrorRate < 0 || c.MaxErrorRate > 1 {
		return fmt.Errorf("max error rate must be within [0, 1], got %v", c.MaxErrorRate)
	}
	if c.AdjustInterval < 0 {
		return fmt.Errorf("adjust interval must not be negative, got %s", c.AdjustInterval)
	}
	if c.MinSamples < 0 {
		return fmt.Errorf("min samples must not be negative, got %d", c.MinSamples)
	}
	if c.WindowSize < 0 {
		return fmt.Errorf("window size must not be negative, got %d", c.WindowSize)
	}
	if c.DecreaseFactor != 0 && (c.DecreaseFactor <= 0 || c.DecreaseFactor >= 1) {
		return fmt.Errorf("decrease factor must be in (0, 1), got %v", c.DecreaseFactor)
	}
	if c.IncreaseFactor != 0 && c.IncreaseFactor <= 1 {
		return fmt.Errorf("increase factor must be greater than 1, got %v", c.IncreaseFactor)
	}
	return nil
}

// normalized returns a copy of the config with default values applied
// in place of the omitted optional fields.
func (c *Config) normalized() Config {
	cfg := *c
	if cfg.MaxRetryWait == 0 {
		cfg.MaxRetryWait = DefaultMaxRetryWait
	}
	if cfg.HighLatency == 0 {
		cfg.HighLatency = DefaultHighLatency
	}
	if cfg.LowLatency == 0 {
		cfg.LowLatency = DefaultLowLatency
		if cfg.LowLatency >= cfg.HighLatency {
			cfg.LowLatency = cfg.HighLatency / 2
		}
	}
	if cfg.MaxErrorRate == 0 {
		cfg.MaxErrorRate = DefaultMaxErrorRate
	}
	if cfg.AdjustInterval == 0 {
		cfg.AdjustInterval = DefaultAdjustInterval
	}
	if cfg.MinSamples == 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.DecreaseFactor == 0 {
		cfg.DecreaseFactor = DefaultDecreaseFactor
	}
	if cfg.IncreaseFactor == 0 {
		cfg.IncreaseFactor = DefaultIncreaseFactor
	}
	return cfg
}
