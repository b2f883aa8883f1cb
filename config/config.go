package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration of one trading account.
type Config struct {
	Account    AccountConfig    `json:"account" yaml:"account"`
	Venue      VenueConfig      `json:"venue" yaml:"venue"`
	Risk       RiskConfig       `json:"risk" yaml:"risk"`
	Safety     SafetyConfig     `json:"safety" yaml:"safety"`
	Execution  ExecutionConfig  `json:"execution" yaml:"execution"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Log        LogConfig        `json:"log" yaml:"log"`
	Simulation SimulationConfig `json:"simulation,omitempty" yaml:"simulation,omitempty"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	ID      string  `json:"id" yaml:"id" validate:"required"`
	Balance float64 `json:"balance" yaml:"balance" validate:"gt=0"`
}

// VenueConfig describes the simulated fill model.
type VenueConfig struct {
	Slippage      float64            `json:"slippage" yaml:"slippage" validate:"gte=0,lt=1"`
	Commission    float64            `json:"commission" yaml:"commission" validate:"gte=0,lt=1"`
	AllowShorting bool               `json:"allow_shorting" yaml:"allow_shorting"`
	TrailingStop  TrailingStopConfig `json:"trailing_stop" yaml:"trailing_stop"`
}

type TrailingStopConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Trail   float64 `json:"trail" yaml:"trail" validate:"gte=0,lt=1"`
}

// RiskConfig holds position sizing parameters.
type RiskConfig struct {
	RiskFraction     float64 `json:"risk_fraction" yaml:"risk_fraction" validate:"gt=0,lte=1"`
	SLATRMult        float64 `json:"sl_atr_mult" yaml:"sl_atr_mult" validate:"gt=0"`
	TPATRMult        float64 `json:"tp_atr_mult" yaml:"tp_atr_mult" validate:"gt=0"`
	MinPositionValue float64 `json:"min_position_value" yaml:"min_position_value" validate:"gte=0"`
	MaxExposure      float64 `json:"max_exposure" yaml:"max_exposure" validate:"gt=0,lte=1"`
}

// SafetyConfig holds the account-wide limits and the kill-switch signal.
type SafetyConfig struct {
	MaxDailyLossPct     float64 `json:"max_daily_loss_pct" yaml:"max_daily_loss_pct" validate:"gt=0,lte=1"`
	MaxRiskPerTradePct  float64 `json:"max_risk_per_trade_pct" yaml:"max_risk_per_trade_pct" validate:"gt=0,lte=1"`
	MaxExposurePct      float64 `json:"max_exposure_pct" yaml:"max_exposure_pct" validate:"gt=0"`
	MaxOpenTrades       int     `json:"max_open_trades" yaml:"max_open_trades" validate:"gt=0"`
	KillSwitchSignal    string  `json:"kill_switch_signal" yaml:"kill_switch_signal"`
	MaxConsecutiveFails int     `json:"max_consecutive_fails" yaml:"max_consecutive_fails" validate:"gte=0"`
}

// ExecutionConfig selects where orders are routed.
type ExecutionConfig struct {
	Mode      string        `json:"mode" yaml:"mode" validate:"oneof=simulated dry_run live"`
	Timeout   Duration `json:"timeout" yaml:"timeout" validate:"gte=0"`
	RateLimit float64  `json:"rate_limit" yaml:"rate_limit" validate:"gte=0"`
	Burst     int      `json:"burst" yaml:"burst" validate:"gte=0"`
}

// Duration is a time.Duration written as a string such as "10s" in both
// YAML and JSON. JSON also accepts integer nanoseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("duration must be a string like \"10s\": %s", b)
		}
		*d = Duration(n)
		return nil
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	return d.parse(n.Value)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// JournalConfig selects the ledger backend.
type JournalConfig struct {
	Type string `json:"type" yaml:"type" validate:"oneof=csv sqlite memory"`
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format     string `json:"format" yaml:"format" validate:"omitempty,oneof=text json"`
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty" validate:"gte=0"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty" validate:"gte=0"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty" validate:"gte=0"`
	Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
}

// SimulationConfig scripts a single signal and the price path that follows
// it, for `trader run`.
type SimulationConfig struct {
	Symbol     string      `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Side       string      `json:"side,omitempty" yaml:"side,omitempty" validate:"omitempty,oneof=long short buy sell LONG SHORT BUY SELL"`
	Entry      float64     `json:"entry,omitempty" yaml:"entry,omitempty" validate:"gte=0"`
	ATR        float64     `json:"atr,omitempty" yaml:"atr,omitempty" validate:"gte=0"`
	Strategy   string      `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	PriceSteps []PriceStep `json:"price_steps,omitempty" yaml:"price_steps,omitempty" validate:"dive"`
}

// PriceStep represents a price update in the simulation
type PriceStep struct {
	Price float64 `json:"price" yaml:"price" validate:"gt=0"`
	Delay string  `json:"delay,omitempty" yaml:"delay,omitempty"` // e.g., "1h", "30m", "1s"
}

// ParseDuration converts the delay string to time.Duration
func (ps PriceStep) ParseDuration() (time.Duration, error) {
	if ps.Delay == "" {
		return 0, nil
	}
	return time.ParseDuration(ps.Delay)
}

// LoadFromFile loads configuration from a YAML or JSON file. Unknown keys are
// an error.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if isJSON(path) {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", filepath.Base(path), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return err
	}

	if c.Venue.TrailingStop.Enabled && c.Venue.TrailingStop.Trail <= 0 {
		return fmt.Errorf("venue.trailing_stop.trail must be positive when enabled")
	}
	if c.Journal.Type != "memory" && c.Journal.Path == "" {
		return fmt.Errorf("journal.path required for %s type", c.Journal.Type)
	}
	if c.Execution.Mode == "live" && c.Execution.Timeout <= 0 {
		return fmt.Errorf("execution.timeout must be positive in live mode")
	}
	if c.Simulation.Symbol != "" && c.Simulation.Entry <= 0 {
		return fmt.Errorf("simulation.entry must be positive")
	}
	for i, step := range c.Simulation.PriceSteps {
		if _, err := step.ParseDuration(); err != nil {
			return fmt.Errorf("simulation.price_steps[%d].delay: %w", i, err)
		}
	}
	return nil
}

func fieldError(fe validator.FieldError) error {
	// Namespace is "Config.venue.slippage"; drop the root type name.
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", ns)
	case "oneof":
		return fmt.Errorf("%s must be one of [%s]", ns, fe.Param())
	default:
		return fmt.Errorf("%s must satisfy %s=%s (got %v)", ns, fe.Tag(), fe.Param(), fe.Value())
	}
}

// Default returns a configuration with documented defaults.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:      "PAPER-001",
			Balance: 10000,
		},
		Venue: VenueConfig{
			Slippage:   0.0005,
			Commission: 0.001,
			TrailingStop: TrailingStopConfig{
				Trail: 0.02,
			},
		},
		Risk: RiskConfig{
			RiskFraction:     0.01,
			SLATRMult:        1.5,
			TPATRMult:        3.0,
			MinPositionValue: 10,
			MaxExposure:      0.5,
		},
		Safety: SafetyConfig{
			MaxDailyLossPct:    0.05,
			MaxRiskPerTradePct: 0.02,
			MaxExposurePct:     0.5,
			MaxOpenTrades:      5,
			KillSwitchSignal:   "TRADING_KILL_SWITCH",
		},
		Execution: ExecutionConfig{
			Mode:      "simulated",
			Timeout:   Duration(10 * time.Second),
			RateLimit: 5,
			Burst:     1,
		},
		Journal: JournalConfig{
			Type: "csv",
			Path: "./ledger.csv",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
