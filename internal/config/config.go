package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"TradeGate/internal/errs"
)

// Credentials identify the investor to the broker's gateway.
type Credentials struct {
	BrokerID string `yaml:"broker_id"`
	UserID   string `yaml:"user_id"`
	Password string `yaml:"password"`
	AppID    string `yaml:"app_id"`
	AuthCode string `yaml:"auth_code"`
}

// Fronts are the gateway endpoints. The trading front carries orders
// and queries; the market front carries ticks.
type Fronts struct {
	Trade  string `yaml:"trade"`
	Market string `yaml:"market"`
}

// Timeouts bound the request/response cycle.
type Timeouts struct {
	Request   time.Duration `yaml:"request"`
	Sweep     time.Duration `yaml:"sweep"`
	Handshake time.Duration `yaml:"handshake"`
}

// Reconnect bounds the automatic reconnection loop.
type Reconnect struct {
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	MaxAttempts    int           `yaml:"max_attempts"`
}

// Filters configure the tick filter chain. Zero disables a filter.
type Filters struct {
	PriceChangeMin float64 `yaml:"price_change_min"`
	VolumeMinDelta int64   `yaml:"volume_min_delta"`
}

// NATS configures the optional event republisher.
type NATS struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Config is immutable after Load.
type Config struct {
	Credentials Credentials `yaml:"credentials"`
	Fronts      Fronts      `yaml:"fronts"`
	Timeouts    Timeouts    `yaml:"timeouts"`
	Reconnect   Reconnect   `yaml:"reconnect"`
	Filters     Filters     `yaml:"filters"`
	NATS        NATS        `yaml:"nats"`

	EventBufferSize int           `yaml:"event_buffer_size"`
	OrderRetention  time.Duration `yaml:"order_retention"`
	QueryRatePerSec float64       `yaml:"query_rate_per_sec"`
	HTTPAddr        string        `yaml:"http_addr"`
}

// Default returns the baseline configuration. Endpoints and
// credentials must still be provided.
func Default() Config {
	return Config{
		Timeouts: Timeouts{
			Request:   10 * time.Second,
			Sweep:     time.Second,
			Handshake: 30 * time.Second,
		},
		Reconnect: Reconnect{
			InitialBackoff: time.Second,
			MaxBackoff:     60 * time.Second,
			MaxAttempts:    10,
		},
		Filters: Filters{
			PriceChangeMin: 0,
			VolumeMinDelta: 0,
		},
		NATS: NATS{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "tradegate.events",
		},
		EventBufferSize: 4096,
		OrderRetention:  24 * time.Hour,
		QueryRatePerSec: 1,
		HTTPAddr:        ":9100",
	}
}

// SimNow returns defaults pointed at the public SimNow test
// environment. Credentials must still be filled in.
func SimNow() Config {
	cfg := Default()
	cfg.Fronts = Fronts{
		Trade:  "tcp://180.168.146.187:10201",
		Market: "tcp://180.168.146.187:10211",
	}
	return cfg
}

// TTS returns defaults pointed at the openctp TTS 7x24 test environment,
// which accepts orders outside exchange hours. Credentials must still be
// filled in.
func TTS() Config {
	cfg := Default()
	cfg.Fronts = Fronts{
		Trade:  "tcp://121.37.80.177:20002",
		Market: "tcp://121.37.80.177:20004",
	}
	return cfg
}

// Load reads a YAML file, applies TRADEGATE_* environment overrides,
// and validates. path may be empty to start from defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, &errs.ConfigError{Reason: fmt.Sprintf("read %s: %v", path, err)}
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, &errs.ConfigError{Reason: fmt.Sprintf("parse %s: %v", path, err)}
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr("TRADEGATE_BROKER_ID", &cfg.Credentials.BrokerID)
	setStr("TRADEGATE_USER_ID", &cfg.Credentials.UserID)
	setStr("TRADEGATE_PASSWORD", &cfg.Credentials.Password)
	setStr("TRADEGATE_APP_ID", &cfg.Credentials.AppID)
	setStr("TRADEGATE_AUTH_CODE", &cfg.Credentials.AuthCode)
	setStr("TRADEGATE_TRADE_FRONT", &cfg.Fronts.Trade)
	setStr("TRADEGATE_MARKET_FRONT", &cfg.Fronts.Market)
	setStr("TRADEGATE_HTTP_ADDR", &cfg.HTTPAddr)
	setStr("TRADEGATE_NATS_URL", &cfg.NATS.URL)

	if v := os.Getenv("TRADEGATE_NATS_ENABLED"); v != "" {
		cfg.NATS.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TRADEGATE_MAX_RECONNECTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Reconnect.MaxAttempts = n
		}
	}
	if v := os.Getenv("TRADEGATE_EVENT_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EventBufferSize = n
		}
	}
}

// Validate rejects configurations the session could not run with.
func (c Config) Validate() error {
	if c.Credentials.BrokerID == "" {
		return &errs.ConfigError{Reason: "broker_id is required"}
	}
	if c.Credentials.UserID == "" {
		return &errs.ConfigError{Reason: "user_id is required"}
	}
	if c.Credentials.Password == "" {
		return &errs.ConfigError{Reason: "password is required"}
	}
	if c.Fronts.Trade == "" {
		return &errs.ConfigError{Reason: "trade front address is required"}
	}
	if c.Fronts.Market == "" {
		return &errs.ConfigError{Reason: "market front address is required"}
	}
	if c.Timeouts.Request <= 0 {
		return &errs.ConfigError{Reason: "request timeout must be positive"}
	}
	if c.Timeouts.Sweep <= 0 {
		return &errs.ConfigError{Reason: "sweep interval must be positive"}
	}
	if c.Reconnect.InitialBackoff <= 0 {
		return &errs.ConfigError{Reason: "initial backoff must be positive"}
	}
	if c.Reconnect.MaxBackoff < c.Reconnect.InitialBackoff {
		return &errs.ConfigError{Reason: "max backoff must be at least initial backoff"}
	}
	if c.Reconnect.MaxAttempts < 0 {
		return &errs.ConfigError{Reason: "max reconnect attempts cannot be negative"}
	}
	if c.Filters.PriceChangeMin < 0 {
		return &errs.ConfigError{Reason: "price change threshold cannot be negative"}
	}
	if c.EventBufferSize <= 0 {
		return &errs.ConfigError{Reason: "event buffer size must be positive"}
	}
	if c.QueryRatePerSec <= 0 {
		return &errs.ConfigError{Reason: "query rate must be positive"}
	}
	return nil
}
