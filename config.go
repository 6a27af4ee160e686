package teneo

import (
	"log/slog"
	"time"

	"github.com/teneoprotocol/teneo-go/pkg/backoff"
	"github.com/teneoprotocol/teneo-go/pkg/config"
	"github.com/teneoprotocol/teneo-go/pkg/signer"
)

// ReconnectionConfig governs the automatic reconnection loop. The zero
// value means: enabled, exponential backoff, base 3s, cap 2m,
// multiplier 2.5, jitter up to 1s, 15 attempts.
type ReconnectionConfig struct {
	Disabled    bool          `env:"TENEO_RECONNECT_DISABLED" yaml:"disabled"`
	Strategy    string        `env:"TENEO_RECONNECT_STRATEGY" yaml:"strategy"` // exponential, linear, constant
	BaseDelay   time.Duration `env:"TENEO_RECONNECT_BASE_DELAY" yaml:"base_delay"`
	MaxDelay    time.Duration `env:"TENEO_RECONNECT_MAX_DELAY" yaml:"max_delay"`
	MaxAttempts int           `env:"TENEO_RECONNECT_MAX_ATTEMPTS" yaml:"max_attempts"`
	Jitter      time.Duration `env:"TENEO_RECONNECT_JITTER" yaml:"jitter"`
	Multiplier  float64       `env:"TENEO_RECONNECT_MULTIPLIER" yaml:"multiplier"`
}

func (r ReconnectionConfig) strategy() backoff.Strategy {
	base := r.BaseDelay
	if base <= 0 {
		base = 3 * time.Second
	}
	max := r.MaxDelay
	if max <= 0 {
		max = 2 * time.Minute
	}
	jitter := r.Jitter
	if jitter < 0 {
		jitter = 0
	} else if jitter == 0 {
		jitter = time.Second
	}
	switch r.Strategy {
	case "linear":
		return backoff.Linear{Step: base, Max: max, Jitter: jitter}
	case "constant":
		return backoff.Constant{Interval: base, Jitter: jitter}
	default:
		multiplier := r.Multiplier
		if multiplier <= 0 {
			multiplier = 2.5
		}
		return backoff.Exponential{Base: base, Max: max, Multiplier: multiplier, Jitter: jitter}
	}
}

// DedupConfig governs inbound message deduplication. Zero value:
// enabled, 60s TTL, 10000 ids.
type DedupConfig struct {
	Disabled bool          `env:"TENEO_DEDUP_DISABLED" yaml:"disabled"`
	TTL      time.Duration `env:"TENEO_DEDUP_TTL" yaml:"ttl"`
	MaxSize  int           `env:"TENEO_DEDUP_MAX_SIZE" yaml:"max_size"`
}

// RateLimitConfig governs the outbound token bucket. Zero value:
// enabled, 10 sends per second, burst 20.
type RateLimitConfig struct {
	Disabled bool    `env:"TENEO_RATE_LIMIT_DISABLED" yaml:"disabled"`
	Rate     float64 `env:"TENEO_RATE_LIMIT_RATE" yaml:"rate"`
	Burst    int     `env:"TENEO_RATE_LIMIT_BURST" yaml:"burst"`
}

// SignatureConfig governs optional verification of inbound message
// signatures. Off unless Enabled is set.
type SignatureConfig struct {
	Enabled          bool     `env:"TENEO_SIGNATURE_VERIFY" yaml:"enabled"`
	TrustedAddresses []string `env:"TENEO_SIGNATURE_TRUSTED" yaml:"trusted_addresses"`
	RequireFor       []string `env:"TENEO_SIGNATURE_REQUIRE_FOR" yaml:"require_for"`
	StrictMode       bool     `env:"TENEO_SIGNATURE_STRICT" yaml:"strict_mode"`
}

// WebhookConfig tunes the outbound webhook pipeline. The target URL and
// headers are set at runtime through ConfigureWebhook.
type WebhookConfig struct {
	RetryStrategy string        `env:"TENEO_WEBHOOK_RETRY_STRATEGY" yaml:"retry_strategy"` // exponential, linear, constant
	RetryBase     time.Duration `env:"TENEO_WEBHOOK_RETRY_BASE" yaml:"retry_base"`
	RetryMax      time.Duration `env:"TENEO_WEBHOOK_RETRY_MAX" yaml:"retry_max"`
	MaxAttempts   int           `env:"TENEO_WEBHOOK_MAX_ATTEMPTS" yaml:"max_attempts"`
	QueueCapacity int           `env:"TENEO_WEBHOOK_QUEUE_CAPACITY" yaml:"queue_capacity"`
	// AllowInsecure lifts only the loopback restriction of the egress
	// URL validation. Development use only.
	AllowInsecure bool `env:"TENEO_WEBHOOK_ALLOW_INSECURE" yaml:"allow_insecure"`
}

func (w WebhookConfig) strategy() backoff.Strategy {
	base := w.RetryBase
	if base <= 0 {
		base = time.Second
	}
	max := w.RetryMax
	if max <= 0 {
		max = 30 * time.Second
	}
	switch w.RetryStrategy {
	case "linear":
		return backoff.Linear{Step: base, Max: max}
	case "constant":
		return backoff.Constant{Interval: base}
	default:
		return backoff.Exponential{Base: base, Max: max, Multiplier: 2, Jitter: 100 * time.Millisecond}
	}
}

// ResponseConfig selects the default response shaping.
type ResponseConfig struct {
	Format          string `env:"TENEO_RESPONSE_FORMAT" yaml:"format"` // raw, humanized, both
	IncludeMetadata bool   `env:"TENEO_RESPONSE_METADATA" yaml:"include_metadata"`
}

// Config is the single configuration record consumed by New. Only URL
// and one of PrivateKey or Secret are required; everything else has a
// working default. The struct is taggable from the environment (see
// LoadConfig) or a YAML file.
type Config struct {
	// URL is the coordinator WebSocket endpoint, e.g. wss://host/ws.
	URL string `env:"TENEO_WS_URL" yaml:"url"`

	// PrivateKey is the hex-encoded secp256k1 scalar, with or without
	// a 0x prefix. Ignored when Secret is set.
	PrivateKey string `env:"TENEO_PRIVATE_KEY" yaml:"private_key"`
	// Secret supplies the key pre-wrapped, for callers that never want
	// the scalar in a Go string.
	Secret *signer.SecureSecret `env:"-" yaml:"-"`
	// ExpectedAddress, when set, must match the address derived from
	// the key; a mismatch fails construction.
	ExpectedAddress string `env:"TENEO_EXPECTED_ADDRESS" yaml:"expected_address"`
	// ClientType is the role declared during authentication: user,
	// agent, or coordinator. Defaults to user.
	ClientType string `env:"TENEO_CLIENT_TYPE" yaml:"client_type"`

	ConnectionTimeout time.Duration `env:"TENEO_CONNECTION_TIMEOUT" yaml:"connection_timeout"`
	MessageTimeout    time.Duration `env:"TENEO_MESSAGE_TIMEOUT" yaml:"message_timeout"`

	Reconnection ReconnectionConfig `yaml:"reconnection"`
	Response     ResponseConfig     `yaml:"response"`
	Dedup        DedupConfig        `yaml:"dedup"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Signature    SignatureConfig    `yaml:"signature"`
	Webhook      WebhookConfig      `yaml:"webhook"`

	// LogLevel is a level tag only (debug, info, warn, error); the
	// sink itself comes from Logger or defaults to stderr JSON.
	LogLevel string       `env:"TENEO_LOG_LEVEL" yaml:"log_level"`
	Logger   *slog.Logger `env:"-" yaml:"-"`
}

// LoadConfig builds a Config from the environment, loading a local
// .env file first if one exists.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile builds a Config from a YAML file with environment
// variables applied on top.
func LoadConfigFile(path string) (Config, error) {
	var cfg Config
	if err := config.LoadFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
