// Package config loads the instance configuration.
//
// Sources are applied in order, each one overriding the previous:
// built-in defaults, a YAML file, a .env file, PORTALGATE_* environment
// variables. Command-line flags are applied last by the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/aretw0/portalgate/pkg/domain"
	"github.com/aretw0/portalgate/pkg/persistence/middleware"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "PORTALGATE_"

// Config holds everything an instance needs at startup.
type Config struct {
	// InstanceID identifies this process among its peers. Generated when empty.
	InstanceID string `yaml:"instance_id" mapstructure:"instance_id" env:"INSTANCE_ID"`

	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" mapstructure:"listen" env:"LISTEN"`

	// Timeout is the sliding inactivity window of a token.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" env:"TIMEOUT"`

	// PeerTimeout bounds a single query to a sibling instance.
	PeerTimeout time.Duration `yaml:"peer_timeout" mapstructure:"peer_timeout" env:"PEER_TIMEOUT"`

	// Peers lists the sibling instances in query order. Self is skipped.
	Peers PeerList `yaml:"peers" mapstructure:"peers" env:"PEERS"`

	// ENTs restricts the identity providers accepted at login. Empty accepts any.
	ENTs []string `yaml:"ents" mapstructure:"ents" env:"ENTS" envSeparator:","`

	Store StoreConfig `yaml:"store" mapstructure:"store" envPrefix:"STORE_"`
	Log   LogConfig   `yaml:"log" mapstructure:"log" envPrefix:"LOG_"`
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	// Kind is "memory" (default) or "redis".
	Kind  string      `yaml:"kind" mapstructure:"kind" env:"KIND"`
	Redis RedisConfig `yaml:"redis" mapstructure:"redis" envPrefix:"REDIS_"`

	// EncryptionKey is a base64 AES-256 key sealing handles written to the redis store.
	EncryptionKey string `yaml:"encryption_key" mapstructure:"encryption_key" env:"ENCRYPTION_KEY"`
	// FallbackKeys are previous keys still accepted for reading.
	FallbackKeys []string `yaml:"fallback_keys" mapstructure:"fallback_keys" env:"FALLBACK_KEYS" envSeparator:","`
}

// Encryption returns the sealer for stored handles, or nil when no key is set.
func (s StoreConfig) Encryption() (*middleware.Encryption, error) {
	if s.EncryptionKey == "" {
		return nil, nil
	}
	keys, err := middleware.ParseKeys(s.EncryptionKey, s.FallbackKeys...)
	if err != nil {
		return nil, err
	}
	return middleware.NewEncryption(keys)
}

// RedisConfig configures the shared store.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr" env:"ADDR"`
	Password string `yaml:"password" mapstructure:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" mapstructure:"db" env:"DB"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix" env:"PREFIX"`
}

// LogConfig configures the application logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level" env:"LEVEL"`
	Format string `yaml:"format" mapstructure:"format" env:"FORMAT"`
}

// PeerList is an ordered list of peers. As text it reads "id=address,id=address".
type PeerList []domain.Peer

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PeerList) UnmarshalText(text []byte) error {
	var out PeerList
	for _, item := range strings.Split(string(text), ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, addr, ok := strings.Cut(item, "=")
		if !ok || id == "" || addr == "" {
			return fmt.Errorf("invalid peer %q, expected id=address", item)
		}
		out = append(out, domain.Peer{ID: strings.TrimSpace(id), Address: strings.TrimSpace(addr)})
	}
	*p = out
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:      ":8080",
		Timeout:     domain.DefaultTimeout,
		PeerTimeout: domain.DefaultPeerTimeout,
		Store: StoreConfig{
			Kind: "memory",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "portalgate:session:",
			},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path,
// the optional .env file in the working directory and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      c,
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.PeerTimeout <= 0 {
		errs = append(errs, errors.New("peer_timeout must be positive"))
	}
	switch c.Store.Kind {
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store kind %q", c.Store.Kind))
	}
	if c.Store.EncryptionKey != "" {
		if _, err := c.Store.Encryption(); err != nil {
			errs = append(errs, fmt.Errorf("store.encryption_key: %w", err))
		}
	}
	for i, p := range c.Peers {
		if p.ID == "" || p.Address == "" {
			errs = append(errs, fmt.Errorf("peers[%d]: id and address are required", i))
		}
	}
	return errors.Join(errs...)
}
