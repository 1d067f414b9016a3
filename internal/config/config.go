package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dkeye/peercall/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const DefaultSTUN = "stun:stun.l.google.com:19302"

type Config struct {
	// relay
	Mode           string   `mapstructure:"mode"`
	Port           int      `mapstructure:"port"`
	Secret         string   `mapstructure:"secret"`
	MaxMembers     int      `mapstructure:"max_members"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// shared websocket tuning
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	// participant
	SignalURL        string        `mapstructure:"signal_url"`
	ICEServers       []string      `mapstructure:"ice_servers"`
	RecordDir        string        `mapstructure:"record_dir"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`

	LogLevel string `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8000)
	v.SetDefault("secret", "peercall-dev-secret")
	v.SetDefault("max_members", 2)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("signal_url", "ws://localhost:8000/join")
	v.SetDefault("ice_servers", []string{DefaultSTUN})
	v.SetDefault("record_dir", "")
	v.SetDefault("handshake_timeout", "10s")
	v.SetDefault("log_level", "info")
}

// Load reads config/config.<CONFIG_ENV>.yaml when present (or path, when not
// empty), then PEERCALL_* environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("peercall")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		path = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		log.Debug().Str("module", "config").Str("file", path).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", path).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxMembers < 2 {
		return errors.New("max_members must be at least 2")
	}
	if c.PingPeriod <= 0 {
		return errors.New("ping_period must be positive")
	}
	if _, err := url.Parse(c.SignalURL); err != nil {
		return fmt.Errorf("invalid signal_url: %w", err)
	}
	return nil
}

// RoomURL returns the signaling endpoint scoped to roomID.
func (c *Config) RoomURL(roomID domain.RoomID) (string, error) {
	u, err := url.Parse(c.SignalURL)
	if err != nil {
		return "", fmt.Errorf("invalid signal_url: %w", err)
	}
	q := u.Query()
	q.Set("roomID", string(roomID))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// PongWait is how long a websocket peer may stay silent before it is dropped.
func (c *Config) PongWait() time.Duration {
	return c.PingPeriod * 10 / 9
}

// APIURL maps the signaling endpoint onto the relay's HTTP surface, so
// ws://host/join becomes http://host/<path>.
func (c *Config) APIURL(path string) (string, error) {
	u, err := url.Parse(c.SignalURL)
	if err != nil {
		return "", fmt.Errorf("invalid signal_url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = "/" + strings.TrimPrefix(path, "/")
	u.RawQuery = ""
	return u.String(), nil
}
