// Package config loads the client configuration from config.yaml with
// environment overrides. Defaults mirror the storefront's socket options.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Socket SocketConfig `mapstructure:"socket"`
	REST   RESTConfig   `mapstructure:"rest"`
	Trace  TraceConfig  `mapstructure:"trace"`
}

// ServerConfig configures the dev server listen address.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// SocketConfig is the connection option surface. The fields correspond to
// the socket options the web clients pass when opening the connection.
type SocketConfig struct {
	URL                  string        `mapstructure:"url"`
	Path                 string        `mapstructure:"path"`
	Transports           []string      `mapstructure:"transports"`
	ReconnectionAttempts int           `mapstructure:"reconnection_attempts"`
	ReconnectionDelay    time.Duration `mapstructure:"reconnection_delay"`
	ReconnectionDelayMax time.Duration `mapstructure:"reconnection_delay_max"`
	Timeout              time.Duration `mapstructure:"timeout"`
}

// RESTConfig configures the admin-side REST collaborator.
type RESTConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TraceConfig configures the optional OTLP trace exporter.
type TraceConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Load reads config.yaml (working directory or ./configs) and applies
// CHAT_-prefixed environment overrides. A missing file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("socket.url", "http://localhost:8080")
	v.SetDefault("socket.path", "/beauty/")
	v.SetDefault("socket.transports", []string{"websocket", "polling"})
	v.SetDefault("socket.reconnection_attempts", 5)
	v.SetDefault("socket.reconnection_delay", time.Second)
	v.SetDefault("socket.reconnection_delay_max", 5*time.Second)
	v.SetDefault("socket.timeout", 10*time.Second)
	v.SetDefault("rest.base_url", "http://localhost:8080")
	v.SetDefault("rest.timeout", 10*time.Second)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// SocketURL converts the configured http(s) base URL and path into the
// websocket endpoint to dial.
func (c SocketConfig) SocketURL() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported socket url scheme %q", u.Scheme)
	}
	u.Path = c.Path
	return u.String(), nil
}
