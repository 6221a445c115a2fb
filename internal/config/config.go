// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jason-s-yu/velada/internal/realtime"
	"github.com/sirupsen/logrus"
)

// ServerConfig configures the authority server.
type ServerConfig struct {
	Port           string   `env:"PORT"            envDefault:"8080"`
	DatabaseURL    string   `env:"DATABASE_URL,required,notEmpty"`
	RedisAddr      string   `env:"REDIS_ADDR"      envDefault:"localhost:6379"`
	RedisDB        int      `env:"REDIS_DB"        envDefault:"0"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	Env            string   `env:"VELADA_ENV"      envDefault:"development"`

	// JWT keys; both empty => a key pair is generated at startup.
	JWTPrivateKeyPath string `env:"JWT_PRIVATE_KEY_PATH"`
	JWTPublicKeyPath  string `env:"JWT_PUBLIC_KEY_PATH"`

	// TokenExpireTime accepts a Go duration, or "never"/"0".
	TokenExpireTime string `env:"TOKEN_EXPIRE_TIME" envDefault:"72h"`

	// PingInterval is how often the event endpoint sends PING to idle subscribers.
	PingInterval time.Duration `env:"VELADA_PING_INTERVAL" envDefault:"25s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"debug"`
}

// ClientConfig configures the watcher CLI.
type ClientConfig struct {
	APIURL          string        `env:"VELADA_API_URL"           envDefault:"http://localhost:8080"`
	Origin          string        `env:"VELADA_ORIGIN"`
	Token           string        `env:"VELADA_TOKEN"`
	RealtimeEnabled bool          `env:"VELADA_REALTIME_ENABLED"  envDefault:"true"`
	InitialDelay    time.Duration `env:"VELADA_RECONNECT_INITIAL" envDefault:"1500ms"`
	MaxDelay        time.Duration `env:"VELADA_RECONNECT_MAX"     envDefault:"15s"`
	RequestTimeout  time.Duration `env:"VELADA_REQUEST_TIMEOUT"   envDefault:"10s"`
	LogLevel        string        `env:"VELADA_LOG_LEVEL"         envDefault:"info"`
}

// Realtime returns the channel configuration derived from the client settings.
func (c ClientConfig) Realtime() realtime.Config {
	return realtime.Config{
		BaseURL:      c.APIURL,
		Origin:       c.Origin,
		Token:        c.Token,
		InitialDelay: c.InitialDelay,
		MaxDelay:     c.MaxDelay,
	}
}

// LoadServer parses the server configuration from the environment.
func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// LoadClient parses the client configuration from the environment.
func LoadClient() (ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the process logger: JSON in production, text otherwise.
func NewLogger(environment, level string) *logrus.Logger {
	logger := logrus.New()
	if environment == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}
