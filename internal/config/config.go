package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	// RedisAddr selects the cache collaborator. Empty means an in-process
	// cache; presence survives only as long as the process either way.
	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`

	// PrincipalCacheTTL bounds how long authenticated principals stay
	// cached between connections.
	PrincipalCacheTTL time.Duration `mapstructure:"principal_cache_ttl" yaml:"principal_cache_ttl"`

	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	TypingWindow      time.Duration `mapstructure:"typing_window" yaml:"typing_window"`
	HistoryLimit      int           `mapstructure:"history_limit" yaml:"history_limit"`
	PresenceThreshold time.Duration `mapstructure:"presence_threshold" yaml:"presence_threshold"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "duochat.db",
		RedisAddr:         "",
		LogLevel:          "info",
		JWTSecret:         "dev-secret-change-me",
		JWTIssuer:         "duochat",
		JWTAudience:       "duochat-clients",
		TokenTTL:          24 * time.Hour,
		PrincipalCacheTTL: time.Hour,
		HeartbeatInterval: 30 * time.Second,
		TypingWindow:      2 * time.Second,
		HistoryLimit:      500,
		PresenceThreshold: 30 * time.Second,
	}
}
