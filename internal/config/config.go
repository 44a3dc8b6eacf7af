// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads the authority's configuration from a YAML file, the
// environment and command-line flags.
package config

import (
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// MinSecretLength is the shortest accepted JWT signing secret.
const MinSecretLength = 32

// Config is the complete runtime configuration.
type Config struct {
	App      AppConfig      `json:"app"`
	HTTP     HTTPConfig     `json:"http"`
	Log      LogConfig      `json:"log"`
	Metrics  MetricsConfig  `json:"metrics"`
	Database DatabaseConfig `json:"database"`
	Tokens   TokensConfig   `json:"tokens"`
	Redis    RedisConfig    `json:"redis"`
	AMQP     AMQPConfig     `json:"amqp"`
	SMTP     SMTPConfig     `json:"smtp"`
}

// AppConfig identifies the deployment.
type AppConfig struct {
	Name string `json:"name,omitempty"`
	Env  string `json:"env,omitempty" jsonschema:"enum=development,enum=production,enum=test"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Host            string   `json:"host,omitempty"`
	Port            int      `json:"port,omitempty" jsonschema:"minimum=1,maximum=65535"`
	BasePrefix      string   `json:"base_prefix,omitempty"`
	Version         string   `json:"version,omitempty"`
	CORSOrigins     []string `json:"cors_origins,omitempty" jsonschema:"description=Allowed origins; glob patterns such as https://*.example.com"`
	ShutdownTimeout Duration `json:"shutdown_timeout,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// MetricsConfig configures the metrics and health listener. An empty
// address disables it.
type MetricsConfig struct {
	Addr string `json:"addr,omitempty"`
}

// DatabaseConfig locates PostgreSQL, either as a URL or as parts.
type DatabaseConfig struct {
	URL             string `json:"url,omitempty"`
	Host            string `json:"host,omitempty"`
	Port            int    `json:"port,omitempty"`
	Username        string `json:"username,omitempty"`
	Password        string `json:"password,omitempty"`
	Name            string `json:"name,omitempty"`
	SSLMode         string `json:"sslmode,omitempty" jsonschema:"enum=disable,enum=allow,enum=prefer,enum=require,enum=verify-ca,enum=verify-full"`
	MaxConns        int32  `json:"max_conns,omitempty" jsonschema:"minimum=0"`
	ConnectAttempts uint64 `json:"connect_attempts,omitempty" jsonschema:"minimum=1"`
}

// TokensConfig configures credential lifetimes and signing.
type TokensConfig struct {
	JWTSecret       string   `json:"jwt_secret,omitempty"`
	Issuer          string   `json:"issuer,omitempty"`
	AccessTTL       Duration `json:"access_ttl,omitempty"`
	RefreshTTL      Duration `json:"refresh_ttl,omitempty"`
	ResetTTL        Duration `json:"reset_ttl,omitempty"`
	VerificationTTL Duration `json:"verification_ttl,omitempty"`
	BcryptCost      int      `json:"bcrypt_cost,omitempty" jsonschema:"minimum=4,maximum=31"`
}

// RedisConfig enables the user cache when Addr is set.
type RedisConfig struct {
	Addr     string   `json:"addr,omitempty"`
	Password string   `json:"password,omitempty"`
	DB       int      `json:"db,omitempty" jsonschema:"minimum=0"`
	TTL      Duration `json:"ttl,omitempty"`
}

// AMQPConfig enables audit event publishing when URL is set.
type AMQPConfig struct {
	URL      string `json:"url,omitempty"`
	Exchange string `json:"exchange,omitempty"`
}

// SMTPConfig enables mail delivery when Host is set. ResetURL and VerifyURL
// are link templates; "{token}" is replaced by the token.
type SMTPConfig struct {
	Host      string `json:"host,omitempty"`
	Port      int    `json:"port,omitempty" jsonschema:"minimum=1,maximum=65535"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	From      string `json:"from,omitempty"`
	ResetURL  string `json:"reset_url,omitempty"`
	VerifyURL string `json:"verify_url,omitempty"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		App: AppConfig{Name: "Authority", Env: EnvDevelopment},
		HTTP: HTTPConfig{
			Port:            3000,
			BasePrefix:      "/api",
			Version:         "v1",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Log:     LogConfig{Format: "json", Level: "info"},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			SSLMode:         "disable",
			MaxConns:        10,
			ConnectAttempts: 5,
		},
		Tokens: TokensConfig{
			Issuer:          "authority",
			AccessTTL:       Duration(day),
			RefreshTTL:      Duration(30 * day),
			ResetTTL:        Duration(day),
			VerificationTTL: Duration(2 * day),
			BcryptCost:      10,
		},
		Redis: RedisConfig{TTL: Duration(5 * time.Minute)},
		AMQP:  AMQPConfig{Exchange: "authority.audit"},
		SMTP:  SMTPConfig{Port: 587},
	}
}

// IsProduction reports whether the deployment is production.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// Addr returns the API listen address.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// BasePath joins the prefix and version into the route group path, such
// as "/api/v1".
func (h HTTPConfig) BasePath() string {
	parts := []string{}
	for _, p := range []string{h.BasePrefix, h.Version} {
		if p = strings.Trim(p, "/"); p != "" {
			parts = append(parts, p)
		}
	}
	return "/" + strings.Join(parts, "/")
}

// DSN returns the connection URL, building one from the parts when URL is
// empty.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.Username != "" {
		u.User = url.UserPassword(d.Username, d.Password)
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}

var (
	validEnvs      = []string{EnvDevelopment, EnvProduction, EnvTest}
	validLogFormat = []string{"json", "text"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

// Validate reports every problem with the configuration in one
// CONFIG_INVALID error.
func (c *Config) Validate() error {
	var problems []string
	add := func(msg string, ok bool) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	add("app.env must be one of development, production, test", slices.Contains(validEnvs, c.App.Env))
	add("http.port must be between 1 and 65535", c.HTTP.Port >= 1 && c.HTTP.Port <= 65535)
	add("log.format must be json or text", slices.Contains(validLogFormat, c.Log.Format))
	add("log.level must be debug, info, warn or error", slices.Contains(validLogLevels, strings.ToLower(c.Log.Level)))
	add("database.url or database.host and database.name are required",
		c.Database.URL != "" || (c.Database.Host != "" && c.Database.Name != ""))
	add("database.connect_attempts must be at least 1", c.Database.ConnectAttempts >= 1)
	add("tokens.jwt_secret must be at least 32 characters", len(c.Tokens.JWTSecret) >= MinSecretLength)
	add("tokens.access_ttl must be positive", c.Tokens.AccessTTL > 0)
	add("tokens.refresh_ttl must be positive", c.Tokens.RefreshTTL > 0)
	add("tokens.reset_ttl must be positive", c.Tokens.ResetTTL > 0)
	add("tokens.verification_ttl must be positive", c.Tokens.VerificationTTL > 0)
	add("tokens.bcrypt_cost must be between 4 and 31", c.Tokens.BcryptCost >= 4 && c.Tokens.BcryptCost <= 31)
	add("smtp.from is required when smtp.host is set", c.SMTP.Host == "" || c.SMTP.From != "")

	if len(problems) == 0 {
		return nil
	}
	return oops.Code("CONFIG_INVALID").
		With("problems", problems).
		Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}
