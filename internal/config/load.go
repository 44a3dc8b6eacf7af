// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix selects generic overrides: AUTHORITY_TOKENS__REFRESH_TTL sets
// tokens.refresh_ttl.
const EnvPrefix = "AUTHORITY_"

// envKeys maps the conventional variable names to config keys.
var envKeys = map[string]string{
	"APP_NAME":          "app.name",
	"APP_ENV":           "app.env",
	"NODE_ENV":          "app.env",
	"APP_PORT":          "http.port",
	"API_BASE_PREFIX":   "http.base_prefix",
	"API_VERSION":       "http.version",
	"CORS_ORIGINS":      "http.cors_origins",
	"LOG_FORMAT":        "log.format",
	"LOG_LEVEL":         "log.level",
	"METRICS_ADDR":      "metrics.addr",
	"DATABASE_URL":      "database.url",
	"DATABASE_HOST":     "database.host",
	"DATABASE_PORT":     "database.port",
	"DATABASE_USERNAME": "database.username",
	"DATABASE_PASSWORD": "database.password",
	"DATABASE_NAME":     "database.name",
	"JWT_SECRET":        "tokens.jwt_secret",
	"JWT_EXPIRES_IN":    "tokens.access_ttl",
	"REFRESH_TOKEN_TTL": "tokens.refresh_ttl",
	"REDIS_ADDR":        "redis.addr",
	"REDIS_PASSWORD":    "redis.password",
	"AMQP_URL":          "amqp.url",
	"SMTP_HOST":         "smtp.host",
	"SMTP_PORT":         "smtp.port",
	"SMTP_USERNAME":     "smtp.username",
	"SMTP_PASSWORD":     "smtp.password",
	"SMTP_FROM":         "smtp.from",
	"SMTP_RESET_URL":    "smtp.reset_url",
	"SMTP_VERIFY_URL":   "smtp.verify_url",
}

// flagKeys maps the flags registered by RegisterFlags to config keys.
var flagKeys = map[string]string{
	"env":          "app.env",
	"http-port":    "http.port",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"metrics-addr": "metrics.addr",
	"database-url": "database.url",
}

// RegisterFlags adds the overridable settings to fs. Their defaults come
// from Default.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("env", d.App.Env, "deployment environment (development, production, test)")
	fs.Int("http-port", d.HTTP.Port, "API listen port")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("database-url", "", "PostgreSQL connection URL")
}

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// File is a YAML config file. Empty means none.
	File string
	// EnvFiles are dotenv files loaded into the process environment first.
	// Missing files are skipped; variables already set are kept.
	EnvFiles []string
	// Flags are parsed command-line flags registered with RegisterFlags.
	Flags *pflag.FlagSet
}

// Load builds the configuration from defaults, the YAML file, the
// environment and then flags, each overriding the last, and validates it.
func Load(opts LoadOptions) (*Config, error) {
	cfg, err := load(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnvalidated is Load without the final Validate, for commands that
// only display configuration.
func LoadUnvalidated(opts LoadOptions) (*Config, error) {
	return load(opts)
}

func load(opts LoadOptions) (*Config, error) {
	for _, f := range opts.EnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_ENV_FILE_INVALID").With("file", f).Wrap(err)
		}
	}

	k := koanf.New(".")

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, oops.Code("CONFIG_FILE_UNREADABLE").With("file", opts.File).Wrap(err)
		}
		if err := ValidateYAML(data); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("file", opts.File).Wrap(err)
		}
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("file", opts.File).Wrap(err)
		}
	}

	_, appEnvSet := os.LookupEnv("APP_ENV")
	envProvider := env.ProviderWithValue("", ".", func(name, value string) (string, any) {
		if name == "NODE_ENV" && appEnvSet {
			return "", nil
		}
		return envKey(name), value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}

	if opts.Flags != nil {
		flagProvider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			if f.Value.Type() == "string" && !f.Changed && f.Value.String() == "" {
				return "", nil
			}
			return key, f.Value.String()
		})
		if err := k.Load(flagProvider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	cfg := Default()
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "json",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	return &cfg, nil
}

// envKey returns the config key for an environment variable, or "" to
// ignore it.
func envKey(name string) string {
	if key, ok := envKeys[name]; ok {
		return key
	}
	rest, ok := strings.CutPrefix(name, EnvPrefix)
	if !ok || rest == "" {
		return ""
	}
	return strings.ToLower(strings.ReplaceAll(rest, "__", "."))
}
