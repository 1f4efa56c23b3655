// Package config loads the dyapi configuration from a YAML file, DYAPI_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edgeflare/dyapi/pkg/entity"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

// Storage backends.
const (
	BackendTable  = "table"
	BackendMemory = "memory"
)

// EnvPrefix prefixes every environment variable, e.g. DYAPI_SERVER_LISTENADDR.
const EnvPrefix = "DYAPI"

var (
	ErrUnknownBackend = errors.New("unknown storage backend")
	ErrNoConnString   = errors.New("table backend requires storage.pg.connString")
)

// Config holds application-wide configuration.
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Storage  StorageConfig   `mapstructure:"storage"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
	Entities []entity.Config `mapstructure:"entities"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listenAddr"`
	BaseURL         string        `mapstructure:"baseURL"`
	TLSCertFile     string        `mapstructure:"tlsCertFile"`
	TLSKeyFile      string        `mapstructure:"tlsKeyFile"`
	MaxBodyBytes    int64         `mapstructure:"maxBodyBytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowedOrigins"`
	AllowCredentials bool     `mapstructure:"allowCredentials"`
}

type StorageConfig struct {
	Backend      string   `mapstructure:"backend"`
	Schema       string   `mapstructure:"schema"`
	CreateTables bool     `mapstructure:"createTables"`
	PG           PGConfig `mapstructure:"pg"`
}

type PGConfig struct {
	ConnString     string        `mapstructure:"connString"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listenAddr", ":8080")
	v.SetDefault("server.baseURL", "")
	v.SetDefault("server.tlsCertFile", "")
	v.SetDefault("server.tlsKeyFile", "")
	v.SetDefault("server.maxBodyBytes", 1<<20)
	v.SetDefault("server.shutdownTimeout", 10*time.Second)
	v.SetDefault("server.cors.allowedOrigins", []string{"*"})
	v.SetDefault("server.cors.allowCredentials", false)
	v.SetDefault("storage.backend", BackendTable)
	v.SetDefault("storage.schema", "public")
	v.SetDefault("storage.createTables", true)
	v.SetDefault("storage.pg.connString", "")
	v.SetDefault("storage.pg.connectTimeout", 30*time.Second)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads config from cfgFile, or from dyapi.yaml in $HOME/.config or the
// working directory when cfgFile is empty. Flags in fs override file and
// environment values when set; fs may be nil.
func Load(cfgFile string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("dyapi")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	return &cfg, nil
}

// Validate checks the storage settings and every entity definition.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendTable:
		if c.Storage.PG.ConnString == "" {
			return ErrNoConnString
		}
	default:
		return fmt.Errorf("%w %q", ErrUnknownBackend, c.Storage.Backend)
	}
	if err := entity.ValidateAll(c.Entities); err != nil {
		return fmt.Errorf("entities: %w", err)
	}
	return nil
}
