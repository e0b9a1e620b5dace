package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gprojets/gprojets/globals"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultHistorySize     = 50
	defaultScanInterval    = 30 * time.Second
	defaultScanLookahead   = 24 * time.Hour
	defaultAdminGroup      = "Admins"
	defaultTokenTTL        = 24 * time.Hour
	defaultTokenCacheSize  = 1024
	defaultJWTIssuer       = "gprojets"
	defaultLogLevel        = "INFO"
	defaultPersistenceType = "buntdb"
)

// Config is the global configuration object which is filled via the
// configuration file.
type Config struct {
	LogLevel          string            `mapstructure:"log_level"`
	HistoryConfig     HistoryConfig     `mapstructure:"history"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	AuthConfig        AuthConfig        `mapstructure:"auth"`
	ScannerConfig     ScannerConfig     `mapstructure:"scanner"`
}

// HistoryConfig configures the message history returned to clients on
// initial load.
type HistoryConfig struct {
	Size int `mapstructure:"size"`
}

// PersistenceConfig selects the persistence backend. Supported types are
// "buntdb", "sqlite" and "postgres"; the DSN is backend-specific (a file
// path for buntdb/sqlite, a connection string for postgres).
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// An OIDCConfig block configures an OpenID Connect provider whose ID tokens
// are accepted as bearer tokens on the hub endpoint.
type OIDCConfig struct {
	Name        string `mapstructure:"name"`
	ClientId    string `mapstructure:"client_id"`
	ProviderUrl string `mapstructure:"provider_url"`
}

// AuthConfig configures bearer-token verification. JWTSecret enables the
// HMAC verifier (also used by the admin CLI to mint tokens), OIDC providers
// are tried when the HMAC verification does not apply.
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTIssuer      string        `mapstructure:"jwt_issuer"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	TokenCacheSize int           `mapstructure:"token_cache_size"`
	OIDCConfigs    []OIDCConfig  `mapstructure:"oidc"`
}

// ScannerConfig configures the deadline scanner loop.
type ScannerConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Lookahead time.Duration `mapstructure:"lookahead"`
	Group     string        `mapstructure:"group"`
	Filter    string        `mapstructure:"filter"`
}

// GetFlagSet returns the flags that may override configuration file values.
func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("log-level", defaultLogLevel, "log level (TRACE/DEBUG/INFO/WARN/ERROR)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use
// - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.Replace(name, "-", "_", -1))
}

// ReadConfiguration reads and parses the configuration located at
// configPath, which can either point to a single TOML file or to a
// directory, in which case all *.toml files in this directory are
// concatenated. It returns a Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("log_level", defaultLogLevel)
	viper.SetDefault("history.size", defaultHistorySize)
	viper.SetDefault("persistence.type", defaultPersistenceType)
	viper.SetDefault("auth.jwt_issuer", defaultJWTIssuer)
	viper.SetDefault("auth.token_ttl", defaultTokenTTL)
	viper.SetDefault("auth.token_cache_size", defaultTokenCacheSize)
	viper.SetDefault("scanner.interval", defaultScanInterval)
	viper.SetDefault("scanner.lookahead", defaultScanLookahead)
	viper.SetDefault("scanner.group", defaultAdminGroup)
	if err := viper.BindPFlags(flagSet); err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("GPROJETS")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		if err := viper.ReadConfig(bytes.NewBuffer(contents)); err != nil {
			globals.AppLogger.Error("could not read config", "error", err)
		}
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		globals.AppLogger.Error("could not unmarshal config", "error", err)
	}
	globals.AppLogger.Debug("config", "cfg", cfg)
	return &cfg, nil
}
