package config

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tcriess/terrace-buddy/globals"
)

const (
	defaultAddr                = "localhost:5000"
	defaultPersistenceType     = "buntdb"
	defaultPersistenceDSN      = "terrace-buddy.db"
	defaultJWTIssuer           = "terrace-buddy"
	defaultTokenTTL            = 24 * time.Hour
	defaultSendBufferSize      = 256
	defaultInboxSize           = 64
	defaultEventsPerSecond     = 20.0
	defaultEventBurst          = 40
	defaultMembershipCacheSize = 4096
	defaultMembershipCacheTTL  = 30 * time.Second
	defaultHistoryLimit        = 50
	defaultMaxHistoryLimit     = 200
	defaultNotificationLimit   = 50
	defaultRetention           = 30 * 24 * time.Hour
	defaultRetentionCron       = "@daily"
	defaultLogLevel            = "info"
	envPrefix                  = "TBUDDY"
)

// Config is the global configuration object which is filled via the configuration file, the environment
// (prefix TBUDDY_) and the command line flags.
type Config struct {
	ServerConfig        ServerConfig        `mapstructure:"server"`
	AuthConfig          AuthConfig          `mapstructure:"auth"`
	PersistenceConfig   PersistenceConfig   `mapstructure:"persistence"`
	RealtimeConfig      RealtimeConfig      `mapstructure:"realtime"`
	NotificationsConfig NotificationsConfig `mapstructure:"notifications"`
	HistoryConfig       HistoryConfig       `mapstructure:"history"`
	LogLevel            string              `mapstructure:"log_level"`
}

// ServerConfig configures the HTTP listener that serves both the REST endpoints and the websocket endpoint.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	SSLCert        string   `mapstructure:"ssl_cert"`
	SSLKey         string   `mapstructure:"ssl_key"`
	AllowedOrigins []string `mapstructure:"allowed_origins"` // empty: same-origin and non-browser clients only
}

// AuthConfig configures the credential verification. JWTSecret enables HS256 tokens as issued by the
// account service, each OIDCConfig adds an OpenID Connect provider.
type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	OIDCConfigs []OIDCConfig  `mapstructure:"oidc"`
}

// An OIDCConfig object configures an OpenID Connect provider that is used to authenticate users.
type OIDCConfig struct {
	Name        string `mapstructure:"name"`
	ClientId    string `mapstructure:"client_id"`
	ProviderUrl string `mapstructure:"provider_url"` // f.e. "https://accounts.google.com", used for discovery
}

// PersistenceConfig selects the storage backend. Type is one of "buntdb", "sqlite" or "postgres".
type PersistenceConfig struct {
	Type      string `mapstructure:"type"`
	DSN       string `mapstructure:"dsn"`
	FlockPath string `mapstructure:"flock_path"` // buntdb only, defaults to DSN + ".lock"
}

// RealtimeConfig tunes the websocket side.
type RealtimeConfig struct {
	SendBufferSize      int           `mapstructure:"send_buffer_size"`
	InboxSize           int           `mapstructure:"inbox_size"`
	EventsPerSecond     float64       `mapstructure:"events_per_second"`
	EventBurst          int           `mapstructure:"event_burst"`
	VerifyMembership    bool          `mapstructure:"verify_membership"`
	MembershipCacheSize int           `mapstructure:"membership_cache_size"`
	MembershipCacheTTL  time.Duration `mapstructure:"membership_cache_ttl"`
}

// NotificationsConfig configures live delivery and retention of notifications. LiveFilter is an expr
// expression evaluated against filter.Env, a notification is only pushed live if it evaluates to true
// (it is persisted in any case).
type NotificationsConfig struct {
	LiveFilter    string        `mapstructure:"live_filter"`
	Retention     time.Duration `mapstructure:"retention"`
	RetentionCron string        `mapstructure:"retention_cron"`
	Limit         int           `mapstructure:"limit"`
}

// HistoryConfig configures the page sizes of the message history endpoints.
type HistoryConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flagSet.String("jwt-secret", "", "shared secret for HS256 access tokens")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.Replace(name, "-", "_", -1))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", defaultAddr)
	v.SetDefault("server.ssl_cert", "")
	v.SetDefault("server.ssl_key", "")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", defaultJWTIssuer)
	v.SetDefault("auth.token_ttl", defaultTokenTTL)
	v.SetDefault("persistence.type", defaultPersistenceType)
	v.SetDefault("persistence.dsn", defaultPersistenceDSN)
	v.SetDefault("persistence.flock_path", "")
	v.SetDefault("realtime.send_buffer_size", defaultSendBufferSize)
	v.SetDefault("realtime.inbox_size", defaultInboxSize)
	v.SetDefault("realtime.events_per_second", defaultEventsPerSecond)
	v.SetDefault("realtime.event_burst", defaultEventBurst)
	v.SetDefault("realtime.verify_membership", true)
	v.SetDefault("realtime.membership_cache_size", defaultMembershipCacheSize)
	v.SetDefault("realtime.membership_cache_ttl", defaultMembershipCacheTTL)
	v.SetDefault("notifications.live_filter", "")
	v.SetDefault("notifications.retention", defaultRetention)
	v.SetDefault("notifications.retention_cron", defaultRetentionCron)
	v.SetDefault("notifications.limit", defaultNotificationLimit)
	v.SetDefault("history.default_limit", defaultHistoryLimit)
	v.SetDefault("history.max_limit", defaultMaxHistoryLimit)
	v.SetDefault("log_level", defaultLogLevel)
}

// ReadConfiguration reads and parses the configuration located at configPath, which can either point to a single TOML
// file or to a directory, in which case all *.toml files in this directory are merged in lexical order. Environment variables
// (TBUDDY_SERVER_ADDR etc.) and the flags in flagSet (may be nil) override the file values.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	v := viper.New()
	setDefaults(v)
	if flagSet != nil {
		flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
		flagSet.VisitAll(func(f *pflag.Flag) {
			if !f.Changed {
				return
			}
			// log_level is top level, the others live in the auth section
			key := string(wordSepNormalizeFunc(flagSet, f.Name))
			if key != "log_level" {
				key = "auth." + key
			}
			v.Set(key, f.Value.String())
		})
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		v.SetConfigType("toml")
		// every file is a document of its own, later files override earlier ones key by key
		for _, configFile := range files {
			fileContents, err := ioutil.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			err = v.MergeConfig(bytes.NewReader(fileContents))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", configFile, err)
			}
		}
	}
	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}
	if cfg.PersistenceConfig.FlockPath == "" && cfg.PersistenceConfig.Type == "buntdb" && cfg.PersistenceConfig.DSN != ":memory:" {
		cfg.PersistenceConfig.FlockPath = cfg.PersistenceConfig.DSN + ".lock"
	}

	globals.AppLogger.Debug("config", "server", cfg.ServerConfig, "persistence", cfg.PersistenceConfig.Type, "realtime", cfg.RealtimeConfig)
	return &cfg, nil
}
