// Package config loads runtime parameters for the hub and edge binaries from
// an optional YAML/JSON file and RELAY_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the runtime parameters shared by both binaries.
type Config struct {
	LogLevel            string        `mapstructure:"log_level"`
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`
	InternalToken       string        `mapstructure:"internal_token"`
	Hub                 HubConfig     `mapstructure:"hub"`
	Edge                EdgeConfig    `mapstructure:"edge"`
	Auth                AuthConfig    `mapstructure:"auth"`
}

// HubConfig configures the hub host: the hub actor and the shards it hosts.
type HubConfig struct {
	ListenAddr       string        `mapstructure:"listen_addr"`
	TickHz           int           `mapstructure:"tick_hz"`
	Grace            time.Duration `mapstructure:"grace"`
	PresenceInterval time.Duration `mapstructure:"presence_interval"`
	Region           string        `mapstructure:"region"`
}

// EdgeConfig configures the public router. An empty HubURL runs the hub host
// inside the edge process.
type EdgeConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	HubURL     string `mapstructure:"hub_url"`
	ShardCount int    `mapstructure:"shard_count"`
	HashSeed   string `mapstructure:"hash_seed"`
	Locality   string `mapstructure:"locality"`
}

// AuthConfig points at the optional external services used to validate sessions.
type AuthConfig struct {
	RPCURL        string        `mapstructure:"rpc_url"`
	DelegationURL string        `mapstructure:"delegation_url"`
	ClockCacheTTL time.Duration `mapstructure:"clock_cache_ttl"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

const (
	defaultLogLevel            = "info"
	defaultShutdownGracePeriod = 10 * time.Second
	defaultHubListenAddr       = "0.0.0.0:8081"
	defaultEdgeListenAddr      = "0.0.0.0:8080"
	defaultTickHz              = 20
	minTickHz                  = 1
	maxTickHz                  = 60
	defaultGrace               = 20 * time.Millisecond
	defaultPresenceInterval    = time.Second
	defaultShardCount          = 8
	defaultClockCacheTTL       = 2 * time.Second
	defaultAuthTimeout         = 3 * time.Second
)

var durationKeys = map[string]time.Duration{
	"shutdown_grace_period": defaultShutdownGracePeriod,
	"hub.grace":             defaultGrace,
	"hub.presence_interval": defaultPresenceInterval,
	"auth.clock_cache_ttl":  defaultClockCacheTTL,
	"auth.timeout":          defaultAuthTimeout,
}

// Load reads configuration from the provided file path (if any) and the environment.
// Environment variables are prefixed with RELAY_ and override file values,
// e.g. RELAY_EDGE_SHARD_COUNT=16.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RELAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("internal_token", "")
	v.SetDefault("hub.listen_addr", defaultHubListenAddr)
	v.SetDefault("hub.tick_hz", defaultTickHz)
	v.SetDefault("hub.region", "")
	v.SetDefault("edge.listen_addr", defaultEdgeListenAddr)
	v.SetDefault("edge.hub_url", "")
	v.SetDefault("edge.shard_count", defaultShardCount)
	v.SetDefault("edge.hash_seed", "")
	v.SetDefault("edge.locality", "")
	v.SetDefault("auth.rpc_url", "")
	v.SetDefault("auth.delegation_url", "")
	for key, def := range durationKeys {
		v.SetDefault(key, def.String())
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Viper leaves durations as strings; normalize them here.
	durations := map[string]*time.Duration{
		"shutdown_grace_period": &cfg.ShutdownGracePeriod,
		"hub.grace":             &cfg.Hub.Grace,
		"hub.presence_interval": &cfg.Hub.PresenceInterval,
		"auth.clock_cache_ttl":  &cfg.Auth.ClockCacheTTL,
		"auth.timeout":          &cfg.Auth.Timeout,
	}
	for key, dst := range durations {
		dur, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = dur
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.ShutdownGracePeriod <= 0 {
		c.ShutdownGracePeriod = defaultShutdownGracePeriod
	}
	if c.Hub.ListenAddr == "" {
		c.Hub.ListenAddr = defaultHubListenAddr
	}
	c.Hub.TickHz = ClampTickHz(c.Hub.TickHz)
	if c.Hub.Grace <= 0 {
		c.Hub.Grace = defaultGrace
	}
	if c.Hub.PresenceInterval <= 0 {
		c.Hub.PresenceInterval = defaultPresenceInterval
	}
	if c.Edge.ListenAddr == "" {
		c.Edge.ListenAddr = defaultEdgeListenAddr
	}
	if c.Edge.ShardCount <= 0 {
		c.Edge.ShardCount = defaultShardCount
	}
	c.Edge.HubURL = strings.TrimRight(c.Edge.HubURL, "/")
	if c.Auth.ClockCacheTTL < 0 {
		c.Auth.ClockCacheTTL = defaultClockCacheTTL
	}
	if c.Auth.Timeout <= 0 {
		c.Auth.Timeout = defaultAuthTimeout
	}
}

// ClampTickHz limits a tick rate to [1, 60]; zero selects the default of 20.
func ClampTickHz(hz int) int {
	switch {
	case hz == 0:
		return defaultTickHz
	case hz < minTickHz:
		return minTickHz
	case hz > maxTickHz:
		return maxTickHz
	default:
		return hz
	}
}

// Standalone reports whether the edge hosts the hub in-process.
func (c Config) Standalone() bool {
	return c.Edge.HubURL == ""
}
