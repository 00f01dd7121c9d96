// Package config loads the single immutable configuration structure used
// across the process, via github.com/spf13/viper (environment variables
// plus an optional YAML file), validated once at startup and never
// mutated afterward. No runtime reconfiguration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the flattened, validated configuration object. Every
// field here corresponds to a recognized environment/YAML option.
type Config struct {
	Broker  BrokerConfig
	Wire    WireConfig
	Auth    AuthConfig
	Session SessionConfig
}

type BrokerConfig struct {
	BootstrapServers     []string
	GroupID              string
	Concurrency          int
	InventoryConcurrency int
}

type WireConfig struct {
	AllowedOrigins   []string
	SendTimeout      time.Duration
	SendBufferBytes  int
	MessageSizeLimit int
}

type AuthConfig struct {
	IssuerURI string
	Audience  string
	// Secret is the HMAC signing key used to validate bearer tokens. The
	// identity provider that mints tokens is out of scope; this core only
	// validates signature/issuer/audience/expiry against this shared secret.
	Secret string
}

type SessionConfig struct {
	OutboxCapacity       int
	LivenessTimeout      time.Duration
	ShutdownGrace        time.Duration
	ShutdownHardDeadline time.Duration
}

// Load reads configuration from environment variables (prefix EVENTHUB_)
// and an optional YAML file, applies the documented defaults, and
// validates the result.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("eventhub")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("broker.concurrency", 10)
	v.SetDefault("broker.inventoryConcurrency", 2)
	v.SetDefault("wire.allowedOrigins", []string{"*"})
	v.SetDefault("wire.sendTimeoutMs", 10000)
	v.SetDefault("wire.sendBufferBytes", 524288)
	v.SetDefault("wire.messageSizeLimit", 131072)
	v.SetDefault("session.outboxCapacity", 1024)
	v.SetDefault("session.livenessTimeoutSec", 90)
	v.SetDefault("session.shutdownGraceSec", 5)
	v.SetDefault("session.shutdownHardDeadlineSec", 30)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Broker: BrokerConfig{
			BootstrapServers:     v.GetStringSlice("broker.bootstrapServers"),
			GroupID:              v.GetString("broker.groupId"),
			Concurrency:          v.GetInt("broker.concurrency"),
			InventoryConcurrency: v.GetInt("broker.inventoryConcurrency"),
		},
		Wire: WireConfig{
			AllowedOrigins:   v.GetStringSlice("wire.allowedOrigins"),
			SendTimeout:      time.Duration(v.GetInt("wire.sendTimeoutMs")) * time.Millisecond,
			SendBufferBytes:  v.GetInt("wire.sendBufferBytes"),
			MessageSizeLimit: v.GetInt("wire.messageSizeLimit"),
		},
		Auth: AuthConfig{
			IssuerURI: v.GetString("auth.issuerUri"),
			Audience:  v.GetString("auth.audience"),
			Secret:    v.GetString("auth.secret"),
		},
		Session: SessionConfig{
			OutboxCapacity:       v.GetInt("session.outboxCapacity"),
			LivenessTimeout:      time.Duration(v.GetInt("session.livenessTimeoutSec")) * time.Second,
			ShutdownGrace:        time.Duration(v.GetInt("session.shutdownGraceSec")) * time.Second,
			ShutdownHardDeadline: time.Duration(v.GetInt("session.shutdownHardDeadlineSec")) * time.Second,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Broker.BootstrapServers) == 0 {
		return fmt.Errorf("config: broker.bootstrapServers is required")
	}
	if c.Broker.GroupID == "" {
		return fmt.Errorf("config: broker.groupId is required")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("config: auth.secret is required")
	}
	return nil
}
