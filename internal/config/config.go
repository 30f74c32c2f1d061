// Package config handles rpcserverd configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/rpcserverd/config.yaml, /config/config.yaml,
// /etc/rpcserverd/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "rpcserverd", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/rpcserverd/config.yaml")
	return paths
}

// searchPathsFunc is overridden in tests to avoid matching real config
// files on developer/deploy machines.
var searchPathsFunc = DefaultSearchPaths

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// Config holds all rpcserverd configuration.
type Config struct {
	Broker     BrokerConfig      `yaml:"broker"`
	RPCServers []RPCServerConfig `yaml:"rpc_servers"`
	LogLevel   string            `yaml:"log_level"`
}

// BrokerConfig defines the MQTT5 broker connection used by every
// configured RPC server instance.
type BrokerConfig struct {
	// URL is the broker address, e.g. "mqtts://broker.example.com:8883"
	// or "mqtt://localhost:1883". The scheme selects TLS.
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// ClientID is the MQTT client identifier. If empty, it defaults to
	// "rpc-server".
	ClientID string `yaml:"client_id"`
	// KeepAliveSeconds is the MQTT keep-alive interval. Defaults to 30.
	KeepAliveSeconds int `yaml:"keep_alive_seconds"`
}

// RPCServerConfig describes one RpcServer instance: the identity
// material used to build its subscription topic (spec.md §4.1) plus
// its options (spec.md §3, §6).
type RPCServerConfig struct {
	ModelID     string `yaml:"model_id"`
	ClientID    string `yaml:"client_id"`
	CommandName string `yaml:"command_name"` // empty => "+"

	SubscribeQoS            int `yaml:"subscribe_qos"`
	ResponseQoS             int `yaml:"response_qos"`
	SubscribeTimeoutSeconds int `yaml:"subscribe_timeout_seconds"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates
// the result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${MQTT_PASSWORD}). This is a
	// convenience for container deployments; the recommended approach
	// is to put values directly in the config file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.Broker.KeepAliveSeconds == 0 {
		c.Broker.KeepAliveSeconds = 30
	}
	if c.Broker.ClientID == "" {
		c.Broker.ClientID = "rpc-server"
	}

	for i := range c.RPCServers {
		s := &c.RPCServers[i]
		if s.SubscribeQoS == 0 {
			s.SubscribeQoS = 1
		}
		if s.ResponseQoS == 0 {
			s.ResponseQoS = 1
		}
		if s.SubscribeTimeoutSeconds == 0 {
			s.SubscribeTimeoutSeconds = 10
		}
	}
}

// Validate checks that the configuration is internally consistent.
// It runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Broker.URL == "" {
		return fmt.Errorf("broker.url must be set")
	}
	if len(c.RPCServers) == 0 {
		return fmt.Errorf("rpc_servers must contain at least one entry")
	}
	for i, s := range c.RPCServers {
		if s.ModelID == "" {
			return fmt.Errorf("rpc_servers[%d].model_id must not be empty", i)
		}
		if s.ClientID == "" {
			return fmt.Errorf("rpc_servers[%d].client_id must not be empty", i)
		}
		if s.SubscribeTimeoutSeconds < 1 {
			return fmt.Errorf("rpc_servers[%d].subscribe_timeout_seconds must be positive", i)
		}
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a minimal single-instance configuration suitable for
// local development against a broker on localhost. All defaults are
// already applied.
func Default() *Config {
	cfg := &Config{
		Broker: BrokerConfig{
			URL: "mqtt://localhost:1883",
		},
		RPCServers: []RPCServerConfig{
			{ModelID: "m1", ClientID: "c1"},
		},
	}
	cfg.applyDefaults()
	return cfg
}
