// Package config handles configuration loading, validation, and persistence
// for the netcheck service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smash64-online/netcheck/internal/util"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5000
	DefaultServerPort = 27888
	DefaultP2PPort    = 27886
)

// ProxyHeaderEnv overrides APIConfig.ProxyHeader when set.
const ProxyHeaderEnv = "PROXY_HEADER"

// Config is the root configuration structure for netcheck.
type Config struct {
	mu   sync.RWMutex
	path string

	Checker CheckerConfig `json:"checker"`
	API     APIConfig     `json:"api"`
	MQTT    MQTTConfig    `json:"mqtt"`
	Monitor MonitorConfig `json:"monitor"`
	Logging LoggingConfig `json:"logging"`
}

// CheckerConfig holds the identity and timing used by every check.
type CheckerConfig struct {
	Username         string `json:"username"`
	ServerClientName string `json:"server_client_name"`
	P2PClientName    string `json:"p2p_client_name"`
	ConnectionType   string `json:"connection_type"`

	TimeoutSeconds  int `json:"timeout_sec"`
	Retries         int `json:"retries"`
	PingCount       int `json:"ping_count"`
	MaxJoinAttempts int `json:"max_join_attempts"`
	DefaultP2PPort  int `json:"default_p2p_port"`
}

// Timeout returns the per-receive timeout.
func (c CheckerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// APIConfig holds HTTP check service settings.
type APIConfig struct {
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	ProxyHeader    string   `json:"proxy_header"`

	// TrustedProxies lists the addresses or CIDRs whose X-Forwarded-For
	// and X-Real-IP headers are honoured. Empty trusts no proxy.
	TrustedProxies []string `json:"trusted_proxies"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`
	Port        int    `json:"port"`
	UseTLS      bool   `json:"use_tls"`
	CAFile      string `json:"ca_file"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// MonitorConfig holds the periodic target checks.
type MonitorConfig struct {
	Enabled         bool            `json:"enabled"`
	IntervalSeconds int             `json:"interval_sec"`
	Targets         []MonitorTarget `json:"targets"`
}

// Interval returns the delay between monitor rounds.
func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalSeconds) * time.Second
}

// MonitorTarget is a host checked on every monitor round. Kind is one of
// "server", "connection", "join" or "p2p".
type MonitorTarget struct {
	Name string `json:"name"`
	Host string `json:"host"`
	Port int    `json:"port"`
	Kind string `json:"kind"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
	Console    bool   `json:"console"`
}

// LogConfig converts the section into the logger's settings.
func (l LoggingConfig) LogConfig() util.LogConfig {
	return util.LogConfig{
		Level:      l.Level,
		Directory:  l.Directory,
		MaxBackups: l.MaxBackups,
		Console:    l.Console,
	}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Checker: CheckerConfig{
			Username:         "smash64.online",
			ServerClientName: "server-checker-bot",
			P2PClientName:    "p2p-checker-bot",
			ConnectionType:   "good",
			TimeoutSeconds:   2,
			Retries:          1,
			PingCount:        3,
			MaxJoinAttempts:  30,
			DefaultP2PPort:   DefaultP2PPort,
		},
		API: APIConfig{
			Port:           DefaultAPIPort,
			AllowedOrigins: []string{"*"},
			RateLimitRPS:   20,
			ProxyHeader:    "cf-connecting-ip",
			TrustedProxies: []string{},
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Port:        8883,
			UseTLS:      true,
			ClientID:    "netcheck",
			TopicPrefix: "netcheck",
		},
		Monitor: MonitorConfig{
			Enabled:         false,
			IntervalSeconds: 300,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxBackups: 5,
			Console:    true,
		},
	}
}

// Load reads configuration from a JSON file. A missing file is created
// with the defaults. The PROXY_HEADER environment variable, when set,
// replaces the configured proxy header.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}

		log.Info().Str("path", configPath).Msg("config file not found, creating default")
		cfg := DefaultConfig()
		cfg.path = configPath
		if saveErr := cfg.Save(); saveErr != nil {
			return nil, fmt.Errorf("failed to save default config: %w", saveErr)
		}
		cfg.applyEnv()
		return cfg, nil
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	cfg.path = configPath

	// persist fields added since the file was written
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	cfg.applyEnv()
	log.Info().Str("path", configPath).Msg("configuration loaded")
	return cfg, nil
}

func (c *Config) applyEnv() {
	if header := os.Getenv(ProxyHeaderEnv); header != "" {
		c.API.ProxyHeader = header
	}
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		return fmt.Errorf("config has no path")
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetChecker returns a copy of the checker configuration.
func (c *Config) GetChecker() CheckerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Checker
}

// GetAPI returns a copy of the API configuration.
func (c *Config) GetAPI() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	api := c.API
	api.AllowedOrigins = append([]string(nil), c.API.AllowedOrigins...)
	api.TrustedProxies = append([]string(nil), c.API.TrustedProxies...)
	return api
}

// GetMonitor returns a copy of the monitor configuration.
func (c *Config) GetMonitor() MonitorConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mon := c.Monitor
	mon.Targets = append([]MonitorTarget(nil), c.Monitor.Targets...)
	return mon
}

// GetMQTT returns a copy of the MQTT configuration.
func (c *Config) GetMQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

// UpdateCheckerField updates a single checker field by its JSON key.
func (c *Config) UpdateCheckerField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(c.Checker)
	if err != nil {
		return fmt.Errorf("failed to marshal checker config: %w", err)
	}
	m := make(map[string]interface{})
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to decode checker config: %w", err)
	}
	if _, ok := m[key]; !ok {
		return fmt.Errorf("unknown checker field %s", key)
	}
	m[key] = value

	updated, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}
	var checker CheckerConfig
	if err := json.Unmarshal(updated, &checker); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}
	c.Checker = checker
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}
