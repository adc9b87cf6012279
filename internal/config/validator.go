package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/smash64-online/netcheck/internal/events"
	"github.com/smash64-online/netcheck/internal/kaillera"
	"github.com/smash64-online/netcheck/internal/protocol"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks every configuration section.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateChecker(&cfg.Checker, result)
	validateAPI(&cfg.API, result)
	validateMQTT(&cfg.MQTT, result)
	validateMonitor(&cfg.Monitor, result)

	return result
}

func validateChecker(c *CheckerConfig, result *ValidationResult) {
	if strings.TrimSpace(c.Username) == "" {
		result.AddError("checker.username", "username is required")
	}
	if len(c.Username) > 31 {
		result.AddWarning("checker.username", "username is truncated to 31 bytes in p2p requests")
	}
	if strings.TrimSpace(c.ServerClientName) == "" {
		result.AddError("checker.server_client_name", "server client name is required")
	}
	if strings.TrimSpace(c.P2PClientName) == "" {
		result.AddError("checker.p2p_client_name", "p2p client name is required")
	}
	if _, err := kaillera.ParseConnType(c.ConnectionType); err != nil {
		result.AddError("checker.connection_type", err.Error())
	}

	if c.TimeoutSeconds < 1 {
		result.AddError("checker.timeout_sec", "timeout must be at least 1 second")
	}
	if c.TimeoutSeconds > 30 {
		result.AddWarning("checker.timeout_sec", "timeouts above 30s make checks very slow")
	}
	if c.Retries < 1 {
		result.AddError("checker.retries", "retries must be at least 1")
	}
	if c.PingCount < 1 {
		result.AddError("checker.ping_count", "ping count must be at least 1")
	}
	if c.MaxJoinAttempts < 1 {
		result.AddError("checker.max_join_attempts", "max join attempts must be at least 1")
	}
	if c.MaxJoinAttempts > protocol.MaxWindow {
		result.AddWarning("checker.max_join_attempts",
			fmt.Sprintf("more than %d join attempts overflows the transmission window", protocol.MaxWindow))
	}
	validatePort(c.DefaultP2PPort, "checker.default_p2p_port", result)
}

func validateAPI(a *APIConfig, result *ValidationResult) {
	validatePort(a.Port, "api.port", result)

	if a.RateLimitRPS < 1 {
		result.AddWarning("api.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the checker to abuse")
	}
	if strings.TrimSpace(a.ProxyHeader) == "" {
		result.AddWarning("api.proxy_header", "no proxy header configured, /get-ip and \"self\" checks will fail")
	}
	if len(a.AllowedOrigins) == 0 {
		result.AddWarning("api.allowed_origins", "no allowed origins configured, every origin is allowed")
	}
	for i, proxy := range a.TrustedProxies {
		if net.ParseIP(proxy) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(proxy); err != nil {
			result.AddError(fmt.Sprintf("api.trusted_proxies[%d]", i),
				fmt.Sprintf("%q is neither an IP address nor a CIDR", proxy))
		}
	}
}

func validateMQTT(m *MQTTConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if m.Port < 1 || m.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
	if strings.TrimSpace(m.TopicPrefix) == "" {
		result.AddWarning("mqtt.topic_prefix", "empty topic prefix publishes to /results")
	}
}

func validateMonitor(m *MonitorConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if m.IntervalSeconds < 30 {
		result.AddWarning("monitor.interval_sec",
			"monitor interval less than 30s may flood the checked servers")
	}
	if len(m.Targets) == 0 {
		result.AddWarning("monitor.targets", "monitor is enabled without targets")
	}
	for i, t := range m.Targets {
		field := fmt.Sprintf("monitor.targets[%d]", i)
		if strings.TrimSpace(t.Host) == "" {
			result.AddError(field+".host", "host is required")
		}
		validatePort(t.Port, field+".port", result)
		if _, ok := events.ParseCheckKind(t.Kind); !ok {
			result.AddError(field+".kind", fmt.Sprintf("unknown check kind %q", t.Kind))
		}
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}
