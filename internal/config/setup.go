package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard prompts for the checker identity, the HTTP service and
// the optional integrations, then validates and saves cfg. Empty answers
// keep the current value.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	p := &prompter{reader: bufio.NewReader(in), out: out}

	fmt.Fprintln(out, "netcheck setup")
	fmt.Fprintln(out)

	for {
		fmt.Fprintln(out, "── Checker Identity ──")
		cfg.Checker.Username = p.String("Bot username", cfg.Checker.Username)
		cfg.Checker.ServerClientName = p.String("Server client name", cfg.Checker.ServerClientName)
		cfg.Checker.P2PClientName = p.String("P2P client name", cfg.Checker.P2PClientName)
		cfg.Checker.ConnectionType = p.String("Connection type (lan, excellent, good, average, low, bad)", cfg.Checker.ConnectionType)
		cfg.Checker.TimeoutSeconds = p.Int("Receive timeout (seconds)", cfg.Checker.TimeoutSeconds)

		fmt.Fprintln(out)
		fmt.Fprintln(out, "── HTTP Service ──")
		cfg.API.Port = p.Int("Listen port", cfg.API.Port)
		cfg.API.ProxyHeader = p.String("Header carrying the caller IP", cfg.API.ProxyHeader)

		fmt.Fprintln(out)
		fmt.Fprintln(out, "── Integrations ──")
		cfg.MQTT.Enabled = p.Bool("Enable MQTT telemetry", cfg.MQTT.Enabled)
		if cfg.MQTT.Enabled {
			cfg.MQTT.BrokerURL = p.String("MQTT broker host", cfg.MQTT.BrokerURL)
			cfg.MQTT.Port = p.Int("MQTT broker port", cfg.MQTT.Port)
		}
		cfg.Monitor.Enabled = p.Bool("Enable periodic monitoring", cfg.Monitor.Enabled)

		result := Validate(cfg)
		if result.IsValid() {
			for _, w := range result.Warnings {
				log.Warn().Str("field", w.Field).Msg(w.Message)
			}
			break
		}

		fmt.Fprintln(out, "\nConfiguration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		if !p.Bool("Would you like to try again?", true) {
			return fmt.Errorf("configuration validation failed")
		}
		fmt.Fprintln(out)
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Configuration saved to %s\n", cfg.Path())
	return nil
}

type prompter struct {
	reader *bufio.Reader
	out    io.Writer
}

func (p *prompter) readLine() string {
	input, _ := p.reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func (p *prompter) String(prompt, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(p.out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(p.out, "  %s: ", prompt)
	}

	if input := p.readLine(); input != "" {
		return input
	}
	return defaultVal
}

func (p *prompter) Int(prompt string, defaultVal int) int {
	fmt.Fprintf(p.out, "  %s [%d]: ", prompt, defaultVal)

	input := p.readLine()
	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(p.out, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func (p *prompter) Bool(prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}
	fmt.Fprintf(p.out, "  %s [%s]: ", prompt, defaultStr)

	input := strings.ToLower(p.readLine())
	if input == "" {
		return defaultVal
	}
	return input == "yes" || input == "y" || input == "true" || input == "1"
}
