package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard guides the user through first-time configuration. It reads
// answers from in and writes prompts to out; an empty answer keeps the
// current value.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	return runSetup(cfg, bufio.NewReader(in), out, 3)
}

func runSetup(cfg *Config, reader *bufio.Reader, out io.Writer, attempts int) error {
	fmt.Fprintln(out, "╔══════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║          combatlens - First Run Setup        ║")
	fmt.Fprintln(out, "╚══════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	cfg.mu.Lock()

	fmt.Fprintln(out, "── Capture Source ──")
	cfg.Capture.Mode = strings.ToLower(promptString(reader, out, "Capture mode (tcp/pcap/none)", cfg.Capture.Mode))
	switch cfg.Capture.Mode {
	case CaptureTCP:
		cfg.Capture.ListenAddr = promptString(reader, out, "Ingest listen address", cfg.Capture.ListenAddr)
	case CapturePcap:
		cfg.Capture.PcapFile = promptString(reader, out, "Capture file (.pcap)", cfg.Capture.PcapFile)
		cfg.Capture.ServerPort = promptInt(reader, out, "Game server TCP port (0 = any)", cfg.Capture.ServerPort)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Storage ──")
	cfg.Storage.LogDirectory = promptString(reader, out, "Session log directory", cfg.Storage.LogDirectory)
	cfg.Storage.RetentionDays = promptInt(reader, out, "Keep session logs for days (0 = forever)", cfg.Storage.RetentionDays)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── HTTP API ──")
	cfg.API.Enabled = promptBool(reader, out, "Enable HTTP API", cfg.API.Enabled)
	if cfg.API.Enabled {
		cfg.API.Port = promptInt(reader, out, "API port", cfg.API.Port)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── MQTT Telemetry ──")
	cfg.MQTT.Enabled = promptBool(reader, out, "Enable MQTT telemetry", cfg.MQTT.Enabled)
	if cfg.MQTT.Enabled {
		cfg.MQTT.BrokerURL = promptString(reader, out, "Broker host", cfg.MQTT.BrokerURL)
		cfg.MQTT.Port = promptInt(reader, out, "Broker port", cfg.MQTT.Port)
	}

	cfg.mu.Unlock()

	// Validate before saving
	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Fprintln(out, "\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		if attempts > 1 {
			retry := promptString(reader, out, "Would you like to try again? (yes/no)", "yes")
			if strings.ToLower(retry) == "yes" {
				return runSetup(cfg, reader, out, attempts-1)
			}
		}
		return fmt.Errorf("configuration validation failed")
	}

	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "✓ Configuration saved to", cfg.Path())
	fmt.Fprintln(out)

	return nil
}

func promptString(reader *bufio.Reader, out io.Writer, prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(out, "  %s: ", prompt)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func promptInt(reader *bufio.Reader, out io.Writer, prompt string, defaultVal int) int {
	fmt.Fprintf(out, "  %s [%d]: ", prompt, defaultVal)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(out, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func promptBool(reader *bufio.Reader, out io.Writer, prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultStr)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
