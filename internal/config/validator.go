package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"
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

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateCapture(&cfg.Capture, result)
	validateEngine(&cfg.Engine, result)
	validateStorage(&cfg.Storage, result)
	validateTimers(&cfg.Timers, result)
	validateAPI(&cfg.API, result)
	validateMQTT(&cfg.MQTT, result)

	return result
}

func validateCapture(c *CaptureConfig, result *ValidationResult) {
	switch c.Mode {
	case CaptureTCP:
		if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
			result.AddError("capture.listen_addr", fmt.Sprintf("invalid listen address %q: %v", c.ListenAddr, err))
		}
	case CapturePcap:
		if strings.TrimSpace(c.PcapFile) == "" {
			result.AddError("capture.pcap_file", "pcap file is required in pcap mode")
		} else if _, err := os.Stat(c.PcapFile); os.IsNotExist(err) {
			result.AddWarning("capture.pcap_file", fmt.Sprintf("file does not exist: %s", c.PcapFile))
		}
		if c.ServerPort != 0 {
			validatePort(c.ServerPort, "capture.server_port", result)
		}
	case CaptureNone:
	default:
		result.AddError("capture.mode", fmt.Sprintf("unknown capture mode %q (expected tcp, pcap or none)", c.Mode))
	}

	if c.QueueLimit < 0 {
		result.AddError("capture.queue_limit", "queue limit cannot be negative")
	}
}

func validateEngine(e *EngineConfig, result *ValidationResult) {
	if e.InactiveTimeoutSecs < 1 {
		result.AddError("engine.inactive_timeout_secs", "must be at least 1 second")
	}
	if e.SubProfessionRatio < 1 {
		result.AddError("engine.subprofession_ratio", "ratio below 1 would flip specialization on every hit")
	}
	if e.InstanceDebounceMs < 0 {
		result.AddError("engine.instance_debounce_ms", "cannot be negative")
	}
	if e.RealtimeWindowMs < 100 {
		result.AddError("engine.realtime_window_ms", "realtime window must be at least 100ms")
	}
	if e.AOIWipeMin < 1 {
		result.AddError("engine.aoi_wipe_min", "must be at least 1")
	}
	if e.AOIWipeRatio <= 0 || e.AOIWipeRatio > 1 {
		result.AddError("engine.aoi_wipe_ratio", "must be in (0, 1]")
	}
	if e.WipeWindowSecs < 1 {
		result.AddWarning("engine.wipe_window_secs", "wipe-based instance detection is effectively disabled")
	}
	if e.MaxFrameSize < 6 {
		result.AddError("engine.max_frame_size", "must be at least 6 bytes")
	}
	if e.MinContribution == 0 {
		result.AddWarning("engine.min_contribution", "every session with any activity will be persisted")
	}
}

func validateStorage(s *StorageConfig, result *ValidationResult) {
	if strings.TrimSpace(s.LogDirectory) == "" {
		result.AddError("storage.log_directory", "log directory is required")
	}
	if strings.TrimSpace(s.SessionDB) == "" {
		result.AddError("storage.session_db", "session database path is required")
	}
	if s.CacheFlushDelayMs < 0 {
		result.AddError("storage.cache_flush_delay_ms", "cannot be negative")
	}
	if s.RetentionDays < 0 {
		result.AddError("storage.retention_days", "cannot be negative")
	}
	if s.CleanupTime != "" {
		if _, err := time.Parse("15:04", s.CleanupTime); err != nil {
			result.AddError("storage.cleanup_time", fmt.Sprintf("expected HH:MM, got %q", s.CleanupTime))
		}
	}
}

func validateTimers(timers *TimerConfig, result *ValidationResult) {
	if timers.AutoSaveIntervalSecs < 1 {
		result.AddError("timers.autosave_interval_sec", "must be at least 1 second")
	}
	if timers.RealtimeTickMs < 10 {
		result.AddWarning("timers.realtime_tick_ms", "tick below 10ms will burn CPU")
	}
	if timers.InactiveCheckSecs < 1 {
		result.AddError("timers.inactive_check_interval_sec", "must be at least 1 second")
	}
	if timers.HeartbeatSecs > 0 && timers.HeartbeatSecs < 10 {
		result.AddWarning("timers.heartbeat_interval_sec",
			"heartbeat interval less than 10s may cause excessive traffic")
	}
}

func validateAPI(a *APIConfig, result *ValidationResult) {
	if !a.Enabled {
		return
	}
	validatePort(a.Port, "api.port", result)
	if a.RateLimitRPS < 1 {
		result.AddWarning("api.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
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
	if m.UseTLS && (m.CertFile == "") != (m.KeyFile == "") {
		result.AddError("mqtt.cert_file", "client certificate and key must be set together")
	}
	if strings.TrimSpace(m.TopicPrefix) == "" {
		result.AddWarning("mqtt.topic_prefix", "empty topic prefix, publishing to root topics")
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

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
