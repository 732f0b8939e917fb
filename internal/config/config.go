// Package config handles configuration loading, validation, and persistence
// for combatlens.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 8989
	DefaultIngestAddr = "127.0.0.1:8990"
)

// Capture modes.
const (
	CaptureTCP  = "tcp"
	CapturePcap = "pcap"
	CaptureNone = "none"
)

// Config is the root configuration structure.
type Config struct {
	mu      sync.RWMutex
	path    string
	created bool

	Capture CaptureConfig `json:"capture"`
	Engine  EngineConfig  `json:"engine"`
	Storage StorageConfig `json:"storage"`
	Timers  TimerConfig   `json:"timers"`
	API     APIConfig     `json:"api"`
	MQTT    MQTTConfig    `json:"mqtt"`
	Logging LoggingConfig `json:"logging"`
}

// CaptureConfig selects where raw stream bytes come from.
type CaptureConfig struct {
	Mode       string `json:"mode"`
	ListenAddr string `json:"listen_addr"`
	PcapFile   string `json:"pcap_file"`
	ServerPort int    `json:"server_port"`
	QueueLimit int    `json:"queue_limit"`
}

// EngineConfig holds the tuned thresholds of the decoder and state store.
type EngineConfig struct {
	MinContribution     uint64  `json:"min_contribution"`
	InactiveTimeoutSecs int     `json:"inactive_timeout_secs"`
	SubProfessionRatio  float64 `json:"subprofession_ratio"`
	InstanceDebounceMs  int     `json:"instance_debounce_ms"`
	RealtimeWindowMs    int     `json:"realtime_window_ms"`
	AOIWipeMin          int     `json:"aoi_wipe_min"`
	AOIWipeRatio        float64 `json:"aoi_wipe_ratio"`
	WipeWindowSecs      int     `json:"wipe_window_secs"`
	MaxFrameSize        int     `json:"max_frame_size"`
	OnlyRecordTarget    uint64  `json:"only_record_target"`
	StartPaused         bool    `json:"start_paused"`
}

// InactiveTimeout returns the idle time after which a user is retired.
func (e EngineConfig) InactiveTimeout() time.Duration {
	return time.Duration(e.InactiveTimeoutSecs) * time.Second
}

// InstanceDebounce returns the instance transition debounce delay.
func (e EngineConfig) InstanceDebounce() time.Duration {
	return time.Duration(e.InstanceDebounceMs) * time.Millisecond
}

// RealtimeWindow returns the realtime rate horizon.
func (e EngineConfig) RealtimeWindow() time.Duration {
	return time.Duration(e.RealtimeWindowMs) * time.Millisecond
}

// WipeWindow returns how long an AOI wipe waits for a self-appear signal.
func (e EngineConfig) WipeWindow() time.Duration {
	return time.Duration(e.WipeWindowSecs) * time.Second
}

// StorageConfig holds on-disk locations.
type StorageConfig struct {
	LogDirectory      string `json:"log_directory"`
	SessionDB         string `json:"session_db"`
	CacheFile         string `json:"cache_file"`
	GameDataDir       string `json:"gamedata_dir"`
	CacheFlushDelayMs int    `json:"cache_flush_delay_ms"`
	RetentionDays     int    `json:"retention_days"`
	CleanupTime       string `json:"cleanup_time"`
}

// CacheFlushDelay returns the name cache debounce delay.
func (s StorageConfig) CacheFlushDelay() time.Duration {
	return time.Duration(s.CacheFlushDelayMs) * time.Millisecond
}

// TimerConfig holds background task intervals.
type TimerConfig struct {
	AutoSaveIntervalSecs int `json:"autosave_interval_sec"`
	RealtimeTickMs       int `json:"realtime_tick_ms"`
	InactiveCheckSecs    int `json:"inactive_check_interval_sec"`
	HeartbeatSecs        int `json:"heartbeat_interval_sec"`
	HealthCheckSecs      int `json:"health_check_interval_sec"`
}

// APIConfig holds HTTP API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`
	Port        int    `json:"port"`
	UseTLS      bool   `json:"use_tls"`
	CertFile    string `json:"cert_file"`
	KeyFile     string `json:"key_file"`
	CAFile      string `json:"ca_file"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			Mode:       CaptureTCP,
			ListenAddr: DefaultIngestAddr,
			QueueLimit: 4096,
		},
		Engine: EngineConfig{
			MinContribution:     5000,
			InactiveTimeoutSecs: 60,
			SubProfessionRatio:  2,
			InstanceDebounceMs:  0,
			RealtimeWindowMs:    1000,
			AOIWipeMin:          10,
			AOIWipeRatio:        0.8,
			WipeWindowSecs:      10,
			MaxFrameSize:        1 << 20,
		},
		Storage: StorageConfig{
			LogDirectory:      "logs",
			SessionDB:         filepath.Join("data", "sessions.db"),
			CacheFile:         filepath.Join("data", "users.json"),
			GameDataDir:       "gamedata",
			CacheFlushDelayMs: 2000,
			RetentionDays:     30,
			CleanupTime:       "04:00",
		},
		Timers: TimerConfig{
			AutoSaveIntervalSecs: 10,
			RealtimeTickMs:       100,
			InactiveCheckSecs:    5,
			HeartbeatSecs:        60,
			HealthCheckSecs:      30,
		},
		API: APIConfig{
			Enabled:      true,
			Port:         DefaultAPIPort,
			RateLimitRPS: 100,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			BrokerURL:   "localhost",
			Port:        1883,
			TopicPrefix: "combatlens",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  filepath.Join("logs", "app"),
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			cfg.created = true
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save so config.json always lists every option, including ones
	// added after it was first written.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
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

// GetCapture returns a copy of the capture configuration.
func (c *Config) GetCapture() CaptureConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Capture
}

// GetEngine returns a copy of the engine configuration.
func (c *Config) GetEngine() EngineConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Engine
}

// GetStorage returns a copy of the storage configuration.
func (c *Config) GetStorage() StorageConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Storage
}

// GetTimers returns a copy of the timer configuration.
func (c *Config) GetTimers() TimerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Timers
}

// GetAPI returns a copy of the API configuration.
func (c *Config) GetAPI() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.API
}

// GetMQTT returns a copy of the MQTT configuration.
func (c *Config) GetMQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

// GetLogging returns a copy of the logging configuration.
func (c *Config) GetLogging() LoggingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging
}

// UpdateEngineField updates a single engine setting by its JSON key.
func (c *Config) UpdateEngineField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, _ := json.Marshal(c.Engine)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	if _, ok := m[key]; !ok {
		return fmt.Errorf("unknown engine setting %q", key)
	}
	m[key] = value

	updated, _ := json.Marshal(m)
	var engine EngineConfig
	if err := json.Unmarshal(updated, &engine); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}
	c.Engine = engine
	return nil
}

// SetEngine replaces the engine configuration.
func (c *Config) SetEngine(engine EngineConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Engine = engine
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// IsFirstRun returns true if the configuration file was just created.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.created
}
