// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// GlobalConfig is the top-level configuration.
// Maps to the `nfcsniff:` root key in YAML.
type GlobalConfig struct {
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Relay    RelayConfig    `mapstructure:"relay" yaml:"relay"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Hardware HardwareConfig `mapstructure:"hardware" yaml:"hardware"`
	Replay   ReplayConfig   `mapstructure:"replay" yaml:"replay"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// ─── Sniff session ───

// SessionConfig holds the settings fixed for the lifetime of one sniff session.
type SessionConfig struct {
	Link            string                 `mapstructure:"link" yaml:"link"`       // a | b
	Encoder         string                 `mapstructure:"encoder" yaml:"encoder"` // text | relay | pcap
	EncoderOptions  map[string]interface{} `mapstructure:"encoder_options" yaml:"encoder_options,omitempty"`
	StartTimestamp  bool                   `mapstructure:"start_timestamp" yaml:"start_timestamp"`
	EndTimestamp    bool                   `mapstructure:"end_timestamp" yaml:"end_timestamp"`
	Parity          bool                   `mapstructure:"parity" yaml:"parity"`
	RelayOverSerial bool                   `mapstructure:"relay_over_serial" yaml:"relay_over_serial"`
	BufferSize      int                    `mapstructure:"buffer_size" yaml:"buffer_size"` // bytes
}

// RelayConfig configures the auxiliary high-speed serial link.
type RelayConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
	Baud int    `mapstructure:"baud" yaml:"baud"`
}

// StorageConfig configures where finished traces are persisted.
// Pattern accepts strftime directives and %N for the file sequence number.
type StorageConfig struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`
	Pattern  string `mapstructure:"pattern" yaml:"pattern"`
	MaxFiles int    `mapstructure:"max_files" yaml:"max_files"`
}

// HardwareConfig names the GPIO lines used on SBC hosts.
type HardwareConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	AbortPin   string `mapstructure:"abort_pin" yaml:"abort_pin"`
	SuccessLED string `mapstructure:"success_led" yaml:"success_led"`
	FailureLED string `mapstructure:"failure_led" yaml:"failure_led"`
}

// ReplayConfig points the host peripheral at a recorded window stream.
type ReplayConfig struct {
	Input string `mapstructure:"input" yaml:"input"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`     // trace / debug / info / warn / error
	Pattern string           `mapstructure:"pattern" yaml:"pattern"` // see log.DefaultPattern
	Time    string           `mapstructure:"time" yaml:"time"`
	File    FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

type configRoot struct {
	NFCSniff GlobalConfig `mapstructure:"nfcsniff"`
}

// Load loads configuration from file. An empty path yields the defaults.
// Env vars override file values with the NFCSNIFF_ prefix (e.g. NFCSNIFF_SESSION_ENCODER).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// key "nfcsniff.session.link" -> env "NFCSNIFF_SESSION_LINK"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.NFCSniff

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Session defaults
	v.SetDefault("nfcsniff.session.link", "a")
	v.SetDefault("nfcsniff.session.encoder", "text")
	v.SetDefault("nfcsniff.session.start_timestamp", true)
	v.SetDefault("nfcsniff.session.end_timestamp", true)
	v.SetDefault("nfcsniff.session.parity", false)
	v.SetDefault("nfcsniff.session.relay_over_serial", false)
	v.SetDefault("nfcsniff.session.buffer_size", 65536)

	// Relay defaults
	v.SetDefault("nfcsniff.relay.port", "/dev/ttyUSB0")
	v.SetDefault("nfcsniff.relay.baud", 8400000)

	// Storage defaults
	v.SetDefault("nfcsniff.storage.dir", "./captures")
	v.SetDefault("nfcsniff.storage.pattern", "nfc_sniff_%N")
	v.SetDefault("nfcsniff.storage.max_files", 999)

	// Hardware defaults
	v.SetDefault("nfcsniff.hardware.enabled", false)
	v.SetDefault("nfcsniff.hardware.abort_pin", "GPIO26")
	v.SetDefault("nfcsniff.hardware.success_led", "GPIO5")
	v.SetDefault("nfcsniff.hardware.failure_led", "GPIO6")

	// Metrics defaults
	v.SetDefault("nfcsniff.metrics.enabled", false)
	v.SetDefault("nfcsniff.metrics.listen", ":9091")
	v.SetDefault("nfcsniff.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("nfcsniff.log.level", "info")
	v.SetDefault("nfcsniff.log.pattern", "%time [%level] %field %msg%n")
	v.SetDefault("nfcsniff.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("nfcsniff.log.file.enabled", false)
	v.SetDefault("nfcsniff.log.file.path", "./nfcsniff.log")
	v.SetDefault("nfcsniff.log.file.rotation.max_size_mb", 10)
	v.SetDefault("nfcsniff.log.file.rotation.max_age_days", 30)
	v.SetDefault("nfcsniff.log.file.rotation.max_backups", 5)
	v.SetDefault("nfcsniff.log.file.rotation.compress", true)
}

// ValidateAndApplyDefaults validates configuration and normalizes values.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}

	// ── Session validation ──
	switch strings.ToLower(cfg.Session.Link) {
	case "a", "iso14443a":
		cfg.Session.Link = "iso14443a"
	case "b", "iso14443b":
		cfg.Session.Link = "iso14443b"
	default:
		return fmt.Errorf("invalid session.link: %s (must be a/b)", cfg.Session.Link)
	}

	cfg.Session.Encoder = strings.ToLower(cfg.Session.Encoder)
	switch cfg.Session.Encoder {
	case "text", "relay", "pcap":
	default:
		return fmt.Errorf("invalid session.encoder: %s (must be text/relay/pcap)", cfg.Session.Encoder)
	}
	if cfg.Session.BufferSize <= 0 {
		return fmt.Errorf("session.buffer_size must be positive, got %d", cfg.Session.BufferSize)
	}
	if cfg.Session.RelayOverSerial {
		if cfg.Relay.Port == "" {
			return fmt.Errorf("relay.port is required when session.relay_over_serial=true")
		}
		if cfg.Relay.Baud <= 0 {
			return fmt.Errorf("relay.baud must be positive, got %d", cfg.Relay.Baud)
		}
	}
	// ISO14443B is only captured raw and only the relay format can carry it.
	if cfg.Session.Link == "iso14443b" && cfg.Session.Encoder != "relay" {
		return fmt.Errorf("session.link=b requires session.encoder=relay")
	}

	// ── Storage ──
	if cfg.Storage.Pattern == "" {
		cfg.Storage.Pattern = "nfc_sniff_%N"
	}
	if !strings.Contains(cfg.Storage.Pattern, "%N") {
		cfg.Storage.Pattern += "%N"
	}
	if cfg.Storage.MaxFiles <= 0 {
		cfg.Storage.MaxFiles = 999
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics.enabled=true")
	}

	return nil
}
