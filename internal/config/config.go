// Package config loads Coordbus server configuration from an optional YAML
// file and environment variable overrides, frozen into an immutable Config
// at startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Transport   TransportConfig   `yaml:"transport"`
	Server      ServerConfig      `yaml:"server"`
	DB          DBConfig          `yaml:"db"`
	Storage     StorageConfig     `yaml:"storage"`
	Log         LogConfig         `yaml:"log"`
	Reservation ReservationConfig `yaml:"reservation"`
	Ack         AckConfig         `yaml:"ack"`
	Contact     ContactConfig     `yaml:"contact"`
	Messaging   MessagingConfig   `yaml:"messaging"`
	Tools       ToolsConfig       `yaml:"tools"`
	Notify      NotifyConfig      `yaml:"notify"`
}

type TransportConfig struct {
	Mode string `yaml:"mode"` // "stdio" or "http"
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

type DBConfig struct {
	// Path is a sqlite filename, or ":memory:" for an ephemeral catalog.
	Path string `yaml:"path"`
}

type StorageConfig struct {
	// Root is the filesystem root under which every project's git archive lives.
	Root                 string `yaml:"root"`
	InlineImageMaxBytes   int    `yaml:"inline_image_max_bytes"`
	ConvertImages         bool   `yaml:"convert_images"`
	KeepOriginalImages    bool   `yaml:"keep_original_images"`
	StrictAttachments     bool   `yaml:"strict_attachments"`
	RepoCacheCapacity     int    `yaml:"repo_cache_capacity"`
	RepoCacheGraceSeconds int    `yaml:"repo_cache_grace_seconds"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

type ReservationConfig struct {
	CleanupEnabled           bool `yaml:"cleanup_enabled"`
	CleanupIntervalSeconds   int  `yaml:"cleanup_interval_seconds"`
	InactivitySeconds        int  `yaml:"inactivity_seconds"`
	ActivityGraceSeconds     int  `yaml:"activity_grace_seconds"`
	EnforcementEnabled       bool `yaml:"enforcement_enabled"`
}

type AckConfig struct {
	TTLEnabled           bool `yaml:"ttl_enabled"`
	TTLSeconds           int  `yaml:"ttl_seconds"`
	ScanIntervalSeconds  int  `yaml:"scan_interval_seconds"`
	EscalationEnabled    bool `yaml:"escalation_enabled"`
}

type ContactConfig struct {
	EnforcementEnabled bool `yaml:"enforcement_enabled"`
	AutoTTLSeconds     int  `yaml:"auto_ttl_seconds"`
	AutoRetryEnabled   bool `yaml:"auto_retry_enabled"`
}

type MessagingConfig struct {
	AutoRegisterRecipients   bool `yaml:"auto_register_recipients"`
	AutoHandshakeOnBlock     bool `yaml:"auto_handshake_on_block"`
}

type ToolsConfig struct {
	// Profile selects a named subset of tools to expose: full, core, minimal, messaging, custom.
	Profile            string   `yaml:"profile"`
	Include            []string `yaml:"include"`
	Exclude            []string `yaml:"exclude"`
	CallTimeoutSeconds int      `yaml:"call_timeout_seconds"`
}

type NotifyConfig struct {
	SignalDir        string `yaml:"signal_dir"`
	DebounceSeconds  int    `yaml:"debounce_seconds"`
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	defaultDBPath := "coordbus.db"
	defaultStorageRoot := "coordbus-storage"
	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		defaultDBPath = filepath.Join(exeDir, "coordbus.db")
		defaultStorageRoot = filepath.Join(exeDir, "coordbus-storage")
	}

	cfg := Config{
		Transport: TransportConfig{Mode: "stdio"},
		Server:    ServerConfig{Host: "0.0.0.0", Port: 8080, Path: "/mcp"},
		DB:        DBConfig{Path: defaultDBPath},
		Storage: StorageConfig{
			Root:                  defaultStorageRoot,
			InlineImageMaxBytes:   64 * 1024,
			ConvertImages:         true,
			KeepOriginalImages:    false,
			StrictAttachments:     false,
			RepoCacheCapacity:     16,
			RepoCacheGraceSeconds: 30,
		},
		Log: LogConfig{Level: "info"},
		Reservation: ReservationConfig{
			CleanupEnabled:         true,
			CleanupIntervalSeconds: 60,
			InactivitySeconds:      1800,
			ActivityGraceSeconds:   900,
			EnforcementEnabled:     true,
		},
		Ack: AckConfig{
			TTLEnabled:          false,
			TTLSeconds:          1800,
			ScanIntervalSeconds: 60,
			EscalationEnabled:   false,
		},
		Contact: ContactConfig{
			EnforcementEnabled: true,
			AutoTTLSeconds:     86400,
			AutoRetryEnabled:   true,
		},
		Messaging: MessagingConfig{
			AutoRegisterRecipients: false,
			AutoHandshakeOnBlock:   true,
		},
		Tools: ToolsConfig{Profile: "full", CallTimeoutSeconds: 30},
		Notify: NotifyConfig{
			SignalDir:       "",
			DebounceSeconds: 5,
		},
	}

	if path := os.Getenv("COORDBUS_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		if v := os.Getenv(key); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = parsed
		}
		return nil
	}
	integer := func(key string, dst *int) error {
		if v := os.Getenv(key); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = parsed
		}
		return nil
	}

	str("COORDBUS_TRANSPORT", &cfg.Transport.Mode)
	str("COORDBUS_SERVER_HOST", &cfg.Server.Host)
	str("COORDBUS_SERVER_PATH", &cfg.Server.Path)
	if err := integer("COORDBUS_SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	str("COORDBUS_DB_PATH", &cfg.DB.Path)
	str("STORAGE_ROOT", &cfg.Storage.Root)
	if err := integer("INLINE_IMAGE_MAX_BYTES", &cfg.Storage.InlineImageMaxBytes); err != nil {
		return err
	}
	if err := boolean("CONVERT_IMAGES", &cfg.Storage.ConvertImages); err != nil {
		return err
	}
	if err := boolean("KEEP_ORIGINAL_IMAGES", &cfg.Storage.KeepOriginalImages); err != nil {
		return err
	}
	if err := boolean("COORDBUS_STRICT_ATTACHMENTS", &cfg.Storage.StrictAttachments); err != nil {
		return err
	}
	if err := integer("COORDBUS_REPO_CACHE_CAPACITY", &cfg.Storage.RepoCacheCapacity); err != nil {
		return err
	}
	if err := integer("COORDBUS_REPO_CACHE_GRACE_SECONDS", &cfg.Storage.RepoCacheGraceSeconds); err != nil {
		return err
	}
	str("COORDBUS_LOG_LEVEL", &cfg.Log.Level)
	str("COORDBUS_LOG_PATH", &cfg.Log.Path)

	if err := boolean("FILE_RESERVATIONS_CLEANUP_ENABLED", &cfg.Reservation.CleanupEnabled); err != nil {
		return err
	}
	if err := integer("FILE_RESERVATIONS_CLEANUP_INTERVAL_SECONDS", &cfg.Reservation.CleanupIntervalSeconds); err != nil {
		return err
	}
	if err := integer("FILE_RESERVATION_INACTIVITY_SECONDS", &cfg.Reservation.InactivitySeconds); err != nil {
		return err
	}
	if err := integer("FILE_RESERVATION_ACTIVITY_GRACE_SECONDS", &cfg.Reservation.ActivityGraceSeconds); err != nil {
		return err
	}
	if err := boolean("FILE_RESERVATIONS_ENFORCEMENT_ENABLED", &cfg.Reservation.EnforcementEnabled); err != nil {
		return err
	}

	if err := boolean("ACK_TTL_ENABLED", &cfg.Ack.TTLEnabled); err != nil {
		return err
	}
	if err := integer("ACK_TTL_SECONDS", &cfg.Ack.TTLSeconds); err != nil {
		return err
	}
	if err := integer("ACK_TTL_SCAN_INTERVAL_SECONDS", &cfg.Ack.ScanIntervalSeconds); err != nil {
		return err
	}
	if err := boolean("ACK_ESCALATION_ENABLED", &cfg.Ack.EscalationEnabled); err != nil {
		return err
	}

	if err := boolean("CONTACT_ENFORCEMENT_ENABLED", &cfg.Contact.EnforcementEnabled); err != nil {
		return err
	}
	if err := integer("CONTACT_AUTO_TTL_SECONDS", &cfg.Contact.AutoTTLSeconds); err != nil {
		return err
	}
	if err := boolean("CONTACT_AUTO_RETRY_ENABLED", &cfg.Contact.AutoRetryEnabled); err != nil {
		return err
	}

	if err := boolean("MESSAGING_AUTO_REGISTER_RECIPIENTS", &cfg.Messaging.AutoRegisterRecipients); err != nil {
		return err
	}
	if err := boolean("MESSAGING_AUTO_HANDSHAKE_ON_BLOCK", &cfg.Messaging.AutoHandshakeOnBlock); err != nil {
		return err
	}

	str("TOOLS_FILTER_PROFILE", &cfg.Tools.Profile)
	if err := integer("TOOLS_CALL_TIMEOUT_SECONDS", &cfg.Tools.CallTimeoutSeconds); err != nil {
		return err
	}

	str("NOTIFICATIONS_SIGNAL_DIR", &cfg.Notify.SignalDir)
	if err := integer("NOTIFICATIONS_DEBOUNCE_SECONDS", &cfg.Notify.DebounceSeconds); err != nil {
		return err
	}

	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
