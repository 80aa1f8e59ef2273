package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "peerlink"
	// DataDirEnv overrides the resolved data directory.
	DataDirEnv = "PEERLINK_DATA_DIR"
	// DefaultListenAddress is the HTTP listen address used when none is configured.
	DefaultListenAddress = ":8080"
	// DefaultSessionTTL bounds the lifetime of issued session tokens.
	DefaultSessionTTL = 24 * time.Hour
	// DefaultServiceType is the mDNS service the server advertises.
	DefaultServiceType = "_peerlink._tcp"
	// DefaultPeerServiceType is the mDNS service LAN devices advertise.
	DefaultPeerServiceType = "_peerlink-peer._tcp"
	// DefaultLogLevel is the go-log level applied to every subsystem.
	DefaultLogLevel = "info"
	// configFileName is the persisted configuration file.
	configFileName = "config.yaml"
)

// Config contains the persistent server settings.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Disclosure DisclosureConfig `yaml:"disclosure"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Log        LogConfig        `yaml:"log"`
	Keys       KeysConfig       `yaml:"keys"`
}

// ServerConfig holds the HTTP server identity and session settings.
type ServerConfig struct {
	ServerID      string        `yaml:"server_id"`
	ListenAddress string        `yaml:"listen_address"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
}

// DisclosureConfig controls who may see privileged peer fields.
type DisclosureConfig struct {
	// Unrestricted discloses online peer and user IDs to every viewer.
	// Never enable it outside test deployments.
	Unrestricted bool `yaml:"unrestricted"`
}

// DiscoveryConfig controls LAN advertisement and peer browsing.
type DiscoveryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Service     string `yaml:"service"`
	PeerService string `yaml:"peer_service"`
	Port        int    `yaml:"port"`
}

// LogConfig holds the logging level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// KeysConfig locates the server's token signing keypair.
type KeysConfig struct {
	Ed25519PrivateKeyPath string `yaml:"ed25519_private_key_path"`
	Ed25519PublicKeyPath  string `yaml:"ed25519_public_key_path"`
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If PEERLINK_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv(DataDirEnv); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.yaml for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// EnsureDataDirectories creates the app data directory layout if needed.
func EnsureDataDirectories(dataDir string) error {
	dirs := []string{
		dataDir,
		filepath.Join(dataDir, "keys"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	return nil
}

// Load reads and unmarshals config.yaml from disk.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.yaml to disk.
func Save(path string, cfg *Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures directories and config exist, then returns the config,
// its path and the data directory.
func LoadOrCreate() (*Config, string, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", "", err
	}
	if err := EnsureDataDirectories(dataDir); err != nil {
		return nil, "", "", err
	}

	cfgPath := ConfigPath(dataDir)
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", "", err
		}

		cfg = defaultConfig(dataDir)
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", "", err
		}

		return cfg, cfgPath, dataDir, nil
	}

	if normalizeDefaults(cfg, dataDir) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", "", err
		}
	}

	return cfg, cfgPath, dataDir, nil
}

func defaultConfig(dataDir string) *Config {
	cfg := &Config{}
	normalizeDefaults(cfg, dataDir)
	return cfg
}

func normalizeDefaults(cfg *Config, dataDir string) bool {
	updated := false
	keysDir := filepath.Join(dataDir, "keys")

	if cfg.Server.ServerID == "" {
		cfg.Server.ServerID = uuid.NewString()
		updated = true
	}
	if strings.TrimSpace(cfg.Server.ListenAddress) == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
		updated = true
	}
	if cfg.Server.SessionTTL <= 0 {
		cfg.Server.SessionTTL = DefaultSessionTTL
		updated = true
	}

	if cfg.Discovery.Service == "" {
		cfg.Discovery.Service = DefaultServiceType
		updated = true
	}
	if cfg.Discovery.PeerService == "" {
		cfg.Discovery.PeerService = DefaultPeerServiceType
		updated = true
	}
	if cfg.Discovery.Port < 0 {
		cfg.Discovery.Port = 0
		updated = true
	}

	level := normalizeLogLevel(cfg.Log.Level)
	if cfg.Log.Level != level {
		cfg.Log.Level = level
		updated = true
	}

	if cfg.Keys.Ed25519PrivateKeyPath == "" {
		cfg.Keys.Ed25519PrivateKeyPath = filepath.Join(keysDir, "ed25519_private.pem")
		updated = true
	}
	if cfg.Keys.Ed25519PublicKeyPath == "" {
		cfg.Keys.Ed25519PublicKeyPath = filepath.Join(keysDir, "ed25519_public.pem")
		updated = true
	}

	return updated
}

func normalizeLogLevel(level string) string {
	switch level = strings.ToLower(strings.TrimSpace(level)); level {
	case "debug", "info", "warn", "error":
		return level
	default:
		return DefaultLogLevel
	}
}
