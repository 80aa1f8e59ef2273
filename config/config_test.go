package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadOrCreateCreatesAndReloadsConfig(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(DataDirEnv, tempDir)

	firstCfg, firstPath, dataDir, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("first LoadOrCreate failed: %v", err)
	}
	if dataDir != tempDir {
		t.Fatalf("expected data dir %q, got %q", tempDir, dataDir)
	}
	if firstCfg.Server.ServerID == "" {
		t.Fatalf("expected non-empty server ID")
	}
	if firstCfg.Server.ListenAddress != DefaultListenAddress {
		t.Fatalf("expected default listen address %q, got %q", DefaultListenAddress, firstCfg.Server.ListenAddress)
	}
	if firstCfg.Server.SessionTTL != DefaultSessionTTL {
		t.Fatalf("expected default session ttl %s, got %s", DefaultSessionTTL, firstCfg.Server.SessionTTL)
	}
	if firstCfg.Disclosure.Unrestricted {
		t.Fatalf("expected unrestricted disclosure to default off")
	}
	if firstCfg.Discovery.Enabled {
		t.Fatalf("expected discovery to default off")
	}
	if firstCfg.Discovery.Service != DefaultServiceType || firstCfg.Discovery.PeerService != DefaultPeerServiceType {
		t.Fatalf("unexpected discovery services: %+v", firstCfg.Discovery)
	}

	expectedConfigPath := filepath.Join(tempDir, "config.yaml")
	if firstPath != expectedConfigPath {
		t.Fatalf("expected config path %q, got %q", expectedConfigPath, firstPath)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "keys")); err != nil {
		t.Fatalf("expected keys directory: %v", err)
	}

	secondCfg, secondPath, _, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}

	if secondPath != firstPath {
		t.Fatalf("expected config path to be stable, got %q then %q", firstPath, secondPath)
	}
	if secondCfg.Server.ServerID != firstCfg.Server.ServerID {
		t.Fatalf("expected stable server ID, got %q then %q", firstCfg.Server.ServerID, secondCfg.Server.ServerID)
	}
	if secondCfg.Keys.Ed25519PrivateKeyPath != firstCfg.Keys.Ed25519PrivateKeyPath {
		t.Fatalf("expected stable key path, got %q then %q", firstCfg.Keys.Ed25519PrivateKeyPath, secondCfg.Keys.Ed25519PrivateKeyPath)
	}
}

func TestLoadOrCreateNormalizesPartialConfig(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(DataDirEnv, tempDir)

	if err := EnsureDataDirectories(tempDir); err != nil {
		t.Fatalf("EnsureDataDirectories failed: %v", err)
	}

	partial := `server:
  server_id: fixed-server
  listen_address: 127.0.0.1:9000
  session_ttl: 2h
disclosure:
  unrestricted: true
log:
  level: LOUD
`
	cfgPath := ConfigPath(tempDir)
	if err := os.WriteFile(cfgPath, []byte(partial), 0o600); err != nil {
		t.Fatalf("write partial config: %v", err)
	}

	cfg, _, _, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if cfg.Server.ServerID != "fixed-server" {
		t.Fatalf("expected server ID to be retained, got %q", cfg.Server.ServerID)
	}
	if cfg.Server.ListenAddress != "127.0.0.1:9000" {
		t.Fatalf("expected listen address to be retained, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.SessionTTL != 2*time.Hour {
		t.Fatalf("expected session ttl 2h, got %s", cfg.Server.SessionTTL)
	}
	if !cfg.Disclosure.Unrestricted {
		t.Fatalf("expected unrestricted flag to be retained")
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Fatalf("expected unknown log level to normalize to %q, got %q", DefaultLogLevel, cfg.Log.Level)
	}
	if cfg.Keys.Ed25519PublicKeyPath != filepath.Join(tempDir, "keys", "ed25519_public.pem") {
		t.Fatalf("unexpected public key path %q", cfg.Keys.Ed25519PublicKeyPath)
	}

	raw, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("read normalized config: %v", err)
	}
	if !strings.Contains(string(raw), "peer_service: "+DefaultPeerServiceType) {
		t.Fatalf("expected normalized defaults to be persisted, got:\n%s", raw)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected malformed config to fail")
	}
}
