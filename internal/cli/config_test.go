package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !cfg.Node.IsMaster {
		t.Fatal("default node must be a master candidate")
	}
	if cfg.API.Listen != ":12900" {
		t.Fatalf("unexpected default api listen %q", cfg.API.Listen)
	}
	if cfg.pingTimeout() != 7*time.Second {
		t.Fatalf("unexpected default ping timeout %s", cfg.pingTimeout())
	}
	if cfg.stopGrace() != 10*time.Second {
		t.Fatalf("unexpected default stop grace %s", cfg.stopGrace())
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yml")
	content := `
node:
  is_master: false
  transport_address: http://10.0.0.5:12900
cluster:
  ping_timeout_seconds: 3
metrics:
  enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Node.IsMaster {
		t.Fatal("is_master override not applied")
	}
	if cfg.Node.TransportAddress != "http://10.0.0.5:12900" {
		t.Fatalf("unexpected transport address %q", cfg.Node.TransportAddress)
	}
	if cfg.pingTimeout() != 3*time.Second {
		t.Fatalf("unexpected ping timeout %s", cfg.pingTimeout())
	}
	if cfg.Metrics.Enabled {
		t.Fatal("metrics override not applied")
	}

	// Untouched sections keep their defaults.
	if cfg.heartbeatInterval() != 5*time.Second {
		t.Fatalf("unexpected heartbeat interval %s", cfg.heartbeatInterval())
	}
	if cfg.startupTimeout() != 60*time.Second {
		t.Fatalf("unexpected startup timeout %s", cfg.startupTimeout())
	}
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yml")
	if err := os.WriteFile(path, []byte("node: [unclosed"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected a parse error")
	}
}
