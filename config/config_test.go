package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("driver = %s, want sqlite", cfg.DBDriver)
	}
	if cfg.ListenAddr == "" {
		t.Fatalf("listen addr empty")
	}
	if cfg.BootstrapAdmin.AdminUsername != "admin" {
		t.Fatalf("bootstrap admin = %s", cfg.BootstrapAdmin.AdminUsername)
	}
	if cfg.Uploads.MaxBytes != 16*1024*1024 {
		t.Fatalf("upload cap = %d", cfg.Uploads.MaxBytes)
	}
	if !cfg.Maintenance.Enabled || cfg.Maintenance.AuditRetentionDays != 90 {
		t.Fatalf("maintenance defaults = %+v", cfg.Maintenance)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("db_driver: postgres\ndb_url: postgres://localhost/crisishub\nlisten_addr: 127.0.0.1:9090\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBDriver != "postgres" || cfg.ListenAddr != "127.0.0.1:9090" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.DBURL != "postgres://localhost/crisishub" {
		t.Fatalf("db url = %s", cfg.DBURL)
	}
}

func TestEffectiveSessionTTLCap(t *testing.T) {
	cfg := &AppConfig{SessionTTL: 3 * time.Hour}
	if got := cfg.EffectiveSessionTTL(); got != 3*time.Hour {
		t.Fatalf("ttl = %s, want 3h", got)
	}
	cfg.SessionTTL = 48 * time.Hour
	if got := cfg.EffectiveSessionTTL(); got != 12*time.Hour {
		t.Fatalf("ttl = %s, want capped 12h", got)
	}
	cfg.SessionTTL = 0
	if got := cfg.EffectiveSessionTTL(); got != 12*time.Hour {
		t.Fatalf("zero ttl = %s, want 12h", got)
	}
}
