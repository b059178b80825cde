package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadConfig_DefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	cfg := LoadConfig()

	if cfg.Server.Port != ":8080" {
		t.Fatalf("unexpected default port: %q", cfg.Server.Port)
	}
	if cfg.PDF.DefaultPaper != "A4" {
		t.Fatalf("unexpected default paper: %q", cfg.PDF.DefaultPaper)
	}
	if _, ok := cfg.PDF.PaperSizes["A4"]; !ok {
		t.Fatalf("expected A4 paper size default")
	}
	if cfg.Images.FetchTimeoutSecs != 3 {
		t.Fatalf("unexpected default image fetch timeout: %d", cfg.Images.FetchTimeoutSecs)
	}
	if cfg.Images.MaxDimensionPx != 400 {
		t.Fatalf("unexpected default max dimension: %d", cfg.Images.MaxDimensionPx)
	}
	if cfg.SMTP.Host != "smtp.gmail.com" || cfg.SMTP.Port != 587 {
		t.Fatalf("unexpected default smtp relay: %s:%d", cfg.SMTP.Host, cfg.SMTP.Port)
	}
	if cfg.Cache.PDFCacheTTL != 24*time.Hour {
		t.Fatalf("unexpected default cache TTL: %v", cfg.Cache.PDFCacheTTL)
	}
}

func TestLoadConfig_ReadsYAMLAndKeepsDefaults(t *testing.T) {
	p := writeConfig(t, `server:
  port: ":9000"
images:
  remove_background: true
  segmentation_url: "http://segmenter:7000/remove"
smtp:
  host: "mail.example.com"
  port: 465
  account: "catalog@example.com"
  app_password: "secret"
limits:
  max_items: 24
`)
	t.Setenv("CONFIG_PATH", p)

	cfg := LoadConfig()

	if cfg.Server.Port != ":9000" {
		t.Fatalf("expected port from file, got %q", cfg.Server.Port)
	}
	if !cfg.Images.RemoveBackground || cfg.Images.SegmentationURL != "http://segmenter:7000/remove" {
		t.Fatalf("expected image settings from file, got %+v", cfg.Images)
	}
	if cfg.SMTP.Host != "mail.example.com" || cfg.SMTP.Port != 465 {
		t.Fatalf("expected smtp from file, got %s:%d", cfg.SMTP.Host, cfg.SMTP.Port)
	}
	if cfg.Limits.MaxItems != 24 {
		t.Fatalf("expected item limit from file, got %d", cfg.Limits.MaxItems)
	}
	// Untouched sections keep their defaults.
	if cfg.PDF.TimeoutSecs != 60 {
		t.Fatalf("expected default pdf timeout, got %d", cfg.PDF.TimeoutSecs)
	}
	if GetConfig().Server.Port != ":9000" {
		t.Fatalf("GetConfig must return the loaded config")
	}
}

func TestLoadConfig_PanicsOnMalformedYAML(t *testing.T) {
	p := writeConfig(t, "server: [not a mapping")
	t.Setenv("CONFIG_PATH", p)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on malformed config")
		}
	}()
	_ = LoadConfig()
}
