package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Analysis.MaxConcurrent != 4 || cfg.Analysis.BucketSize != 3 || cfg.Analysis.HotspotThreshold != 40 {
		t.Errorf("defaults = %+v", cfg.Analysis)
	}
	if cfg.Analysis.Timeouts.Network != 2*time.Minute {
		t.Errorf("network timeout = %v", cfg.Analysis.Timeouts.Network)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `selected_provider: openai
providers:
  sonarqube:
    api_key: squ_token
analysis:
  bucket_size: 5
  timeouts:
    database: 30m
adapters:
  semgrep:
    enabled: false
  sonarqube:
    settings:
      url: https://sonar.example.com
      project: demo
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SelectedProvider != "openai" || cfg.Analysis.BucketSize != 5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Analysis.Timeouts.Database != 30*time.Minute || cfg.Analysis.Timeouts.Network != 2*time.Minute {
		t.Errorf("timeouts = %+v", cfg.Analysis.Timeouts)
	}
	if cfg.Analysis.MaxConcurrent != 4 {
		t.Errorf("unset fields must keep defaults, got max_concurrent %d", cfg.Analysis.MaxConcurrent)
	}
	if cfg.Enabled("semgrep") || !cfg.Enabled("sonarqube") || !cfg.Enabled("gosec") {
		t.Error("enabled flags not honoured")
	}
	settings := cfg.AdapterSettings()["sonarqube"]
	if settings.String("project", "") != "demo" {
		t.Errorf("settings = %v", settings)
	}
	key, ok := Credentials(cfg).Credential("sonarqube")
	if !ok || key != "squ_token" {
		t.Errorf("credential = %q, %v", key, ok)
	}
	if _, ok := Credentials(cfg).Credential("gemini"); ok {
		t.Error("missing credential reported as present")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	for _, data := range []string{
		"analysis:\n  bucket_size: 0\n",
		"analysis:\n  hotspot_threshold: 101\n",
		"analysis: [\n",
	} {
		if err := os.WriteFile(path, []byte(data), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("Load accepted %q", data)
		}
	}
}

func TestSaveRoundTripAndPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.SetAPIKey("gemini", "secret")
	cfg.Analysis.Timeouts.LocalPerFile = 90 * time.Second
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("perm = %o, want 600", perm)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.GetAPIKey("gemini") != "secret" || loaded.Analysis.Timeouts.LocalPerFile != 90*time.Second {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestGetConfigPathUsesHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path, err := GetConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(home, DirName, "config.yaml") {
		t.Errorf("path = %s", path)
	}
}
