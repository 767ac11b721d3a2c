package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/fsmcheck/internal/models"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
source:
  timeout: 3s
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Server.Addr() != "127.0.0.1:9000" {
		t.Errorf("addr: got %s", cfg.Server.Addr())
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Source.Timeout != 3*time.Second {
		t.Errorf("timeout: got %v", cfg.Source.Timeout)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/db/fsm.db"
  index_dir: "./data/indices"
  settings_path: "./settings.yaml"
source:
  default_kind: local_csv
  default_location: "./lists/fs_em.csv"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		cfg.Storage.DatabasePath:   filepath.Join(dir, "data", "db", "fsm.db"),
		cfg.Storage.IndexDir:       filepath.Join(dir, "data", "indices"),
		cfg.Storage.SettingsPath:   filepath.Join(dir, "settings.yaml"),
		cfg.Source.DefaultLocation: filepath.Join(dir, "lists", "fs_em.csv"),
	}
	for got, w := range want {
		if got != w {
			t.Errorf("path = %s, want %s", got, w)
		}
	}
}

func TestLoad_remoteLocationNotExpanded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
source:
  default_kind: remote_csv
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source.DefaultLocation != DefaultRemoteURL {
		t.Errorf("default location: got %s", cfg.Source.DefaultLocation)
	}
}

func TestLoad_invalidKind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("source:\n  default_kind: xlsx\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown source kind")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if got := cfg.Source.Default(); got.Kind != models.SourceInlineText || got.Location != "./fs_em.txt" {
		t.Errorf("default source: got %+v", got)
	}
	if cfg.Source.RemoteURL != DefaultRemoteURL {
		t.Errorf("remote url: got %s", cfg.Source.RemoteURL)
	}
	if cfg.Source.Timeout != 5*time.Second {
		t.Errorf("timeout: got %v", cfg.Source.Timeout)
	}
	if cfg.Watch.Enabled {
		t.Error("watch should be disabled by default")
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("debounce: got %v", cfg.Watch.Debounce)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
		Source:  SourceConfig{Timeout: 7 * time.Second},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Source.Timeout != 7*time.Second {
		t.Errorf("loaded timeout: got %v", loaded.Source.Timeout)
	}
}
