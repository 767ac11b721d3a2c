package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/fsmcheck/internal/models"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"some text", "-limit", "5"},
			expected: []string{"-limit", "5", "some text"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-limit", "5", "some text"},
			expected: []string{"-limit", "5", "some text"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"some text"},
			expected: []string{"some text"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "source kind and path then flags",
			args:     []string{"txt", "./fs_em.txt", "-server", ""},
			expected: []string{"-server", "", "txt", "./fs_em.txt"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"книга"}, "книга"},
		{"multiple words", []string{"some", "text"}, "some text"},
		{"single quoted phrase", []string{"some text"}, "some text"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
storage:
  database_path: "./fsm.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Addr() != "127.0.0.1:9000" {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestLoadConfig_missingExplicitPath(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestDoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/ok":
			var q models.SearchQuery
			_ = json.NewDecoder(r.Body).Decode(&q)
			_ = json.NewEncoder(w).Encode(models.SearchResponse{Query: q.Query, Found: true})
		default:
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(models.RefreshResult{Error: "source_unreadable", Reason: "failed"})
		}
	}))
	defer srv.Close()

	var resp models.SearchResponse
	if err := doJSON(http.MethodPost, srv.URL+"/ok", &models.SearchQuery{Query: "q"}, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Query != "q" || !resp.Found {
		t.Errorf("response: %+v", resp)
	}

	var res models.RefreshResult
	if err := doJSON(http.MethodPost, srv.URL+"/fail", nil, &res); err == nil {
		t.Error("expected error for 502")
	}
	if res.Reason != "failed" {
		t.Errorf("error body should still be decoded: %+v", res)
	}
}

func TestDirectComponents(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "fs_em.txt")
	bulletin := "Список\nЭкстремистский материал №12: Some text (решение суда от 01.02.2015)"
	if err := os.WriteFile(source, []byte(bulletin), 0644); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/fsm.db"
  index_dir: "./data/indices"
  settings_path: "./settings.yaml"
source:
  default_kind: txt
  default_location: "./fs_em.txt"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	var refreshed *models.RefreshResult
	err := withDirect(configPath, func(c *Components) error {
		var e error
		refreshed, e = c.Refresher.Refresh(context.Background())
		return e
	})
	if err != nil {
		t.Fatal(err)
	}
	if !refreshed.Updated || refreshed.NewRecordCount != 1 {
		t.Fatalf("refresh: %+v", refreshed)
	}

	err = withDirect(configPath, func(c *Components) error {
		status := directStatus(c)
		if !status.Index.Valid || status.Generation == nil || status.DiskUsage == nil {
			t.Errorf("status: %+v", status)
		}
		resp, e := c.Matcher.Check(context.Background(), &models.SearchQuery{Query: "Some text"})
		if e != nil {
			return e
		}
		if !resp.Found || resp.Results[0].ID != 12 {
			t.Errorf("search: %+v", resp)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
