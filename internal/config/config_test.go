package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AaronLay10/AdventureEngine/internal/adventure"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "adventure.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
version: 1
service:
  name: adventure-api
  environment: development
  port: 9090
judge:
  url: http://piston:2000/api/v2/execute
  timeout: 5s
validation:
  default_edges: multiple
storage:
  driver: memory
mqtt:
  enabled: true
  topic_prefix: dev/adventures
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port())
	}
	if !cfg.Development() {
		t.Error("expected development environment")
	}
	if cfg.JudgeTimeout() != 5*time.Second {
		t.Errorf("expected judge timeout 5s, got %v", cfg.JudgeTimeout())
	}
	p, err := cfg.DefaultEdgePolicy()
	if err != nil {
		t.Fatalf("unexpected policy error: %v", err)
	}
	if p.DefaultEdges != adventure.DefaultEdgesMultiple {
		t.Errorf("expected multiple default edges, got %q", p.DefaultEdges)
	}
	if cfg.TopicPrefix() != "dev/adventures" {
		t.Errorf("expected topic prefix dev/adventures, got %q", cfg.TopicPrefix())
	}
	if cfg.ClientID() != "adventure-api" {
		t.Errorf("expected client id from service name, got %q", cfg.ClientID())
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "version: 1\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port())
	}
	if cfg.JudgeTimeout() != 15*time.Second {
		t.Errorf("expected default judge timeout 15s, got %v", cfg.JudgeTimeout())
	}
	if cfg.Storage.Driver != "postgres" {
		t.Errorf("expected default driver postgres, got %q", cfg.Storage.Driver)
	}
	p, _ := cfg.DefaultEdgePolicy()
	if p != adventure.StrictPolicy {
		t.Errorf("expected strict policy, got %+v", p)
	}
	if cfg.TopicPrefix() != "adventures" {
		t.Errorf("expected default topic prefix, got %q", cfg.TopicPrefix())
	}
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]string{
		"version":       "version: 2\n",
		"default_edges": "version: 1\nvalidation:\n  default_edges: lots\n",
		"driver":        "version: 1\nstorage:\n  driver: sqlite\n",
	}
	for want, body := range tests {
		_, err := Load(writeConfig(t, body))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("expected error mentioning %q, got %v", want, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
