package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hermes.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
instance:
  app: my-service
  port:
    value: 8080
    enabled: true
`)

	cfg, err := New().LoadFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Server.Host != "localhost" {
		t.Errorf("Expected default host localhost, got %q", cfg.Server.Host)
	}
	if cfg.Server.Port != 8761 {
		t.Errorf("Expected default port 8761, got %d", cfg.Server.Port)
	}
	if cfg.Server.ServicePath != "/eureka" {
		t.Errorf("Expected default service path /eureka, got %q", cfg.Server.ServicePath)
	}
	if cfg.Server.HeartbeatInterval != "30s" {
		t.Errorf("Expected default heartbeat interval 30s, got %q", cfg.Server.HeartbeatInterval)
	}
	if cfg.Server.MaxRetries != 3 {
		t.Errorf("Expected default max retries 3, got %d", cfg.Server.MaxRetries)
	}
	if !*cfg.Server.FetchRegistry || !*cfg.Server.FilterUpInstances || !*cfg.Server.Register {
		t.Error("Expected fetch/filter/register defaults to be true")
	}
	if cfg.Instance.SecurePort == nil || cfg.Instance.SecurePort.Value != 443 {
		t.Errorf("Expected default secure port 443, got %+v", cfg.Instance.SecurePort)
	}
	if cfg.Instance.DataCenter != "MyOwn" {
		t.Errorf("Expected default data center MyOwn, got %q", cfg.Instance.DataCenter)
	}
}

func TestLoadFileKeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server:
  host: eureka.internal
  port: 9761
  ssl: true
  heartbeat_interval: 10s
  register: false
instance:
  app: my-service
  port:
    value: 8080
    enabled: true
`)

	cfg, err := New().LoadFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Server.Host != "eureka.internal" || cfg.Server.Port != 9761 {
		t.Errorf("Unexpected server %+v", cfg.Server)
	}
	if !cfg.Server.SSL {
		t.Error("Expected ssl true")
	}
	if *cfg.Server.Register {
		t.Error("Expected register false to survive defaults")
	}
}

func TestLoadFileValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing app with registration enabled",
			content: `
instance:
  port:
    value: 8080
    enabled: true
`,
			wantErr: "app is required",
		},
		{
			name: "invalid heartbeat interval",
			content: `
server:
  heartbeat_interval: soon
instance:
  app: my-service
`,
			wantErr: "heartbeat_interval",
		},
		{
			name: "port out of range",
			content: `
instance:
  app: my-service
  port:
    value: 99999
    enabled: true
`,
			wantErr: "out of range",
		},
		{
			name: "dns without domain",
			content: `
server:
  dns: {}
instance:
  app: my-service
`,
			wantErr: "domain is empty",
		},
		{
			name: "bad data center",
			content: `
instance:
  app: my-service
  data_center: Azure
`,
			wantErr: "MyOwn or Amazon",
		},
		{
			name: "amazon without aws metadata",
			content: `
instance:
  app: my-service
  data_center: Amazon
`,
			wantErr: "aws_metadata",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := New().LoadFile(path)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := New().LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Expected error, got nil")
	}
}

func TestFindConfig(t *testing.T) {
	dir := t.TempDir()
	if _, err := New().FindConfig(dir); err == nil {
		t.Fatal("Expected error in empty dir, got nil")
	}

	path := filepath.Join(dir, "hermes.yml")
	if err := os.WriteFile(path, []byte("instance:\n  app: x\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	found, err := New().FindConfig(dir)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if found != path {
		t.Errorf("Expected %q, got %q", path, found)
	}
}
