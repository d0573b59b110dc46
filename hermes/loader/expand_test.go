package loader

import (
	"strings"
	"testing"

	"github.com/SoftKiwiGames/hermes/hermes/schema"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("HERMES_TEST_HOST", "10.0.0.5")
	t.Setenv("HERMES_TEST_ZONE", "eu-west")

	cfg := &schema.Config{
		Server: schema.Server{Host: "${HERMES_TEST_HOST}"},
		Instance: schema.Instance{
			HostName: "${HERMES_TEST_HOST}",
			IPAddr:   "127.0.0.1",
			Metadata: map[string]string{
				"zone": "${HERMES_TEST_ZONE}",
			},
		},
	}

	if err := New().ExpandEnv(cfg); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Server.Host != "10.0.0.5" {
		t.Errorf("Expected expanded host, got %q", cfg.Server.Host)
	}
	if cfg.Instance.HostName != "10.0.0.5" {
		t.Errorf("Expected expanded host name, got %q", cfg.Instance.HostName)
	}
	if cfg.Instance.Metadata["zone"] != "eu-west" {
		t.Errorf("Expected expanded metadata, got %q", cfg.Instance.Metadata["zone"])
	}
}

func TestExpandEnvMissingVariable(t *testing.T) {
	cfg := &schema.Config{
		Instance: schema.Instance{
			HostName: "${HERMES_TEST_DOES_NOT_EXIST}",
		},
	}

	err := New().ExpandEnv(cfg)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "HERMES_TEST_DOES_NOT_EXIST") {
		t.Errorf("Expected missing variable name in error, got %v", err)
	}
}

func TestExpandEnvReservedMetadataKey(t *testing.T) {
	cfg := &schema.Config{
		Instance: schema.Instance{
			Metadata: map[string]string{
				"HERMES_RUN_ID": "nope",
			},
		},
	}

	err := New().ExpandEnv(cfg)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "HERMES_") {
		t.Errorf("Expected reserved key error, got %v", err)
	}
}

func TestExpandString(t *testing.T) {
	t.Setenv("HERMES_TEST_PORT", "8080")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no variables",
			input:    "http://localhost/health",
			expected: "http://localhost/health",
		},
		{
			name:     "single variable",
			input:    "http://localhost:${HERMES_TEST_PORT}/health",
			expected: "http://localhost:8080/health",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := expandString(tt.input)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}
