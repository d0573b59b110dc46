package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/SoftKiwiGames/hermes/hermes/schema"
	"gopkg.in/yaml.v3"
)

var defaultConfigNames = []string{"hermes.yaml", "hermes.yml"}

type Loader struct{}

func New() *Loader {
	return &Loader{}
}

// LoadFile parses a YAML config file, applies defaults and validates it.
func (l *Loader) LoadFile(path string) (*schema.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	var cfg schema.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	l.ApplyDefaults(&cfg)

	if err := l.ExpandEnv(&cfg); err != nil {
		return nil, err
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// FindConfig locates the config file in dir using the default names.
func (l *Loader) FindConfig(dir string) (string, error) {
	for _, name := range defaultConfigNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no hermes.yaml found in %s", dir)
}

// ApplyDefaults fills in the Eureka defaults for fields left empty.
func (l *Loader) ApplyDefaults(cfg *schema.Config) {
	s := &cfg.Server
	if s.Host == "" {
		s.Host = "localhost"
	}
	if s.Port == 0 {
		s.Port = 8761
	}
	if s.ServicePath == "" {
		s.ServicePath = "/eureka"
	}
	if s.HeartbeatInterval == "" {
		s.HeartbeatInterval = "30s"
	}
	if s.RegistryFetchInterval == "" {
		s.RegistryFetchInterval = "30s"
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = 3
	}
	if s.RetryDelay == "" {
		s.RetryDelay = "500ms"
	}
	if s.FetchRegistry == nil {
		s.FetchRegistry = boolPtr(true)
	}
	if s.FilterUpInstances == nil {
		s.FilterUpInstances = boolPtr(true)
	}
	if s.Register == nil {
		s.Register = boolPtr(true)
	}
	if s.DNS != nil && s.DNS.Port == 0 {
		s.DNS.Port = s.Port
	}

	i := &cfg.Instance
	if i.HostName == "" {
		i.HostName = "localhost"
	}
	if i.IPAddr == "" {
		i.IPAddr = "127.0.0.1"
	}
	if i.SecurePort == nil {
		i.SecurePort = &schema.Port{Value: 443, Enabled: false}
	}
	if i.DataCenter == "" {
		i.DataCenter = "MyOwn"
	}
}

// Validate checks the config for structural correctness.
func (l *Loader) Validate(cfg *schema.Config) error {
	s := &cfg.Server
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("server port %d out of range", s.Port)
	}
	if s.DNS != nil && s.DNS.Domain == "" {
		return fmt.Errorf("dns discovery enabled but domain is empty")
	}
	for _, field := range []struct {
		name, value string
	}{
		{"heartbeat_interval", s.HeartbeatInterval},
		{"registry_fetch_interval", s.RegistryFetchInterval},
		{"retry_delay", s.RetryDelay},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", field.name, field.value, err)
		}
	}

	i := &cfg.Instance
	if *s.Register && i.App == "" {
		return fmt.Errorf("instance app is required when registration is enabled")
	}
	if i.Port.Enabled && (i.Port.Value < 1 || i.Port.Value > 65535) {
		return fmt.Errorf("instance port %d out of range", i.Port.Value)
	}
	if i.DataCenter != "MyOwn" && i.DataCenter != "Amazon" {
		return fmt.Errorf("data_center must be MyOwn or Amazon, got %q", i.DataCenter)
	}
	if i.DataCenter == "Amazon" && i.AWSMetadata == nil {
		return fmt.Errorf("data_center Amazon requires an aws_metadata block")
	}
	if i.LeaseEviction != "" {
		if _, err := time.ParseDuration(i.LeaseEviction); err != nil {
			return fmt.Errorf("invalid lease_eviction %q: %w", i.LeaseEviction, err)
		}
	}

	return nil
}

func boolPtr(b bool) *bool {
	return &b
}
