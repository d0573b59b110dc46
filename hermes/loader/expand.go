package loader

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/SoftKiwiGames/hermes/hermes/schema"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnv performs ${VAR} expansion on config fields that commonly carry
// environment references (hostnames, URLs and metadata values).
// Returns error if any variable is missing or if a HERMES_* metadata key
// is defined (those are reserved).
func (l *Loader) ExpandEnv(cfg *schema.Config) error {
	for key := range cfg.Instance.Metadata {
		if strings.HasPrefix(key, "HERMES_") {
			return fmt.Errorf("user cannot define HERMES_* metadata keys: %s", key)
		}
	}

	fields := []*string{
		&cfg.Server.Host,
		&cfg.Instance.HostName,
		&cfg.Instance.IPAddr,
		&cfg.Instance.HomePageURL,
		&cfg.Instance.StatusPageURL,
		&cfg.Instance.HealthCheckURL,
	}
	for _, field := range fields {
		expanded, err := expandString(*field)
		if err != nil {
			return fmt.Errorf("failed to expand config value %q: %w", *field, err)
		}
		*field = expanded
	}

	for key, value := range cfg.Instance.Metadata {
		expanded, err := expandString(value)
		if err != nil {
			return fmt.Errorf("failed to expand metadata %s: %w", key, err)
		}
		cfg.Instance.Metadata[key] = expanded
	}

	return nil
}

// expandString expands ${VAR} references in a string
func expandString(s string) (string, error) {
	var missingVars []string

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR}
		varName := match[2 : len(match)-1]

		value, ok := os.LookupEnv(varName)
		if !ok {
			missingVars = append(missingVars, varName)
			return match
		}
		return value
	})

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing OS environment variables: %s", strings.Join(missingVars, ", "))
	}

	return result, nil
}
