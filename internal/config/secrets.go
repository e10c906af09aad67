package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret reads a secret value using the *_FILE convention.
// If envName+"_FILE" is set, reads the secret from that file path.
// Otherwise falls back to the value of envName.
// Returns empty string if neither is set.
// Returns an error if the file cannot be read.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}

	return os.Getenv(envName), nil
}

// Secrets holds every credential the bot reads at startup.
type Secrets struct {
	PostgresPassword string
	MQTTUsername     string
	MQTTPassword     string
	AdminUser        string
	AdminPass        string
	OperatorUser     string
	OperatorPass     string
}

// LoadSecrets resolves all credentials. The first unreadable *_FILE aborts
// with an error naming the variable, never the secret value.
func LoadSecrets() (*Secrets, error) {
	var s Secrets
	targets := []struct {
		env string
		dst *string
	}{
		{"PGPASSWORD", &s.PostgresPassword},
		{"MQTT_USERNAME", &s.MQTTUsername},
		{"MQTT_PASSWORD", &s.MQTTPassword},
		{"TURINGBOT_ADMIN_USER", &s.AdminUser},
		{"TURINGBOT_ADMIN_PASS", &s.AdminPass},
		{"TURINGBOT_OPERATOR_USER", &s.OperatorUser},
		{"TURINGBOT_OPERATOR_PASS", &s.OperatorPass},
	}
	for _, t := range targets {
		v, err := ResolveSecret(t.env)
		if err != nil {
			return nil, err
		}
		*t.dst = v
	}
	return &s, nil
}
