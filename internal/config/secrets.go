package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrSecretMissing is returned by RequireSecret when neither variable is set.
var ErrSecretMissing = errors.New("secret not set")

// ResolveSecret reads a secret using the *_FILE convention: envName+"_FILE"
// names a file holding the value and takes precedence over envName itself.
// An unset secret resolves to the empty string.
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

// RequireSecret is ResolveSecret for secrets the process cannot run without.
// The error never includes the secret value.
func RequireSecret(envName string) (string, error) {
	v, err := ResolveSecret(envName)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", fmt.Errorf("%s: %w", envName, ErrSecretMissing)
	}
	return v, nil
}
