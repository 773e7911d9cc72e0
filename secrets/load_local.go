package secrets

import (
	"context"
	"os"
)

// LocalConfig supports loading the signing secret from a local file rather
// than from secretmanager.
type LocalConfig struct{}

// NewLocalConfig creates a new instance for loading a local signing secret.
func NewLocalConfig() *LocalConfig {
	return &LocalConfig{}
}

// LoadSigningSecret reads the secret from the named file. The client parameter
// is ignored.
func (c *LocalConfig) LoadSigningSecret(ctx context.Context, client SecretClient, name string) ([]byte, error) {
	secret, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return clean(secret)
}
