package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tupinet/billing-engine/internal/domain/ports"
)

// localSecretManager implements SecretManager on environment variables.
// WARNING: development only. Use AWS Secrets Manager or Vault in production.
type localSecretManager struct {
	logger ports.Logger
}

// NewLocalSecretManager creates a secret manager that resolves paths against
// the process environment. The path "billing-engine/database/password" maps
// to the variable BILLING_ENGINE_DATABASE_PASSWORD.
func NewLocalSecretManager(logger ports.Logger) ports.SecretManager {
	return &localSecretManager{logger: logger}
}

// GetSecret resolves a secret path to an environment variable
func (m *localSecretManager) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	name := envName(path)

	m.logger.Debug("reading secret from environment", ports.String("var", name))

	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return nil, fmt.Errorf("secret not found: %s (env %s)", path, name)
	}

	return &ports.Secret{
		Value:   value,
		Version: "v1",
	}, nil
}

// PutSecret sets the process-local environment variable. It does not
// persist beyond the process; rotation tooling targets the real backends.
func (m *localSecretManager) PutSecret(ctx context.Context, path, value string, _ map[string]string) (string, error) {
	name := envName(path)

	m.logger.Info("storing secret in process environment", ports.String("var", name))

	if err := os.Setenv(name, value); err != nil {
		return "", fmt.Errorf("failed to set secret: %w", err)
	}
	return "v1", nil
}

func envName(path string) string {
	name := strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(path)
	return strings.ToUpper(name)
}
