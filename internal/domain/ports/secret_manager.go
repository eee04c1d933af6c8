package ports

import "context"

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value     string
	Version   string
	Metadata  map[string]string
	CreatedAt string
}

// SecretManager is the port for resolving sensitive configuration — the
// database password and the payment-gateway API token — from a secret store.
// Implementations handle authentication with the backend and cache values
// with a TTL.
//
// Path format depends on the backend:
//   - AWS Secrets Manager: "billing-engine/database/password"
//   - Vault KV v2:         "billing-engine/gateway/api-token"
//   - Local (dev):         an environment variable name
type SecretManager interface {
	// GetSecret retrieves a secret by its path/name
	GetSecret(ctx context.Context, path string) (*Secret, error)

	// PutSecret creates or updates a secret, returning the new version
	// identifier. Used by rotation tooling only.
	PutSecret(ctx context.Context, path, value string, metadata map[string]string) (string, error)
}
