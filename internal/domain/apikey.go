package domain

import (
	"fmt"
	"time"
)

// APIKey authenticates a caller and resolves to a tenant.
// Only the SHA-256 hash of the token is stored.
type APIKey struct {
	ID        string
	TenantID  string
	Name      string
	KeyHash   string
	CreatedAt time.Time
	RevokedAt *time.Time
}

// IsRevoked reports whether the key has been revoked.
func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// ValidateAPIKey validates an APIKey instance
func ValidateAPIKey(k *APIKey) error {
	if k == nil {
		return fmt.Errorf("api key cannot be nil")
	}

	if k.ID == "" {
		return fmt.Errorf("api key ID is required")
	}

	if k.TenantID == "" {
		return fmt.Errorf("api key TenantID is required")
	}

	if k.KeyHash == "" {
		return fmt.Errorf("api key KeyHash is required")
	}

	return nil
}
