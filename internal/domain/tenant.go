package domain

import (
	"fmt"
	"time"
)

// Tenant is the top-level isolation boundary; every search is tenant-scoped.
type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// ValidateTenant validates a Tenant instance
func ValidateTenant(t *Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant cannot be nil")
	}

	if t.ID == "" {
		return fmt.Errorf("tenant ID is required")
	}

	if t.Name == "" {
		return fmt.Errorf("tenant Name is required")
	}

	return nil
}
