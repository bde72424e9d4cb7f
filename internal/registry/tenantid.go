package registry

import "fmt"

// MaxTenantIDLength bounds tenant ids on every surface that accepts one.
const MaxTenantIDLength = 64

// ValidateTenantID rejects empty, oversized, or non [A-Za-z0-9_-] ids
// before they reach the registry or name a worker's database.
func ValidateTenantID(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("registry: empty tenant id")
	}
	if len(tenantID) > MaxTenantIDLength {
		return fmt.Errorf("registry: tenant id longer than %d chars", MaxTenantIDLength)
	}
	for _, c := range tenantID {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return fmt.Errorf("registry: tenant id contains invalid character %q", c)
		}
	}
	return nil
}
