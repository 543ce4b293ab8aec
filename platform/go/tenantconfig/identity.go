package tenantconfig

import (
	"regexp"
	"strings"
)

// TestTenantPrefix marks throwaway tenants created by test suites. They never resolve.
const TestTenantPrefix = "tn_"

var clientIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// IsTestTenant reports whether clientID belongs to the test partition.
func IsTestTenant(clientID string) bool {
	return strings.HasPrefix(clientID, TestTenantPrefix)
}

// ValidClientID reports whether clientID is safe to use as a path segment and env prefix.
// Only lower-case letters, digits and hyphens are accepted so that EnvPrefix is injective.
func ValidClientID(clientID string) bool {
	return clientIDPattern.MatchString(clientID)
}

// EnvPrefix converts a client id into its environment variable prefix ("acme-co" -> "ACME_CO").
func EnvPrefix(clientID string) string {
	return strings.ReplaceAll(strings.ToUpper(clientID), "-", "_")
}

// TenantEnvVar builds the tenant-specific variant of a global variable name.
func TenantEnvVar(clientID, name string) string {
	return EnvPrefix(clientID) + "_" + name
}
