package tenantconfig

import (
	"os"
	"strings"
)

// LookupEnvFunc matches os.LookupEnv so tests can inject a fixed environment.
type LookupEnvFunc func(key string) (string, bool)

// OSLookupEnv reads the process environment.
var OSLookupEnv LookupEnvFunc = os.LookupEnv

// Canonical names of the environment variables that carry provider credentials.
const (
	EnvSupabaseServiceKey = "SUPABASE_SERVICE_KEY"
	EnvSupabaseAnonKey    = "SUPABASE_ANON_KEY"
	EnvBigQueryProjectID  = "BIGQUERY_PROJECT_ID"
	EnvVAPIAPIKey         = "VAPI_API_KEY"
	EnvOpenAIAPIKey       = "OPENAI_API_KEY"
	EnvSendGridAPIKey     = "SENDGRID_API_KEY"
	EnvSMTPPassword       = "SMTP_PASSWORD"
)

type secretBinding struct {
	envVar string
	field  func(*TenantConfig) *string
}

var secretBindings = []secretBinding{
	{EnvSupabaseServiceKey, func(c *TenantConfig) *string { return &c.Infrastructure.Supabase.ServiceKey }},
	{EnvSupabaseAnonKey, func(c *TenantConfig) *string { return &c.Infrastructure.Supabase.AnonKey }},
	{EnvBigQueryProjectID, func(c *TenantConfig) *string { return &c.Infrastructure.BigQuery.ProjectID }},
	{EnvVAPIAPIKey, func(c *TenantConfig) *string { return &c.Infrastructure.VAPI.APIKey }},
	{EnvOpenAIAPIKey, func(c *TenantConfig) *string { return &c.Infrastructure.OpenAI.APIKey }},
	{EnvSendGridAPIKey, func(c *TenantConfig) *string { return &c.Infrastructure.Email.APIKey }},
	{EnvSMTPPassword, func(c *TenantConfig) *string { return &c.Email.SMTP.Password }},
}

// clearEnvOnly blanks bindings that are not named like secrets but must still come from the
// environment when a config is served from the database.
func clearEnvOnly(infra *Infrastructure) {
	infra.BigQuery.ProjectID = ""
}

// LookupSecret returns the tenant-specific value of name, then the global one, then "".
func LookupSecret(clientID, name string, lookup LookupEnvFunc) string {
	if lookup == nil {
		lookup = OSLookupEnv
	}
	if clientID != "" {
		if v, ok := lookup(TenantEnvVar(clientID, name)); ok && v != "" {
			return v
		}
	}
	if v, ok := lookup(name); ok && v != "" {
		return v
	}
	return ""
}

// ResolveSecrets returns a copy of cfg with every empty credential filled from the environment.
// Values already present (for example from a YAML placeholder) are kept.
func ResolveSecrets(cfg TenantConfig, lookup LookupEnvFunc) TenantConfig {
	out := cfg.Clone()
	for _, b := range secretBindings {
		field := b.field(&out)
		if *field != "" {
			continue
		}
		*field = LookupSecret(out.ClientID, b.envVar, lookup)
	}
	return out
}

var secretSuffixes = []string{"key", "secret", "password"}

// IsSecretField reports whether a field name follows the secret naming convention.
func IsSecretField(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range secretSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// StripSecrets returns a copy of v without any map entry whose key is a secret field.
func StripSecrets(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, val := range typed {
			if IsSecretField(k) {
				continue
			}
			out[k] = StripSecrets(val)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, val := range typed {
			out[i] = StripSecrets(val)
		}
		return out
	default:
		return v
	}
}

// RedactedValue replaces a populated secret in operator-facing output.
const RedactedValue = "***"

// Redact returns a copy of v where populated secret fields read RedactedValue.
func Redact(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, val := range typed {
			if IsSecretField(k) {
				if s, ok := val.(string); ok && s == "" {
					out[k] = ""
				} else {
					out[k] = RedactedValue
				}
				continue
			}
			out[k] = Redact(val)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, val := range typed {
			out[i] = Redact(val)
		}
		return out
	default:
		return v
	}
}
