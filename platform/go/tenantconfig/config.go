package tenantconfig

import (
	"encoding/json"
	"fmt"
)

// Source records where a resolved configuration came from.
type Source string

const (
	SourceDatabase Source = "database"
	SourceYAML     Source = "yaml"
	SourceCache    Source = "cache"
)

// TenantConfig is the effective configuration of one agency.
// Branding, destinations, banking, consultants and agents are opaque to the platform and
// are carried through untouched.
type TenantConfig struct {
	ClientID    string `json:"client_id" yaml:"client_id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	ShortName   string `json:"short_name,omitempty" yaml:"short_name"`
	Timezone    string `json:"timezone,omitempty" yaml:"timezone"`
	Currency    string `json:"currency,omitempty" yaml:"currency"`

	Branding     map[string]any   `json:"branding,omitempty" yaml:"branding"`
	Destinations []map[string]any `json:"destinations,omitempty" yaml:"destinations"`
	Banking      map[string]any   `json:"banking,omitempty" yaml:"banking"`
	Consultants  []map[string]any `json:"consultants,omitempty" yaml:"consultants"`
	Agents       map[string]any   `json:"agents,omitempty" yaml:"agents"`

	Infrastructure Infrastructure `json:"infrastructure" yaml:"infrastructure"`
	Email          EmailConfig    `json:"email" yaml:"email"`

	Meta Meta `json:"_meta" yaml:"_meta"`
}

// Meta carries resolution bookkeeping. It is never persisted.
type Meta struct {
	Source Source `json:"source,omitempty" yaml:"source"`
}

// Infrastructure groups the per-provider connection settings.
type Infrastructure struct {
	Supabase SupabaseConfig      `json:"supabase" yaml:"supabase"`
	BigQuery BigQueryConfig      `json:"bigquery" yaml:"bigquery"`
	VAPI     VAPIConfig          `json:"vapi" yaml:"vapi"`
	OpenAI   OpenAIConfig        `json:"openai" yaml:"openai"`
	Email    EmailProviderConfig `json:"email" yaml:"email"`
}

type SupabaseConfig struct {
	URL        string `json:"url,omitempty" yaml:"url"`
	AnonKey    string `json:"anon_key,omitempty" yaml:"anon_key"`
	ServiceKey string `json:"service_key,omitempty" yaml:"service_key"`
}

type BigQueryConfig struct {
	ProjectID string `json:"project_id,omitempty" yaml:"project_id"`
	Dataset   string `json:"dataset,omitempty" yaml:"dataset"`
}

type VAPIConfig struct {
	APIKey        string `json:"api_key,omitempty" yaml:"api_key"`
	AssistantID   string `json:"assistant_id,omitempty" yaml:"assistant_id"`
	PhoneNumberID string `json:"phone_number_id,omitempty" yaml:"phone_number_id"`
}

type OpenAIConfig struct {
	APIKey string `json:"api_key,omitempty" yaml:"api_key"`
	Model  string `json:"model,omitempty" yaml:"model"`
}

// EmailProviderConfig selects the outbound email provider (sendgrid or smtp).
type EmailProviderConfig struct {
	Provider string `json:"provider,omitempty" yaml:"provider"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key"`
}

// EmailConfig is the sender identity used for outbound mail.
type EmailConfig struct {
	FromName  string     `json:"from_name,omitempty" yaml:"from_name"`
	FromEmail string     `json:"from_email,omitempty" yaml:"from_email"`
	ReplyTo   string     `json:"reply_to,omitempty" yaml:"reply_to"`
	SMTP      SMTPConfig `json:"smtp" yaml:"smtp"`
}

type SMTPConfig struct {
	Host     string `json:"host,omitempty" yaml:"host"`
	Port     int    `json:"port,omitempty" yaml:"port"`
	Username string `json:"username,omitempty" yaml:"username"`
	Password string `json:"password,omitempty" yaml:"password"`
}

// Clone returns a deep copy. Opaque sections are copied through a JSON round trip.
func (c TenantConfig) Clone() TenantConfig {
	out := c
	out.Branding = cloneMap(c.Branding)
	out.Banking = cloneMap(c.Banking)
	out.Agents = cloneMap(c.Agents)
	out.Destinations = cloneMapSlice(c.Destinations)
	out.Consultants = cloneMapSlice(c.Consultants)
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	var out map[string]any
	raw, err := json.Marshal(in)
	if err != nil {
		return in
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return in
	}
	return out
}

func cloneMapSlice(in []map[string]any) []map[string]any {
	if in == nil {
		return nil
	}
	out := make([]map[string]any, len(in))
	for i, m := range in {
		out[i] = cloneMap(m)
	}
	return out
}

// nestedSections is the JSON blob layout stored next to the scalar columns.
type nestedSections struct {
	Branding       map[string]any   `json:"branding,omitempty"`
	Destinations   []map[string]any `json:"destinations,omitempty"`
	Banking        map[string]any   `json:"banking,omitempty"`
	Consultants    []map[string]any `json:"consultants,omitempty"`
	Agents         map[string]any   `json:"agents,omitempty"`
	Infrastructure Infrastructure   `json:"infrastructure"`
	Email          EmailConfig      `json:"email"`
}

// StoredTenant is the persisted shape of a tenant: identity columns plus a secret-free blob.
type StoredTenant struct {
	ClientID    string
	DisplayName string
	ShortName   string
	Timezone    string
	Currency    string
	Config      json.RawMessage
	Source      Source
	Status      string
}

// Stored tenant statuses. Only active rows are served by the resolver.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// ToStored splits cfg into columns and a JSON blob with every secret removed.
func ToStored(cfg TenantConfig) (StoredTenant, error) {
	clearEnvOnly(&cfg.Infrastructure)
	raw, err := json.Marshal(nestedSections{
		Branding:       cfg.Branding,
		Destinations:   cfg.Destinations,
		Banking:        cfg.Banking,
		Consultants:    cfg.Consultants,
		Agents:         cfg.Agents,
		Infrastructure: cfg.Infrastructure,
		Email:          cfg.Email,
	})
	if err != nil {
		return StoredTenant{}, fmt.Errorf("encode tenant config: %w", err)
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return StoredTenant{}, fmt.Errorf("decode tenant config: %w", err)
	}

	blob, err := json.Marshal(StripSecrets(generic))
	if err != nil {
		return StoredTenant{}, fmt.Errorf("encode stripped tenant config: %w", err)
	}

	return StoredTenant{
		ClientID:    cfg.ClientID,
		DisplayName: cfg.DisplayName,
		ShortName:   cfg.ShortName,
		Timezone:    cfg.Timezone,
		Currency:    cfg.Currency,
		Config:      blob,
		Source:      SourceDatabase,
		Status:      StatusActive,
	}, nil
}

// FromStored rebuilds a TenantConfig from a stored record. Any secret found in the blob is
// dropped; credentials only ever come from ResolveSecrets.
func FromStored(rec StoredTenant) (TenantConfig, error) {
	var nested nestedSections
	if len(rec.Config) > 0 {
		var generic map[string]any
		if err := json.Unmarshal(rec.Config, &generic); err != nil {
			return TenantConfig{}, fmt.Errorf("decode stored config for %s: %w", rec.ClientID, err)
		}
		clean, err := json.Marshal(StripSecrets(generic))
		if err != nil {
			return TenantConfig{}, fmt.Errorf("encode stored config for %s: %w", rec.ClientID, err)
		}
		if err := json.Unmarshal(clean, &nested); err != nil {
			return TenantConfig{}, fmt.Errorf("decode stored config for %s: %w", rec.ClientID, err)
		}
	}

	clearEnvOnly(&nested.Infrastructure)

	return TenantConfig{
		ClientID:       rec.ClientID,
		DisplayName:    rec.DisplayName,
		ShortName:      rec.ShortName,
		Timezone:       rec.Timezone,
		Currency:       rec.Currency,
		Branding:       nested.Branding,
		Destinations:   nested.Destinations,
		Banking:        nested.Banking,
		Consultants:    nested.Consultants,
		Agents:         nested.Agents,
		Infrastructure: nested.Infrastructure,
		Email:          nested.Email,
	}, nil
}

// Redacted renders cfg as a generic document with populated secrets masked.
func (c TenantConfig) Redacted() (map[string]any, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode tenant config: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("decode tenant config: %w", err)
	}
	redacted, _ := Redact(generic).(map[string]any)
	return redacted, nil
}
