package tenantconfig

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed tenant_config.schema.json
var tenantConfigSchema []byte

const tenantConfigSchemaURL = "memory://tenant-config/v1"

// FieldErrors maps a field path to its validation messages.
type FieldErrors map[string][]string

func (f FieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

// ValidationError reports a config document that does not satisfy the tenant config schema.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "invalid tenant config: " + strings.Join(keys, ", ")
}

// Validator checks TenantConfig documents against the embedded JSON schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(tenantConfigSchemaURL, bytes.NewReader(tenantConfigSchema)); err != nil {
		return nil, fmt.Errorf("register tenant config schema: %w", err)
	}
	schema, err := compiler.Compile(tenantConfigSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile tenant config schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// MustNewValidator panics when the embedded schema does not compile.
func MustNewValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate returns a *ValidationError describing every violated constraint.
func (v *Validator) Validate(cfg TenantConfig) error {
	cfg.Meta = Meta{}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode tenant config: %w", err)
	}
	var document any
	if err := json.Unmarshal(raw, &document); err != nil {
		return fmt.Errorf("decode tenant config: %w", err)
	}

	err = v.schema.Validate(document)
	if err == nil {
		return nil
	}

	var schemaErr *jsonschema.ValidationError
	if !errors.As(err, &schemaErr) {
		return fmt.Errorf("validate tenant config: %w", err)
	}

	fields := FieldErrors{}
	collectLeaves(schemaErr, fields)
	return &ValidationError{Fields: fields}
}

func collectLeaves(e *jsonschema.ValidationError, fields FieldErrors) {
	if len(e.Causes) == 0 {
		field := strings.ReplaceAll(strings.TrimPrefix(e.InstanceLocation, "/"), "/", ".")
		if field == "" {
			field = "config"
		}
		fields.add(field, e.Message)
		return
	}
	for _, cause := range e.Causes {
		collectLeaves(cause, fields)
	}
}
