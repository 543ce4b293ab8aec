package tenantconfig

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// placeholderPattern matches ${VAR} and ${VAR:-default}.
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv substitutes every placeholder in s. Unset or empty variables yield the default
// (or "" when none is given).
func ExpandEnv(s string, lookup LookupEnvFunc) string {
	if !strings.Contains(s, "${") {
		return s
	}
	if lookup == nil {
		lookup = OSLookupEnv
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		if v, ok := lookup(groups[1]); ok && v != "" {
			return v
		}
		return groups[2]
	})
}

// expandNode walks the YAML tree and substitutes placeholders in every scalar.
// Plain scalars lose their tag so "${SMTP_PORT:-587}" still decodes into an int.
func expandNode(node *yaml.Node, lookup LookupEnvFunc) {
	if node == nil {
		return
	}
	if node.Kind == yaml.ScalarNode {
		expanded := ExpandEnv(node.Value, lookup)
		if expanded != node.Value {
			node.Value = expanded
			if node.Style == 0 {
				node.Tag = ""
			}
		}
		return
	}
	for _, child := range node.Content {
		expandNode(child, lookup)
	}
}

// ParseYAML decodes a tenant document after environment substitution.
func ParseYAML(data []byte, lookup LookupEnvFunc) (TenantConfig, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return TenantConfig{}, fmt.Errorf("parse tenant yaml: %w", err)
	}
	if root.Kind == 0 {
		return TenantConfig{}, fmt.Errorf("parse tenant yaml: empty document")
	}

	expandNode(&root, lookup)

	var cfg TenantConfig
	if err := root.Decode(&cfg); err != nil {
		return TenantConfig{}, fmt.Errorf("decode tenant yaml: %w", err)
	}
	return cfg, nil
}
