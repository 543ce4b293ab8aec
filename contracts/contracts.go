// Package contracts embeds the OpenAPI documents of the HTTP API.
package contracts

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed *.yaml
var documents embed.FS

// Names lists the embedded documents by name (file name without extension).
func Names() []string {
	entries, err := documents.ReadDir(".")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Load parses and validates the named document.
func Load(name string) (*openapi3.T, error) {
	data, err := documents.ReadFile(name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown contract %q: %w", name, err)
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("load contract %q: %w", name, err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate contract %q: %w", name, err)
	}
	return doc, nil
}
