package contracts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedContractsLoad(t *testing.T) {
	names := Names()
	require.Equal(t, []string{"records", "tenant-config", "users"}, names)

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			doc, err := Load(name)
			require.NoError(t, err)
			require.Contains(t, doc.Components.SecuritySchemes, "bearerAuth")
		})
	}

	_, err := Load("missing")
	require.Error(t, err)
}
