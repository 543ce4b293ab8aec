package tenant

import (
	"context"

	"github.com/tourdesk/tourdesk-saas/platform/go/tenantconfig"
)

// Space is the tenant a request is acting for, with its effective configuration.
// Middleware attaches it once the client id has been resolved.
type Space struct {
	ClientID string
	Config   tenantconfig.TenantConfig
}

type ctxKey string

const spaceKey ctxKey = "TOURDESK_TENANT_SPACE"

// WithSpace returns a derived context carrying the tenant Space.
func WithSpace(ctx context.Context, space Space) context.Context {
	return context.WithValue(ctx, spaceKey, space)
}

// FromContext extracts the tenant Space and a boolean indicating presence.
func FromContext(ctx context.Context) (Space, bool) {
	v := ctx.Value(spaceKey)
	if v == nil {
		return Space{}, false
	}

	space, ok := v.(Space)
	return space, ok
}
