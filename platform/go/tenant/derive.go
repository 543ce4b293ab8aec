package tenant

import (
	"net/http"
	"strings"
)

// ClientIDHeader carries the tenant a request acts for.
const ClientIDHeader = "X-Client-ID"

// ClientIDFromRequest reads the acting tenant from the X-Client-ID header. Route parameters
// such as /admin/tenants/{clientId} name a target tenant and are never consulted.
func ClientIDFromRequest(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(ClientIDHeader))
	return id, id != ""
}
