package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformauth "github.com/tourdesk/tourdesk-saas/platform/go/auth"
	platformlogging "github.com/tourdesk/tourdesk-saas/platform/go/logging"
	"github.com/tourdesk/tourdesk-saas/platform/go/requesttrace"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenant"
)

// RequestTrace populates the context with request-scoped AuditInfo so services can stamp
// audit log entries. It runs after the tenant and auth middleware.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := platformlogging.FromRequest(r, nil)
		requestID := middleware.GetReqID(r.Context())

		var audit requesttrace.AuditInfo
		if creds, ok := platformauth.UserFromContext(r.Context()); ok && creds != nil {
			var err error
			audit, err = requesttrace.FromCredentials(creds, requestID)
			if err != nil {
				logger.Error("build audit info from credentials", zap.Error(err))
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		} else {
			audit = requesttrace.Anonymous(requestID)
			if space, ok := tenant.FromContext(r.Context()); ok {
				audit.ClientID = space.ClientID
			}
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		ctx = platformlogging.WithLogger(ctx, logger.With(zap.String("actor_kind", string(audit.ActorKind))))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
