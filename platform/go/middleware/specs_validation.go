package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"

	platformauth "github.com/tourdesk/tourdesk-saas/platform/go/auth"
	"github.com/tourdesk/tourdesk-saas/platform/go/problem"
)

var errNotAuthenticated = errors.New("request is not authenticated")

// AuthenticatedViaContext satisfies bearerAuth requirements from the credentials the auth
// middleware already placed on the request. Operations without security pass through.
func AuthenticatedViaContext(_ context.Context, input *openapi3filter.AuthenticationInput) error {
	if input == nil || input.SecuritySchemeName != "bearerAuth" {
		return nil
	}
	r := input.RequestValidationInput.Request
	if r == nil {
		return errNotAuthenticated
	}
	if creds, ok := platformauth.UserFromContext(r.Context()); !ok || creds == nil {
		return errNotAuthenticated
	}
	return nil
}

// ContractValidator validates requests against doc and answers violations with a problem document.
func ContractValidator(doc *openapi3.T) func(http.Handler) http.Handler {
	return oapimiddleware.OapiRequestValidatorWithOptions(doc, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: AuthenticatedViaContext,
		},
		ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
			problemType := problem.TypeValidation
			title := "Request does not match the API contract"
			if statusCode == http.StatusNotFound {
				problemType = problem.TypeNotFound
				title = "Resource not found"
			}
			problem.Write(w, problem.New(title, message, problemType, statusCode, nil))
		},
	})
}
