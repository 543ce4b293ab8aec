package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tourdesk/tourdesk-saas/domains/tenantconfig/be/service"
	platformlogging "github.com/tourdesk/tourdesk-saas/platform/go/logging"
	"github.com/tourdesk/tourdesk-saas/platform/go/problem"
	"github.com/tourdesk/tourdesk-saas/platform/go/requesttrace"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenantconfig"
)

type operation string

const (
	listOperation          operation = "tenantsList"
	getOperation           operation = "tenantConfigGet"
	saveOperation          operation = "tenantConfigSave"
	invalidateOperation    operation = "tenantConfigInvalidate"
	invalidateAllOperation operation = "tenantConfigInvalidateAll"
)

// TenantList is the response of the tenant listing.
type TenantList struct {
	Items []string `json:"items"`
}

// Handler serves the tenant config admin endpoints.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenant config service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the admin endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/admin/tenants", h.TenantsList)
	r.Post("/admin/tenants/cache/invalidate", h.InvalidateAll)
	r.Get("/admin/tenants/{clientId}/config", h.GetConfig)
	r.Put("/admin/tenants/{clientId}/config", h.SaveConfig)
	r.Post("/admin/tenants/{clientId}/cache/invalidate", h.Invalidate)
}

func (h *Handler) TenantsList(w http.ResponseWriter, r *http.Request) {
	includeFiles := r.URL.Query().Get("includeFiles") == "true"
	h.loggerFrom(r.Context()).Debug("listing tenants", zap.String("operation", string(listOperation)), zap.Bool("include_files", includeFiles))
	problem.WriteJSON(w, http.StatusOK, TenantList{Items: h.svc.List(r.Context(), includeFiles)})
}

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Get(r.Context(), chi.URLParam(r, "clientId"))
	if err != nil {
		h.writeError(w, r, err, getOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	var cfg tenantconfig.TenantConfig
	if err := problem.DecodeJSON(r, &cfg); err != nil {
		problem.Write(w, problem.New("Invalid request body", err.Error(), problem.TypeValidation, http.StatusBadRequest, nil))
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())
	if err := h.svc.Save(r.Context(), audit, chi.URLParam(r, "clientId"), cfg); err != nil {
		h.writeError(w, r, err, saveOperation)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	audit := requesttrace.FromContextOrAnonymous(r.Context())
	h.svc.Invalidate(r.Context(), audit, chi.URLParam(r, "clientId"))
	h.loggerFrom(r.Context()).Debug("cache entry dropped", zap.String("operation", string(invalidateOperation)))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) InvalidateAll(w http.ResponseWriter, r *http.Request) {
	audit := requesttrace.FromContextOrAnonymous(r.Context())
	h.svc.InvalidateAll(r.Context(), audit)
	h.loggerFrom(r.Context()).Debug("cache flushed", zap.String("operation", string(invalidateAllOperation)))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, op operation) {
	status, title, detail, problemType, fields := classifyError(err)

	logger := h.loggerFrom(r.Context())
	fieldsForLog := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", status),
		zap.Error(err),
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("tenant config operation failed", fieldsForLog...)
	case status == http.StatusNotFound:
		logger.Info("tenant config not found", fieldsForLog...)
	default:
		logger.Warn("tenant config request rejected", fieldsForLog...)
	}

	problem.Write(w, problem.New(title, detail, problemType, status, fields))
}

func classifyError(err error) (status int, title, detail, problemType string, fieldErrors tenantconfig.FieldErrors) {
	var validationErr *tenantconfig.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest,
			"Validation failed",
			"one or more fields are invalid",
			problem.TypeValidation,
			validationErr.Fields
	case errors.Is(err, tenantconfig.ErrClientIDMismatch):
		return http.StatusBadRequest,
			"Validation failed",
			err.Error(),
			problem.TypeValidation,
			tenantconfig.FieldErrors{"client_id": {"must match the tenant in the path"}}
	case errors.Is(err, tenantconfig.ErrNotFound):
		return http.StatusNotFound,
			"Resource not found",
			"tenant not found",
			problem.TypeNotFound,
			nil
	case errors.Is(err, tenantconfig.ErrFileOnlyTenant):
		return http.StatusConflict,
			"Conflict",
			"tenant is pinned to its YAML file and cannot be edited here",
			problem.TypeConflict,
			nil
	case errors.Is(err, tenantconfig.ErrStoreUnavailable):
		return http.StatusServiceUnavailable,
			"Service unavailable",
			"tenant config store is unavailable",
			problem.TypeUnavailable,
			nil
	default:
		return http.StatusInternalServerError,
			"Internal server error",
			"an unexpected error occurred",
			problem.TypeInternal,
			nil
	}
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}
