package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tourdesk/tourdesk-saas/domains/records/be/service"
	platformlogging "github.com/tourdesk/tourdesk-saas/platform/go/logging"
	"github.com/tourdesk/tourdesk-saas/platform/go/persistence"
	"github.com/tourdesk/tourdesk-saas/platform/go/problem"
	"github.com/tourdesk/tourdesk-saas/platform/go/requesttrace"
)

type operation string

const (
	listOperation   operation = "recordsList"
	getOperation    operation = "recordsGet"
	createOperation operation = "recordsCreate"
	updateOperation operation = "recordsUpdate"
	deleteOperation operation = "recordsDelete"
)

// Query parameters with a meaning of their own; every other key is a column filter.
const (
	paramLimit  = "limit"
	paramOffset = "offset"
	paramOrder  = "order"
)

// RecordList is the response of a listing.
type RecordList struct {
	Items  []persistence.Row `json:"items"`
	Offset int               `json:"offset"`
}

// Handler serves tenant-scoped CRUD over the operational tables.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("records service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// ReadRoutes mounts list and get.
func (h *Handler) ReadRoutes(r chi.Router) {
	r.Get("/records/{table}", h.List)
	r.Get("/records/{table}/{id}", h.Get)
}

// WriteRoutes mounts create, patch and delete.
func (h *Handler) WriteRoutes(r chi.Router) {
	r.Post("/records/{table}", h.Create)
	r.Patch("/records/{table}/{id}", h.Update)
	r.Delete("/records/{table}/{id}", h.Delete)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		h.writeError(w, r, err, listOperation)
		return
	}

	rows, err := h.svc.List(r.Context(), chi.URLParam(r, "table"), opts)
	if err != nil {
		h.writeError(w, r, err, listOperation)
		return
	}
	if rows == nil {
		rows = []persistence.Row{}
	}

	problem.WriteJSON(w, http.StatusOK, RecordList{Items: rows, Offset: opts.Offset})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	row, err := h.svc.Get(r.Context(), chi.URLParam(r, "table"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err, getOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, row)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var values persistence.Row
	if err := problem.DecodeJSON(r, &values); err != nil {
		problem.Write(w, problem.New("Invalid request body", err.Error(), problem.TypeValidation, http.StatusBadRequest, nil))
		return
	}

	table := chi.URLParam(r, "table")
	audit := requesttrace.FromContextOrAnonymous(r.Context())
	row, err := h.svc.Create(r.Context(), audit, table, values)
	if err != nil {
		h.writeError(w, r, err, createOperation)
		return
	}

	if id, ok := row["id"]; ok {
		w.Header().Set("Location", fmt.Sprintf("/api/v1/records/%s/%v", table, id))
	}
	problem.WriteJSON(w, http.StatusCreated, row)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var patch persistence.Row
	if err := problem.DecodeJSON(r, &patch); err != nil {
		problem.Write(w, problem.New("Invalid request body", err.Error(), problem.TypeValidation, http.StatusBadRequest, nil))
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())
	row, err := h.svc.Update(r.Context(), audit, chi.URLParam(r, "table"), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeError(w, r, err, updateOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, row)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	audit := requesttrace.FromContextOrAnonymous(r.Context())
	if err := h.svc.Delete(r.Context(), audit, chi.URLParam(r, "table"), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err, deleteOperation)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type badQueryError struct {
	param string
	msg   string
}

func (e *badQueryError) Error() string {
	return e.param + ": " + e.msg
}

func parseListOptions(r *http.Request) (service.ListOptions, error) {
	q := r.URL.Query()
	opts := service.ListOptions{Filters: map[string]any{}}

	for key, values := range q {
		switch key {
		case paramLimit:
			n, err := strconv.Atoi(values[0])
			if err != nil || n < 0 {
				return service.ListOptions{}, &badQueryError{param: key, msg: "must be a non-negative integer"}
			}
			opts.Limit = n
		case paramOffset:
			n, err := strconv.Atoi(values[0])
			if err != nil || n < 0 {
				return service.ListOptions{}, &badQueryError{param: key, msg: "must be a non-negative integer"}
			}
			opts.Offset = n
		case paramOrder:
			order := strings.TrimSpace(values[0])
			if strings.HasPrefix(order, "-") {
				opts.Desc = true
				order = strings.TrimPrefix(order, "-")
			}
			opts.OrderBy = order
		default:
			if len(values) == 1 {
				opts.Filters[key] = values[0]
			} else {
				in := make([]any, 0, len(values))
				for _, v := range values {
					in = append(in, v)
				}
				opts.Filters[key] = in
			}
		}
	}

	return opts, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, op operation) {
	status, title, detail, problemType, fields := classifyError(err)

	logger := h.loggerFrom(r.Context())
	fieldsForLog := []zap.Field{
		zap.String("operation", string(op)),
		zap.String("table", chi.URLParam(r, "table")),
		zap.Int("status", status),
		zap.Error(err),
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("records operation failed", fieldsForLog...)
	case status == http.StatusNotFound:
		logger.Info("record not found", fieldsForLog...)
	default:
		logger.Warn("records request rejected", fieldsForLog...)
	}

	problem.Write(w, problem.New(title, detail, problemType, status, fields))
}

func classifyError(err error) (status int, title, detail, problemType string, fieldErrors map[string][]string) {
	var queryErr *badQueryError
	switch {
	case errors.As(err, &queryErr):
		return http.StatusBadRequest, "Validation failed", "invalid query parameter", problem.TypeValidation,
			map[string][]string{queryErr.param: {queryErr.msg}}
	case errors.Is(err, persistence.ErrUnknownColumn):
		return http.StatusBadRequest, "Validation failed", err.Error(), problem.TypeValidation, nil
	case errors.Is(err, persistence.ErrInvalidRecordID):
		return http.StatusBadRequest, "Validation failed", "record id must be a UUID", problem.TypeValidation,
			map[string][]string{"id": {"must be a UUID"}}
	case errors.Is(err, persistence.ErrTenantOverride):
		return http.StatusForbidden, "Forbidden", "tenant_id is set by the server", problem.TypeForbidden, nil
	case errors.Is(err, persistence.ErrUnknownTable):
		return http.StatusNotFound, "Resource not found", "unknown table", problem.TypeNotFound, nil
	case errors.Is(err, persistence.ErrRecordNotFound):
		return http.StatusNotFound, "Resource not found", "record not found", problem.TypeNotFound, nil
	default:
		return http.StatusInternalServerError, "Internal server error", "an unexpected error occurred", problem.TypeInternal, nil
	}
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}
