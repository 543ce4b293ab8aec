package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tourdesk/tourdesk-saas/domains/users/be/service"
	platformlogging "github.com/tourdesk/tourdesk-saas/platform/go/logging"
	"github.com/tourdesk/tourdesk-saas/platform/go/problem"
	"github.com/tourdesk/tourdesk-saas/platform/go/requesttrace"
)

type operation string

const (
	createOperation     operation = "usersCreate"
	listOperation       operation = "usersList"
	deactivateOperation operation = "usersDeactivate"
)

// User is the JSON representation of a tenant member.
type User struct {
	ID         uuid.UUID `json:"id"`
	AuthUserID string    `json:"authUserId"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	Role       string    `json:"role"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// UserList is a page of users.
type UserList struct {
	Items      []User `json:"items"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	TotalItems int    `json:"totalItems"`
	TotalPages int    `json:"totalPages"`
}

// CreateUser is the request body of POST /users.
type CreateUser struct {
	AuthUserID string `json:"authUserId"`
	Email      string `json:"email"`
	FullName   string `json:"fullName"`
	Role       string `json:"role"`
}

// Handler wires the users service to HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("users service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the read endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/users", h.UsersList)
}

// AdminRoutes mounts the endpoints that change membership.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Post("/users", h.UsersCreate)
	r.Post("/users/{userId}/deactivate", h.UsersDeactivate)
}

func (h *Handler) UsersList(w http.ResponseWriter, r *http.Request) {
	opts, err := buildListOptions(r)
	if err != nil {
		h.writeError(w, r, err, listOperation)
		return
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err, listOperation)
		return
	}

	items := make([]User, 0, len(result.Users))
	for _, user := range result.Users {
		items = append(items, toAPIUser(user))
	}

	problem.WriteJSON(w, http.StatusOK, UserList{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

func (h *Handler) UsersCreate(w http.ResponseWriter, r *http.Request) {
	var body CreateUser
	if err := problem.DecodeJSON(r, &body); err != nil {
		problem.Write(w, problem.New("Invalid request body", err.Error(), problem.TypeValidation, http.StatusBadRequest, nil))
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())
	created, err := h.svc.Create(r.Context(), audit, service.CreateInput{
		AuthUserID: body.AuthUserID,
		Email:      body.Email,
		FullName:   body.FullName,
		Role:       body.Role,
	})
	if err != nil {
		h.writeError(w, r, err, createOperation)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/users/%s", created.ID.String()))
	problem.WriteJSON(w, http.StatusCreated, toAPIUser(created))
}

func (h *Handler) UsersDeactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		problem.Write(w, problem.New("Invalid user id", "userId must be a UUID", problem.TypeValidation, http.StatusBadRequest, nil))
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())
	updated, err := h.svc.Deactivate(r.Context(), audit, id)
	if err != nil {
		h.writeError(w, r, err, deactivateOperation)
		return
	}

	problem.WriteJSON(w, http.StatusOK, toAPIUser(updated))
}

func buildListOptions(r *http.Request) (service.ListOptions, error) {
	q := r.URL.Query()
	opts := service.ListOptions{}
	fieldErrors := service.FieldErrors{}

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			fieldErrors["page"] = append(fieldErrors["page"], "page must be an integer")
		}
		opts.Page = page
	}
	if v := q.Get("pageSize"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			fieldErrors["pageSize"] = append(fieldErrors["pageSize"], "pageSize must be an integer")
		}
		opts.PageSize = size
	}
	if v := strings.TrimSpace(q.Get("email")); v != "" {
		opts.Email = &v
	}
	if v := q.Get("sort"); v != "" {
		opts.Sort = &v
	}
	opts.IncludeInactive = q.Get("includeInactive") == "true"

	if len(fieldErrors) > 0 {
		return service.ListOptions{}, &service.ValidationError{Fields: fieldErrors}
	}
	return opts, nil
}

func toAPIUser(user service.User) User {
	return User{
		ID:         user.ID,
		AuthUserID: user.AuthUserID,
		Email:      user.Email,
		FullName:   user.FullName,
		Role:       user.Role,
		IsActive:   user.IsActive,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, op operation) {
	problem.Write(w, h.problemForError(r.Context(), err, op))
}

func (h *Handler) problemForError(ctx context.Context, err error, op operation) problem.Details {
	status, title, detail, problemType, fields := classifyError(err)

	logger := h.loggerFrom(ctx)
	fieldsForLog := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", status),
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("users operation failed", append(fieldsForLog, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("users resource not found", append(fieldsForLog, zap.Error(err))...)
	default:
		logger.Warn("users request rejected", append(fieldsForLog, zap.Error(err))...)
	}

	return problem.New(title, detail, problemType, status, fields)
}

func classifyError(err error) (status int, title, detail, problemType string, fieldErrors service.FieldErrors) {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest,
			"Validation failed",
			"one or more fields are invalid",
			problem.TypeValidation,
			validationErr.Fields
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound,
			"Resource not found",
			"user not found",
			problem.TypeNotFound,
			nil
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict,
			"Conflict",
			"a user with this identity or email already exists in the tenant",
			problem.TypeConflict,
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
