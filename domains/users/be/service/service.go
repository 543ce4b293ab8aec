package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tourdesk/tourdesk-saas/domains/users/be/repo"
	"github.com/tourdesk/tourdesk-saas/platform/go/logging"
	"github.com/tourdesk/tourdesk-saas/platform/go/persistence"
	"github.com/tourdesk/tourdesk-saas/platform/go/requesttrace"
)

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// ValidationError is returned when the input payload is invalid.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

// Domain sentinel errors.
var (
	ErrNotFound = errors.New("user not found")
	ErrConflict = errors.New("user conflict")
)

// User represents the domain view of a tenant member.
type User struct {
	ID         uuid.UUID
	AuthUserID string
	Email      string
	FullName   string
	Role       string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ListOptions controls filtering and pagination.
type ListOptions struct {
	Email           *string
	Page            int
	PageSize        int
	Sort            *string
	IncludeInactive bool
}

// ListResult wraps a page of users with pagination metadata.
type ListResult struct {
	Users      []User
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// CreateInput represents the payload required to link a new user to the tenant.
type CreateInput struct {
	AuthUserID string
	Email      string
	FullName   string
	Role       string
}

// Service defines the business operations for the users domain.
type Service interface {
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Create(ctx context.Context, audit requesttrace.AuditInfo, input CreateInput) (User, error)
	Deactivate(ctx context.Context, audit requesttrace.AuditInfo, id uuid.UUID) (User, error)
}

type service struct {
	repo repo.Repository
}

// New constructs a users Service instance backed by the provided repository.
func New(r repo.Repository) Service {
	if r == nil {
		panic("users repository is required")
	}
	return &service{repo: r}
}

func (s *service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	sortValue, sortErr := sanitizeSort(opts.Sort)
	if sortErr != nil {
		return ListResult{}, sortErr
	}

	repoParams := persistence.ListAppUsersParams{
		Page:            page,
		PageSize:        pageSize,
		Sort:            sortValue,
		IncludeInactive: opts.IncludeInactive,
	}

	if opts.Email != nil && strings.TrimSpace(*opts.Email) != "" {
		email := strings.TrimSpace(*opts.Email)
		repoParams.Email = &email
	}

	result, err := s.repo.List(ctx, repoParams)
	if err != nil {
		return ListResult{}, err
	}

	users := make([]User, 0, len(result.Users))
	for _, record := range result.Users {
		users = append(users, mapUser(record))
	}

	totalPages := 0
	if result.TotalItems > 0 {
		totalPages = (result.TotalItems + pageSize - 1) / pageSize
	}

	return ListResult{
		Users:      users,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: result.TotalItems,
		TotalPages: totalPages,
	}, nil
}

func (s *service) Create(ctx context.Context, audit requesttrace.AuditInfo, input CreateInput) (User, error) {
	fieldErrors := FieldErrors{}

	authUserID := strings.TrimSpace(input.AuthUserID)
	if authUserID == "" {
		fieldErrors.add("authUserId", "authUserId is required")
	}

	email := strings.TrimSpace(input.Email)
	if email == "" {
		fieldErrors.add("email", "email is required")
	} else if !strings.Contains(email, "@") {
		fieldErrors.add("email", "email must contain '@'")
	}

	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		fieldErrors.add("fullName", "fullName is required")
	}

	role := strings.TrimSpace(input.Role)
	switch role {
	case "":
		role = persistence.RoleConsultant
	case persistence.RoleAdmin, persistence.RoleConsultant, persistence.RoleViewer:
	default:
		fieldErrors.add("role", fmt.Sprintf("unsupported role %q", role))
	}

	if len(fieldErrors) > 0 {
		return User{}, &ValidationError{Fields: fieldErrors}
	}

	record, err := s.repo.Create(ctx, persistence.CreateAppUserParams{
		AuthUserID: authUserID,
		Email:      strings.ToLower(email),
		FullName:   fullName,
		Role:       role,
	})
	if err != nil {
		return User{}, mapPersistenceError(err)
	}

	auditLogger(ctx, audit).Info("app user created",
		zap.String("app_user_id", record.UserID.String()),
		zap.String("app_user_role", record.Role),
	)

	return mapUser(record), nil
}

func (s *service) Deactivate(ctx context.Context, audit requesttrace.AuditInfo, id uuid.UUID) (User, error) {
	if id == uuid.Nil {
		return User{}, ErrNotFound
	}

	record, err := s.repo.Deactivate(ctx, id)
	if err != nil {
		return User{}, mapPersistenceError(err)
	}

	auditLogger(ctx, audit).Info("app user deactivated", zap.String("app_user_id", record.UserID.String()))

	return mapUser(record), nil
}

func auditLogger(ctx context.Context, audit requesttrace.AuditInfo) *zap.Logger {
	logger, ok := logging.FromContext(ctx)
	if !ok {
		logger = zap.NewNop()
	}
	return logger.With(audit.Fields()...)
}

func sanitizeSort(sort *string) (*string, error) {
	if sort == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*sort)
	if trimmed == "" {
		return nil, nil
	}

	allowed := map[string]struct{}{
		"email":     {},
		"fullName":  {},
		"role":      {},
		"createdAt": {},
	}

	for _, raw := range strings.Split(trimmed, ",") {
		field := strings.TrimSpace(raw)
		if field == "" {
			continue
		}
		field = strings.TrimPrefix(field, "-")
		if _, ok := allowed[field]; !ok {
			return nil, newValidationError(map[string]string{"sort": fmt.Sprintf("unsupported sort field %q", field)})
		}
	}

	return &trimmed, nil
}

func mapUser(record persistence.AppUser) User {
	return User{
		ID:         record.UserID,
		AuthUserID: record.AuthUserID,
		Email:      record.Email,
		FullName:   record.FullName,
		Role:       record.Role,
		IsActive:   record.IsActive,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
}

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrUserNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrUserConflict):
		return ErrConflict
	default:
		return err
	}
}

func newValidationError(fields map[string]string) error {
	fe := FieldErrors{}
	for key, message := range fields {
		fe.add(key, message)
	}
	return &ValidationError{Fields: fe}
}

func (f FieldErrors) add(field, message string) {
	if f == nil {
		return
	}
	f[field] = append(f[field], message)
}
