package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const AppUsersTable = "app_users"

// Application roles.
const (
	RoleAdmin      = "admin"
	RoleConsultant = "consultant"
	RoleViewer     = "viewer"
)

// AppUser is a member of one tenant, linked to an identity provider subject.
type AppUser struct {
	UserID     uuid.UUID `json:"userId"`
	TenantID   string    `json:"tenantId"`
	AuthUserID string    `json:"authUserId"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	Role       string    `json:"role"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

var (
	// ErrUserNotFound indicates a missing user record within the tenant.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserConflict indicates a uniqueness violation (auth subject or email already linked).
	ErrUserConflict = errors.New("user conflict")
)

const appUserColumns = "user_id, tenant_id, auth_user_id, email, full_name, role, is_active, created_at, updated_at"

// AppUserStore exposes tenant-scoped helpers for the app_users table. Every method takes the
// tenant id and filters on it.
type AppUserStore struct {
	pool *pgxpool.Pool
}

// NewAppUserStore returns a store bound to pool.
func NewAppUserStore(pool *pgxpool.Pool) (*AppUserStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &AppUserStore{pool: pool}, nil
}

// FindActiveByAuthID returns the active user of tenantID linked to authUserID.
func (s *AppUserStore) FindActiveByAuthID(ctx context.Context, tenantID, authUserID string) (AppUser, bool, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE auth_user_id = $1 AND tenant_id = $2 AND is_active = TRUE
    `, appUserColumns, AppUsersTable), authUserID, tenantID)

	user, err := scanAppUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AppUser{}, false, nil
		}
		return AppUser{}, false, fmt.Errorf("find app user: %w", err)
	}
	return user, true, nil
}

// ListAppUsersParams captures filters and pagination for ListUsers.
type ListAppUsersParams struct {
	Page            int
	PageSize        int
	Sort            *string
	Email           *string
	IncludeInactive bool
}

// ListAppUsersResult includes the rows and the total count for pagination metadata.
type ListAppUsersResult struct {
	Users      []AppUser
	TotalItems int
}

// ListUsers returns the tenant's users matching the filters.
func (s *AppUserStore) ListUsers(ctx context.Context, tenantID string, params ListAppUsersParams) (ListAppUsersResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}

	args := []any{tenantID}
	whereParts := []string{"tenant_id = $1"}

	if !params.IncludeInactive {
		whereParts = append(whereParts, "is_active = TRUE")
	}
	if params.Email != nil && strings.TrimSpace(*params.Email) != "" {
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(*params.Email))+"%")
		whereParts = append(whereParts, fmt.Sprintf("LOWER(email) LIKE $%d", len(args)))
	}
	whereSQL := strings.Join(whereParts, " AND ")

	orderSQL, err := buildUserOrderBy(params.Sort)
	if err != nil {
		return ListAppUsersResult{}, err
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", AppUsersTable, whereSQL)
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListAppUsersResult{}, fmt.Errorf("count app users: %w", err)
	}

	result := ListAppUsersResult{Users: []AppUser{}, TotalItems: total}
	if total == 0 {
		return result, nil
	}

	dataArgs := append([]any{}, args...)
	dataArgs = append(dataArgs, params.PageSize, (params.Page-1)*params.PageSize)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE %s
        %s
        LIMIT $%d OFFSET $%d
    `, appUserColumns, AppUsersTable, whereSQL, orderSQL, len(dataArgs)-1, len(dataArgs)), dataArgs...)
	if err != nil {
		return ListAppUsersResult{}, fmt.Errorf("list app users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user, scanErr := scanAppUser(rows)
		if scanErr != nil {
			return ListAppUsersResult{}, fmt.Errorf("scan app user: %w", scanErr)
		}
		result.Users = append(result.Users, user)
	}
	if err := rows.Err(); err != nil {
		return ListAppUsersResult{}, fmt.Errorf("iterate app users: %w", err)
	}

	return result, nil
}

func buildUserOrderBy(sort *string) (string, error) {
	const defaultOrder = "ORDER BY created_at DESC"
	if sort == nil || strings.TrimSpace(*sort) == "" {
		return defaultOrder, nil
	}

	mapping := map[string]string{
		"email":     "email",
		"fullName":  "full_name",
		"role":      "role",
		"createdAt": "created_at",
	}

	var clauses []string
	for _, raw := range strings.Split(strings.TrimSpace(*sort), ",") {
		field := strings.TrimSpace(raw)
		if field == "" {
			continue
		}
		direction := "ASC"
		if strings.HasPrefix(field, "-") {
			direction = "DESC"
			field = strings.TrimPrefix(field, "-")
		}
		column, ok := mapping[field]
		if !ok {
			return "", fmt.Errorf("unsupported sort field %q", field)
		}
		clauses = append(clauses, column+" "+direction)
	}

	if len(clauses) == 0 {
		return defaultOrder, nil
	}
	return "ORDER BY " + strings.Join(clauses, ", "), nil
}

// CreateAppUserParams captures the fields required to link a new user to a tenant.
type CreateAppUserParams struct {
	AuthUserID string
	Email      string
	FullName   string
	Role       string
}

// CreateUser inserts a new active user for tenantID.
func (s *AppUserStore) CreateUser(ctx context.Context, tenantID string, params CreateAppUserParams) (AppUser, error) {
	role := params.Role
	if role == "" {
		role = RoleConsultant
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (user_id, tenant_id, auth_user_id, email, full_name, role)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING %s
    `, AppUsersTable, appUserColumns),
		uuid.New(),
		tenantID,
		strings.TrimSpace(params.AuthUserID),
		strings.TrimSpace(params.Email),
		strings.TrimSpace(params.FullName),
		role,
	)

	user, err := scanAppUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return AppUser{}, ErrUserConflict
		}
		return AppUser{}, fmt.Errorf("create app user: %w", err)
	}
	return user, nil
}

// DeactivateUser flips is_active off. Users are never deleted.
func (s *AppUserStore) DeactivateUser(ctx context.Context, tenantID string, userID uuid.UUID) (AppUser, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET is_active = FALSE, updated_at = NOW()
        WHERE user_id = $1 AND tenant_id = $2
        RETURNING %s
    `, AppUsersTable, appUserColumns), userID, tenantID)

	user, err := scanAppUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AppUser{}, ErrUserNotFound
		}
		return AppUser{}, fmt.Errorf("deactivate app user: %w", err)
	}
	return user, nil
}

func scanAppUser(row pgx.Row) (AppUser, error) {
	var u AppUser
	if err := row.Scan(
		&u.UserID,
		&u.TenantID,
		&u.AuthUserID,
		&u.Email,
		&u.FullName,
		&u.Role,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return AppUser{}, err
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
