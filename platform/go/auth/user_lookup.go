package auth

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tourdesk/tourdesk-saas/platform/go/persistence"
)

// DefaultUserCacheTTL bounds how long a deactivated user keeps access.
const DefaultUserCacheTTL = 60 * time.Second

// UserFinder loads the active user of a tenant linked to an identity provider subject.
type UserFinder interface {
	FindActiveByAuthID(ctx context.Context, tenantID, authUserID string) (persistence.AppUser, bool, error)
}

// UserLookupOptions tunes a UserLookup.
type UserLookupOptions struct {
	TTL    time.Duration
	Now    func() time.Time
	Logger *zap.Logger
}

type cachedUser struct {
	user    persistence.AppUser
	expires time.Time
}

// UserLookup resolves (subject, tenant) to an application user with a short-lived cache.
// Cache keys always embed the tenant, so a subject known in one tenant is never served for
// another.
type UserLookup struct {
	finder UserFinder
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]cachedUser
}

func NewUserLookup(finder UserFinder, opts UserLookupOptions) *UserLookup {
	if finder == nil {
		panic("auth: user finder is required")
	}
	l := &UserLookup{
		finder: finder,
		ttl:    opts.TTL,
		now:    opts.Now,
		logger: opts.Logger,
		cache:  make(map[string]cachedUser),
	}
	if l.ttl <= 0 {
		l.ttl = DefaultUserCacheTTL
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l
}

func userCacheKey(tenantID, authUserID string) string {
	return tenantID + ":" + authUserID
}

// GetUserByAuthID returns the active user or false. Backend errors are logged and reported
// as a miss.
func (l *UserLookup) GetUserByAuthID(ctx context.Context, authUserID, tenantID string) (persistence.AppUser, bool) {
	if authUserID == "" || tenantID == "" {
		return persistence.AppUser{}, false
	}

	key := userCacheKey(tenantID, authUserID)

	l.mu.RLock()
	entry, ok := l.cache[key]
	l.mu.RUnlock()
	if ok && l.now().Before(entry.expires) {
		return entry.user, true
	}

	user, found, err := l.finder.FindActiveByAuthID(ctx, tenantID, authUserID)
	if err != nil {
		l.logger.Warn("app user lookup failed",
			zap.String("client_id", tenantID),
			zap.String("auth_user_id", authUserID),
			zap.Error(err),
		)
		return persistence.AppUser{}, false
	}
	if !found {
		return persistence.AppUser{}, false
	}

	l.mu.Lock()
	l.cache[key] = cachedUser{user: user, expires: l.now().Add(l.ttl)}
	l.mu.Unlock()

	return user, true
}

// ClearCache drops every cached user.
func (l *UserLookup) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]cachedUser)
	l.mu.Unlock()
}
