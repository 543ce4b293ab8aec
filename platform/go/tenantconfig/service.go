package tenantconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Errors returned by the resolver.
var (
	ErrNotFound         = errors.New("tenant config not found")
	ErrStoreUnavailable = errors.New("tenant config store unavailable")
	ErrClientIDMismatch = errors.New("client_id does not match the target tenant")
	ErrFileOnlyTenant   = errors.New("tenant is served from files only")
	ErrNoCache          = errors.New("no tenant config cache configured")
)

const (
	DefaultCacheTTL     = 5 * time.Minute
	DefaultStoreTimeout = 3 * time.Second
	cacheKeyPrefix      = "tenant-config:"
)

// Store is the relational home of tenant configs.
type Store interface {
	// GetTenant returns found=false when no row exists; err reports backend failures only.
	GetTenant(ctx context.Context, clientID string) (rec StoredTenant, found bool, err error)
	UpsertTenant(ctx context.Context, rec StoredTenant) error
	ListActiveTenantIDs(ctx context.Context) ([]string, error)
}

// Options wires the resolver. Store, Files and Cache are all optional but at least one of
// Store or Files must be set.
type Options struct {
	Store        Store
	Files        FileSource
	Cache        Cache
	CacheTTL     time.Duration
	StoreTimeout time.Duration
	// YAMLOnly lists tenants that are always served from files, bypassing cache and store.
	YAMLOnly  []string
	LookupEnv LookupEnvFunc
	Validator *Validator
	Metrics   *Metrics
	Logger    *zap.Logger
}

// Service resolves, saves and lists tenant configurations.
type Service struct {
	store        Store
	files        FileSource
	cache        Cache
	cacheTTL     time.Duration
	storeTimeout time.Duration
	yamlOnly     map[string]struct{}
	lookupEnv    LookupEnvFunc
	validator    *Validator
	metrics      *Metrics
	logger       *zap.Logger
}

// NewService constructs the resolver.
func NewService(opts Options) *Service {
	if opts.Store == nil && opts.Files == nil {
		panic("tenantconfig: a store or a file source is required")
	}

	s := &Service{
		store:        opts.Store,
		files:        opts.Files,
		cache:        opts.Cache,
		cacheTTL:     opts.CacheTTL,
		storeTimeout: opts.StoreTimeout,
		yamlOnly:     make(map[string]struct{}, len(opts.YAMLOnly)),
		lookupEnv:    opts.LookupEnv,
		validator:    opts.Validator,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = DefaultCacheTTL
	}
	if s.storeTimeout <= 0 {
		s.storeTimeout = DefaultStoreTimeout
	}
	if s.lookupEnv == nil {
		s.lookupEnv = OSLookupEnv
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	for _, id := range opts.YAMLOnly {
		if id != "" {
			s.yamlOnly[id] = struct{}{}
		}
	}
	return s
}

// cacheEntry holds the secret-free inputs of a resolution. A hit re-runs assembly.
type cacheEntry struct {
	Source   Source        `json:"source"`
	Record   *StoredTenant `json:"record,omitempty"`
	Document []byte        `json:"document,omitempty"`
}

// GetConfig returns the effective configuration for clientID or ErrNotFound.
func (s *Service) GetConfig(ctx context.Context, clientID string) (TenantConfig, error) {
	if IsTestTenant(clientID) || !ValidClientID(clientID) {
		s.metrics.resolved(outcomeNotFound)
		return TenantConfig{}, ErrNotFound
	}

	logger := s.logger.With(zap.String("client_id", clientID))

	if s.IsYAMLOnly(clientID) {
		cfg, _, found := s.fromFiles(ctx, logger, clientID)
		if !found {
			s.metrics.resolved(outcomeNotFound)
			return TenantConfig{}, ErrNotFound
		}
		return s.stamp(cfg, SourceYAML), nil
	}

	if cfg, ok := s.fromCache(ctx, logger, clientID); ok {
		return s.stamp(cfg, SourceCache), nil
	}

	if rec, ok := s.fromStore(ctx, logger, clientID); ok {
		cfg, err := s.assembleStored(rec)
		if err == nil {
			s.putCache(ctx, logger, clientID, cacheEntry{Source: SourceDatabase, Record: &rec})
			return s.stamp(cfg, SourceDatabase), nil
		}
		logger.Warn("stored tenant config unreadable; falling back to file source", zap.Error(err))
		s.metrics.fellThrough(ReasonError)
	}

	cfg, doc, found := s.fromFiles(ctx, logger, clientID)
	if !found {
		s.metrics.resolved(outcomeNotFound)
		return TenantConfig{}, ErrNotFound
	}
	s.putCache(ctx, logger, clientID, cacheEntry{Source: SourceYAML, Document: doc})
	return s.stamp(cfg, SourceYAML), nil
}

// SaveConfig persists cfg for clientID with every secret stripped and drops the cached entry.
func (s *Service) SaveConfig(ctx context.Context, clientID string, cfg TenantConfig) error {
	if IsTestTenant(clientID) || !ValidClientID(clientID) {
		return ErrNotFound
	}
	if s.IsYAMLOnly(clientID) {
		return ErrFileOnlyTenant
	}
	if cfg.ClientID == "" {
		cfg.ClientID = clientID
	}
	if cfg.ClientID != clientID {
		return ErrClientIDMismatch
	}
	if s.validator != nil {
		if err := s.validator.Validate(cfg); err != nil {
			return err
		}
	}
	if s.store == nil {
		return ErrStoreUnavailable
	}

	rec, err := ToStored(cfg)
	if err != nil {
		return err
	}

	if err := s.store.UpsertTenant(ctx, rec); err != nil {
		s.logger.Error("save tenant config failed", zap.String("client_id", clientID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.Invalidate(ctx, clientID)
	return nil
}

// ListTenants returns the sorted, de-duplicated ids of active tenants, optionally including
// tenants that only exist in the file source. Backend failures are logged and skipped.
func (s *Service) ListTenants(ctx context.Context, includeFiles bool) []string {
	seen := map[string]struct{}{}

	if s.store != nil {
		ids, err := s.store.ListActiveTenantIDs(ctx)
		if err != nil {
			s.logger.Warn("list tenants from store failed", zap.Error(err))
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	if includeFiles && s.files != nil {
		ids, err := s.files.List(ctx)
		if err != nil {
			s.logger.Warn("list tenants from file source failed", zap.Error(err))
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		if id == "" || IsTestTenant(id) {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Invalidate drops the cached entry of one tenant. Cache failures are logged.
func (s *Service) Invalidate(ctx context.Context, clientID string) {
	if s.cache == nil {
		return
	}
	if err := s.Evict(ctx, clientID); err != nil {
		s.logger.Warn("tenant config cache delete failed", zap.String("client_id", clientID), zap.Error(err))
	}
}

// InvalidateAllCache clears every cached config. It is a no-op without a cache backend.
func (s *Service) InvalidateAllCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.EvictAll(ctx); err != nil {
		s.logger.Warn("tenant config cache flush failed", zap.Error(err))
	}
}

// Evict drops the cached entry of one tenant and reports cache failures to the caller.
func (s *Service) Evict(ctx context.Context, clientID string) error {
	if s.cache == nil {
		return ErrNoCache
	}
	if err := s.cache.Delete(ctx, cacheKeyPrefix+clientID); err != nil {
		s.metrics.cacheFailed("delete")
		return fmt.Errorf("evict %s: %w", clientID, err)
	}
	return nil
}

// EvictAll clears every cached config and reports cache failures to the caller.
func (s *Service) EvictAll(ctx context.Context) error {
	if s.cache == nil {
		return ErrNoCache
	}
	if err := s.cache.Flush(ctx); err != nil {
		s.metrics.cacheFailed("flush")
		return fmt.Errorf("flush tenant config cache: %w", err)
	}
	return nil
}

// IsYAMLOnly reports whether clientID is pinned to the file source.
func (s *Service) IsYAMLOnly(clientID string) bool {
	_, ok := s.yamlOnly[clientID]
	return ok
}

// LoadFromFiles resolves clientID from the file source only, ignoring cache and store.
func (s *Service) LoadFromFiles(ctx context.Context, clientID string) (TenantConfig, error) {
	if IsTestTenant(clientID) || !ValidClientID(clientID) {
		return TenantConfig{}, ErrNotFound
	}
	cfg, _, found := s.fromFiles(ctx, s.logger.With(zap.String("client_id", clientID)), clientID)
	if !found {
		return TenantConfig{}, ErrNotFound
	}
	return s.stamp(cfg, SourceYAML), nil
}

func (s *Service) stamp(cfg TenantConfig, source Source) TenantConfig {
	cfg.Meta.Source = source
	s.metrics.resolved(string(source))
	return cfg
}

func (s *Service) fromCache(ctx context.Context, logger *zap.Logger, clientID string) (TenantConfig, bool) {
	if s.cache == nil {
		return TenantConfig{}, false
	}

	raw, found, err := s.cache.Get(ctx, cacheKeyPrefix+clientID)
	if err != nil {
		s.metrics.cacheFailed("get")
		logger.Warn("tenant config cache read failed", zap.Error(err))
		return TenantConfig{}, false
	}
	if !found {
		return TenantConfig{}, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		logger.Warn("tenant config cache entry unreadable", zap.Error(err))
		return TenantConfig{}, false
	}

	var cfg TenantConfig
	switch {
	case entry.Source == SourceDatabase && entry.Record != nil:
		cfg, err = s.assembleStored(*entry.Record)
	case entry.Source == SourceYAML:
		cfg, err = s.assembleDocument(clientID, entry.Document)
	default:
		err = fmt.Errorf("unexpected cache entry source %q", entry.Source)
	}
	if err != nil {
		logger.Warn("tenant config cache entry rejected", zap.Error(err))
		return TenantConfig{}, false
	}
	return cfg, true
}

func (s *Service) putCache(ctx context.Context, logger *zap.Logger, clientID string, entry cacheEntry) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		logger.Warn("encode tenant config cache entry failed", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, cacheKeyPrefix+clientID, raw, s.cacheTTL); err != nil {
		s.metrics.cacheFailed("set")
		logger.Warn("tenant config cache write failed", zap.Error(err))
	}
}

// fromStore returns a record only when it qualifies for database resolution. Every other
// outcome is a fallthrough, logged and counted by reason.
func (s *Service) fromStore(ctx context.Context, logger *zap.Logger, clientID string) (StoredTenant, bool) {
	if s.store == nil {
		return StoredTenant{}, false
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	rec, found, err := s.store.GetTenant(storeCtx, clientID)
	switch {
	case err != nil:
		logger.Warn("tenant config store lookup failed; falling back to file source", zap.Error(err))
		s.metrics.fellThrough(ReasonError)
		return StoredTenant{}, false
	case !found:
		logger.Debug("tenant config not in store; falling back to file source")
		s.metrics.fellThrough(ReasonAbsent)
		return StoredTenant{}, false
	case rec.Source != SourceDatabase || rec.Status != StatusActive:
		logger.Debug("stored tenant config not served from database; falling back to file source",
			zap.String("config_source", string(rec.Source)),
			zap.String("status", rec.Status),
		)
		s.metrics.fellThrough(ReasonNotDatabase)
		return StoredTenant{}, false
	}
	return rec, true
}

func (s *Service) fromFiles(ctx context.Context, logger *zap.Logger, clientID string) (TenantConfig, []byte, bool) {
	if s.files == nil {
		return TenantConfig{}, nil, false
	}

	doc, found, err := s.files.Read(ctx, clientID)
	if err != nil {
		logger.Warn("tenant config file read failed", zap.Error(err))
		return TenantConfig{}, nil, false
	}
	if !found {
		return TenantConfig{}, nil, false
	}

	cfg, err := s.assembleDocument(clientID, doc)
	if err != nil {
		logger.Warn("tenant config file unreadable", zap.Error(err))
		return TenantConfig{}, nil, false
	}
	return cfg, doc, true
}

func (s *Service) assembleStored(rec StoredTenant) (TenantConfig, error) {
	cfg, err := FromStored(rec)
	if err != nil {
		return TenantConfig{}, err
	}
	return ResolveSecrets(cfg, s.lookupEnv), nil
}

func (s *Service) assembleDocument(clientID string, doc []byte) (TenantConfig, error) {
	cfg, err := ParseYAML(doc, s.lookupEnv)
	if err != nil {
		return TenantConfig{}, err
	}
	if cfg.ClientID == "" {
		cfg.ClientID = clientID
	}
	if cfg.ClientID != clientID {
		return TenantConfig{}, fmt.Errorf("document declares client_id %q", cfg.ClientID)
	}
	return ResolveSecrets(cfg, s.lookupEnv), nil
}
