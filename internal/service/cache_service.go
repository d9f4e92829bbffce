package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
}

// gridKey is timetable:<school>:<owner type>:<owner>; every grid of a school matches schoolPattern.
func gridKey(schoolID, ownerType, ownerID string) string {
	return fmt.Sprintf("timetable:%s:%s:%s", schoolID, ownerType, ownerID)
}

func schoolPattern(schoolID string) string {
	return fmt.Sprintf("timetable:%s:*", schoolID)
}

// CacheService keeps rendered class and teacher grids in the cache. Failures never reach the
// caller as errors on the read path: a broken cache behaves like an empty one.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Grid loads a cached grid into dest and reports whether it was found.
func (s *CacheService) Grid(ctx context.Context, schoolID, ownerType, ownerID string, dest *dto.TimetableGrid) bool {
	if !s.Enabled() {
		return false
	}
	key := gridKey(schoolID, ownerType, ownerID)
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	hit := err == nil
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(hit, time.Since(start))
	}
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("timetable cache read failed", zap.String("key", key), zap.Error(err))
	}
	return hit
}

// StoreGrid caches a freshly assembled grid. A ttl of zero uses the default.
func (s *CacheService) StoreGrid(ctx context.Context, schoolID string, grid *dto.TimetableGrid, ttl time.Duration) {
	if !s.Enabled() || grid == nil {
		return
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	key := gridKey(schoolID, grid.OwnerType, grid.OwnerID)
	start := time.Now()
	err := s.repo.Set(ctx, key, grid, ttl)
	if s.metrics != nil {
		s.metrics.ObserveCacheWrite(time.Since(start))
	}
	if err != nil {
		s.logger.Debug("timetable grid not cached", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateSchool drops every cached grid of the school after a schedule write. On failure the old grids
// stay readable until their TTL runs out.
func (s *CacheService) InvalidateSchool(ctx context.Context, schoolID string) error {
	if !s.Enabled() {
		return nil
	}
	deleted, err := s.repo.DeleteByPattern(ctx, schoolPattern(schoolID))
	if err != nil {
		return fmt.Errorf("invalidate timetable cache for school %s: %w", schoolID, err)
	}
	if deleted > 0 {
		s.logger.Debug("timetable cache invalidated", zap.String("school_id", schoolID), zap.Int64("keys", deleted))
	}
	return nil
}
