package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/preenroll-api/internal/models"
	"github.com/noah-isme/preenroll-api/pkg/cache"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
)

type dashboardStatsRepository interface {
	DashboardStats(ctx context.Context) (*models.DashboardStats, error)
}

type groupRepository interface {
	ListGroups(ctx context.Context) ([]int, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService serves the admin landing page counters and the group list used by report filters.
type DashboardService struct {
	stats  dashboardStatsRepository
	groups groupRepository
	cache  *CacheService
	logger *zap.Logger
	cfg    DashboardServiceConfig
}

// NewDashboardService constructs the dashboard service.
func NewDashboardService(stats dashboardStatsRepository, groups groupRepository, cacheSvc *CacheService, logger *zap.Logger, cfg DashboardServiceConfig) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	return &DashboardService{stats: stats, groups: groups, cache: cacheSvc, logger: logger, cfg: cfg}
}

// Stats counts students, subjects and periods.
func (s *DashboardService) Stats(ctx context.Context) (*models.DashboardStats, error) {
	stats, err := remember(ctx, s.cache, cache.Key("dashboard", "stats"), s.cfg.CacheTTL, func() (*models.DashboardStats, error) {
		return s.stats.DashboardStats(ctx)
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dashboard stats")
	}
	return stats, nil
}

// Groups returns the distinct student group numbers, ascending.
func (s *DashboardService) Groups(ctx context.Context) ([]int, error) {
	groups, err := remember(ctx, s.cache, cache.Key("students", "groups"), s.cfg.CacheTTL, func() ([]int, error) {
		groups, err := s.groups.ListGroups(ctx)
		if groups == nil && err == nil {
			groups = []int{}
		}
		return groups, err
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	return groups, nil
}
