package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-api/internal/repository"
	"github.com/noah-isme/enrollment-api/internal/service"
	"github.com/noah-isme/enrollment-api/pkg/cache"
	"github.com/noah-isme/enrollment-api/pkg/config"
	"github.com/noah-isme/enrollment-api/pkg/database"
)

// Container holds the wired services shared by the HTTP server and the ops CLI.
type Container struct {
	DB          *sqlx.DB
	Redis       *redis.Client
	Metrics     *service.MetricsService
	Cache       *service.CacheService
	Enrollments *service.EnrollmentService
	Catalog     *service.CatalogService
	Roster      *service.RosterService
}

// Build opens the configured database and Redis and wires every service.
// Redis is optional; when it is disabled or unreachable the catalog is served
// uncached.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	c := NewContainer(db, redisClient, cfg, logger)
	if err := c.Enrollments.LoadAutoEnroll(ctx, cfg.Enrollment.AutoEnrollDefault); err != nil {
		logger.Warn("automatic enrollment setting not loaded, using default",
			zap.Bool("enabled", cfg.Enrollment.AutoEnrollDefault), zap.Error(err))
	}
	return c, nil
}

// NewContainer wires services over an open database. redisClient may be nil.
func NewContainer(db *sqlx.DB, redisClient *redis.Client, cfg *config.Config, logger *zap.Logger) *Container {
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := validator.New()
	metrics := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheSvc = service.NewCacheService(repository.NewCacheRepository(redisClient), metrics, cfg.Catalog.CacheTTL, logger, cfg.Catalog.CacheEnabled)
	}

	tx := repository.NewTxManager(db)
	classRepo := repository.NewClassRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	waitlistRepo := repository.NewWaitlistRepository(db)
	droplistRepo := repository.NewDroplistRepository(db)
	configRepo := repository.NewConfigurationRepository(db)

	rules := service.EnrollmentRules{
		WaitlistCapacity:       cfg.Enrollment.WaitlistCapacity,
		MaxWaitlistsPerStudent: cfg.Enrollment.MaxWaitlistsPerStudent,
		OpenClassGrace:         cfg.Enrollment.OpenClassGrace,
	}
	enrollments := service.NewEnrollmentService(tx, classRepo, enrollmentRepo, waitlistRepo, droplistRepo, configRepo,
		rules, validate, metrics, cacheSvc, logger.Named("enrollment"))
	catalog := service.NewCatalogService(tx, courseRepo, classRepo, enrollmentRepo, waitlistRepo, enrollments,
		cacheSvc, cfg.Catalog.CacheTTL, validate, logger.Named("catalog"))
	roster := service.NewRosterService(classRepo, enrollmentRepo, waitlistRepo, droplistRepo, nil, nil, logger.Named("roster"))

	return &Container{
		DB:          db,
		Redis:       redisClient,
		Metrics:     metrics,
		Cache:       cacheSvc,
		Enrollments: enrollments,
		Catalog:     catalog,
		Roster:      roster,
	}
}

// Close releases the database and Redis connections.
func (c *Container) Close() error {
	var errs []error
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}
