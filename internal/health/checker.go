package health

import (
	"context"
	"time"

	"github.com/Ayash-Bera/reviewboard/backend/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Pinger is satisfied by database.Manager.
type Pinger interface {
	PingDatabase(ctx context.Context) error
	PingRedis(ctx context.Context) error
}

// StatusCache stores the result of the periodic check. Satisfied by database.Cache.
type StatusCache interface {
	CacheSystemHealth(ctx context.Context, health []models.SystemHealth, expiration time.Duration) error
	GetCachedSystemHealth(ctx context.Context) ([]models.SystemHealth, error)
}

// HealthChecker manages health checks for all services
type HealthChecker struct {
	pinger       Pinger
	cache        StatusCache
	healthRepo   models.SystemHealthRepository
	logger       *logrus.Logger
	redisEnabled bool
	startTime    time.Time
}

// NewHealthChecker builds a checker. cache may be nil when redis is not
// configured, in which case redis reports degraded instead of unhealthy.
func NewHealthChecker(pinger Pinger, cache StatusCache, healthRepo models.SystemHealthRepository, logger *logrus.Logger) *HealthChecker {
	return &HealthChecker{
		pinger:       pinger,
		cache:        cache,
		healthRepo:   healthRepo,
		logger:       logger,
		redisEnabled: cache != nil,
		startTime:    time.Now(),
	}
}

// ServiceHealth represents the health status of a service
type ServiceHealth struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	ResponseTime int    `json:"response_time_ms"`
	Error        string `json:"error,omitempty"`
	LastChecked  string `json:"last_checked"`
}

// OverallHealth represents the overall system health
type OverallHealth struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
	Uptime   string          `json:"uptime"`
}

// CheckPostgreSQL checks PostgreSQL database health
func (h *HealthChecker) CheckPostgreSQL(ctx context.Context) ServiceHealth {
	return h.check(ctx, "postgresql", h.pinger.PingDatabase)
}

// CheckRedis checks the list cache backend.
func (h *HealthChecker) CheckRedis(ctx context.Context) ServiceHealth {
	if !h.redisEnabled {
		return ServiceHealth{
			Name:        "redis",
			Status:      StatusDegraded,
			Error:       "not configured",
			LastChecked: time.Now().Format(time.RFC3339),
		}
	}
	return h.check(ctx, "redis", h.pinger.PingRedis)
}

func (h *HealthChecker) check(ctx context.Context, name string, ping func(context.Context) error) ServiceHealth {
	start := time.Now()
	err := ping(ctx)
	responseTime := int(time.Since(start).Milliseconds())

	status := StatusHealthy
	errorMsg := ""
	if err != nil {
		status = StatusUnhealthy
		errorMsg = err.Error()
		h.logger.WithError(err).WithField("service", name).Error("Health check failed")
	}

	if h.healthRepo != nil {
		if err := h.healthRepo.UpdateServiceHealth(ctx, name, status, responseTime, errorMsg); err != nil {
			h.logger.WithError(err).WithField("service", name).Warn("Failed to record health status")
		}
	}

	return ServiceHealth{
		Name:         name,
		Status:       status,
		ResponseTime: responseTime,
		Error:        errorMsg,
		LastChecked:  time.Now().Format(time.RFC3339),
	}
}

// CheckAll performs health checks on all services
func (h *HealthChecker) CheckAll(ctx context.Context) OverallHealth {
	services := []ServiceHealth{
		h.CheckPostgreSQL(ctx),
		h.CheckRedis(ctx),
	}

	return OverallHealth{
		Status:   overallStatus(services),
		Services: services,
		Uptime:   h.getUptime(),
	}
}

// CheckCached returns cached health status if available
func (h *HealthChecker) CheckCached(ctx context.Context) (*OverallHealth, error) {
	if h.cache == nil {
		return nil, models.NewUnavailableError("health cache not configured", nil)
	}

	cachedHealth, err := h.cache.GetCachedSystemHealth(ctx)
	if err != nil {
		return nil, err
	}

	services := make([]ServiceHealth, len(cachedHealth))
	for i, health := range cachedHealth {
		services[i] = ServiceHealth{
			Name:         health.ServiceName,
			Status:       health.Status,
			ResponseTime: health.ResponseTimeMs,
			Error:        health.ErrorMessage,
			LastChecked:  health.CheckedAt.Format(time.RFC3339),
		}
	}

	return &OverallHealth{
		Status:   overallStatus(services),
		Services: services,
		Uptime:   h.getUptime(),
	}, nil
}

func overallStatus(services []ServiceHealth) string {
	status := StatusHealthy
	for _, service := range services {
		if service.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
		if service.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status
}

func (h *HealthChecker) getUptime() string {
	return time.Since(h.startTime).Round(time.Second).String()
}

// PeriodicHealthCheck runs health checks periodically
func (h *HealthChecker) PeriodicHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			health := h.CheckAll(checkCtx)

			if h.cache != nil {
				if err := h.cache.CacheSystemHealth(checkCtx, toModels(health.Services), 2*interval); err != nil {
					h.logger.WithError(err).Error("Failed to cache health status")
				}
			}
			cancel()

			h.logger.WithField("status", health.Status).Debug("Periodic health check completed")
		}
	}
}

func toModels(services []ServiceHealth) []models.SystemHealth {
	out := make([]models.SystemHealth, len(services))
	for i, service := range services {
		checkedAt, _ := time.Parse(time.RFC3339, service.LastChecked)
		out[i] = models.SystemHealth{
			ServiceName:    service.Name,
			Status:         service.Status,
			ResponseTimeMs: service.ResponseTime,
			ErrorMessage:   service.Error,
			CheckedAt:      checkedAt,
		}
	}
	return out
}
