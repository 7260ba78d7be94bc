package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/order-quota/internal/core/ports"
)

// MiddlewareCollection holds all middleware instances
type MiddlewareCollection struct {
	Admin    *AdminAuthMiddleware
	Logging  *LoggingMiddleware
	Throttle *ThrottleMiddleware
	Metrics  *MetricsMiddleware
}

// NewMiddlewareCollection creates a new collection of all middleware
func NewMiddlewareCollection(
	throttle ports.CheckoutThrottle,
	now func() time.Time,
	logger *logrus.Logger,
	jwtSecret string,
	requestsTotal *prometheus.CounterVec,
	requestDuration *prometheus.HistogramVec,
) *MiddlewareCollection {
	return &MiddlewareCollection{
		Admin:    NewAdminAuthMiddleware(jwtSecret, logger),
		Logging:  NewLoggingMiddleware(logger),
		Throttle: NewThrottleMiddleware(throttle, now, logger),
		Metrics:  NewMetricsMiddleware(requestsTotal, requestDuration),
	}
}
