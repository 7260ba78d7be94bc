package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/order-quota/internal/core/ports"
	customMiddleware "github.com/avatarctic/order-quota/internal/infrastructure/httpserver/middleware"
)

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TLSCertFile    string
	TLSKeyFile     string
	AllowedOrigins []string
	Environment    string
	// FailOpen allows checkout when the order store cannot be counted.
	FailOpen bool
}

type ServerDeps struct {
	QuotaService     ports.QuotaService
	SettingsService  ports.SettingsService
	OrderService     ports.OrderService
	AuditService     ports.AuditService
	CheckoutThrottle ports.CheckoutThrottle
	HealthCheckers   []ports.HealthChecker
	// Now defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	echo           *echo.Echo
	config         *ServerConfig
	logger         *logrus.Logger
	quotaSvc       ports.QuotaService
	settingsSvc    ports.SettingsService
	orderSvc       ports.OrderService
	auditSvc       ports.AuditService
	middleware     *customMiddleware.MiddlewareCollection
	healthCheckers []ports.HealthChecker
	now            func() time.Time
}

func NewServer(serverConfig *ServerConfig, jwtSecret string, logger *logrus.Logger, deps ServerDeps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = newRequestValidator()

	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if serverConfig == nil {
		serverConfig = &ServerConfig{}
	}

	server := &Server{
		echo:           e,
		config:         serverConfig,
		logger:         logger,
		quotaSvc:       deps.QuotaService,
		settingsSvc:    deps.SettingsService,
		orderSvc:       deps.OrderService,
		auditSvc:       deps.AuditService,
		healthCheckers: deps.HealthCheckers,
		now:            now,
		middleware: customMiddleware.NewMiddlewareCollection(
			deps.CheckoutThrottle,
			now,
			logger,
			jwtSecret,
			GetRequestsTotal(),
			GetRequestDuration(),
		),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}
