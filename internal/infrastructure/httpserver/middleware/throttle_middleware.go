package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/order-quota/internal/core/ports"
	"github.com/avatarctic/order-quota/internal/infrastructure/httpserver/helpers"
)

type ThrottleMiddleware struct {
	throttle ports.CheckoutThrottle
	now      func() time.Time
	logger   *logrus.Logger
}

func NewThrottleMiddleware(throttle ports.CheckoutThrottle, now func() time.Time, logger *logrus.Logger) *ThrottleMiddleware {
	if now == nil {
		now = time.Now
	}
	return &ThrottleMiddleware{throttle: throttle, now: now, logger: logger}
}

// Checkout binds the checkout request and caps attempts per user. The bound request is
// left on the context for the handler.
func (t *ThrottleMiddleware) Checkout() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req, err := helpers.BindCheckoutRequest(c)
			if err != nil {
				return err
			}
			if t.throttle == nil {
				return next(c)
			}

			userID := *req.UserID
			allowed, remaining, reset, rlErr := t.throttle.Allow(c.Request().Context(), userID, t.now())
			if rlErr != nil {
				if t.logger != nil {
					t.logger.WithError(rlErr).WithField("user_id", userID).Warn("checkout throttle error; allowing request (fail-open)")
				}
				return next(c)
			}

			c.Response().Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			c.Response().Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))
			if !allowed {
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many checkout attempts")
			}
			return next(c)
		}
	}
}
