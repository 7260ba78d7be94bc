package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/order-quota/internal/core/domain/quota"
	"github.com/avatarctic/order-quota/internal/infrastructure/httpserver/helpers"
)

type checkoutResponse struct {
	Allowed           bool       `json:"allowed"`
	RetryAfter        *time.Time `json:"retry_after,omitempty"`
	RetryAfterSeconds int64      `json:"retry_after_seconds,omitempty"`
	Message           string     `json:"message,omitempty"`
	Notice            string     `json:"notice,omitempty"`
}

// checkout evaluates the order quota for the customer about to place an order
func (s *Server) checkout(c echo.Context) error {
	req, err := helpers.GetCheckoutRequestFromContext(c)
	if err != nil {
		return err
	}
	userID := *req.UserID
	now := s.now()

	decision, err := s.quotaSvc.EvaluateCheckout(c.Request().Context(), userID, now)
	if err != nil {
		if s.config.FailOpen && errors.Is(err, quota.ErrQuery) {
			if s.logger != nil {
				s.logger.WithFields(logrus.Fields{"user_id": userID}).WithError(err).Warn("order store unavailable; allowing checkout (fail-open)")
			}
			return c.JSON(http.StatusOK, checkoutResponse{Allowed: true})
		}
		return quotaHTTPError(err)
	}

	if decision.Allowed {
		return c.JSON(http.StatusOK, checkoutResponse{Allowed: true})
	}

	retryAfter := decision.RetryAfter
	seconds := retryAfterSeconds(retryAfter, now)
	c.Response().Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
	return c.JSON(http.StatusTooManyRequests, checkoutResponse{
		Allowed:           false,
		RetryAfter:        &retryAfter,
		RetryAfterSeconds: seconds,
		Message:           decision.Message,
		Notice:            decision.Notice,
	})
}

// retryAfterSeconds rounds up so clients never retry before the window ends.
func retryAfterSeconds(at, now time.Time) int64 {
	d := at.Sub(now)
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
