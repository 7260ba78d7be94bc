package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/order-quota/internal/core/domain/order"
	"github.com/avatarctic/order-quota/internal/core/domain/quota"
)

// quotaHTTPError maps limiter and store errors to HTTP errors.
func quotaHTTPError(err error) error {
	var cfgErr *quota.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		return echo.NewHTTPError(http.StatusInternalServerError, "order quota is misconfigured: "+cfgErr.Error())
	case errors.Is(err, quota.ErrQuery):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "order history is temporarily unavailable")
	case errors.Is(err, order.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
