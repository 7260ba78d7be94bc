package helpers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/order-quota/internal/core/domain/quota"
)

// GetActorFromContext returns the admin identity set by the admin auth middleware
func GetActorFromContext(c echo.Context) (string, error) {
	a, ok := GetActorRaw(c)
	if !ok || a == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid admin context")
	}
	return a, nil
}

// GetCheckoutRequestFromContext returns the checkout request bound by the throttle middleware,
// binding it from the body when the middleware did not run.
func GetCheckoutRequestFromContext(c echo.Context) (*quota.CheckoutRequest, error) {
	if r, ok := GetCheckoutRequestRaw(c); ok && r != nil {
		return r, nil
	}
	return BindCheckoutRequest(c)
}

// BindCheckoutRequest binds and validates a checkout request and stores it on the context.
func BindCheckoutRequest(c echo.Context) (*quota.CheckoutRequest, error) {
	var req quota.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	SetCheckoutRequest(c, &req)
	return &req, nil
}

func GetJWTTokenFromContext(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "empty token")
	}
	return token, nil
}

// ParseUserID parses a non-negative user id.
func ParseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid user ID")
	}
	return id, nil
}
