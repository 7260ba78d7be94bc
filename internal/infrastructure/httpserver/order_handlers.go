package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/order-quota/internal/core/domain/order"
)

func (s *Server) placeOrder(c echo.Context) error {
	var req order.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	created, err := s.orderSvc.PlaceOrder(c.Request().Context(), &req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record order")
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) getOrder(c echo.Context) error {
	id, err := parseOrderID(c)
	if err != nil {
		return err
	}
	o, err := s.orderSvc.GetOrder(c.Request().Context(), id)
	if err != nil {
		return quotaHTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (s *Server) updateOrderStatus(c echo.Context) error {
	id, err := parseOrderID(c)
	if err != nil {
		return err
	}
	var req order.UpdateOrderStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	updated, err := s.orderSvc.UpdateOrderStatus(c.Request().Context(), id, &req)
	if err != nil {
		return quotaHTTPError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func parseOrderID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid order ID")
	}
	return id, nil
}
