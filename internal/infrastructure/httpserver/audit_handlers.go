package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/order-quota/internal/core/domain/audit"
	"github.com/avatarctic/order-quota/internal/infrastructure/httpserver/helpers"
)

func (s *Server) getAuditLogs(c echo.Context) error {
	filter, err := parseAuditLogFilter(c)
	if err != nil {
		return err
	}
	logs, total, err := s.auditSvc.GetAuditLogs(c.Request().Context(), filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"logs": logs, "total": total})
}

func parseAuditLogFilter(c echo.Context) (*audit.AuditLogFilter, error) {
	filter := &audit.AuditLogFilter{Limit: 50}
	if v := c.QueryParam("user_id"); v != "" {
		id, err := helpers.ParseUserID(v)
		if err != nil {
			return nil, err
		}
		filter.SubjectID = &id
	}
	if v := c.QueryParam("action"); v != "" {
		a := audit.AuditAction(v)
		filter.Action = &a
	}
	if v := c.QueryParam("resource"); v != "" {
		r := audit.AuditResource(v)
		filter.Resource = &r
	}
	for param, dst := range map[string]**time.Time{"start_time": &filter.StartTime, "end_time": &filter.EndTime} {
		v := c.QueryParam(param)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
		}
		*dst = &t
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		filter.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
		}
		filter.Offset = n
	}
	return filter, nil
}
