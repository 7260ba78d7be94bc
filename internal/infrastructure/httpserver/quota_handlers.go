package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/order-quota/internal/core/domain/audit"
	"github.com/avatarctic/order-quota/internal/core/domain/quota"
	"github.com/avatarctic/order-quota/internal/core/ports"
	"github.com/avatarctic/order-quota/internal/infrastructure/httpserver/helpers"
)

func (s *Server) getQuotaSettings(c echo.Context) error {
	settings, err := s.settingsSvc.GetSettings(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load quota settings")
	}
	return c.JSON(http.StatusOK, settings)
}

func (s *Server) updateQuotaSettings(c echo.Context) error {
	actor, err := helpers.GetActorFromContext(c)
	if err != nil {
		return err
	}
	var req quota.UpdateSettingsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	updated, err := s.settingsSvc.UpdateSettings(c.Request().Context(), &req, actor)
	var warning *quota.SettingsWarning
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, settingsUpdateResponse{Settings: updated})
	case errors.As(err, &warning) && updated != nil:
		if s.logger != nil {
			s.logger.WithField("actor", actor).WithError(err).Warn("quota settings saved with warnings")
		}
		return c.JSON(http.StatusOK, settingsUpdateResponse{Settings: updated, Warnings: warning.Messages()})
	case errors.Is(err, quota.ErrConfiguration):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update quota settings")
	}
}

// settingsUpdateResponse is the saved settings plus any follow-up failures.
type settingsUpdateResponse struct {
	*quota.Settings
	Warnings []string `json:"warnings,omitempty"`
}

func (s *Server) getQuotaStatus(c echo.Context) error {
	userID, err := helpers.ParseUserID(c.QueryParam("user_id"))
	if err != nil {
		return err
	}
	status, err := s.quotaSvc.Status(c.Request().Context(), userID, s.now())
	if err != nil {
		return quotaHTTPError(err)
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) verifyQuotaCache(c echo.Context) error {
	userID, err := helpers.ParseUserID(c.Param("id"))
	if err != nil {
		return err
	}
	err = s.quotaSvc.VerifyCache(c.Request().Context(), userID, s.now())
	var stale *quota.StaleCacheWarning
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]interface{}{"user_id": userID, "consistent": true})
	case errors.As(err, &stale):
		return c.JSON(http.StatusOK, map[string]interface{}{
			"user_id":    userID,
			"consistent": false,
			"cached":     stale.Cached,
			"actual":     stale.Actual,
			"warning":    stale.Error(),
		})
	default:
		return quotaHTTPError(err)
	}
}

func (s *Server) invalidateQuotaCache(c echo.Context) error {
	if err := s.quotaSvc.InvalidateCache(c.Request().Context(), ports.InvalidateManual); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "failed to invalidate order count cache")
	}
	s.logAdminAction(c, audit.ActionInvalidate, audit.ResourceCache, nil, nil)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getOverride(c echo.Context) error {
	userID, err := helpers.ParseUserID(c.Param("id"))
	if err != nil {
		return err
	}
	limit, err := s.quotaSvc.GetOverride(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load order limit override")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"user_id": userID, "limit": limit, "has_override": limit != nil})
}

func (s *Server) setOverride(c echo.Context) error {
	userID, err := helpers.ParseUserID(c.Param("id"))
	if err != nil {
		return err
	}
	var req quota.SetOverrideRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := s.quotaSvc.SetOverride(c.Request().Context(), userID, *req.Limit); err != nil {
		if errors.Is(err, quota.ErrConfiguration) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to set order limit override")
	}
	s.logAdminAction(c, audit.ActionSet, audit.ResourceOverride, &userID, map[string]any{"limit": *req.Limit})
	return c.JSON(http.StatusOK, map[string]interface{}{"user_id": userID, "limit": *req.Limit, "has_override": true})
}

func (s *Server) clearOverride(c echo.Context) error {
	userID, err := helpers.ParseUserID(c.Param("id"))
	if err != nil {
		return err
	}
	if err := s.quotaSvc.ClearOverride(c.Request().Context(), userID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to clear order limit override")
	}
	s.logAdminAction(c, audit.ActionClear, audit.ResourceOverride, &userID, nil)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) pinOverride(c echo.Context) error {
	userID, err := helpers.ParseUserID(c.Param("id"))
	if err != nil {
		return err
	}
	limit, err := s.quotaSvc.PinOverride(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to pin order limit")
	}
	s.logAdminAction(c, audit.ActionPin, audit.ResourceOverride, &userID, map[string]any{"limit": limit})
	return c.JSON(http.StatusOK, map[string]interface{}{"user_id": userID, "limit": limit, "has_override": true})
}

// logAdminAction records an audit entry; failures are logged and never fail the request.
func (s *Server) logAdminAction(c echo.Context, action audit.AuditAction, resource audit.AuditResource, subjectID *int64, details any) {
	if s.auditSvc == nil {
		return
	}
	actor, _ := helpers.GetActorRaw(c)
	err := s.auditSvc.LogAction(context.WithoutCancel(c.Request().Context()), &audit.CreateAuditLogRequest{
		Actor:     actor,
		Action:    action,
		Resource:  resource,
		SubjectID: subjectID,
		Details:   details,
		IPAddress: c.RealIP(),
	})
	if err != nil && s.logger != nil {
		s.logger.WithFields(logrus.Fields{"action": action, "resource": resource}).WithError(err).Warn("failed to write audit log")
	}
}
