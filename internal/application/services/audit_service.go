package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avatarctic/order-quota/internal/core/domain/audit"
	"github.com/avatarctic/order-quota/internal/core/ports"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type AuditService struct {
	repo   ports.AuditRepository
	logger *logrus.Logger
}

func NewAuditService(repo ports.AuditRepository, logger *logrus.Logger) ports.AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger,
	}
}

func (s *AuditService) LogAction(ctx context.Context, req *audit.CreateAuditLogRequest) error {
	var details json.RawMessage
	if req.Details != nil {
		b, err := json.Marshal(req.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		details = b
	}

	auditLog := &audit.AuditLog{
		ID:        uuid.New(),
		Actor:     req.Actor,
		Action:    string(req.Action),
		Resource:  string(req.Resource),
		SubjectID: req.SubjectID,
		Details:   details,
		IPAddress: req.IPAddress,
		Timestamp: time.Now().UTC(),
	}

	err := s.repo.Create(ctx, auditLog)
	if err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"actor": req.Actor, "action": req.Action, "resource": req.Resource}).WithError(err).Error("failed to persist audit log")
		}
		return err
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"actor": req.Actor, "action": req.Action, "resource": req.Resource, "user_id": req.SubjectID}).Debug("audit log persisted")
	}
	return nil
}

func (s *AuditService) GetAuditLogs(ctx context.Context, filter *audit.AuditLogFilter) ([]*audit.AuditLog, int, error) {
	logs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
