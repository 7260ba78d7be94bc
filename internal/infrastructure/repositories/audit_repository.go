package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/order-quota/internal/core/domain/audit"
	"github.com/avatarctic/order-quota/internal/core/ports"
	"github.com/avatarctic/order-quota/internal/infrastructure/db"
)

type auditRepository struct {
	db     *db.Database
	logger *logrus.Logger
}

// NewAuditRepository creates a new instance of AuditRepository
func NewAuditRepository(database *db.Database, logger *logrus.Logger) ports.AuditRepository {
	return &auditRepository{
		db:     database,
		logger: logger,
	}
}

// Create inserts a new audit log entry into the database
func (r *auditRepository) Create(ctx context.Context, log *audit.AuditLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}

	// NULL when absent; text otherwise so the driver hands it to jsonb unchanged.
	var details any
	if len(log.Details) > 0 {
		details = string(log.Details)
	}

	query := `
		INSERT INTO audit_logs (id, actor, action, resource, subject_id, details, ip_address, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.DB.ExecContext(ctx, query,
		log.ID,
		log.Actor,
		log.Action,
		log.Resource,
		log.SubjectID,
		details,
		log.IPAddress,
		log.Timestamp,
	)
	if err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"actor": log.Actor, "action": log.Action, "resource": log.Resource}).WithError(err).Error("db: failed to insert audit log")
		}
		return err
	}
	return nil
}

// List retrieves audit logs based on the provided filter
func (r *auditRepository) List(ctx context.Context, filter *audit.AuditLogFilter) ([]*audit.AuditLog, error) {
	query, args := r.buildListQuery(filter, false)
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{"query": query, "args": args}).Debug("db: executing audit list query")
	}
	rows, err := r.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"query": query}).WithError(err).Error("db: failed to execute audit list query")
		}
		return nil, err
	}
	defer rows.Close()

	logs := []*audit.AuditLog{}
	for rows.Next() {
		log := &audit.AuditLog{}
		var subjectID sql.NullInt64
		var details sql.NullString

		err := rows.Scan(
			&log.ID,
			&log.Actor,
			&log.Action,
			&log.Resource,
			&subjectID,
			&details,
			&log.IPAddress,
			&log.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		if subjectID.Valid {
			id := subjectID.Int64
			log.SubjectID = &id
		}
		if details.Valid && details.String != "" {
			log.Details = json.RawMessage(details.String)
		}

		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		if r.logger != nil {
			r.logger.WithError(err).Error("db: error iterating audit list rows")
		}
		return nil, err
	}

	return logs, nil
}

// Count returns the total number of audit logs matching the filter
func (r *auditRepository) Count(ctx context.Context, filter *audit.AuditLogFilter) (int, error) {
	query, args := r.buildListQuery(filter, true)

	var count int
	err := r.db.DB.GetContext(ctx, &count, query, args...)
	if err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"query": query}).WithError(err).Error("db: failed to execute audit count query")
		}
		return 0, err
	}
	return count, nil
}

// buildListQuery constructs the SQL query and arguments for listing/counting audit logs
func (r *auditRepository) buildListQuery(filter *audit.AuditLogFilter, isCount bool) (string, []interface{}) {
	var selectClause string
	if isCount {
		selectClause = "SELECT COUNT(*)"
	} else {
		selectClause = "SELECT id, actor, action, resource, subject_id, details, ip_address, timestamp"
	}

	query := selectClause + " FROM audit_logs"
	var conditions []string
	var args []interface{}
	argIndex := 1

	if filter != nil {
		if filter.SubjectID != nil {
			conditions = append(conditions, "subject_id = $"+strconv.Itoa(argIndex))
			args = append(args, *filter.SubjectID)
			argIndex++
		}

		if filter.Action != nil {
			conditions = append(conditions, "action = $"+strconv.Itoa(argIndex))
			args = append(args, string(*filter.Action))
			argIndex++
		}

		if filter.Resource != nil {
			conditions = append(conditions, "resource = $"+strconv.Itoa(argIndex))
			args = append(args, string(*filter.Resource))
			argIndex++
		}

		if filter.StartTime != nil {
			conditions = append(conditions, "timestamp >= $"+strconv.Itoa(argIndex))
			args = append(args, *filter.StartTime)
			argIndex++
		}

		if filter.EndTime != nil {
			conditions = append(conditions, "timestamp <= $"+strconv.Itoa(argIndex))
			args = append(args, *filter.EndTime)
			argIndex++
		}
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	// Add ORDER BY and LIMIT/OFFSET for non-count queries
	if !isCount {
		query += " ORDER BY timestamp DESC"

		if filter != nil {
			if filter.Limit > 0 {
				query += " LIMIT $" + strconv.Itoa(argIndex)
				args = append(args, filter.Limit)
				argIndex++
			}

			if filter.Offset > 0 {
				query += " OFFSET $" + strconv.Itoa(argIndex)
				args = append(args, filter.Offset)
			}
		}
	}

	return query, args
}
