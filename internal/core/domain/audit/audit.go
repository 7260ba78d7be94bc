package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Actor     string          `json:"actor" db:"actor"`
	Action    string          `json:"action" db:"action"`
	Resource  string          `json:"resource" db:"resource"`
	SubjectID *int64          `json:"user_id" db:"subject_id"`
	Details   json.RawMessage `json:"details" db:"details"`
	IPAddress string          `json:"ip_address" db:"ip_address"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

type AuditAction string

const (
	ActionUpdate     AuditAction = "update"
	ActionSet        AuditAction = "set"
	ActionClear      AuditAction = "clear"
	ActionPin        AuditAction = "pin"
	ActionInvalidate AuditAction = "invalidate"
)

type AuditResource string

const (
	ResourceSettings AuditResource = "quota_settings"
	ResourceOverride AuditResource = "order_limit_override"
	ResourceCache    AuditResource = "order_count_cache"
)

// CreateAuditLogRequest represents the request to create an audit log entry
type CreateAuditLogRequest struct {
	Actor     string        `json:"actor"`
	Action    AuditAction   `json:"action"`
	Resource  AuditResource `json:"resource"`
	SubjectID *int64        `json:"user_id,omitempty"`
	Details   any           `json:"details,omitempty"`
	IPAddress string        `json:"ip_address"`
}

// AuditLogFilter represents filters for querying audit logs
type AuditLogFilter struct {
	SubjectID *int64         `json:"user_id,omitempty"`
	Action    *AuditAction   `json:"action,omitempty"`
	Resource  *AuditResource `json:"resource,omitempty"`
	StartTime *time.Time     `json:"start_time,omitempty"`
	EndTime   *time.Time     `json:"end_time,omitempty"`
	Limit     int            `json:"limit"`
	Offset    int            `json:"offset"`
}
