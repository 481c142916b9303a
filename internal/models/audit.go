package models

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusError   = "error"
)

// AuditLog is append-only. Rows are written in the same transaction as the
// state change they describe.
type AuditLog struct {
	ID           uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       *uint64           `gorm:"index" json:"user_id"`
	Action       string            `gorm:"type:varchar(64);index;not null" json:"action"`
	ResourceType *string           `gorm:"type:varchar(32)" json:"resource_type"`
	ResourceID   *string           `gorm:"type:varchar(64)" json:"resource_id"`
	Details      datatypes.JSONMap `json:"details"`
	IPAddress    *string           `gorm:"type:varchar(64)" json:"ip_address"`
	Status       string            `gorm:"type:varchar(16);not null;default:success" json:"status"`
	CreatedAt    time.Time         `gorm:"index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// AuditEntry describes one audit row. Zero values become NULL columns.
type AuditEntry struct {
	UserID       uint64
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	IP           string
	Status       string
}

func (e AuditEntry) row() *AuditLog {
	status := e.Status
	if status == "" {
		status = StatusSuccess
	}
	row := &AuditLog{
		Action:       e.Action,
		ResourceType: optional(e.ResourceType),
		ResourceID:   optional(e.ResourceID),
		IPAddress:    optional(e.IP),
		Status:       status,
	}
	if e.UserID != 0 {
		uid := e.UserID
		row.UserID = &uid
	}
	if e.Details != nil {
		row.Details = datatypes.JSONMap(e.Details)
	}
	return row
}

type clientIPKey struct{}

// WithClientIP attaches the caller's address so audit rows written under ctx
// record it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func clientIP(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// RecordAudit writes the entry through tx, which should be the transaction of
// the primary write.
func RecordAudit(tx *gorm.DB, e AuditEntry) error {
	if e.IP == "" && tx.Statement != nil {
		e.IP = clientIP(tx.Statement.Context)
	}
	return tx.Create(e.row()).Error
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
