// Package admin serves the operator views: user management, audit trail and
// usage accounting across all tenants.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/suPer8Hu/agent-portal/internal/agent"
	"github.com/suPer8Hu/agent-portal/internal/common"
	"github.com/suPer8Hu/agent-portal/internal/models"
	"github.com/suPer8Hu/agent-portal/internal/vault"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500

	recentLogs = 20
)

var ErrUserNotFound = fmt.Errorf("user %w", common.ErrNotFound)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

type ServiceUsage struct {
	Count  int64   `json:"count"`
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost"`
}

type Dashboard struct {
	TotalUsers       int64                   `json:"total_users"`
	ActiveUsers      int64                   `json:"active_users"`
	TotalCredentials int64                   `json:"total_credentials"`
	TotalMessages    int64                   `json:"total_messages"`
	TotalSummaries   int64                   `json:"total_summaries"`
	TotalTokensUsed  int64                   `json:"total_tokens_used"`
	TotalCost        float64                 `json:"total_cost"`
	RecentLogs       []models.AuditLog       `json:"recent_logs"`
	UsageByService   map[string]ServiceUsage `json:"usage_by_service"`
}

// Dashboard runs the independent aggregate queries concurrently.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	d := &Dashboard{UsageByService: map[string]ServiceUsage{}}
	g, gctx := errgroup.WithContext(ctx)
	db := s.db.WithContext(gctx)

	count := func(model any, dst *int64, where ...any) {
		g.Go(func() error {
			q := db.Model(model)
			if len(where) > 0 {
				q = q.Where(where[0], where[1:]...)
			}
			return q.Count(dst).Error
		})
	}
	count(&models.User{}, &d.TotalUsers)
	count(&models.User{}, &d.ActiveUsers, "is_active = ?", true)
	count(&vault.Credential{}, &d.TotalCredentials)
	count(&agent.Interaction{}, &d.TotalMessages)
	count(&agent.Summary{}, &d.TotalSummaries)

	g.Go(func() error {
		var totals struct {
			Tokens int64
			Cost   float64
		}
		err := db.Model(&models.UsageStat{}).
			Select("COALESCE(SUM(tokens_used), 0) AS tokens, COALESCE(SUM(cost), 0) AS cost").
			Scan(&totals).Error
		d.TotalTokensUsed, d.TotalCost = totals.Tokens, totals.Cost
		return err
	})

	g.Go(func() error {
		return db.Order("id DESC").Limit(recentLogs).Find(&d.RecentLogs).Error
	})

	var byService []struct {
		ServiceType string
		Count       int64
		Tokens      int64
		Cost        float64
	}
	g.Go(func() error {
		return db.Model(&models.UsageStat{}).
			Select("service_type, COUNT(id) AS count, COALESCE(SUM(tokens_used), 0) AS tokens, COALESCE(SUM(cost), 0) AS cost").
			Group("service_type").
			Scan(&byService).Error
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	for _, row := range byService {
		d.UsageByService[row.ServiceType] = ServiceUsage{Count: row.Count, Tokens: row.Tokens, Cost: row.Cost}
	}
	return d, nil
}

func clamp(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	limit, offset = clamp(limit, offset)
	var out []models.User
	if err := s.db.WithContext(ctx).Order("id ASC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) GetUser(ctx context.Context, id uint64) (*models.User, error) {
	return getUser(s.db.WithContext(ctx), id)
}

func getUser(db *gorm.DB, id uint64) (*models.User, error) {
	var u models.User
	err := db.First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserUpdate is a partial update; nil fields are left alone.
type UserUpdate struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	IsActive *bool   `json:"is_active"`
}

func (u UserUpdate) fields() map[string]any {
	out := map[string]any{}
	if u.Email != nil {
		out["email"] = *u.Email
	}
	if u.FullName != nil {
		out["full_name"] = *u.FullName
	}
	if u.IsActive != nil {
		out["is_active"] = *u.IsActive
	}
	return out
}

// UpdateUser applies upd to user id and audits it under actorID.
func (s *Service) UpdateUser(ctx context.Context, actorID, id uint64, upd UserUpdate) (*models.User, error) {
	if upd.Email != nil && *upd.Email == "" {
		return nil, common.NewValidationError("email", "must not be empty")
	}
	fields := upd.fields()

	var out *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := getUser(tx, id)
		if err != nil {
			return err
		}
		if upd.Email != nil {
			var taken int64
			if err := tx.Model(&models.User{}).Where("email = ? AND id <> ?", *upd.Email, id).Count(&taken).Error; err != nil {
				return err
			}
			if taken > 0 {
				return common.NewValidationError("email", "already in use")
			}
		}
		if len(fields) > 0 {
			fields["updated_at"] = time.Now()
			if err := tx.Model(u).Updates(fields).Error; err != nil {
				return err
			}
			delete(fields, "updated_at")
		}
		if err := models.RecordAudit(tx, models.AuditEntry{
			UserID:       actorID,
			Action:       "user_update",
			ResourceType: "user",
			ResourceID:   strconv.FormatUint(id, 10),
			Details:      fields,
		}); err != nil {
			return err
		}
		out, err = getUser(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteUser removes the user together with their credentials, interactions,
// summaries and usage rows. Audit rows are kept.
func (s *Service) DeleteUser(ctx context.Context, actorID, id uint64) error {
	if actorID == id {
		return common.NewValidationError("", "Cannot delete your own account")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getUser(tx, id); err != nil {
			return err
		}
		for _, m := range []any{&vault.Credential{}, &agent.Interaction{}, &agent.Summary{}, &models.UsageStat{}} {
			if err := tx.Where("user_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(&models.User{}, id).Error; err != nil {
			return err
		}
		return models.RecordAudit(tx, models.AuditEntry{
			UserID:       actorID,
			Action:       "user_delete",
			ResourceType: "user",
			ResourceID:   strconv.FormatUint(id, 10),
		})
	})
}

type LogFilter struct {
	Action string
	UserID uint64
	Limit  int
	Offset int
}

// ListLogs returns audit rows newest first.
func (s *Service) ListLogs(ctx context.Context, f LogFilter) ([]models.AuditLog, error) {
	limit, offset := clamp(f.Limit, f.Offset)
	q := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	var out []models.AuditLog
	if err := q.Order("id DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type UsageFilter struct {
	UserID      uint64
	ServiceType string
	Limit       int
	Offset      int
}

// ListUsage returns metering rows newest first.
func (s *Service) ListUsage(ctx context.Context, f UsageFilter) ([]models.UsageStat, error) {
	limit, offset := clamp(f.Limit, f.Offset)
	q := s.db.WithContext(ctx).Model(&models.UsageStat{})
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.ServiceType != "" {
		q = q.Where("service_type = ?", f.ServiceType)
	}
	var out []models.UsageStat
	if err := q.Order("id DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type UsageSummary struct {
	TotalMessages     int64    `gorm:"column:total_messages" json:"total_messages"`
	TotalSummaries    int64    `gorm:"column:total_summaries" json:"total_summaries"`
	TotalTokens       int64    `gorm:"column:total_tokens" json:"total_tokens"`
	TotalCost         float64  `gorm:"column:total_cost" json:"total_cost"`
	AvgResponseTimeMS *float64 `gorm:"column:avg_response_time_ms" json:"avg_response_time_ms"`
}

// UsageSummary aggregates usage recorded since now minus days, optionally for
// one user. AvgResponseTimeMS is nil when no row carries a latency.
func (s *Service) UsageSummary(ctx context.Context, userID uint64, days int, now time.Time) (*UsageSummary, error) {
	if days <= 0 {
		days = 30
	}
	since := now.AddDate(0, 0, -days)

	q := s.db.WithContext(ctx).Model(&models.UsageStat{}).Where("created_at >= ?", since)
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	var out UsageSummary
	err := q.Select(
		"COUNT(CASE WHEN action_type = ? THEN 1 END) AS total_messages, "+
			"COUNT(CASE WHEN action_type = ? THEN 1 END) AS total_summaries, "+
			"COALESCE(SUM(tokens_used), 0) AS total_tokens, "+
			"COALESCE(SUM(cost), 0) AS total_cost, "+
			"AVG(execution_time_ms) AS avg_response_time_ms",
		models.ActionMessage, models.ActionSummary,
	).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}
