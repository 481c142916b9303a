package agent

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/suPer8Hu/agent-portal/internal/common"
	"github.com/suPer8Hu/agent-portal/internal/models"
	"gorm.io/gorm"
)

var ErrSummaryNotFound = fmt.Errorf("summary %w", common.ErrNotFound)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// RecordReply writes the interaction, its usage and its audit row in one
// transaction.
func (r *Repo) RecordReply(ctx context.Context, in *Interaction, usage *models.UsageStat, audit models.AuditEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(in).Error; err != nil {
			return err
		}
		if err := tx.Create(usage).Error; err != nil {
			return err
		}
		return models.RecordAudit(tx, audit)
	})
}

// RecordSummary is RecordReply for summaries. The audit row's resource id is
// the new summary's id.
func (r *Repo) RecordSummary(ctx context.Context, s *Summary, usage *models.UsageStat, audit models.AuditEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(s).Error; err != nil {
			return err
		}
		if err := tx.Create(usage).Error; err != nil {
			return err
		}
		audit.ResourceID = strconv.FormatUint(s.ID, 10)
		return models.RecordAudit(tx, audit)
	})
}

// ListInteractions returns the user's interactions newest first.
func (r *Repo) ListInteractions(ctx context.Context, userID uint64, limit, offset int) ([]Interaction, error) {
	var out []Interaction
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListSummaries returns the user's summaries newest first.
func (r *Repo) ListSummaries(ctx context.Context, userID uint64, limit, offset int) ([]Summary, error) {
	var out []Summary
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) GetSummary(ctx context.Context, userID, id uint64) (*Summary, error) {
	var s Summary
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSummaryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
