package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ServiceAzureOpenAI = "azure_openai"

	ActionMessage = "message"
	ActionSummary = "summary"
)

// UsageStat is an append-only metering row. Cost is derived from tokens by
// Pricing.Usage and is not meant to be set directly.
type UsageStat struct {
	ID              uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          uint64            `gorm:"index;not null" json:"user_id"`
	ServiceType     string            `gorm:"type:varchar(32);index;not null" json:"service_type"`
	ActionType      string            `gorm:"type:varchar(32);index;not null" json:"action_type"`
	TokensUsed      int               `gorm:"not null;default:0" json:"tokens_used"`
	Cost            float64           `gorm:"not null;default:0" json:"cost"`
	ExecutionTimeMS *float64          `json:"execution_time_ms"`
	MetaInfo        datatypes.JSONMap `json:"meta_info"`
	CreatedAt       time.Time         `gorm:"index" json:"created_at"`
}

func (UsageStat) TableName() string { return "usage_stats" }

// Pricing holds the per-token unit price used for cost accounting.
type Pricing struct {
	UnitPrice float64
}

func (p Pricing) Cost(tokens int) float64 {
	return float64(tokens) * p.UnitPrice
}

func (p Pricing) Usage(userID uint64, service, action string, tokens int, latencyMS float64, meta map[string]any) *UsageStat {
	u := &UsageStat{
		UserID:      userID,
		ServiceType: service,
		ActionType:  action,
		TokensUsed:  tokens,
		Cost:        p.Cost(tokens),
	}
	if latencyMS > 0 {
		ms := latencyMS
		u.ExecutionTimeMS = &ms
	}
	if meta != nil {
		u.MetaInfo = datatypes.JSONMap(meta)
	}
	return u
}
