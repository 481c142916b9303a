package agent

import "time"

// Interaction is one answered chat message. Rows are never updated.
type Interaction struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint64    `gorm:"index:idx_slack_msg_user_id,priority:1;not null" json:"user_id"`
	SlackUserID    string    `gorm:"type:varchar(64)" json:"slack_user_id"`
	SlackChannelID string    `gorm:"type:varchar(64);index" json:"slack_channel_id"`
	SlackMessageTS string    `gorm:"type:varchar(64)" json:"slack_message_ts"`
	UserMessage    string    `gorm:"type:text;not null" json:"user_message"`
	BotResponse    string    `gorm:"type:text" json:"bot_response"`
	TokensUsed     int       `gorm:"not null;default:0" json:"tokens_used"`
	ResponseTimeMS float64   `json:"response_time_ms"`
	CreatedAt      time.Time `gorm:"index:idx_slack_msg_user_id,priority:2" json:"created_at"`
}

func (Interaction) TableName() string { return "slack_messages" }

type Summary struct {
	ID                 uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID             uint64    `gorm:"index:idx_summary_user_id,priority:1;not null" json:"user_id"`
	Title              string    `gorm:"type:varchar(255);not null" json:"title"`
	Content            string    `gorm:"type:text;not null" json:"content"`
	GoogleDriveFileID  *string   `gorm:"type:varchar(128)" json:"google_drive_file_id"`
	GoogleDriveFileURL *string   `gorm:"type:varchar(512)" json:"google_drive_file_url"`
	CreatedAt          time.Time `gorm:"index:idx_summary_user_id,priority:2" json:"created_at"`
}

func (Summary) TableName() string { return "summaries" }
