package vault

import (
	"fmt"
	"time"

	"github.com/suPer8Hu/agent-portal/internal/common"
)

const (
	TestPending = "pending"
	TestSuccess = "success"
	TestFailed  = "failed"
	TestError   = "error"
)

// Credential is the stored, encrypted credential set for one (user, service).
type Credential struct {
	ID                   uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID               uint64      `gorm:"not null;uniqueIndex:uniq_credential_user_service,priority:1" json:"user_id"`
	ServiceType          ServiceType `gorm:"type:varchar(32);not null;uniqueIndex:uniq_credential_user_service,priority:2" json:"service_type"`
	EncryptedCredentials string      `gorm:"type:text;not null" json:"-"`
	IsActive             bool        `gorm:"not null;default:true" json:"is_active"`
	LastTestedAt         *time.Time  `json:"last_tested_at"`
	TestStatus           string      `gorm:"type:varchar(16);not null;default:pending" json:"test_status"`
	TestMessage          *string     `gorm:"type:text" json:"test_message"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

func (Credential) TableName() string { return "credentials" }

// TestOutcome is the result of probing a credential.
type TestOutcome struct {
	Status   string         `json:"status"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	TestedAt time.Time      `json:"tested_at"`
}

var ErrNotFound = fmt.Errorf("credential %w", common.ErrNotFound)

// DecryptionError reports a stored blob that fails authentication, typically
// after the encryption key was rotated.
type DecryptionError struct {
	UserID  uint64
	Service ServiceType
	Err     error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decrypt %s credential for user %d: %v", e.Service, e.UserID, e.Err)
}

func (e *DecryptionError) Unwrap() []error {
	return []error{common.ErrDecryption, e.Err}
}
