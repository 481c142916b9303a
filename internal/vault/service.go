package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/agent-portal/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Tester probes a live vendor account.
type Tester interface {
	TestConnection(ctx context.Context) TestOutcome
}

// Connector builds a Tester for a decrypted payload.
type Connector interface {
	Connect(ctx context.Context, p Payload) (Tester, error)
}

type Vault struct {
	db          *gorm.DB
	cipher      *Cipher
	connector   Connector
	testTimeout time.Duration
	now         func() time.Time
}

type Option func(*Vault)

// WithTestTimeout bounds each connection test.
func WithTestTimeout(d time.Duration) Option {
	return func(v *Vault) {
		if d > 0 {
			v.testTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

func New(db *gorm.DB, c *Cipher, connector Connector, opts ...Option) *Vault {
	v := &Vault{
		db:          db,
		cipher:      c,
		connector:   connector,
		testTimeout: 30 * time.Second,
		now:         time.Now,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

type putOptions struct {
	action string
}

type PutOption func(*putOptions)

// WithAuditAction overrides the audit action recorded for a Put.
func WithAuditAction(action string) PutOption {
	return func(o *putOptions) { o.action = action }
}

// Put encrypts payload and upserts it as the single credential row for
// (userID, payload.Service()), resetting its test status to pending.
func (v *Vault) Put(ctx context.Context, userID uint64, p Payload, opts ...PutOption) (*Credential, error) {
	o := putOptions{action: "credential_update"}
	for _, fn := range opts {
		fn(&o)
	}
	service := p.Service()

	plaintext, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s credential: %w", service, err)
	}
	blob, err := v.cipher.Seal(plaintext, userID, service)
	if err != nil {
		return nil, fmt.Errorf("encrypt %s credential: %w", service, err)
	}

	var cred Credential
	err = v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := Credential{
			UserID:               userID,
			ServiceType:          service,
			EncryptedCredentials: blob,
			IsActive:             true,
			TestStatus:           TestPending,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "service_type"}},
			DoUpdates: clause.Assignments(map[string]any{
				"encrypted_credentials": blob,
				"is_active":             true,
				"test_status":           TestPending,
				"test_message":          nil,
				"updated_at":            v.now(),
			}),
		}).Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? AND service_type = ?", userID, service).First(&cred).Error; err != nil {
			return err
		}
		return models.RecordAudit(tx, models.AuditEntry{
			UserID:       userID,
			Action:       o.action,
			ResourceType: "credential",
			ResourceID:   strconv.FormatUint(cred.ID, 10),
			Details:      map[string]any{"service_type": string(service)},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store %s credential: %w", service, err)
	}
	return &cred, nil
}

func (v *Vault) load(ctx context.Context, userID uint64, service ServiceType) (*Credential, error) {
	var cred Credential
	err := v.db.WithContext(ctx).
		Where("user_id = ? AND service_type = ? AND is_active = ?", userID, service, true).
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s credential: %w", service, err)
	}
	return &cred, nil
}

func (v *Vault) open(cred *Credential) (Payload, error) {
	plaintext, err := v.cipher.Open(cred.EncryptedCredentials, cred.UserID, cred.ServiceType)
	if err != nil {
		return nil, &DecryptionError{UserID: cred.UserID, Service: cred.ServiceType, Err: err}
	}
	p, err := unmarshalPayload(cred.ServiceType, plaintext)
	if err != nil {
		return nil, &DecryptionError{UserID: cred.UserID, Service: cred.ServiceType, Err: err}
	}
	return p, nil
}

// Get returns the decrypted payload, ErrNotFound when no active row exists,
// or a *DecryptionError when the blob does not open under the current key.
func (v *Vault) Get(ctx context.Context, userID uint64, service ServiceType) (Payload, error) {
	cred, err := v.load(ctx, userID, service)
	if err != nil {
		return nil, err
	}
	return v.open(cred)
}

// Test probes the credential and records the outcome on the row. Only
// ErrNotFound is returned as an error; every other failure becomes an
// outcome with status "failed" or "error".
func (v *Vault) Test(ctx context.Context, userID uint64, service ServiceType) (TestOutcome, error) {
	cred, err := v.load(ctx, userID, service)
	if errors.Is(err, ErrNotFound) {
		return TestOutcome{}, err
	}
	if err != nil {
		log.Error().Err(err).Uint64("user_id", userID).Str("service", string(service)).Msg("credential test could not load row")
		return TestOutcome{Status: TestError, Message: err.Error(), TestedAt: v.now()}, nil
	}

	outcome := v.probe(ctx, cred)
	outcome.TestedAt = v.now()

	err = v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg := outcome.Message
		if err := tx.Model(&Credential{}).Where("id = ?", cred.ID).Updates(map[string]any{
			"last_tested_at": outcome.TestedAt,
			"test_status":    outcome.Status,
			"test_message":   &msg,
		}).Error; err != nil {
			return err
		}
		return models.RecordAudit(tx, models.AuditEntry{
			UserID:       userID,
			Action:       "credential_test",
			ResourceType: "credential",
			ResourceID:   strconv.FormatUint(cred.ID, 10),
			Details:      map[string]any{"service_type": string(service), "result": outcome.Status},
			Status:       outcome.Status,
		})
	})
	if err != nil {
		log.Error().Err(err).Uint64("user_id", userID).Str("service", string(service)).Msg("failed to record credential test result")
	}
	return outcome, nil
}

func (v *Vault) probe(ctx context.Context, cred *Credential) (out TestOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			out = TestOutcome{Status: TestError, Message: fmt.Sprintf("panic: %v", rec)}
		}
	}()

	p, err := v.open(cred)
	if err != nil {
		return TestOutcome{Status: TestError, Message: err.Error()}
	}
	if oc, ok := p.(OAuthClientCredential); ok {
		return checkOAuthClient(oc)
	}
	if v.connector == nil {
		return TestOutcome{Status: TestError, Message: "no connector configured"}
	}

	tctx, cancel := context.WithTimeout(ctx, v.testTimeout)
	defer cancel()

	tester, err := v.connector.Connect(tctx, p)
	if err != nil {
		return TestOutcome{Status: TestError, Message: err.Error()}
	}
	return tester.TestConnection(tctx)
}

// Delete removes the row and reports whether one existed.
func (v *Vault) Delete(ctx context.Context, userID uint64, service ServiceType) (bool, error) {
	var existed bool
	err := v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND service_type = ?", userID, service).Delete(&Credential{})
		if res.Error != nil {
			return res.Error
		}
		existed = res.RowsAffected > 0
		status := models.StatusSuccess
		if !existed {
			status = models.StatusFailed
		}
		return models.RecordAudit(tx, models.AuditEntry{
			UserID:       userID,
			Action:       "credential_delete",
			ResourceType: "credential",
			Details:      map[string]any{"service_type": string(service)},
			Status:       status,
		})
	})
	if err != nil {
		return false, fmt.Errorf("delete %s credential: %w", service, err)
	}
	return existed, nil
}

// List returns credential metadata for the user; blobs are never decrypted.
func (v *Vault) List(ctx context.Context, userID uint64) ([]Credential, error) {
	var creds []Credential
	if err := v.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("service_type ASC").
		Find(&creds).Error; err != nil {
		return nil, err
	}
	return creds, nil
}
