package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/agent-portal/internal/adapters"
	"github.com/suPer8Hu/agent-portal/internal/admin"
	"github.com/suPer8Hu/agent-portal/internal/agent"
	"github.com/suPer8Hu/agent-portal/internal/common"
	"github.com/suPer8Hu/agent-portal/internal/config"
	"github.com/suPer8Hu/agent-portal/internal/dispatch"
	"github.com/suPer8Hu/agent-portal/internal/httpapi/middleware"
	"github.com/suPer8Hu/agent-portal/internal/models"
	"github.com/suPer8Hu/agent-portal/internal/vault"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// Sessions is the short-lived state kept outside the database: revoked token
// ids and pending OAuth states.
type Sessions interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	SaveOAuthState(ctx context.Context, state string, userID uint64, ttl time.Duration) error
	ConsumeOAuthState(ctx context.Context, state string) (uint64, error)
}

type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	Sessions Sessions
	Vault    *vault.Vault
	AgentSvc *agent.Service
	AdminSvc *admin.Service
	Slack    *dispatch.Dispatcher

	// GoogleEndpoint overrides Google's OAuth endpoints when set.
	GoogleEndpoint *oauth2.Endpoint

	now func() time.Time
}

// NewHandler wires the vault, the adapter factory and the services on top of
// db. builder decides how vendor clients are constructed.
func NewHandler(db *gorm.DB, cfg config.Config, sessions Sessions, builder adapters.Builder) (*Handler, error) {
	cipher, err := vault.NewCipher(vault.Config{EncryptionKey: cfg.EncryptionKey})
	if err != nil {
		return nil, fmt.Errorf("vault cipher: %w", err)
	}
	if builder.AzureAPIVersion == "" {
		builder.AzureAPIVersion = cfg.AzureAPIVersion
	}
	v := vault.New(db, cipher, builder, vault.WithTestTimeout(cfg.VendorTimeout))
	factory := adapters.NewFactory(v, builder)
	agentSvc := agent.NewService(agent.NewRepo(db), factory, models.Pricing{UnitPrice: cfg.UnitPrice}, cfg.VendorTimeout)
	slack := dispatch.New(agentSvc,
		dispatch.StaticTenants(cfg.SlackWorkspaces),
		dispatch.SigningSecrets{Creds: v},
		cfg.SummaryMinLength,
	)

	return &Handler{
		DB:       db,
		Cfg:      cfg,
		Sessions: sessions,
		Vault:    v,
		AgentSvc: agentSvc,
		AdminSvc: admin.NewService(db),
		Slack:    slack,
		now:      time.Now,
	}, nil
}

func (h *Handler) Health(c *gin.Context) {
	sqlDB, err := h.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		common.Fail(c, http.StatusServiceUnavailable, 50300, "database unavailable")
		return
	}
	common.OK(c, gin.H{"status": "healthy", "app": h.Cfg.AppName})
}

func mustUserID(c *gin.Context) (uint64, bool) {
	uid, ok := middleware.CurrentUserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
	}
	return uid, ok
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid "+key)
		return 0, false
	}
	return n, true
}

func queryUint(c *gin.Context, key string) (uint64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid "+key)
		return 0, false
	}
	return n, true
}

func paramID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid "+name)
		return 0, false
	}
	return id, true
}
