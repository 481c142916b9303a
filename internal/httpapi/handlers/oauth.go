package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/agent-portal/internal/common"
	"github.com/suPer8Hu/agent-portal/internal/gdocs"
	"github.com/suPer8Hu/agent-portal/internal/store/redisstore"
	"github.com/suPer8Hu/agent-portal/internal/vault"
)

const oauthStateTTL = 10 * time.Minute

func (h *Handler) googleFlow(c *gin.Context, uid uint64) (*gdocs.Flow, bool) {
	p, err := h.Vault.Get(c.Request.Context(), uid, vault.ServiceGoogleOAuth)
	if errors.Is(err, vault.ErrNotFound) {
		common.Fail(c, http.StatusBadRequest, 10030, "Please configure Google OAuth credentials in Settings first")
		return nil, false
	}
	if err != nil {
		common.Abort(c, err)
		return nil, false
	}
	client, ok := p.(vault.OAuthClientCredential)
	if !ok {
		common.Abort(c, errors.New("unexpected google oauth payload"))
		return nil, false
	}
	redirect := client.RedirectURI
	if redirect == "" {
		redirect = h.Cfg.GoogleRedirectURI
	}
	flow, err := gdocs.NewFlow(client.ClientID, client.ClientSecret, redirect)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10031, "Google OAuth credentials are incomplete")
		return nil, false
	}
	if h.GoogleEndpoint != nil {
		flow.WithEndpoint(*h.GoogleEndpoint)
	}
	return flow, true
}

// GoogleAuthorize starts the consent flow for the caller's own OAuth client.
func (h *Handler) GoogleAuthorize(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	flow, ok := h.googleFlow(c, uid)
	if !ok {
		return
	}
	state := uuid.NewString()
	if err := h.Sessions.SaveOAuthState(c.Request.Context(), state, uid, oauthStateTTL); err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "redis error")
		return
	}
	common.OK(c, gin.H{"authorization_url": flow.AuthURL(state), "state": state})
}

type callbackQuery struct {
	Code  string `form:"code"`
	State string `form:"state"`
	Error string `form:"error"`
}

// GoogleCallback is hit by the browser coming back from Google. The state
// identifies the user; the granted token is stored as their workspace
// credential.
func (h *Handler) GoogleCallback(c *gin.Context) {
	var q callbackQuery
	if err := c.ShouldBindQuery(&q); err != nil || q.State == "" {
		common.Fail(c, http.StatusBadRequest, 10032, "Invalid state parameter")
		return
	}
	ctx := c.Request.Context()

	uid, err := h.Sessions.ConsumeOAuthState(ctx, q.State)
	if errors.Is(err, redisstore.ErrStateNotFound) {
		common.Fail(c, http.StatusBadRequest, 10032, "Invalid state parameter")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "redis error")
		return
	}

	failed := h.Cfg.Frontend() + "/settings?oauth=error"
	if q.Error != "" || q.Code == "" {
		log.Warn().Uint64("user_id", uid).Str("error", q.Error).Msg("google oauth denied")
		c.Redirect(http.StatusFound, failed)
		return
	}

	flow, ok := h.googleFlow(c, uid)
	if !ok {
		return
	}
	tok, err := flow.Exchange(ctx, q.Code)
	if err != nil {
		log.Error().Err(err).Uint64("user_id", uid).Msg("google oauth code exchange failed")
		c.Redirect(http.StatusFound, failed)
		return
	}

	_, err = h.Vault.Put(ctx, uid, vault.DocumentStoreCredential{
		Token:        tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     tok.TokenURI,
		ClientID:     tok.ClientID,
		ClientSecret: tok.ClientSecret,
		Scopes:       tok.Scopes,
		Expiry:       tok.Expiry,
	}, vault.WithAuditAction("google_oauth_connected"))
	if err != nil {
		common.Abort(c, err)
		return
	}
	log.Info().Uint64("user_id", uid).Msg("google workspace connected")
	c.Redirect(http.StatusFound, h.Cfg.Frontend()+"/settings?oauth=success")
}
