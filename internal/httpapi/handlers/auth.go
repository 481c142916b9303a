package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/agent-portal/internal/auth"
	"github.com/suPer8Hu/agent-portal/internal/common"
	"github.com/suPer8Hu/agent-portal/internal/httpapi/middleware"
	"github.com/suPer8Hu/agent-portal/internal/models"
	"gorm.io/gorm"
)

var errUserExists = errors.New("user exists")

type signupReq struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=3,max=64"`
	FullName string `json:"full_name" binding:"max=255"`
	Password string `json:"password" binding:"required,min=8"`
}

// Signup registers a user. The very first account becomes admin.
func (h *Handler) Signup(c *gin.Context) {
	var req signupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json: "+err.Error())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}

	user := models.User{
		Email:        req.Email,
		Username:     req.Username,
		FullName:     req.FullName,
		PasswordHash: hash,
		Role:         models.RoleUser,
		IsActive:     true,
	}
	err = h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.User{}).
			Where("email = ? OR username = ?", req.Email, req.Username).
			Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return errUserExists
		}
		var total int64
		if err := tx.Model(&models.User{}).Count(&total).Error; err != nil {
			return err
		}
		if total == 0 {
			user.Role = models.RoleAdmin
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return models.RecordAudit(tx, models.AuditEntry{
			UserID:       user.ID,
			Action:       "signup",
			ResourceType: "user",
			ResourceID:   strconv.FormatUint(user.ID, 10),
		})
	})
	if errors.Is(err, errUserExists) {
		common.Fail(c, http.StatusBadRequest, 10003, "User with this email or username already exists")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	log.Info().Uint64("user_id", user.ID).Str("role", user.Role).Msg("user signed up")
	common.Created(c, user)
}

type loginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func (h *Handler) issueTokens(u *models.User) (tokenPair, error) {
	access, err := auth.SignJWT(u.ID, u.Role, auth.TokenAccess, h.Cfg.JWTSecret, h.Cfg.AccessTokenTTL)
	if err != nil {
		return tokenPair{}, err
	}
	refresh, err := auth.SignJWT(u.ID, u.Role, auth.TokenRefresh, h.Cfg.JWTSecret, h.Cfg.RefreshTokenTTL)
	if err != nil {
		return tokenPair{}, err
	}
	return tokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	ctx := c.Request.Context()

	var user models.User
	err := h.DB.WithContext(ctx).Where("username = ?", req.Username).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		if err := models.RecordAudit(h.DB.WithContext(ctx), models.AuditEntry{
			Action:       "login",
			ResourceType: "user",
			Details:      map[string]any{"username": req.Username},
			Status:       models.StatusFailed,
		}); err != nil {
			log.Error().Err(err).Msg("failed to record failed login")
		}
		common.Fail(c, http.StatusUnauthorized, 40101, "Incorrect username or password")
		return
	}
	if !user.IsActive {
		if err := models.RecordAudit(h.DB.WithContext(ctx), models.AuditEntry{
			UserID:       user.ID,
			Action:       "login",
			ResourceType: "user",
			ResourceID:   strconv.FormatUint(user.ID, 10),
			Details:      map[string]any{"reason": "inactive"},
			Status:       models.StatusFailed,
		}); err != nil {
			log.Error().Err(err).Uint64("user_id", user.ID).Msg("failed to record inactive login")
		}
		common.Fail(c, http.StatusForbidden, 40302, "User account is inactive")
		return
	}

	pair, err := h.issueTokens(&user)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}
	if err := models.RecordAudit(h.DB.WithContext(ctx), models.AuditEntry{
		UserID:       user.ID,
		Action:       "login",
		ResourceType: "user",
		ResourceID:   strconv.FormatUint(user.ID, 10),
	}); err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, pair)
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh trades a refresh token for a new pair. The old refresh token is
// revoked so each one is single use.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	ctx := c.Request.Context()

	claims, err := auth.ParseJWT(req.RefreshToken, h.Cfg.JWTSecret, auth.TokenRefresh)
	if err != nil {
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid or expired token")
		return
	}
	revoked, err := h.Sessions.IsRevoked(ctx, claims.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "redis error")
		return
	}
	if revoked {
		common.Fail(c, http.StatusUnauthorized, 40103, "token revoked")
		return
	}

	uid, _ := claims.UserID()
	var user models.User
	if err := h.DB.WithContext(ctx).First(&user, uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusUnauthorized, 40104, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if !user.IsActive {
		common.Fail(c, http.StatusForbidden, 40302, "User account is inactive")
		return
	}

	if err := h.Sessions.RevokeToken(ctx, claims.ID, claims.TTL()); err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "redis error")
		return
	}
	pair, err := h.issueTokens(&user)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}
	common.OK(c, pair)
}

func (h *Handler) Me(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	common.OK(c, u)
}

type logoutReq struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout revokes the presented access token and, when supplied, the refresh
// token that goes with it.
func (h *Handler) Logout(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	claims, _ := middleware.CurrentClaims(c)
	ctx := c.Request.Context()

	var req logoutReq
	_ = c.ShouldBindJSON(&req) // body is optional

	if claims != nil {
		if err := h.Sessions.RevokeToken(ctx, claims.ID, claims.TTL()); err != nil {
			common.Fail(c, http.StatusInternalServerError, 20001, "redis error")
			return
		}
	}
	if req.RefreshToken != "" {
		if rc, err := auth.ParseJWT(req.RefreshToken, h.Cfg.JWTSecret, auth.TokenRefresh); err == nil {
			if sub, _ := rc.UserID(); sub == uid {
				if err := h.Sessions.RevokeToken(ctx, rc.ID, rc.TTL()); err != nil {
					log.Warn().Err(err).Uint64("user_id", uid).Msg("failed to revoke refresh token")
				}
			}
		}
	}

	if err := models.RecordAudit(h.DB.WithContext(ctx), models.AuditEntry{
		UserID:       uid,
		Action:       "logout",
		ResourceType: "user",
		ResourceID:   strconv.FormatUint(uid, 10),
	}); err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{"message": "Successfully logged out"})
}
