package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/agent-portal/internal/auth"
	"github.com/suPer8Hu/agent-portal/internal/common"
	"github.com/suPer8Hu/agent-portal/internal/models"
	"gorm.io/gorm"
)

const (
	UserIDKey = "user_id"
	UserKey   = "user"
	ClaimsKey = "claims"
)

// Revocations reports whether a token id was logged out.
type Revocations interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// AuthRequired accepts a bearer access token whose user still exists and is
// active. It stores the user id, the user and the claims on the context.
func AuthRequired(secret string, db *gorm.DB, revoked Revocations) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(h, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			common.AbortFail(c, http.StatusUnauthorized, 40101, "missing bearer token")
			return
		}

		claims, err := auth.ParseJWT(strings.TrimSpace(token), secret, auth.TokenAccess)
		if err != nil {
			common.AbortFail(c, http.StatusUnauthorized, 40102, "invalid or expired token")
			return
		}

		if revoked != nil {
			isRevoked, err := revoked.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				log.Error().Err(err).Str("request_id", c.GetString(common.RequestIDKey)).Msg("revocation lookup failed")
				common.AbortFail(c, http.StatusInternalServerError, 20001, "redis error")
				return
			}
			if isRevoked {
				common.AbortFail(c, http.StatusUnauthorized, 40103, "token revoked")
				return
			}
		}

		uid, _ := claims.UserID()
		var user models.User
		if err := db.WithContext(c.Request.Context()).First(&user, uid).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				common.AbortFail(c, http.StatusUnauthorized, 40104, "user not found")
				return
			}
			common.AbortFail(c, http.StatusInternalServerError, 20001, "db error")
			return
		}
		if !user.IsActive {
			common.AbortFail(c, http.StatusForbidden, 40302, "user account is inactive")
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Set(UserKey, &user)
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok || !u.IsAdmin() {
			common.AbortFail(c, http.StatusForbidden, 40301, "admin privileges required")
			return
		}
		c.Next()
	}
}

func CurrentUserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok
}

func CurrentClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	cl, ok := v.(*auth.Claims)
	return cl, ok
}
