package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/agent-portal/internal/common"
	"github.com/suPer8Hu/agent-portal/internal/httpapi/handlers"
	"github.com/suPer8Hu/agent-portal/internal/httpapi/middleware"
	"github.com/suPer8Hu/agent-portal/internal/metrics"
)

func NewRouter(h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.ClientIP())
	if len(h.Cfg.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(h.Cfg.AllowedOrigins))
	}

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	authed := middleware.AuthRequired(h.Cfg.JWTSecret, h.DB, h.Sessions)

	// auth
	api.POST("/auth/signup", h.Signup)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.Refresh)
	api.GET("/auth/me", authed, h.Me)
	api.POST("/auth/logout", authed, h.Logout)

	// credentials
	creds := api.Group("/credentials", authed)
	creds.POST("", h.PutCredential)
	creds.GET("", h.ListCredentials)
	creds.POST("/:service/test", h.TestCredential)
	creds.DELETE("/:service", h.DeleteCredential)

	// agent workflows
	ag := api.Group("/agent", authed)
	ag.POST("/message", h.SendMessage)
	ag.POST("/summary", h.CreateSummary)
	ag.GET("/messages", h.ListMessages)
	ag.GET("/summaries", h.ListSummaries)
	ag.GET("/summaries/:id", h.GetSummary)

	adm := api.Group("/admin", authed, middleware.AdminRequired())
	adm.GET("/dashboard", h.AdminDashboard)
	adm.GET("/users", h.AdminListUsers)
	adm.GET("/users/:id", h.AdminGetUser)
	adm.PATCH("/users/:id", h.AdminUpdateUser)
	adm.DELETE("/users/:id", h.AdminDeleteUser)
	adm.GET("/logs", h.AdminLogs)
	adm.GET("/usage", h.AdminUsage)
	adm.GET("/usage/summary", h.AdminUsageSummary)

	// slack authenticates by request signature, not bearer token
	api.POST("/slack/events", h.SlackEvents)
	api.POST("/slack/interactive", h.SlackInteractive)
	api.POST("/slack/slash-commands", h.SlackCommands)

	api.GET("/oauth/google/authorize", authed, h.GoogleAuthorize)
	api.GET("/oauth/google/callback", h.GoogleCallback)

	return r
}
