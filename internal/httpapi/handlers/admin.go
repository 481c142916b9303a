package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/agent-portal/internal/admin"
	"github.com/suPer8Hu/agent-portal/internal/common"
)

func (h *Handler) AdminDashboard(c *gin.Context) {
	d, err := h.AdminSvc.Dashboard(c.Request.Context())
	if err != nil {
		common.Abort(c, err)
		return
	}
	common.OK(c, d)
}

func (h *Handler) AdminListUsers(c *gin.Context) {
	limit, ok := queryInt(c, "limit", admin.DefaultLimit)
	if !ok {
		return
	}
	skip, ok := queryInt(c, "skip", 0)
	if !ok {
		return
	}
	users, err := h.AdminSvc.ListUsers(c.Request.Context(), limit, skip)
	if err != nil {
		common.Abort(c, err)
		return
	}
	common.OK(c, users)
}

func (h *Handler) AdminGetUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	u, err := h.AdminSvc.GetUser(c.Request.Context(), id)
	if err != nil {
		common.Abort(c, err)
		return
	}
	common.OK(c, u)
}

func (h *Handler) AdminUpdateUser(c *gin.Context) {
	actor, ok := mustUserID(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req admin.UserUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	u, err := h.AdminSvc.UpdateUser(c.Request.Context(), actor, id, req)
	if err != nil {
		common.Abort(c, err)
		return
	}
	common.OK(c, u)
}

func (h *Handler) AdminDeleteUser(c *gin.Context) {
	actor, ok := mustUserID(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.AdminSvc.DeleteUser(c.Request.Context(), actor, id); err != nil {
		common.Abort(c, err)
		return
	}
	common.OK(c, gin.H{"message": "User deleted successfully"})
}

func (h *Handler) AdminLogs(c *gin.Context) {
	var f admin.LogFilter
	var ok bool
	if f.Limit, ok = queryInt(c, "limit", admin.DefaultLimit); !ok {
		return
	}
	if f.Offset, ok = queryInt(c, "skip", 0); !ok {
		return
	}
	if f.UserID, ok = queryUint(c, "user_id"); !ok {
		return
	}
	f.Action = c.Query("action")

	logs, err := h.AdminSvc.ListLogs(c.Request.Context(), f)
	if err != nil {
		common.Abort(c, err)
		return
	}
	common.OK(c, logs)
}

func (h *Handler) AdminUsage(c *gin.Context) {
	var f admin.UsageFilter
	var ok bool
	if f.Limit, ok = queryInt(c, "limit", admin.DefaultLimit); !ok {
		return
	}
	if f.Offset, ok = queryInt(c, "skip", 0); !ok {
		return
	}
	if f.UserID, ok = queryUint(c, "user_id"); !ok {
		return
	}
	f.ServiceType = c.Query("service_type")

	stats, err := h.AdminSvc.ListUsage(c.Request.Context(), f)
	if err != nil {
		common.Abort(c, err)
		return
	}
	common.OK(c, stats)
}

func (h *Handler) AdminUsageSummary(c *gin.Context) {
	uid, ok := queryUint(c, "user_id")
	if !ok {
		return
	}
	days, ok := queryInt(c, "days", 30)
	if !ok {
		return
	}
	sum, err := h.AdminSvc.UsageSummary(c.Request.Context(), uid, days, h.now())
	if err != nil {
		common.Abort(c, err)
		return
	}
	common.OK(c, sum)
}
