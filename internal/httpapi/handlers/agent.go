package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/agent-portal/internal/agent"
	"github.com/suPer8Hu/agent-portal/internal/common"
)

type messageReq struct {
	Message   string `json:"message" binding:"required"`
	ChannelID string `json:"channel_id"`
}

// failResult answers a workflow that reached a vendor and came back
// unsuccessful.
func failResult(c *gin.Context, res agent.Result) {
	if res.Error == agent.ErrCompletionNotConfigured {
		common.Fail(c, http.StatusBadRequest, 10010, res.Error)
		return
	}
	common.Fail(c, http.StatusBadGateway, 50201, res.Error)
}

func (h *Handler) SendMessage(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	var req messageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	channel := req.ChannelID
	if channel == "" {
		channel = "direct"
	}
	ts, err := common.NewULID()
	if err != nil {
		common.Abort(c, err)
		return
	}

	res, err := h.AgentSvc.Reply(c.Request.Context(), uid, agent.ReplyRequest{
		Message:     req.Message,
		ChannelID:   channel,
		SlackUserID: strconv.FormatUint(uid, 10),
		MessageTS:   ts,
	})
	if err != nil {
		common.Abort(c, err)
		return
	}
	if !res.Success {
		failResult(c, res)
		return
	}
	common.OK(c, res)
}

type summaryReq struct {
	Title   string `json:"title" binding:"required,max=255"`
	Content string `json:"content" binding:"required"`
}

func (h *Handler) CreateSummary(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	var req summaryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	save := true
	if raw := c.Query("save_to_drive"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10002, "invalid save_to_drive")
			return
		}
		save = b
	}

	res, err := h.AgentSvc.Summarize(c.Request.Context(), uid, agent.SummaryRequest{
		Title:      req.Title,
		Content:    req.Content,
		SaveToDocs: save,
	})
	if err != nil {
		common.Abort(c, err)
		return
	}
	if !res.Success {
		failResult(c, res)
		return
	}
	common.OK(c, res)
}

func (h *Handler) ListMessages(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	out, err := h.AgentSvc.ListInteractions(c.Request.Context(), uid, limit, offset)
	if err != nil {
		common.Abort(c, err)
		return
	}
	common.OK(c, out)
}

func (h *Handler) ListSummaries(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	out, err := h.AgentSvc.ListSummaries(c.Request.Context(), uid, limit, offset)
	if err != nil {
		common.Abort(c, err)
		return
	}
	common.OK(c, out)
}

func (h *Handler) GetSummary(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	s, err := h.AgentSvc.GetSummary(c.Request.Context(), uid, id)
	if err != nil {
		common.Abort(c, err)
		return
	}
	common.OK(c, s)
}
