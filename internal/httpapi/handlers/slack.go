package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/agent-portal/internal/dispatch"
)

const maxSlackBody = 1 << 20

// slackRequest keeps the body byte-exact; the signature covers it verbatim.
func slackRequest(c *gin.Context) (dispatch.Request, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxSlackBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "unreadable body"})
		return dispatch.Request{}, false
	}
	return dispatch.Request{
		Timestamp: c.GetHeader("X-Slack-Request-Timestamp"),
		Signature: c.GetHeader("X-Slack-Signature"),
		RetryNum:  c.GetHeader("X-Slack-Retry-Num"),
		Body:      body,
	}, true
}

func (h *Handler) serveSlack(c *gin.Context, fn func(context.Context, dispatch.Request) dispatch.Response) {
	req, ok := slackRequest(c)
	if !ok {
		return
	}
	res := fn(c.Request.Context(), req)
	c.JSON(res.Status, res.Body)
}

func (h *Handler) SlackEvents(c *gin.Context) { h.serveSlack(c, h.Slack.Events) }

func (h *Handler) SlackInteractive(c *gin.Context) { h.serveSlack(c, h.Slack.Interactive) }

func (h *Handler) SlackCommands(c *gin.Context) { h.serveSlack(c, h.Slack.SlashCommand) }
