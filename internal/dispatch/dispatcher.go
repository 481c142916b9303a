// Package dispatch authenticates inbound Slack deliveries, classifies them
// and hands them to the agent workflows.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/suPer8Hu/agent-portal/internal/agent"
	"github.com/suPer8Hu/agent-portal/internal/metrics"
)

const (
	SummarizeCommand = "/ai-summarize"

	needMoreContentText = "Please provide more content to summarize. Example: `@bot summarize: [your long text here]`"
	needMoreCommandText = "Please provide more content to summarize. Example: `/ai-summarize [your long text here]`"
)

// Agent is the slice of the agent service the dispatcher drives.
type Agent interface {
	Reply(ctx context.Context, userID uint64, req agent.ReplyRequest) (agent.Result, error)
	Summarize(ctx context.Context, userID uint64, req agent.SummaryRequest) (agent.Result, error)
	Notify(ctx context.Context, userID uint64, channel, text, threadTS string) bool
}

type SecretSource interface {
	SigningSecret(ctx context.Context, userID uint64) (string, error)
}

// Request is one raw delivery from Slack.
type Request struct {
	Timestamp string
	Signature string
	// RetryNum is Slack's X-Slack-Retry-Num; non-empty on redeliveries.
	RetryNum string
	Body     []byte
}

// Response is the status and JSON body to answer Slack with.
type Response struct {
	Status int
	Body   any
}

func ok() Response { return Response{Status: http.StatusOK, Body: map[string]any{"ok": true}} }

func reject(status int, msg string) Response {
	return Response{Status: status, Body: map[string]any{"ok": false, "error": msg}}
}

type Dispatcher struct {
	agent     Agent
	tenants   TenantResolver
	secrets   SecretSource
	minLength int
	now       func() time.Time
}

type Option func(*Dispatcher)

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func New(a Agent, tenants TenantResolver, secrets SecretSource, minLength int, opts ...Option) *Dispatcher {
	if minLength <= 0 {
		minLength = DefaultMinSummaryLength
	}
	d := &Dispatcher{agent: a, tenants: tenants, secrets: secrets, minLength: minLength, now: time.Now}
	for _, o := range opts {
		o(d)
	}
	return d
}

// authenticate resolves the team to its user and checks the signature with
// that user's signing secret.
func (d *Dispatcher) authenticate(ctx context.Context, teamID string, req Request) (uint64, *Response) {
	uid, err := d.tenants.Resolve(ctx, teamID)
	if err != nil {
		log.Warn().Err(err).Str("team_id", teamID).Msg("slack delivery from unmapped workspace")
		r := reject(http.StatusForbidden, "unknown workspace")
		return 0, &r
	}
	secret, err := d.secrets.SigningSecret(ctx, uid)
	if errors.Is(err, ErrNoSigningSecret) {
		log.Warn().Uint64("user_id", uid).Str("team_id", teamID).Msg("slack delivery for tenant without signing secret")
		r := reject(http.StatusForbidden, "signing secret not configured")
		return 0, &r
	}
	if err != nil {
		log.Error().Err(err).Uint64("user_id", uid).Msg("load slack signing secret")
		r := reject(http.StatusInternalServerError, "internal error")
		return 0, &r
	}
	if !Verify(secret, req.Timestamp, req.Body, req.Signature, d.now()) {
		log.Warn().Str("team_id", teamID).Msg("slack signature verification failed")
		r := reject(http.StatusUnauthorized, "invalid signature")
		return 0, &r
	}
	return uid, nil
}

type envelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	TeamID    string `json:"team_id"`
}

// Events handles an Events API delivery.
func (d *Dispatcher) Events(ctx context.Context, req Request) Response {
	var env envelope
	if err := json.Unmarshal(req.Body, &env); err != nil {
		return reject(http.StatusBadRequest, "invalid JSON")
	}
	if env.Type == slackevents.URLVerification {
		metrics.SlackEvent("url_verification", "challenge")
		return Response{Status: http.StatusOK, Body: map[string]string{"challenge": env.Challenge}}
	}

	uid, fail := d.authenticate(ctx, env.TeamID, req)
	if fail != nil {
		return *fail
	}
	if req.RetryNum != "" {
		// the first delivery is processed synchronously; redeliveries would
		// answer twice
		log.Debug().Str("retry", req.RetryNum).Msg("ignoring slack redelivery")
		return ok()
	}
	if env.Type != slackevents.CallbackEvent {
		return ok()
	}

	parsed, err := slackevents.ParseEvent(json.RawMessage(req.Body), slackevents.OptionNoVerifyToken())
	if err != nil {
		log.Debug().Err(err).Msg("unsupported slack event")
		return ok()
	}

	var ev Event
	switch inner := parsed.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		ev = Event{
			Type:     EventMessage,
			Subtype:  inner.SubType,
			BotID:    inner.BotID,
			User:     inner.User,
			Channel:  inner.Channel,
			Text:     inner.Text,
			TS:       inner.TimeStamp,
			ThreadTS: inner.ThreadTimeStamp,
		}
	case *slackevents.AppMentionEvent:
		ev = Event{
			Type:     EventAppMention,
			BotID:    inner.BotID,
			User:     inner.User,
			Channel:  inner.Channel,
			Text:     inner.Text,
			TS:       inner.TimeStamp,
			ThreadTS: inner.ThreadTimeStamp,
		}
	default:
		return ok()
	}

	if err := d.handle(ctx, uid, ev); err != nil {
		log.Error().Err(err).Uint64("user_id", uid).Str("channel", ev.Channel).Msg("slack event failed")
		return reject(http.StatusInternalServerError, "internal error")
	}
	return ok()
}

func (d *Dispatcher) handle(ctx context.Context, uid uint64, ev Event) error {
	intent := Classify(ev, d.minLength)
	metrics.SlackEvent(ev.Type, intent.Kind.String())

	logger := log.With().Uint64("user_id", uid).Str("channel", ev.Channel).Str("intent", intent.Kind.String()).Logger()

	switch intent.Kind {
	case Reply:
		res, err := d.agent.Reply(ctx, uid, agent.ReplyRequest{
			Message:     intent.Text,
			ChannelID:   ev.Channel,
			SlackUserID: ev.User,
			MessageTS:   ev.TS,
		})
		if err != nil {
			return err
		}
		if !res.Success {
			logger.Error().Str("error", res.Error).Msg("failed to respond")
			return nil
		}
		logger.Info().Int("tokens", res.TokensUsed).Msg("responded to message")

	case NeedMoreContent:
		d.agent.Notify(ctx, uid, ev.Channel, needMoreContentText, "")

	case Summarize:
		res, err := d.agent.Summarize(ctx, uid, agent.SummaryRequest{
			Title:      "Slack Summary - " + ev.Channel,
			Content:    intent.Text,
			SaveToDocs: true,
		})
		if err != nil {
			return err
		}
		if !res.Success {
			logger.Error().Str("error", res.Error).Msg("failed to summarize")
			return nil
		}
		d.agent.Notify(ctx, uid, ev.Channel, summaryText(res), "")
		logger.Info().Uint64("summary_id", res.SummaryID).Msg("generated summary")
	}
	return nil
}

func summaryText(res agent.Result) string {
	text := "📝 *Summary Generated*\n\n" + res.Summary
	if res.GoogleDriveFileURL != nil && *res.GoogleDriveFileURL != "" {
		text += "\n\n📁 *Saved to Google Drive:* " + *res.GoogleDriveFileURL
	}
	return text
}

// SlashCommand handles a slash command delivery.
func (d *Dispatcher) SlashCommand(ctx context.Context, req Request) Response {
	cmd, err := parseSlashCommand(req.Body)
	if err != nil {
		return reject(http.StatusBadRequest, "invalid form")
	}

	uid, fail := d.authenticate(ctx, cmd.TeamID, req)
	if fail != nil {
		return *fail
	}
	log.Info().Str("command", cmd.Command).Str("slack_user", cmd.UserID).Msg("slash command received")

	if cmd.Command != SummarizeCommand {
		metrics.SlackEvent("slash_command", "other")
		return commandReply(slack.ResponseTypeEphemeral, fmt.Sprintf("Command %s received!", cmd.Command))
	}

	metrics.SlackEvent("slash_command", Summarize.String())
	content := strings.TrimSpace(cmd.Text)
	if utf8.RuneCountInString(content) < d.minLength {
		return commandReply(slack.ResponseTypeEphemeral, needMoreCommandText)
	}

	res, err := d.agent.Summarize(ctx, uid, agent.SummaryRequest{
		Title:      "Slack Summary - " + cmd.ChannelID,
		Content:    content,
		SaveToDocs: true,
	})
	if err != nil {
		log.Error().Err(err).Uint64("user_id", uid).Msg("slash command summary failed")
		return commandReply(slack.ResponseTypeEphemeral, "Something went wrong while generating the summary.")
	}
	if !res.Success {
		return commandReply(slack.ResponseTypeEphemeral, "Failed to generate summary: "+res.Error)
	}
	return commandReply(slack.ResponseTypeInChannel, summaryText(res))
}

func commandReply(responseType, text string) Response {
	return Response{Status: http.StatusOK, Body: map[string]string{"response_type": responseType, "text": text}}
}

func parseSlashCommand(body []byte) (slack.SlashCommand, error) {
	r := &http.Request{
		Method: http.MethodPost,
		Header: http.Header{"Content-Type": {"application/x-www-form-urlencoded"}},
		Body:   io.NopCloser(bytes.NewReader(body)),
	}
	return slack.SlashCommandParse(r)
}

// Interactive handles a block action or other interaction payload.
func (d *Dispatcher) Interactive(ctx context.Context, req Request) Response {
	form, err := url.ParseQuery(string(req.Body))
	if err != nil {
		return reject(http.StatusBadRequest, "invalid form")
	}
	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(form.Get("payload")), &cb); err != nil {
		return reject(http.StatusBadRequest, "invalid payload")
	}

	if _, fail := d.authenticate(ctx, cb.Team.ID, req); fail != nil {
		return *fail
	}
	metrics.SlackEvent("interactive", string(cb.Type))

	if cb.Type == slack.InteractionTypeBlockActions {
		ids := make([]string, 0, len(cb.ActionCallback.BlockActions))
		for _, a := range cb.ActionCallback.BlockActions {
			ids = append(ids, a.ActionID)
		}
		log.Info().Str("slack_user", cb.User.ID).Strs("actions", ids).Msg("interactive action received")
	}
	return ok()
}
