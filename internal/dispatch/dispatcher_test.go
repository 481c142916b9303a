package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/agent-portal/internal/agent"
	"github.com/suPer8Hu/agent-portal/internal/vault"
)

type notice struct {
	channel, text string
}

type fakeAgent struct {
	mu         sync.Mutex
	replies    []agent.ReplyRequest
	summaries  []agent.SummaryRequest
	notices    []notice
	summaryRes agent.Result
	err        error
}

func (a *fakeAgent) Reply(ctx context.Context, userID uint64, req agent.ReplyRequest) (agent.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.replies = append(a.replies, req)
	if a.err != nil {
		return agent.Result{}, a.err
	}
	return agent.Result{Success: true, Response: "ok"}, nil
}

func (a *fakeAgent) Summarize(ctx context.Context, userID uint64, req agent.SummaryRequest) (agent.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summaries = append(a.summaries, req)
	if a.err != nil {
		return agent.Result{}, a.err
	}
	return a.summaryRes, nil
}

func (a *fakeAgent) Notify(ctx context.Context, userID uint64, channel, text, threadTS string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notices = append(a.notices, notice{channel, text})
	return true
}

type memCreds map[uint64]vault.Payload

func (m memCreds) Get(ctx context.Context, userID uint64, service vault.ServiceType) (vault.Payload, error) {
	p, ok := m[userID]
	if !ok || service != vault.ServiceSlack {
		return nil, vault.ErrNotFound
	}
	return p, nil
}

const secret = "8f742231b10e8888abcd99yyyzzz85a5"

var now = time.Unix(1_700_000_000, 0)

func newTestDispatcher(a Agent) *Dispatcher {
	creds := memCreds{
		1: vault.SlackCredential{BotToken: "xoxb", SigningSecret: secret},
		2: vault.SlackCredential{BotToken: "xoxb"},
	}
	tenants := StaticTenants{"T1": 1, "T2": 2}
	return New(a, tenants, SigningSecrets{Creds: creds}, 50, WithClock(func() time.Time { return now }))
}

func signed(body string) Request {
	ts := strconv.FormatInt(now.Unix(), 10)
	return Request{Timestamp: ts, Signature: Sign(secret, ts, []byte(body)), Body: []byte(body)}
}

func callback(team string, event map[string]any) string {
	b, _ := json.Marshal(map[string]any{
		"type":    "event_callback",
		"team_id": team,
		"event":   event,
	})
	return string(b)
}

func TestEvents_URLVerificationEchoesChallenge(t *testing.T) {
	a := &fakeAgent{}
	d := newTestDispatcher(a)

	res := d.Events(context.Background(), Request{Body: []byte(`{"type":"url_verification","challenge":"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P","token":"x"}`)})
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, map[string]string{"challenge": "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P"}, res.Body)
	assert.Empty(t, a.replies)
}

func TestEvents_RejectsBadSignature(t *testing.T) {
	a := &fakeAgent{}
	d := newTestDispatcher(a)

	req := signed(callback("T1", map[string]any{"type": "message", "text": "hi", "channel": "C1", "ts": "1.0"}))
	req.Signature = "v0=deadbeef"
	res := d.Events(context.Background(), req)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Empty(t, a.replies)
}

func TestEvents_RejectsStaleRequest(t *testing.T) {
	a := &fakeAgent{}
	d := newTestDispatcher(a)

	body := callback("T1", map[string]any{"type": "message", "text": "hi", "channel": "C1", "ts": "1.0"})
	ts := strconv.FormatInt(now.Unix()-301, 10)
	res := d.Events(context.Background(), Request{Timestamp: ts, Signature: Sign(secret, ts, []byte(body)), Body: []byte(body)})
	assert.Equal(t, http.StatusUnauthorized, res.Status)
}

func TestEvents_UnknownTeamAndMissingSecret(t *testing.T) {
	d := newTestDispatcher(&fakeAgent{})

	res := d.Events(context.Background(), signed(callback("T9", map[string]any{"type": "message", "text": "hi"})))
	assert.Equal(t, http.StatusForbidden, res.Status)

	res = d.Events(context.Background(), signed(callback("T2", map[string]any{"type": "message", "text": "hi"})))
	assert.Equal(t, http.StatusForbidden, res.Status)
}

func TestEvents_MessageReplies(t *testing.T) {
	a := &fakeAgent{}
	d := newTestDispatcher(a)

	res := d.Events(context.Background(), signed(callback("T1", map[string]any{
		"type": "message", "text": "what is up", "channel": "C1", "user": "U7", "ts": "1700000000.0001",
	})))
	assert.Equal(t, http.StatusOK, res.Status)
	require.Len(t, a.replies, 1)
	assert.Equal(t, agent.ReplyRequest{Message: "what is up", ChannelID: "C1", SlackUserID: "U7", MessageTS: "1700000000.0001"}, a.replies[0])
}

func TestEvents_BotMessageIgnored(t *testing.T) {
	a := &fakeAgent{}
	d := newTestDispatcher(a)

	res := d.Events(context.Background(), signed(callback("T1", map[string]any{
		"type": "message", "text": "echo", "channel": "C1", "bot_id": "B1", "ts": "1.0",
	})))
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Empty(t, a.replies)
}

func TestEvents_RetryIsAcknowledgedOnly(t *testing.T) {
	a := &fakeAgent{}
	d := newTestDispatcher(a)

	req := signed(callback("T1", map[string]any{"type": "message", "text": "hi", "channel": "C1", "ts": "1.0"}))
	req.RetryNum = "1"
	res := d.Events(context.Background(), req)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Empty(t, a.replies)
}

func TestEvents_MentionNeedsMoreContent(t *testing.T) {
	a := &fakeAgent{}
	d := newTestDispatcher(a)

	res := d.Events(context.Background(), signed(callback("T1", map[string]any{
		"type": "app_mention", "text": "<@U1> please summarize: short", "channel": "C1", "user": "U7", "ts": "1.0",
	})))
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Empty(t, a.summaries)
	require.Len(t, a.notices, 1)
	assert.Contains(t, a.notices[0].text, "Please provide more content to summarize")
}

func TestEvents_MentionSummarizes(t *testing.T) {
	link := "https://docs.google.com/document/d/DOC1/edit"
	a := &fakeAgent{summaryRes: agent.Result{Success: true, Summary: "the gist", GoogleDriveFileURL: &link}}
	d := newTestDispatcher(a)

	content := strings.Repeat("meeting notes ", 5)
	res := d.Events(context.Background(), signed(callback("T1", map[string]any{
		"type": "app_mention", "text": "<@U1> summarize: " + content, "channel": "C1", "user": "U7", "ts": "1.0",
	})))
	assert.Equal(t, http.StatusOK, res.Status)
	require.Len(t, a.summaries, 1)
	assert.Equal(t, "Slack Summary - C1", a.summaries[0].Title)
	assert.Equal(t, strings.TrimSpace(content), a.summaries[0].Content)
	assert.True(t, a.summaries[0].SaveToDocs)

	require.Len(t, a.notices, 1)
	assert.Equal(t, "📝 *Summary Generated*\n\nthe gist\n\n📁 *Saved to Google Drive:* "+link, a.notices[0].text)
}

func TestEvents_InternalErrorIs500(t *testing.T) {
	a := &fakeAgent{err: errors.New("db down")}
	d := newTestDispatcher(a)

	res := d.Events(context.Background(), signed(callback("T1", map[string]any{
		"type": "message", "text": "hi", "channel": "C1", "ts": "1.0",
	})))
	assert.Equal(t, http.StatusInternalServerError, res.Status)
}

func slashBody(team, command, text string) string {
	return url.Values{
		"team_id":    {team},
		"channel_id": {"C1"},
		"user_id":    {"U7"},
		"command":    {command},
		"text":       {text},
	}.Encode()
}

func TestSlashCommand(t *testing.T) {
	a := &fakeAgent{summaryRes: agent.Result{Success: true, Summary: "gist"}}
	d := newTestDispatcher(a)
	ctx := context.Background()

	res := d.SlashCommand(ctx, signed(slashBody("T1", "/other", "x")))
	assert.Equal(t, map[string]string{"response_type": "ephemeral", "text": "Command /other received!"}, res.Body)

	res = d.SlashCommand(ctx, signed(slashBody("T1", "/ai-summarize", "too short")))
	body := res.Body.(map[string]string)
	assert.Equal(t, "ephemeral", body["response_type"])
	assert.Empty(t, a.summaries)

	res = d.SlashCommand(ctx, signed(slashBody("T1", "/ai-summarize", "too short"+strings.Repeat(" ", 60))))
	body = res.Body.(map[string]string)
	assert.Equal(t, "ephemeral", body["response_type"], "padding does not count toward the minimum")
	assert.Empty(t, a.summaries)

	res = d.SlashCommand(ctx, signed(slashBody("T1", "/ai-summarize", strings.Repeat("long text ", 6))))
	body = res.Body.(map[string]string)
	assert.Equal(t, "in_channel", body["response_type"])
	assert.Equal(t, "📝 *Summary Generated*\n\ngist", body["text"])
	require.Len(t, a.summaries, 1)
	assert.Equal(t, strings.TrimSpace(strings.Repeat("long text ", 6)), a.summaries[0].Content)

	req := signed(slashBody("T1", "/ai-summarize", "x"))
	req.Signature = "v0=00"
	res = d.SlashCommand(ctx, req)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
}

func TestInteractive(t *testing.T) {
	d := newTestDispatcher(&fakeAgent{})

	payload := `{"type":"block_actions","team":{"id":"T1"},"user":{"id":"U7"},"actions":[{"action_id":"approve","block_id":"b","type":"button","value":"1"}]}`
	body := url.Values{"payload": {payload}}.Encode()

	res := d.Interactive(context.Background(), signed(body))
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, map[string]any{"ok": true}, res.Body)

	res = d.Interactive(context.Background(), signed("payload=not-json"))
	assert.Equal(t, http.StatusBadRequest, res.Status)
}
