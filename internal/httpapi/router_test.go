package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/agent-portal/internal/adapters"
	"github.com/suPer8Hu/agent-portal/internal/config"
	"github.com/suPer8Hu/agent-portal/internal/db"
	"github.com/suPer8Hu/agent-portal/internal/dispatch"
	"github.com/suPer8Hu/agent-portal/internal/httpapi/handlers"
	"github.com/suPer8Hu/agent-portal/internal/models"
	"github.com/suPer8Hu/agent-portal/internal/slackapi"
	"github.com/suPer8Hu/agent-portal/internal/store/redisstore"
	"github.com/suPer8Hu/agent-portal/internal/testutil"
	"github.com/suPer8Hu/agent-portal/internal/vault"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

func init() { gin.SetMode(gin.TestMode) }

const signingSecret = "slack-signing-secret"

type env struct {
	t      *testing.T
	router *gin.Engine
	h      *handlers.Handler
	db     *gorm.DB
	azure  *httptest.Server
	slack  *fakeSlack
}

type fakeSlack struct {
	mu    sync.Mutex
	posts []url.Values
}

func (f *fakeSlack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/chat.postMessage"):
		f.mu.Lock()
		f.posts = append(f.posts, r.PostForm)
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"ok":true,"channel":"C1","ts":"1700000000.000200"}`)
	case strings.HasSuffix(r.URL.Path, "/auth.test"):
		_, _ = io.WriteString(w, `{"ok":true,"url":"https://acme.slack.com/","team":"Acme","user":"bot","team_id":"T1","user_id":"U1","bot_id":"B1"}`)
	default:
		_, _ = io.WriteString(w, `{"ok":false,"error":"unknown_method"}`)
	}
}

func (f *fakeSlack) sent() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.posts...)
}

func azureServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/gpt/chat/completions" || r.Header.Get("api-key") != "azure-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"code":"401","message":"Access denied"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model":"gpt-4","choices":[{"message":{"role":"assistant","content":"hello there"}}],"usage":{"total_tokens":42}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gdb := testutil.OpenDB(t)
	require.NoError(t, db.Migrate(gdb))

	mr := miniredis.RunT(t)
	store := redisstore.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = store.Close() })

	fs := &fakeSlack{}
	slackSrv := httptest.NewServer(fs)
	t.Cleanup(slackSrv.Close)

	cfg := config.Config{
		AppName:           "test",
		JWTSecret:         "test-jwt-secret",
		AccessTokenTTL:    time.Minute,
		RefreshTokenTTL:   time.Hour,
		EncryptionKey:     "test-vault-key",
		AllowedOrigins:    []string{"http://localhost:3000"},
		UnitPrice:         0.001,
		VendorTimeout:     5 * time.Second,
		SummaryMinLength:  50,
		AzureAPIVersion:   "2023-05-15",
		SlackWorkspaces:   map[string]uint64{"T1": 1},
		GoogleRedirectURI: "http://localhost:8000/api/oauth/google/callback",
	}
	h, err := handlers.NewHandler(gdb, cfg, store, adapters.Builder{
		SlackOptions: []slackapi.Option{slackapi.WithAPIURL(slackSrv.URL + "/api/")},
	})
	require.NoError(t, err)

	return &env{t: t, router: NewRouter(h), h: h, db: gdb, azure: azureServer(t), slack: fs}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *env) call(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	e.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out envelope
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

type tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// register signs a user up and logs them in.
func (e *env) register(name string) tokens {
	e.t.Helper()
	w, _ := e.call(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": name + "@example.com", "username": name, "password": "correct-horse",
	})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())

	w, res := e.call(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": name, "password": "correct-horse",
	})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	return decode[tokens](e.t, res.Data)
}

func (e *env) putAzure(token string) {
	e.t.Helper()
	w, _ := e.call(http.MethodPost, "/api/credentials", token, map[string]any{
		"service_type": "azure_openai",
		"credentials":  map[string]string{"endpoint": e.azure.URL, "api_key": "azure-key", "deployment": "gpt"},
	})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
}

func TestAuthFlow(t *testing.T) {
	e := newEnv(t)

	first := e.register("alice")
	w, res := e.call(http.MethodGet, "/api/auth/me", first.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[models.User](t, res.Data)
	assert.Equal(t, models.RoleAdmin, me.Role, "first user is admin")
	assert.NotContains(t, w.Body.String(), "correct-horse")

	second := e.register("bob")
	_, res = e.call(http.MethodGet, "/api/auth/me", second.AccessToken, nil)
	assert.Equal(t, models.RoleUser, decode[models.User](t, res.Data).Role)

	w, res = e.call(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "alice@example.com", "username": "alice2", "password": "correct-horse",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 10003, res.Code)

	w, _ = e.call(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "not-an-email", "username": "carol", "password": "correct-horse",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_FailureIsAuditedWithoutUser(t *testing.T) {
	e := newEnv(t)
	e.register("alice")

	w, _ := e.call(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var row models.AuditLog
	require.NoError(t, e.db.Where("action = ? AND status = ?", "login", models.StatusFailed).First(&row).Error)
	assert.Nil(t, row.UserID)
	assert.Equal(t, "alice", row.Details["username"])
}

func TestLogin_InactiveUser(t *testing.T) {
	e := newEnv(t)
	e.register("alice")
	require.NoError(t, e.db.Model(&models.User{}).Where("username = ?", "alice").Update("is_active", false).Error)

	w, _ := e.call(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "correct-horse"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	var user models.User
	require.NoError(t, e.db.Where("username = ?", "alice").First(&user).Error)
	var row models.AuditLog
	require.NoError(t, e.db.Where("action = ? AND status = ?", "login", models.StatusFailed).First(&row).Error)
	require.NotNil(t, row.UserID)
	assert.Equal(t, user.ID, *row.UserID)
	assert.Equal(t, "inactive", row.Details["reason"])
}

func TestRefreshAndLogout(t *testing.T) {
	e := newEnv(t)
	tok := e.register("alice")

	w, res := e.call(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": tok.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	next := decode[tokens](t, res.Data)
	assert.NotEmpty(t, next.AccessToken)

	w, res = e.call(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": tok.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "refresh tokens are single use")
	assert.Equal(t, 40103, res.Code)

	w, _ = e.call(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": next.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "access token is not a refresh token")

	w, _ = e.call(http.MethodPost, "/api/auth/logout", next.AccessToken, map[string]string{"refresh_token": next.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = e.call(http.MethodGet, "/api/auth/me", next.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = e.call(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": next.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var n int64
	require.NoError(t, e.db.Model(&models.AuditLog{}).Where("action = ?", "logout").Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestCredentialRoutes(t *testing.T) {
	e := newEnv(t)
	tok := e.register("alice").AccessToken
	e.putAzure(tok)

	w, res := e.call(http.MethodGet, "/api/credentials", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "azure-key")
	creds := decode[[]vault.Credential](t, res.Data)
	require.Len(t, creds, 1)
	assert.Equal(t, vault.ServiceAzureOpenAI, creds[0].ServiceType)
	assert.Equal(t, vault.TestPending, creds[0].TestStatus)

	w, res = e.call(http.MethodPost, "/api/credentials/azure_openai/test", tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	outcome := decode[vault.TestOutcome](t, res.Data)
	assert.Equal(t, vault.TestSuccess, outcome.Status)

	w, _ = e.call(http.MethodPost, "/api/credentials/slack/test", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, res = e.call(http.MethodPost, "/api/credentials", tok, map[string]any{
		"service_type": "dropbox", "credentials": map[string]string{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, res.Message, "slack, azure_openai, google_workspace, google_oauth")

	w, _ = e.call(http.MethodPost, "/api/credentials", tok, map[string]any{
		"service_type": "slack", "credentials": map[string]string{"signing_secret": "x"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "bot_token is required")

	w, _ = e.call(http.MethodDelete, "/api/credentials/azure_openai", tok, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = e.call(http.MethodDelete, "/api/credentials/azure_openai", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = e.call(http.MethodGet, "/api/credentials", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAgentRoutes(t *testing.T) {
	e := newEnv(t)
	tok := e.register("alice").AccessToken
	other := e.register("bob").AccessToken

	w, res := e.call(http.MethodPost, "/api/agent/message", other, map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 10010, res.Code)

	e.putAzure(tok)

	w, res = e.call(http.MethodPost, "/api/agent/message", tok, map[string]string{"message": "hi"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	reply := decode[map[string]any](t, res.Data)
	assert.Equal(t, true, reply["success"])
	assert.Equal(t, "hello there", reply["response"])
	assert.EqualValues(t, 42, reply["tokens_used"])

	w, res = e.call(http.MethodGet, "/api/agent/messages", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	msgs := decode[[]map[string]any](t, res.Data)
	require.Len(t, msgs, 1)
	assert.Equal(t, "direct", msgs[0]["slack_channel_id"])

	w, res = e.call(http.MethodPost, "/api/agent/summary?save_to_drive=false", tok, map[string]string{
		"title": "Standup", "content": "long meeting notes",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sum := decode[map[string]any](t, res.Data)
	id := uint64(sum["summary_id"].(float64))
	assert.Nil(t, sum["google_drive_file_url"])

	w, _ = e.call(http.MethodGet, "/api/agent/summaries/"+strconv.FormatUint(id, 10), tok, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = e.call(http.MethodGet, "/api/agent/summaries/"+strconv.FormatUint(id, 10), other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "summaries are private to their owner")
	w, _ = e.call(http.MethodGet, "/api/agent/summaries/abc", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var usage []models.UsageStat
	require.NoError(t, e.db.Order("id").Find(&usage).Error)
	require.Len(t, usage, 2)
	assert.InDelta(t, 0.042, usage[0].Cost, 1e-9)
}

func TestAdminRoutes(t *testing.T) {
	e := newEnv(t)
	root := e.register("root").AccessToken
	user := e.register("user").AccessToken

	w, _ := e.call(http.MethodGet, "/api/admin/dashboard", user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, res := e.call(http.MethodGet, "/api/admin/dashboard", root, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	dash := decode[map[string]any](t, res.Data)
	assert.EqualValues(t, 2, dash["total_users"])

	w, res = e.call(http.MethodGet, "/api/admin/users", root, nil)
	require.Equal(t, http.StatusOK, w.Code)
	users := decode[[]models.User](t, res.Data)
	require.Len(t, users, 2)

	path := "/api/admin/users/" + strconv.FormatUint(users[1].ID, 10)
	w, res = e.call(http.MethodPatch, path, root, map[string]any{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, decode[models.User](t, res.Data).IsActive)

	w, _ = e.call(http.MethodGet, "/api/agent/messages", user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "deactivated users are locked out")

	w, _ = e.call(http.MethodDelete, "/api/admin/users/"+strconv.FormatUint(users[0].ID, 10), root, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = e.call(http.MethodDelete, path, root, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, res = e.call(http.MethodGet, "/api/admin/logs?action=user_delete", root, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.AuditLog](t, res.Data), 1)

	w, _ = e.call(http.MethodGet, "/api/admin/usage?user_id=x", root, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, res = e.call(http.MethodGet, "/api/admin/usage/summary?days=7", root, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(res.Data), `"avg_response_time_ms":null`)
}

func (e *env) slackPost(path string, body []byte, sign bool) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if sign {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		req.Header.Set("X-Slack-Request-Timestamp", ts)
		req.Header.Set("X-Slack-Signature", dispatch.Sign(signingSecret, ts, body))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestSlackEventsRoute(t *testing.T) {
	e := newEnv(t)
	tok := e.register("alice").AccessToken
	e.putAzure(tok)
	w, _ := e.call(http.MethodPost, "/api/credentials", tok, map[string]any{
		"service_type": "slack",
		"credentials":  map[string]string{"bot_token": "xoxb-1", "signing_secret": signingSecret},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.slackPost("/api/slack/events", []byte(`{"type":"url_verification","challenge":"abc123"}`), false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"challenge":"abc123"}`, w.Body.String())

	event := []byte(`{"type":"event_callback","team_id":"T1","event":{"type":"message","channel":"C1","user":"U7","text":"what is new","ts":"1700000000.000100"}}`)
	w = e.slackPost("/api/slack/events", event, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.slackPost("/api/slack/events", event, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	posts := e.slack.sent()
	require.Len(t, posts, 1)
	assert.Equal(t, "C1", posts[0].Get("channel"))
	assert.Equal(t, "hello there", posts[0].Get("text"))
	assert.Equal(t, "1700000000.000100", posts[0].Get("thread_ts"))

	unknown := []byte(`{"type":"event_callback","team_id":"T9","event":{"type":"message","channel":"C1","text":"hi","ts":"1.0"}}`)
	w = e.slackPost("/api/slack/events", unknown, true)
	assert.Equal(t, http.StatusForbidden, w.Code)

	cmd := []byte(url.Values{"team_id": {"T1"}, "channel_id": {"C1"}, "command": {"/help"}, "text": {""}}.Encode())
	w = e.slackPost("/api/slack/slash-commands", cmd, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"response_type":"ephemeral","text":"Command /help received!"}`, w.Body.String())
}

func TestGoogleOAuthFlow(t *testing.T) {
	e := newEnv(t)
	tok := e.register("alice").AccessToken

	w, res := e.call(http.MethodGet, "/api/oauth/google/authorize", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 10030, res.Code)

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"ya29.at","refresh_token":"1//rt","token_type":"Bearer","expires_in":3600}`)
	}))
	t.Cleanup(tokenSrv.Close)
	e.h.GoogleEndpoint = &oauth2.Endpoint{AuthURL: tokenSrv.URL + "/auth", TokenURL: tokenSrv.URL + "/token"}

	w, _ = e.call(http.MethodPost, "/api/credentials", tok, map[string]any{
		"service_type": "google_oauth",
		"credentials":  map[string]string{"client_id": "id.apps.googleusercontent.com", "client_secret": "GOCSPX-s"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, res = e.call(http.MethodGet, "/api/oauth/google/authorize", tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	start := decode[map[string]string](t, res.Data)
	authURL, err := url.Parse(start["authorization_url"])
	require.NoError(t, err)
	assert.Equal(t, start["state"], authURL.Query().Get("state"))
	assert.Equal(t, "http://localhost:8000/api/oauth/google/callback", authURL.Query().Get("redirect_uri"))

	callback := "/api/oauth/google/callback?code=good&state=" + url.QueryEscape(start["state"])
	w, _ = e.call(http.MethodGet, callback, "", nil)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, "http://localhost:3000/settings?oauth=success", w.Header().Get("Location"))

	p, err := e.h.Vault.Get(context.Background(), 1, vault.ServiceGoogleWorkspace)
	require.NoError(t, err)
	ws := p.(vault.DocumentStoreCredential)
	assert.Equal(t, "ya29.at", ws.Token)
	assert.Equal(t, "1//rt", ws.RefreshToken)
	assert.Equal(t, "id.apps.googleusercontent.com", ws.ClientID)

	var n int64
	require.NoError(t, e.db.Model(&models.AuditLog{}).Where("action = ?", "google_oauth_connected").Count(&n).Error)
	assert.Equal(t, int64(1), n)

	w, _ = e.call(http.MethodGet, callback, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "state is single use")
}

func TestHealthMetricsAndFallbacks(t *testing.T) {
	e := newEnv(t)

	w, res := e.call(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, res.Code)

	w, _ = e.call(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "agent_portal_")

	w, res = e.call(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40400, res.Code)

	w, res = e.call(http.MethodDelete, "/health", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, 40500, res.Code)
}
