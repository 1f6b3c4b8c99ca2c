package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/webchat/config"
	"github.com/mohammad-safakhou/webchat/internal/chat"
	"github.com/mohammad-safakhou/webchat/models"
	"github.com/mohammad-safakhou/webchat/repository"
	"github.com/redis/go-redis/v9"
)

type fakeChat struct {
	mu     sync.Mutex
	events []models.Event
	got    []chat.TurnRequest
}

func (f *fakeChat) Stream(_ context.Context, req chat.TurnRequest) <-chan models.Event {
	f.mu.Lock()
	f.got = append(f.got, req)
	f.mu.Unlock()
	ch := make(chan models.Event, len(f.events))
	for _, e := range f.events {
		ch <- e
	}
	close(ch)
	return ch
}

func testConfig() *config.Config {
	return &config.Config{
		General:      config.GeneralConfig{Env: "dev"},
		Server:       config.ServerConfig{Address: ":0"},
		Session:      config.SessionConfig{CookieName: "session", TTL: 24 * time.Hour},
		RateLimit:    config.RateLimitConfig{Window: time.Minute, MaxRequests: 15, Secret: "test-secret", ConversationsPerDay: 50},
		Conversation: config.ConversationConfig{TTL: 7 * 24 * time.Hour, SharedTTL: 30 * 24 * time.Hour},
		Scraper:      config.ScraperConfig{CacheTTL: 7 * 24 * time.Hour, MaxCacheBytes: 1024000},
	}
}

type testEnv struct {
	server *Server
	mr     *miniredis.Miniredis
	chat   *fakeChat
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	stores := repository.NewStores(client, cfg, nil, nil)
	fc := &fakeChat{}
	srv := New(cfg, Deps{
		Sessions:       stores.Sessions,
		Conversations:  stores.Conversations,
		Limiter:        stores.Limiter,
		Chat:           fc,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		Health:         func(ctx context.Context) error { return client.Ping(ctx).Err() },
	}, nil)
	return &testEnv{server: srv, mr: mr, chat: fc}
}

func (e *testEnv) do(t *testing.T, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

// newSession bootstraps a session and returns its cookie.
func (e *testEnv) newSession(t *testing.T) *http.Cookie {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/api/auth/session", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("session bootstrap: status %d", rec.Code)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	t.Fatalf("no session cookie set")
	return nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestSessionBootstrap(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/auth/session", "", nil)
	var first SessionResponse
	decode(t, rec, &first)
	if first.Status != "session created" {
		t.Fatalf("unexpected status %q", first.Status)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != "session" || len(c.Value) != 64 || !c.HttpOnly || c.SameSite != http.SameSiteStrictMode || c.MaxAge != 86400 {
		t.Fatalf("unexpected cookie %+v", c)
	}

	rec = env.do(t, http.MethodGet, "/api/auth/session", "", c)
	var second SessionResponse
	decode(t, rec, &second)
	if second.Status != "existing session" {
		t.Fatalf("unexpected status %q", second.Status)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("existing sessions must not be reissued")
	}
}

func TestForgedSessionCookieIsReplaced(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	forged := &http.Cookie{Name: "session", Value: "../../etc/passwd"}

	rec := env.do(t, http.MethodGet, "/api/auth/session", "", forged)
	var resp SessionResponse
	decode(t, rec, &resp)
	if resp.Status != "session created" {
		t.Fatalf("forged cookie must not be trusted, got %q", resp.Status)
	}
}

func TestSecurityHeadersAndHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health %d %q", rec.Code, rec.Body.String())
	}
	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
		"X-Dns-Prefetch-Control": "off",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Fatalf("header %s = %q, want %q", k, got, v)
		}
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("missing request id")
	}
	if rec.Header().Get("X-RateLimit-Limit") != "" {
		t.Fatalf("health checks must not be rate limited")
	}

	env.mr.Close()
	if rec := env.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with redis down, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "# metrics" {
		t.Fatalf("unexpected metrics response %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequestRateLimit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *config.Config) { c.RateLimit.MaxRequests = 2 })

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodGet, "/api/shared/none", "", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("request %d: expected 404, got %d", i, rec.Code)
		}
	}
	rec := env.do(t, http.MethodGet, "/api/shared/none", "", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" || rec.Header().Get("X-RateLimit-Remaining") != "0" || rec.Header().Get("X-RateLimit-Limit") != "2" {
		t.Fatalf("unexpected rate limit headers %v", rec.Header())
	}
	var body HTTPError
	decode(t, rec, &body)
	if body.Error == "" {
		t.Fatalf("expected error payload")
	}
}

func TestChatRequiresSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/chat", `{"message":"hi"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body HTTPError
	decode(t, rec, &body)
	if !strings.Contains(body.Error, "no session") {
		t.Fatalf("unexpected error %q", body.Error)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	cookie := env.newSession(t)
	if rec := env.do(t, http.MethodPost, "/api/chat", `{"message":"   "}`, cookie); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChatStreamsEvents(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.chat.events = []models.Event{
		models.StatusEvent(models.StatusScraping),
		models.CompletionEvent("answer", "conv-9", nil),
	}
	cookie := env.newSession(t)

	body := `{"message":"Summarize https://example.com","messages":[{"role":"user","content":"hi"},{"role":"system","content":"x"},{"role":"ai","content":"hello"}]}`
	rec := env.do(t, http.MethodPost, "/api/chat", body, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	chunks := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n\n"), "\n\n")
	if len(chunks) != 2 {
		t.Fatalf("expected 2 events, got %q", rec.Body.String())
	}
	var last struct {
		Type           string `json:"type"`
		Content        string `json:"content"`
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal([]byte(strings.TrimPrefix(chunks[1], "data: ")), &last); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if last.Type != "completion" || last.Content != "answer" || last.ConversationID != "conv-9" {
		t.Fatalf("unexpected completion %+v", last)
	}

	got := env.chat.got[0]
	if got.SessionID != cookie.Value || got.Message != "Summarize https://example.com" || got.ConversationID != "" {
		t.Fatalf("unexpected turn request %+v", got)
	}
	if len(got.History) != 2 || got.History[1].Role != models.RoleAI {
		t.Fatalf("history must keep only user and ai roles, got %+v", got.History)
	}
}

func TestChatConversationQuota(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *config.Config) { c.RateLimit.ConversationsPerDay = 1 })
	env.chat.events = []models.Event{models.CompletionEvent("ok", "c1", nil)}
	cookie := env.newSession(t)

	if rec := env.do(t, http.MethodPost, "/api/chat", `{"message":"first"}`, cookie); rec.Code != http.StatusOK {
		t.Fatalf("first conversation: %d", rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/chat", `{"message":"second"}`, cookie)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on quota, got %d", rec.Code)
	}
	if len(env.chat.got) != 1 {
		t.Fatalf("rejected turns must not stream")
	}
}

func TestChatUnknownConversationIDStartsNewConversation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *config.Config) { c.RateLimit.ConversationsPerDay = 2 })
	env.chat.events = []models.Event{models.CompletionEvent("ok", "c1", nil)}
	cookie := env.newSession(t)

	rec := env.do(t, http.MethodPost, "/api/chat", `{"message":"hi","conversationId":"made-up-1"}`, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := env.chat.got[0].ConversationID; got != "" {
		t.Fatalf("client-chosen id must not reach the turn, got %q", got)
	}

	// an owned conversation continues without spending quota
	rec = env.do(t, http.MethodPost, "/api/continue", `{"messages":[{"role":"user","content":"earlier"}]}`, cookie)
	var cont ContinueResponse
	decode(t, rec, &cont)
	if rec := env.do(t, http.MethodPost, "/api/chat", `{"message":"second"}`, cookie); rec.Code != http.StatusOK {
		t.Fatalf("second new conversation: %d", rec.Code)
	}
	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/api/chat", `{"message":"more","conversationId":"`+cont.ConversationID+`"}`, cookie)
		if rec.Code != http.StatusOK {
			t.Fatalf("continuing an owned conversation: %d", rec.Code)
		}
	}
	streamed := len(env.chat.got)

	// quota is spent; invented ids are counted like any new conversation
	for i := 0; i < 5; i++ {
		body := fmt.Sprintf(`{"message":"again","conversationId":"made-up-%d"}`, i+2)
		if rec := env.do(t, http.MethodPost, "/api/chat", body, cookie); rec.Code != http.StatusTooManyRequests {
			t.Fatalf("invented id %d: expected 429, got %d", i+2, rec.Code)
		}
	}
	if len(env.chat.got) != streamed {
		t.Fatalf("rejected turns must not stream, got %d turns", len(env.chat.got))
	}
}

func TestChatForeignConversationForbidden(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	owner := env.newSession(t)
	intruder := env.newSession(t)

	rec := env.do(t, http.MethodPost, "/api/continue", `{"messages":[{"role":"user","content":"secret"}]}`, owner)
	var cont ContinueResponse
	decode(t, rec, &cont)

	rec = env.do(t, http.MethodPost, "/api/chat", `{"message":"hi","conversationId":"`+cont.ConversationID+`"}`, intruder)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestConversationLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	// continue creates the session when it is missing
	rec := env.do(t, http.MethodPost, "/api/continue", `{"messages":[{"role":"user","content":"What is Go?"},{"role":"ai","content":"A language."}]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("continue: %d %s", rec.Code, rec.Body.String())
	}
	var cont ContinueResponse
	decode(t, rec, &cont)
	if !cont.Success || cont.ConversationID == "" {
		t.Fatalf("unexpected continue response %+v", cont)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("continue must set the session cookie")
	}
	owner := cookies[0]

	rec = env.do(t, http.MethodGet, "/api/conversation?id="+cont.ConversationID, "", owner)
	var conv ConversationResponse
	decode(t, rec, &conv)
	if len(conv.Conversation) != 2 || conv.Conversation[0].Content != "What is Go?" {
		t.Fatalf("unexpected conversation %+v", conv)
	}

	rec = env.do(t, http.MethodGet, "/api/conversation", "", owner)
	var list ConversationListResponse
	decode(t, rec, &list)
	if len(list.Conversations) != 1 || list.Conversations[0].ID != cont.ConversationID || list.Conversations[0].Title != "What is Go?" {
		t.Fatalf("unexpected list %+v", list)
	}

	other := env.newSession(t)
	if rec := env.do(t, http.MethodGet, "/api/conversation?id="+cont.ConversationID, "", other); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another session, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/conversation?id=missing", "", owner); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/conversation", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", rec.Code)
	}

	if rec := env.do(t, http.MethodPost, "/api/share", `{"conversationId":"`+cont.ConversationID+`"}`, other); rec.Code != http.StatusNotFound {
		t.Fatalf("non-owners must not share, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/share", `{"conversationId":"`+cont.ConversationID+`"}`, owner)
	var shared ShareResponse
	decode(t, rec, &shared)
	if shared.SharedID == "" {
		t.Fatalf("expected shared id, got %s", rec.Body.String())
	}

	// the public view needs no session
	rec = env.do(t, http.MethodGet, "/api/shared/"+shared.SharedID, "", nil)
	var view models.SharedView
	decode(t, rec, &view)
	if len(view.Messages) != 2 || view.Metadata.SharedBy == "" || view.Metadata.SharedAt.IsZero() {
		t.Fatalf("unexpected shared view %+v", view)
	}
	if strings.Contains(rec.Body.String(), owner.Value) {
		t.Fatalf("shared view leaks the owner session id")
	}
}

func TestContinueRejectsBadBody(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	if rec := env.do(t, http.MethodPost, "/api/continue", `{"messages":"nope"}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/continue", `{}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without messages, got %d", rec.Code)
	}
}

func TestStoreErrorMapping(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   error
		want int
	}{
		{in: models.ErrInvalidSession, want: http.StatusUnauthorized},
		{in: models.ErrForbidden, want: http.StatusForbidden},
		{in: models.ErrNotFound, want: http.StatusNotFound},
		{in: errors.New("connection reset"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		var he *echo.HTTPError
		if !errors.As(storeError(tc.in), &he) || he.Code != tc.want {
			t.Fatalf("storeError(%v) = %v, want status %d", tc.in, he, tc.want)
		}
	}
}
