package httpapp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alphabot-ai/topicboard/internal/auth"
	"github.com/alphabot-ai/topicboard/internal/config"
	"github.com/alphabot-ai/topicboard/internal/events"
	"github.com/alphabot-ai/topicboard/internal/logging"
	"github.com/alphabot-ai/topicboard/internal/model"
	"github.com/alphabot-ai/topicboard/internal/posts"
	"github.com/alphabot-ai/topicboard/internal/rate"
	"github.com/alphabot-ai/topicboard/internal/store/sqlite"
)

type allowAllLimiter struct{}

func (a allowAllLimiter) Allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	return true, 0
}

func testConfig() config.Config {
	return config.Config{
		Env: "development",
		Token: config.TokenConfig{
			Alg:    "HS256",
			Secret: "test-secret",
			TTL:    time.Hour,
		},
		RateLimits: config.RateLimits{AuthPerMinute: 1000, PostPerMinute: 1000, ActionPerMinute: 1000},
	}
}

func newTestServer(t *testing.T, cfg config.Config, limiter rate.Limiter) (*Server, *auth.TokenService) {
	t.Helper()
	dsnName := strings.NewReplacer("/", "_").Replace(t.Name())
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", dsnName))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	tokens, err := auth.NewTokenService(cfg.Token)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	logger := logging.Discard()
	authSvc := auth.NewService(st, tokens, logger)
	engine := posts.NewEngine(st, events.Nop{}, logger)
	return NewServer(st, authSvc, engine, limiter, cfg, logger), tokens
}

func serve(s *Server, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, req)
	return resp
}

func errorMessage(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("json parse %q: %v", resp.Body.String(), err)
	}
	return payload["error"]
}

func TestAuthGate(t *testing.T) {
	server, tokens := newTestServer(t, testConfig(), allowAllLimiter{})
	body := `{"title":"t","topic":["x"],"body":"b","expirationTime":"2999-01-01T00:00:00Z"}`

	resp := serve(server, http.MethodPost, "/api/posts", body)
	if resp.Code != http.StatusForbidden || errorMessage(t, resp) != "No token, authorization denied" {
		t.Fatalf("missing cookie: got %d %s", resp.Code, resp.Body.String())
	}

	resp = serve(server, http.MethodPost, "/api/posts", body, &http.Cookie{Name: "token", Value: "garbage"})
	if resp.Code != http.StatusForbidden || errorMessage(t, resp) != "Access Denied" {
		t.Fatalf("bad token: got %d %s", resp.Code, resp.Body.String())
	}

	nameless, _, err := tokens.Issue(model.Identity{ID: "u1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	resp = serve(server, http.MethodPost, "/api/posts", body, &http.Cookie{Name: "token", Value: nameless})
	if resp.Code != http.StatusBadRequest || errorMessage(t, resp) != "Token is not valid" {
		t.Fatalf("claims without name: got %d %s", resp.Code, resp.Body.String())
	}

	valid, _, err := tokens.Issue(model.Identity{ID: "u1", Name: "alice"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	resp = serve(server, http.MethodPost, "/api/posts", body, &http.Cookie{Name: "token", Value: valid})
	if resp.Code != http.StatusOK {
		t.Fatalf("valid token: got %d %s", resp.Code, resp.Body.String())
	}
	var created struct {
		Message string     `json:"message"`
		Post    model.Post `json:"post"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("json parse: %v", err)
	}
	if created.Message != "Post created successfully" || created.Post.Owner != "alice" {
		t.Fatalf("unexpected create response: %+v", created)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	server, _ := newTestServer(t, testConfig(), allowAllLimiter{})

	resp := serve(server, http.MethodGet, "/api/nope", "")
	if resp.Code != http.StatusNotFound || errorMessage(t, resp) != "not found" {
		t.Fatalf("expected 404 json, got %d %s", resp.Code, resp.Body.String())
	}

	resp = serve(server, http.MethodDelete, "/api/posts/tech", "")
	if resp.Code != http.StatusMethodNotAllowed || errorMessage(t, resp) != "method not allowed" {
		t.Fatalf("expected 405 json, got %d %s", resp.Code, resp.Body.String())
	}
}

func TestListPostsEmptyTopic(t *testing.T) {
	server, _ := newTestServer(t, testConfig(), allowAllLimiter{})

	resp := serve(server, http.MethodGet, "/api/posts/nothing-here", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if strings.TrimSpace(resp.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %s", resp.Body.String())
	}
}

func TestHealthAndDocs(t *testing.T) {
	server, _ := newTestServer(t, testConfig(), allowAllLimiter{})

	resp := serve(server, http.MethodGet, "/healthz", "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"ok"`) {
		t.Fatalf("health: got %d %s", resp.Code, resp.Body.String())
	}

	resp = serve(server, http.MethodGet, "/api/openapi.json", "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "/api/posts/{id}/action") {
		t.Fatalf("openapi: got %d", resp.Code)
	}

	resp = serve(server, http.MethodGet, "/metrics", "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "topicboard_http_requests_total") {
		t.Fatalf("metrics: got %d", resp.Code)
	}
}

func TestRateLimitAuth(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimits.AuthPerMinute = 2
	server, _ := newTestServer(t, cfg, rate.NewMemory())

	body := `{"email":"nobody@example.com","password":"pw"}`
	for i := 0; i < 2; i++ {
		resp := serve(server, http.MethodPost, "/api/auth/login", body)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d: expected 400, got %d", i, resp.Code)
		}
	}
	resp := serve(server, http.MethodPost, "/api/auth/login", body)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestMalformedBody(t *testing.T) {
	server, _ := newTestServer(t, testConfig(), allowAllLimiter{})

	resp := serve(server, http.MethodPost, "/api/auth/register", `{"name":"a","email":"a@b.c","password":"p","admin":true}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: expected 400, got %d", resp.Code)
	}
	resp = serve(server, http.MethodPost, "/api/auth/register", `{`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("truncated json: expected 400, got %d", resp.Code)
	}
}
