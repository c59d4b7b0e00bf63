package httpapp

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alphabot-ai/topicboard/internal/config"
	"github.com/alphabot-ai/topicboard/internal/model"
)

type testClient struct {
	server *httptest.Server
	client *http.Client
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()
	return newTestClientWithConfig(t, testConfig())
}

func newTestClientWithConfig(t *testing.T, cfg config.Config) *testClient {
	t.Helper()
	server, _ := newTestServer(t, cfg, allowAllLimiter{})
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)
	return &testClient{server: ts, client: ts.Client()}
}

func (c *testClient) do(t *testing.T, method, path string, body any, token string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: config.CookieName, Value: token})
	}
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, status int) {
	t.Helper()
	if resp.StatusCode != status {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected %d, got %d: %s", status, resp.StatusCode, string(b))
	}
}

func tokenCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == config.CookieName {
			return c
		}
	}
	return nil
}

func (c *testClient) register(t *testing.T, name string) string {
	t.Helper()
	resp := c.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"name": name, "email": name + "@example.com", "password": "pw-" + name,
	}, "")
	expectStatus(t, resp, http.StatusOK)
	cookie := tokenCookie(resp)
	resp.Body.Close()
	if cookie == nil {
		t.Fatalf("register %s: no token cookie", name)
	}
	return cookie.Value
}

func (c *testClient) createPost(t *testing.T, token, title string, expires time.Time, topics ...string) model.Post {
	t.Helper()
	resp := c.do(t, http.MethodPost, "/api/posts", map[string]any{
		"title": title, "topic": topics, "body": title + " body", "expirationTime": expires,
	}, token)
	expectStatus(t, resp, http.StatusOK)
	var out struct {
		Post model.Post `json:"post"`
	}
	decode(t, resp, &out)
	return out.Post
}

func (c *testClient) act(t *testing.T, token, id, action string) *http.Response {
	t.Helper()
	return c.do(t, http.MethodPut, "/api/posts/"+id+"/action", map[string]string{"action": action}, token)
}

func TestRegisterResponseAndCookie(t *testing.T) {
	c := newTestClient(t)

	resp := c.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "alice", "email": "alice@example.com", "password": "secret",
	}, "")
	expectStatus(t, resp, http.StatusOK)

	cookie := tokenCookie(resp)
	if cookie == nil {
		t.Fatalf("expected token cookie")
	}
	if !cookie.HttpOnly || cookie.Secure || cookie.MaxAge != 3600 || cookie.Path != "/" {
		t.Fatalf("unexpected cookie attributes: %+v", cookie)
	}

	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if bytes.Contains(raw, []byte("secret")) || bytes.Contains(raw, []byte("$2a$")) {
		t.Fatalf("response leaks password material: %s", raw)
	}
	var out struct {
		Message string         `json:"message"`
		User    map[string]any `json:"user"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Message != "User registered successfully" || out.User["email"] != "alice@example.com" || out.User["id"] == "" {
		t.Fatalf("unexpected body: %s", raw)
	}

	resp = c.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "alice2", "email": "alice@example.com", "password": "other",
	}, "")
	expectStatus(t, resp, http.StatusBadRequest)
	var errBody map[string]string
	decode(t, resp, &errBody)
	if errBody["error"] != "User already exists" {
		t.Fatalf("unexpected error body: %v", errBody)
	}
}

func TestSecureCookieInProduction(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	c := newTestClientWithConfig(t, cfg)

	resp := c.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "prod", "email": "prod@example.com", "password": "pw",
	}, "")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	if cookie := tokenCookie(resp); cookie == nil || !cookie.Secure {
		t.Fatalf("expected secure cookie, got %+v", cookie)
	}
}

func TestLoginFailuresIdentical(t *testing.T) {
	c := newTestClient(t)
	c.register(t, "bob")

	wrongPassword := c.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "bob@example.com", "password": "nope"}, "")
	unknownEmail := c.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ghost@example.com", "password": "pw-bob"}, "")

	if wrongPassword.StatusCode != http.StatusBadRequest || unknownEmail.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400s, got %d and %d", wrongPassword.StatusCode, unknownEmail.StatusCode)
	}
	a, _ := io.ReadAll(wrongPassword.Body)
	b, _ := io.ReadAll(unknownEmail.Body)
	wrongPassword.Body.Close()
	unknownEmail.Body.Close()
	if !bytes.Equal(a, b) {
		t.Fatalf("responses differ: %s vs %s", a, b)
	}

	resp := c.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "bob@example.com", "password": "pw-bob"}, "")
	expectStatus(t, resp, http.StatusOK)
	cookie := tokenCookie(resp)
	var out struct {
		Message string `json:"message"`
		Token   string `json:"token"`
	}
	decode(t, resp, &out)
	if out.Token == "" || cookie == nil || cookie.Value != out.Token {
		t.Fatalf("expected matching token in body and cookie")
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	c := newTestClient(t)
	resp := c.do(t, http.MethodPost, "/api/auth/logout", nil, "")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	cookie := tokenCookie(resp)
	if cookie == nil || cookie.MaxAge >= 0 || cookie.Value != "" {
		t.Fatalf("expected expiring cookie, got %+v", cookie)
	}
}

func TestPostInteractionFlow(t *testing.T) {
	c := newTestClient(t)
	owner := c.register(t, "owner")
	fan := c.register(t, "fan")

	post := c.createPost(t, owner, "Hello", time.Now().Add(time.Hour), "tech")
	if post.Owner != "owner" || post.Status != model.StatusLive {
		t.Fatalf("unexpected post: %+v", post)
	}

	resp := c.act(t, owner, post.ID, "like")
	expectStatus(t, resp, http.StatusBadRequest)
	var errBody map[string]string
	decode(t, resp, &errBody)
	if errBody["error"] != "Post owner cannot like their own post." {
		t.Fatalf("unexpected error: %v", errBody)
	}

	resp = c.act(t, fan, post.ID, "like")
	expectStatus(t, resp, http.StatusOK)
	var updated model.Post
	decode(t, resp, &updated)
	if updated.Likes != 1 {
		t.Fatalf("expected 1 like, got %d", updated.Likes)
	}

	resp = c.act(t, owner, post.ID, "dislike")
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &updated)
	if updated.Dislikes != 1 {
		t.Fatalf("expected owner dislike to count, got %d", updated.Dislikes)
	}

	resp = c.do(t, http.MethodPut, "/api/posts/"+post.ID+"/action", map[string]string{"action": "comment", "comment": "nice"}, fan)
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &updated)
	if len(updated.Comments) != 1 || updated.Comments[0].User != "fan" || updated.Likes != 1 || updated.Dislikes != 1 {
		t.Fatalf("unexpected post after comment: %+v", updated)
	}

	resp = c.act(t, fan, post.ID, "share")
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &updated)
	if updated.Likes != 1 || updated.Dislikes != 1 || len(updated.Comments) != 1 {
		t.Fatalf("unknown action changed the post: %+v", updated)
	}

	resp = c.act(t, fan, "does-not-exist", "like")
	expectStatus(t, resp, http.StatusNotFound)
	decode(t, resp, &errBody)
	if errBody["error"] != "Post not found" {
		t.Fatalf("unexpected error: %v", errBody)
	}
}

func TestExpiredPostOverHTTP(t *testing.T) {
	c := newTestClient(t)
	owner := c.register(t, "owner")
	fan := c.register(t, "fan")

	post := c.createPost(t, owner, "Past", time.Now().Add(-time.Minute), "tech")
	for _, action := range []string{"like", "dislike", "comment"} {
		resp := c.act(t, fan, post.ID, action)
		expectStatus(t, resp, http.StatusBadRequest)
		var errBody map[string]string
		decode(t, resp, &errBody)
		if errBody["error"] != "Cannot interact with this post as it has expired." {
			t.Fatalf("%s: unexpected error %v", action, errBody)
		}
	}
}

func TestHighestInterestOverHTTP(t *testing.T) {
	c := newTestClient(t)
	owner := c.register(t, "owner")
	voters := []string{c.register(t, "v1"), c.register(t, "v2"), c.register(t, "v3")}

	resp := c.do(t, http.MethodGet, "/api/posts/tech/active-highest-interest", nil, "")
	expectStatus(t, resp, http.StatusNotFound)
	var errBody map[string]string
	decode(t, resp, &errBody)
	if errBody["error"] != "No active posts found for this topic." {
		t.Fatalf("unexpected error: %v", errBody)
	}

	expires := time.Now().Add(time.Hour)
	quiet := c.createPost(t, owner, "Quiet", expires, "tech")
	loud := c.createPost(t, owner, "Loud", expires, "tech", "news")
	for _, v := range voters {
		expectStatus(t, c.act(t, v, loud.ID, "like"), http.StatusOK)
	}
	expectStatus(t, c.act(t, voters[0], quiet.ID, "like"), http.StatusOK)

	resp = c.do(t, http.MethodGet, "/api/posts/tech/active-highest-interest", nil, "")
	expectStatus(t, resp, http.StatusOK)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	var out struct {
		Post map[string]any `json:"post"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Post["title"] != "Loud" || out.Post["likes"] != float64(3) {
		t.Fatalf("unexpected summary: %s", raw)
	}
	for _, hidden := range []string{"owner", "comments", "body"} {
		if _, ok := out.Post[hidden]; ok {
			t.Fatalf("summary exposes %q: %s", hidden, raw)
		}
	}

	resp = c.do(t, http.MethodGet, "/api/posts/news", nil, "")
	expectStatus(t, resp, http.StatusOK)
	var list []model.Post
	decode(t, resp, &list)
	if len(list) != 1 || list[0].Title != "Loud" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestCreatePostValidation(t *testing.T) {
	c := newTestClient(t)
	token := c.register(t, "writer")

	resp := c.do(t, http.MethodPost, "/api/posts", map[string]any{"title": "No topic", "body": "b", "expirationTime": time.Now().Add(time.Hour)}, token)
	expectStatus(t, resp, http.StatusBadRequest)
	var errBody map[string]string
	decode(t, resp, &errBody)
	if !strings.Contains(errBody["error"], "topic") {
		t.Fatalf("unexpected error: %v", errBody)
	}

	resp = c.do(t, http.MethodPost, "/api/posts", map[string]any{"title": "t", "topic": []string{"x"}, "body": "b"}, token)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
	resp = c.do(t, http.MethodPost, "/api/posts", map[string]any{
		"title": "t", "topic": []string{"x"}, "body": "b", "expirationTime": time.Now().Add(time.Hour), "owner": "someone-else",
	}, token)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestCreatePostRejectsClientTimestampAndStatus(t *testing.T) {
	c := newTestClient(t)
	alice := c.register(t, "alice")
	bob := c.register(t, "bob")
	expires := time.Now().Add(time.Hour)

	first := c.createPost(t, alice, "honest", expires, "go")

	resp := c.do(t, http.MethodPost, "/api/posts", map[string]any{
		"title": "backdated", "topic": []string{"go"}, "body": "b", "expirationTime": expires,
		"timestamp": "1970-01-01T00:00:00Z", "status": "Dead",
	}, bob)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	second := c.createPost(t, bob, "later", expires, "go")
	if second.Status != model.StatusLive || second.Timestamp.Before(first.Timestamp) {
		t.Fatalf("server must set status and timestamp, got %+v", second)
	}

	expectStatus(t, c.act(t, bob, first.ID, "like"), http.StatusOK)
	expectStatus(t, c.act(t, alice, second.ID, "like"), http.StatusOK)

	resp = c.do(t, http.MethodGet, "/api/posts/go", nil, "")
	expectStatus(t, resp, http.StatusOK)
	var list []model.Post
	decode(t, resp, &list)
	if len(list) != 2 {
		t.Fatalf("expected the rejected post not to be stored, got %+v", list)
	}

	resp = c.do(t, http.MethodGet, "/api/posts/go/active-highest-interest", nil, "")
	expectStatus(t, resp, http.StatusOK)
	var out interestResponse
	decode(t, resp, &out)
	if out.Post.Title != "honest" {
		t.Fatalf("expected the first created post to win the tie, got %+v", out.Post)
	}
}
