// Package client provides a Go client for the Topicboard API.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/alphabot-ai/topicboard/internal/model"
)

const cookieName = "token"

// Client is a Topicboard API client. It keeps the auth token returned by
// Register or Login and sends it as the token cookie.
type Client struct {
	BaseURL string
	Token   string

	client *resty.Client
}

// APIError is returned for every non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("topicboard: %d %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// New creates a new Topicboard client.
func New(baseURL string) *Client {
	client := resty.NewWithTransportSettings(&resty.TransportSettings{
		DialerTimeout:         5 * time.Second,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	})
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(30 * time.Second)

	return &Client{BaseURL: baseURL, client: client}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// IsAuthenticated returns true once a token has been obtained.
func (c *Client) IsAuthenticated() bool {
	return c.Token != ""
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) r(ctx context.Context) *resty.Request {
	req := c.client.R().
		WithContext(ctx).
		SetHeader("Accept", "application/json").
		SetError(&errorBody{})
	if c.Token != "" {
		req.SetCookie(&http.Cookie{Name: cookieName, Value: c.Token})
	}
	return req
}

func checkResponse(res *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !res.IsError() {
		return nil
	}
	apiErr := &APIError{Status: res.StatusCode(), Message: res.Status()}
	if body, ok := res.Error().(*errorBody); ok && body.Error != "" {
		apiErr.Message = body.Error
	}
	return apiErr
}

// Register creates a user and keeps the token from the response cookie.
func (c *Client) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	var out struct {
		Message string     `json:"message"`
		User    model.User `json:"user"`
	}
	res, err := c.r(ctx).
		SetBody(map[string]string{"name": name, "email": email, "password": password}).
		SetResult(&out).
		Post("/api/auth/register")
	if err := checkResponse(res, err); err != nil {
		return nil, err
	}
	for _, cookie := range res.Cookies() {
		if cookie.Name == cookieName {
			c.Token = cookie.Value
		}
	}
	return &out.User, nil
}

// Login authenticates and keeps the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out struct {
		Message string `json:"message"`
		Token   string `json:"token"`
	}
	res, err := c.r(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).
		Post("/api/auth/login")
	if err := checkResponse(res, err); err != nil {
		return "", err
	}
	c.Token = out.Token
	return out.Token, nil
}

// Logout clears the server cookie and forgets the local token.
func (c *Client) Logout(ctx context.Context) error {
	res, err := c.r(ctx).Post("/api/auth/logout")
	if err := checkResponse(res, err); err != nil {
		return err
	}
	c.Token = ""
	return nil
}

type CreatePostInput struct {
	Title          string    `json:"title"`
	Topic          []string  `json:"topic"`
	Body           string    `json:"body"`
	ExpirationTime time.Time `json:"expirationTime"`
}

func (c *Client) CreatePost(ctx context.Context, in CreatePostInput) (*model.Post, error) {
	var out struct {
		Message string     `json:"message"`
		Post    model.Post `json:"post"`
	}
	res, err := c.r(ctx).
		SetBody(in).
		SetResult(&out).
		Post("/api/posts")
	if err := checkResponse(res, err); err != nil {
		return nil, err
	}
	return &out.Post, nil
}

func (c *Client) ListPosts(ctx context.Context, topic string) ([]model.Post, error) {
	var out []model.Post
	res, err := c.r(ctx).
		SetPathParam("topic", topic).
		SetResult(&out).
		Get("/api/posts/{topic}")
	if err := checkResponse(res, err); err != nil {
		return nil, err
	}
	return out, nil
}

// Act performs a like, dislike or comment action on the post with id.
func (c *Client) Act(ctx context.Context, id, action, comment string) (*model.Post, error) {
	body := map[string]string{"action": action}
	if comment != "" {
		body["comment"] = comment
	}
	var out model.Post
	res, err := c.r(ctx).
		SetPathParam("id", id).
		SetBody(body).
		SetResult(&out).
		Put("/api/posts/{id}/action")
	if err := checkResponse(res, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Like(ctx context.Context, id string) (*model.Post, error) {
	return c.Act(ctx, id, "like", "")
}

func (c *Client) Dislike(ctx context.Context, id string) (*model.Post, error) {
	return c.Act(ctx, id, "dislike", "")
}

func (c *Client) Comment(ctx context.Context, id, text string) (*model.Post, error) {
	return c.Act(ctx, id, "comment", text)
}

func (c *Client) HighestInterest(ctx context.Context, topic string) (*model.InterestSummary, error) {
	var out struct {
		Post model.InterestSummary `json:"post"`
	}
	res, err := c.r(ctx).
		SetPathParam("topic", topic).
		SetResult(&out).
		Get("/api/posts/{topic}/active-highest-interest")
	if err := checkResponse(res, err); err != nil {
		return nil, err
	}
	return &out.Post, nil
}

// Health returns nil when the server reports itself healthy.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.r(ctx).Get("/healthz")
	return checkResponse(res, err)
}

// TestHelper provides utilities for creating authenticated clients in tests.
type TestHelper struct {
	BaseURL string
}

// NewTestHelper creates a new test helper for the given base URL.
func NewTestHelper(baseURL string) *TestHelper {
	return &TestHelper{BaseURL: baseURL}
}

// CreateAuthenticatedClient registers a user called name and returns a
// client holding its token.
func (h *TestHelper) CreateAuthenticatedClient(ctx context.Context, name string) (*Client, error) {
	c := New(h.BaseURL)
	if _, err := c.Register(ctx, name, name+"@example.test", "password-"+name); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	if !c.IsAuthenticated() {
		_ = c.Close()
		return nil, fmt.Errorf("register %s: no token cookie in response", name)
	}
	return c, nil
}

// GetToken registers a user and returns just the token string.
func (h *TestHelper) GetToken(ctx context.Context, name string) (string, error) {
	c, err := h.CreateAuthenticatedClient(ctx, name)
	if err != nil {
		return "", err
	}
	defer c.Close()
	return c.Token, nil
}
