package httpapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"

	"github.com/alphabot-ai/topicboard/internal/auth"
	"github.com/alphabot-ai/topicboard/internal/config"
	"github.com/alphabot-ai/topicboard/internal/metrics"
	"github.com/alphabot-ai/topicboard/internal/model"
	"github.com/alphabot-ai/topicboard/internal/posts"
	"github.com/alphabot-ai/topicboard/internal/rate"
	"github.com/alphabot-ai/topicboard/internal/store"

	_ "github.com/alphabot-ai/topicboard/docs" // swagger docs
)

type Server struct {
	store   store.Store
	auth    *auth.Service
	posts   *posts.Engine
	limiter rate.Limiter
	cfg     config.Config
	logger  *slog.Logger
	router  chi.Router
}

func NewServer(st store.Store, authSvc *auth.Service, engine *posts.Engine, limiter rate.Limiter, cfg config.Config, logger *slog.Logger) *Server {
	s := &Server{
		store:   st,
		auth:    authSvc,
		posts:   engine,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger.With("component", "httpapp.Server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewMux()
	r.Use(s.requestLogger, s.recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/openapi.json", s.serveOpenAPIJSON)

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		// The single path parameter is a topic on reads and a post id on
		// the action route.
		r.Post("/posts", s.withIdentity(s.handleCreatePost))
		r.Get("/posts/{key}", s.handleListPosts)
		r.Put("/posts/{key}/action", s.withIdentity(s.handlePostAction))
		r.Get("/posts/{key}/active-highest-interest", s.handleHighestInterest)
	})
	return r
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}

		next.ServeHTTP(sw, r)

		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		duration := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route, r.Method).Observe(duration.Seconds())
		s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", sw.status, "duration", duration)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic recovered", "method", r.Method, "path", r.URL.Path, "error", rec)
				writeError(w, http.StatusInternalServerError, errors.New("internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withIdentity is the auth gate: it reads the token cookie and hands the
// decoded identity to next.
func (s *Server) withIdentity(next func(http.ResponseWriter, *http.Request, model.Identity)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(config.CookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusForbidden, auth.ErrNoToken)
			return
		}
		identity, err := s.auth.Authenticate(cookie.Value)
		switch {
		case errors.Is(err, auth.ErrTokenNotValid):
			writeError(w, http.StatusBadRequest, auth.ErrTokenNotValid)
			return
		case err != nil:
			s.logger.Debug("token rejected", "err", err)
			writeError(w, http.StatusForbidden, auth.ErrInvalidToken)
			return
		}
		next(w, r, identity)
	}
}

// handleRegister godoc
//
//	@Summary		Register a user
//	@Description	Creates a user, sets the token cookie and returns the user without its password hash.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		registerRequest		true	"Registration"
//	@Success		200		{object}	registerResponse
//	@Failure		400		{object}	errorResponse	"User already exists or missing fields"
//	@Failure		429		{object}	errorResponse
//	@Failure		500		{object}	errorResponse
//	@Router			/api/auth/register [post]
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "auth", s.cfg.RateLimits.AuthPerMinute) {
		return
	}
	var req registerRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := s.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("register", outcome(err)).Inc()
		s.writeFailure(w, r, err, "Server error")
		return
	}
	metrics.AuthAttempts.WithLabelValues("register", "ok").Inc()

	s.setTokenCookie(w, session.Token)
	writeJSON(w, http.StatusOK, registerResponse{Message: "User registered successfully", User: session.User})
}

// handleLogin godoc
//
//	@Summary		Log in
//	@Description	Verifies credentials, sets the token cookie and returns the token.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		loginRequest	true	"Credentials"
//	@Success		200		{object}	loginResponse
//	@Failure		400		{object}	errorResponse	"Invalid credentials"
//	@Failure		429		{object}	errorResponse
//	@Failure		500		{object}	errorResponse
//	@Router			/api/auth/login [post]
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "auth", s.cfg.RateLimits.AuthPerMinute) {
		return
	}
	var req loginRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("login", outcome(err)).Inc()
		s.writeFailure(w, r, err, "Server error")
		return
	}
	metrics.AuthAttempts.WithLabelValues("login", "ok").Inc()

	s.setTokenCookie(w, session.Token)
	writeJSON(w, http.StatusOK, loginResponse{Message: "Login successfully.", Token: session.Token})
}

// handleLogout godoc
//
//	@Summary	Log out
//	@Tags		Auth
//	@Produce	json
//	@Success	200	{object}	messageResponse
//	@Router		/api/auth/logout [post]
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     config.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Production(),
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

// handleCreatePost godoc
//
//	@Summary		Create a post
//	@Description	The owner is the authenticated user.
//	@Tags			Posts
//	@Accept			json
//	@Produce		json
//	@Security		CookieAuth
//	@Param			request	body		createPostRequest	true	"Post"
//	@Success		200		{object}	createPostResponse
//	@Failure		400		{object}	errorResponse	"Validation failed or token not valid"
//	@Failure		403		{object}	errorResponse	"Missing or invalid token"
//	@Failure		429		{object}	errorResponse
//	@Failure		500		{object}	errorResponse
//	@Router			/api/posts [post]
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request, identity model.Identity) {
	if !s.allowRateLimit(w, r, "post", s.cfg.RateLimits.PostPerMinute) {
		return
	}
	var req createPostRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	in := posts.CreateInput{
		Title: req.Title,
		Topic: req.Topic,
		Body:  req.Body,
	}
	if req.ExpirationTime != nil {
		in.ExpirationTime = *req.ExpirationTime
	}

	post, err := s.posts.Create(r.Context(), identity, in)
	if err != nil {
		s.writeFailure(w, r, err, "Error creating post")
		return
	}
	writeJSON(w, http.StatusOK, createPostResponse{Message: "Post created successfully", Post: post})
}

// handleListPosts godoc
//
//	@Summary		List posts by topic
//	@Description	Returns every post tagged with the topic, including expired ones.
//	@Tags			Posts
//	@Produce		json
//	@Param			topic	path		string	true	"Topic"
//	@Success		200		{array}		model.Post
//	@Failure		500		{object}	errorResponse
//	@Router			/api/posts/{topic} [get]
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	list, err := s.posts.ListByTopic(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.writeFailure(w, r, err, "Error fetching posts")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handlePostAction godoc
//
//	@Summary		Like, dislike or comment on a post
//	@Description	Expired posts reject every action. Owners cannot like their own post.
//	@Tags			Posts
//	@Accept			json
//	@Produce		json
//	@Security		CookieAuth
//	@Param			id		path		string			true	"Post ID"
//	@Param			request	body		actionRequest	true	"Action"
//	@Success		200		{object}	model.Post
//	@Failure		400		{object}	errorResponse	"Expired, owner like or token not valid"
//	@Failure		403		{object}	errorResponse	"Missing or invalid token"
//	@Failure		404		{object}	errorResponse	"Post not found"
//	@Failure		429		{object}	errorResponse
//	@Failure		500		{object}	errorResponse
//	@Router			/api/posts/{id}/action [put]
func (s *Server) handlePostAction(w http.ResponseWriter, r *http.Request, identity model.Identity) {
	if !s.allowRateLimit(w, r, "action", s.cfg.RateLimits.ActionPerMinute) {
		return
	}
	var req actionRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	post, err := s.posts.Act(r.Context(), identity, chi.URLParam(r, "key"), req.Action, req.Comment)
	if err != nil {
		s.writeFailure(w, r, err, "Error updating post")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// handleHighestInterest godoc
//
//	@Summary		Most liked active post of a topic
//	@Description	Ranks active posts by likes, then dislikes, and returns the winner's title and counts.
//	@Tags			Posts
//	@Produce		json
//	@Param			topic	path		string	true	"Topic"
//	@Success		200		{object}	interestResponse
//	@Failure		404		{object}	errorResponse	"No active posts"
//	@Failure		500		{object}	errorResponse
//	@Router			/api/posts/{topic}/active-highest-interest [get]
func (s *Server) handleHighestInterest(w http.ResponseWriter, r *http.Request) {
	summary, err := s.posts.HighestInterest(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.writeFailure(w, r, err, "Error fetching active highest interest post.")
		return
	}
	writeJSON(w, http.StatusOK, interestResponse{Post: summary})
}

// handleHealth godoc
//
//	@Summary	Health check
//	@Tags		Ops
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Failure	503	{object}	errorResponse
//	@Router		/healthz [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, errors.New("store unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) serveOpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}

// writeFailure maps domain errors to their status codes. Anything unknown is
// logged and answered with a 500 carrying fallback.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, auth.ErrUserExists),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, posts.ErrValidation),
		errors.Is(err, posts.ErrExpired),
		errors.Is(err, posts.ErrOwnerLike):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, posts.ErrNotFound),
		errors.Is(err, posts.ErrNoActivePosts):
		writeError(w, http.StatusNotFound, err)
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, errors.New(fallback))
	}
}

func (s *Server) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     config.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.auth.Tokens().TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Production(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) allowRateLimit(w http.ResponseWriter, r *http.Request, action string, limit int) bool {
	if limit <= 0 {
		return true
	}
	key := fmt.Sprintf("%s:ip:%s", action, clientIP(r))
	if ok, retry := s.limiter.Allow(key, limit, time.Minute); !ok {
		metrics.RateLimited.WithLabelValues(action).Inc()
		writeRateLimit(w, retry)
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func outcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrUserExists):
		return "exists"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, auth.ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeRateLimit(w http.ResponseWriter, retry time.Duration) {
	seconds := int(retry.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
}
