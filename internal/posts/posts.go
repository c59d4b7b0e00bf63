// Package posts implements the post lifecycle: creation, listing,
// interactions and the highest-interest ranking.
package posts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/alphabot-ai/topicboard/internal/events"
	"github.com/alphabot-ai/topicboard/internal/metrics"
	"github.com/alphabot-ai/topicboard/internal/model"
	"github.com/alphabot-ai/topicboard/internal/store"
)

var (
	ErrNotFound      = errors.New("Post not found")
	ErrNoActivePosts = errors.New("No active posts found for this topic.")
	ErrExpired       = errors.New("Cannot interact with this post as it has expired.")
	ErrOwnerLike     = errors.New("Post owner cannot like their own post.")
	ErrValidation    = errors.New("validation failed")
)

// ValidationError matches ErrValidation and carries the message shown to
// clients.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

const (
	ActionLike    = "like"
	ActionDislike = "dislike"
	ActionComment = "comment"
)

type CreateInput struct {
	Title          string
	Topic          []string
	Body           string
	ExpirationTime time.Time
}

type Engine struct {
	posts  store.PostStore
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Engine)

// WithClock replaces time.Now as the engine's notion of the current time.
// Readings are truncated to milliseconds, the resolution the stores keep.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(posts store.PostStore, publisher events.Publisher, logger *slog.Logger, opts ...Option) *Engine {
	if publisher == nil {
		publisher = events.Nop{}
	}
	e := &Engine{
		posts:  posts,
		events: publisher,
		logger: logger.With("component", "posts.Engine"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create persists a new post owned by the caller. The owner always comes from
// the authenticated identity; the timestamp and status are set here.
func (e *Engine) Create(ctx context.Context, owner model.Identity, in CreateInput) (model.Post, error) {
	topics := normalizeTopics(in.Topic)
	title := strings.TrimSpace(in.Title)
	body := strings.TrimSpace(in.Body)
	switch {
	case title == "":
		return model.Post{}, invalid("title is required")
	case len(topics) == 0:
		return model.Post{}, invalid("topic must contain at least one entry")
	case body == "":
		return model.Post{}, invalid("body is required")
	case in.ExpirationTime.IsZero():
		return model.Post{}, invalid("expirationTime is required")
	}

	now := e.clock()
	post := model.Post{
		ID:             uuid.NewString(),
		Title:          in.Title,
		Topic:          topics,
		Body:           in.Body,
		Timestamp:      now,
		ExpirationTime: in.ExpirationTime.Truncate(time.Millisecond),
		Status:         model.StatusLive,
		Owner:          owner.Name,
		Comments:       []model.Comment{},
	}
	if err := e.posts.CreatePost(ctx, &post); err != nil {
		return model.Post{}, fmt.Errorf("create post: %w", err)
	}

	metrics.PostsCreated.Inc()
	e.publish(ctx, events.TypeCreated, post.ID, owner.Name, now)
	return post, nil
}

// ListByTopic returns every post tagged with topic, expired or not.
func (e *Engine) ListByTopic(ctx context.Context, topic string) ([]model.Post, error) {
	list, err := e.posts.ListPostsByTopic(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	if list == nil {
		list = []model.Post{}
	}
	return list, nil
}

// Act applies action to the post with id on behalf of actor and returns the
// post as stored afterwards. The expiry check runs before the action is
// dispatched. Only the owner check is specific to likes; owners may dislike
// their own posts. Unknown actions change nothing and return the post as is.
func (e *Engine) Act(ctx context.Context, actor model.Identity, id, action, comment string) (model.Post, error) {
	post, err := e.load(ctx, id)
	if err != nil {
		return model.Post{}, err
	}

	now := e.clock()
	if !post.Active(now) {
		metrics.PostActions.WithLabelValues(actionLabel(action), "expired").Inc()
		return model.Post{}, ErrExpired
	}

	switch action {
	case ActionLike:
		if actor.Name == post.Owner {
			metrics.PostActions.WithLabelValues(action, "owner_like").Inc()
			return model.Post{}, ErrOwnerLike
		}
		err = e.posts.IncrementLikes(ctx, id)
	case ActionDislike:
		err = e.posts.IncrementDislikes(ctx, id)
	case ActionComment:
		err = e.posts.AppendComment(ctx, id, model.Comment{
			User:      actor.Name,
			Comment:   comment,
			CreatedAt: now,
		})
	default:
		e.logger.Warn("ignoring unknown post action", "action", action, "post_id", id, "actor", actor.Name)
		metrics.PostActions.WithLabelValues("unknown", "ignored").Inc()
		return post, nil
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Post{}, ErrNotFound
		}
		return model.Post{}, fmt.Errorf("%s post: %w", action, err)
	}

	metrics.PostActions.WithLabelValues(action, "ok").Inc()
	e.publish(ctx, action, id, actor.Name, now)
	return e.load(ctx, id)
}

// HighestInterest returns the active post of topic with the most likes, then
// the most dislikes.
func (e *Engine) HighestInterest(ctx context.Context, topic string) (model.InterestSummary, error) {
	post, err := e.posts.TopActivePost(ctx, topic, e.clock())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.InterestSummary{}, ErrNoActivePosts
		}
		return model.InterestSummary{}, fmt.Errorf("top active post: %w", err)
	}
	return model.InterestSummary{Title: post.Title, Likes: post.Likes, Dislikes: post.Dislikes}, nil
}

func (e *Engine) clock() time.Time {
	return e.now().Truncate(time.Millisecond)
}

func (e *Engine) load(ctx context.Context, id string) (model.Post, error) {
	post, err := e.posts.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Post{}, ErrNotFound
		}
		return model.Post{}, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

func (e *Engine) publish(ctx context.Context, kind, postID, actor string, at time.Time) {
	ev := events.Event{Type: kind, PostID: postID, Actor: actor, At: at}
	if err := e.events.Publish(ctx, ev); err != nil {
		metrics.EventPublishFailures.Inc()
		e.logger.Error("publish post event", "subject", ev.Subject(), "err", err)
	}
}

func normalizeTopics(topics []string) []string {
	trimmed := lo.Map(topics, func(t string, _ int) string { return strings.TrimSpace(t) })
	return lo.Uniq(lo.Filter(trimmed, func(t string, _ int) bool { return t != "" }))
}

func actionLabel(action string) string {
	if lo.Contains([]string{ActionLike, ActionDislike, ActionComment}, action) {
		return action
	}
	return "unknown"
}
