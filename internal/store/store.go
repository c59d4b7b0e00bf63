package store

import (
	"context"
	"errors"
	"time"

	"github.com/alphabot-ai/topicboard/internal/model"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("duplicate email")
)

type Store interface {
	UserStore
	PostStore
	Ping(ctx context.Context) error
	Close() error
}

type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	FindUserByEmail(ctx context.Context, email string) (model.User, error)
}

type PostStore interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id string) (model.Post, error)
	ListPostsByTopic(ctx context.Context, topic string) ([]model.Post, error)
	// TopActivePost returns the post of topic expiring after now with the most
	// likes, then the most dislikes, then the oldest timestamp.
	TopActivePost(ctx context.Context, topic string, now time.Time) (model.Post, error)
	IncrementLikes(ctx context.Context, id string) error
	IncrementDislikes(ctx context.Context, id string) error
	AppendComment(ctx context.Context, id string, comment model.Comment) error
}
