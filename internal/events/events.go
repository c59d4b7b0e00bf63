// Package events publishes post lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const SubjectPrefix = "topicboard.posts."

const (
	TypeCreated = "created"
	TypeLike    = "like"
	TypeDislike = "dislike"
	TypeComment = "comment"
)

type Event struct {
	Type   string    `json:"type"`
	PostID string    `json:"post_id"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
}

func (e Event) Subject() string {
	return SubjectPrefix + e.Type
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Nop discards every event. It is used when no NATS URL is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name("topicboard"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.conn.Publish(event.Subject(), data)
}

// Close flushes pending messages before closing the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// New returns a NATS publisher when url is set and Nop otherwise.
func New(url string) (Publisher, error) {
	if url == "" {
		return Nop{}, nil
	}
	return NewNATSPublisher(url)
}
