// Package postgres implements the user and post stores on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alphabot-ai/topicboard/internal/model"
	"github.com/alphabot-ai/topicboard/internal/store"
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and applies pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	cfg.ConnConfig.StatementCacheCapacity = 128

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := applySchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	topics TEXT[] NOT NULL,
	body TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL DEFAULT 'Live',
	owner TEXT NOT NULL,
	likes INTEGER NOT NULL DEFAULT 0,
	dislikes INTEGER NOT NULL DEFAULT 0,
	seq BIGSERIAL
);
CREATE INDEX IF NOT EXISTS idx_posts_topics ON posts USING GIN (topics);
CREATE INDEX IF NOT EXISTS idx_posts_expires_at ON posts(expires_at);

CREATE TABLE IF NOT EXISTS post_comments (
	id BIGSERIAL PRIMARY KEY,
	post_id TEXT NOT NULL REFERENCES posts(id),
	user_name TEXT NOT NULL,
	comment TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_post_comments_post_id ON post_comments(post_id, id);
`,
}

func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return err
	}

	var currentVersion int
	if err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := pool.Exec(ctx, migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := pool.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO users (id, name, email, password_hash, created_at)
VALUES ($1, $2, $3, $4, $5)
`, user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrDuplicateEmail
	}
	return err
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx, `
SELECT id, name, email, password_hash, created_at
FROM users
WHERE email = $1
`, email).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, store.ErrNotFound
		}
		return model.User{}, err
	}
	return u, nil
}

func (s *Store) CreatePost(ctx context.Context, post *model.Post) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO posts (id, title, topics, body, created_at, expires_at, status, owner, likes, dislikes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`, post.ID, post.Title, post.Topic, post.Body, post.Timestamp, post.ExpirationTime,
		post.Status, post.Owner, post.Likes, post.Dislikes)
	return err
}

const postColumns = `id, title, topics, body, created_at, expires_at, status, owner, likes, dislikes`

func (s *Store) GetPost(ctx context.Context, id string) (model.Post, error) {
	post, err := scanPost(s.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if err != nil {
		return model.Post{}, err
	}
	if post.Comments, err = s.listComments(ctx, post.ID); err != nil {
		return model.Post{}, err
	}
	return post, nil
}

func (s *Store) ListPostsByTopic(ctx context.Context, topic string) ([]model.Post, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+postColumns+`
FROM posts
WHERE $1 = ANY(topics)
ORDER BY created_at ASC, seq ASC
`, topic)
	if err != nil {
		return nil, err
	}

	posts := make([]model.Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		posts = append(posts, post)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range posts {
		if posts[i].Comments, err = s.listComments(ctx, posts[i].ID); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

func (s *Store) TopActivePost(ctx context.Context, topic string, now time.Time) (model.Post, error) {
	post, err := scanPost(s.pool.QueryRow(ctx, `
SELECT `+postColumns+`
FROM posts
WHERE expires_at > $1 AND $2 = ANY(topics)
ORDER BY likes DESC, dislikes DESC, created_at ASC, seq ASC
LIMIT 1
`, now, topic))
	if err != nil {
		return model.Post{}, err
	}
	if post.Comments, err = s.listComments(ctx, post.ID); err != nil {
		return model.Post{}, err
	}
	return post, nil
}

func (s *Store) IncrementLikes(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE posts SET likes = likes + 1 WHERE id = $1`, id)
	return affectedOne(tag, err)
}

func (s *Store) IncrementDislikes(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE posts SET dislikes = dislikes + 1 WHERE id = $1`, id)
	return affectedOne(tag, err)
}

func (s *Store) AppendComment(ctx context.Context, id string, comment model.Comment) error {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO post_comments (post_id, user_name, comment, created_at)
SELECT $1, $2, $3, $4
WHERE EXISTS (SELECT 1 FROM posts WHERE id = $1)
`, id, comment.User, comment.Comment, comment.CreatedAt)
	return affectedOne(tag, err)
}

func (s *Store) listComments(ctx context.Context, postID string) ([]model.Comment, error) {
	rows, err := s.pool.Query(ctx, `
SELECT user_name, comment, created_at
FROM post_comments
WHERE post_id = $1
ORDER BY id ASC
`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]model.Comment, 0)
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.User, &c.Comment, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func scanPost(row pgx.Row) (model.Post, error) {
	var p model.Post
	if err := row.Scan(&p.ID, &p.Title, &p.Topic, &p.Body, &p.Timestamp, &p.ExpirationTime, &p.Status, &p.Owner, &p.Likes, &p.Dislikes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Post{}, store.ErrNotFound
		}
		return model.Post{}, err
	}
	if p.Topic == nil {
		p.Topic = []string{}
	}
	p.Comments = []model.Comment{}
	return p, nil
}

func affectedOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
