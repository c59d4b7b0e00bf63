package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alphabot-ai/topicboard/internal/model"
	"github.com/alphabot-ai/topicboard/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps pragmas in effect and serializes writers, which
	// sqlite requires anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
// Timestamps are unix milliseconds.
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);

CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	topics TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'Live',
	owner TEXT NOT NULL,
	likes INTEGER NOT NULL DEFAULT 0,
	dislikes INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_posts_expires_at ON posts(expires_at);

CREATE TABLE IF NOT EXISTS post_comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	post_id TEXT NOT NULL,
	user_name TEXT NOT NULL,
	comment TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(post_id) REFERENCES posts(id)
);
CREATE INDEX IF NOT EXISTS idx_post_comments_post_id ON post_comments(post_id, id);
`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, name, email, password_hash, created_at)
VALUES (?, ?, ?, ?, ?)
`, user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt.UnixMilli())
	if isUniqueViolation(err) {
		return store.ErrDuplicateEmail
	}
	return err
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User
	var created int64
	err := s.db.QueryRowContext(ctx, `
SELECT id, name, email, password_hash, created_at
FROM users
WHERE email = ?
LIMIT 1
`, email).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, store.ErrNotFound
		}
		return model.User{}, err
	}
	u.CreatedAt = time.UnixMilli(created)
	return u, nil
}

func (s *Store) CreatePost(ctx context.Context, post *model.Post) error {
	topics, err := json.Marshal(post.Topic)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO posts (id, title, topics, body, created_at, expires_at, status, owner, likes, dislikes)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, post.ID, post.Title, string(topics), post.Body, post.Timestamp.UnixMilli(), post.ExpirationTime.UnixMilli(),
		post.Status, post.Owner, post.Likes, post.Dislikes)
	return err
}

const postColumns = `p.id, p.title, p.topics, p.body, p.created_at, p.expires_at, p.status, p.owner, p.likes, p.dislikes`

func (s *Store) GetPost(ctx context.Context, id string) (model.Post, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+postColumns+`
FROM posts p
WHERE p.id = ?
LIMIT 1
`, id)
	post, err := scanPost(row)
	if err != nil {
		return model.Post{}, err
	}
	post.Comments, err = s.listComments(ctx, post.ID)
	if err != nil {
		return model.Post{}, err
	}
	return post, nil
}

func (s *Store) ListPostsByTopic(ctx context.Context, topic string) ([]model.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+postColumns+`
FROM posts p
WHERE EXISTS (SELECT 1 FROM json_each(p.topics) t WHERE t.value = ?)
ORDER BY p.created_at ASC, p.rowid ASC
`, topic)
	if err != nil {
		return nil, err
	}

	posts := make([]model.Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range posts {
		posts[i].Comments, err = s.listComments(ctx, posts[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return posts, nil
}

func (s *Store) TopActivePost(ctx context.Context, topic string, now time.Time) (model.Post, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+postColumns+`
FROM posts p
WHERE p.expires_at > ?
  AND EXISTS (SELECT 1 FROM json_each(p.topics) t WHERE t.value = ?)
ORDER BY p.likes DESC, p.dislikes DESC, p.created_at ASC, p.rowid ASC
LIMIT 1
`, now.UnixMilli(), topic)
	post, err := scanPost(row)
	if err != nil {
		return model.Post{}, err
	}
	post.Comments, err = s.listComments(ctx, post.ID)
	if err != nil {
		return model.Post{}, err
	}
	return post, nil
}

func (s *Store) IncrementLikes(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE posts SET likes = likes + 1 WHERE id = ?`, id)
	return affectedOne(res, err)
}

func (s *Store) IncrementDislikes(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE posts SET dislikes = dislikes + 1 WHERE id = ?`, id)
	return affectedOne(res, err)
}

func (s *Store) AppendComment(ctx context.Context, id string, comment model.Comment) error {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO post_comments (post_id, user_name, comment, created_at)
SELECT ?, ?, ?, ?
WHERE EXISTS (SELECT 1 FROM posts WHERE id = ?)
`, id, comment.User, comment.Comment, comment.CreatedAt.UnixMilli(), id)
	return affectedOne(res, err)
}

func (s *Store) listComments(ctx context.Context, postID string) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT user_name, comment, created_at
FROM post_comments
WHERE post_id = ?
ORDER BY id ASC
`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]model.Comment, 0)
	for rows.Next() {
		var c model.Comment
		var created int64
		if err := rows.Scan(&c.User, &c.Comment, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = time.UnixMilli(created)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func scanPost(scanner interface{ Scan(dest ...any) error }) (model.Post, error) {
	var p model.Post
	var topicsRaw string
	var created, expires int64
	if err := scanner.Scan(&p.ID, &p.Title, &topicsRaw, &p.Body, &created, &expires, &p.Status, &p.Owner, &p.Likes, &p.Dislikes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Post{}, store.ErrNotFound
		}
		return model.Post{}, err
	}
	if topicsRaw != "" {
		if err := json.Unmarshal([]byte(topicsRaw), &p.Topic); err != nil {
			return model.Post{}, fmt.Errorf("decode topics of post %s: %w", p.ID, err)
		}
	}
	if p.Topic == nil {
		p.Topic = []string{}
	}
	p.Timestamp = time.UnixMilli(created)
	p.ExpirationTime = time.UnixMilli(expires)
	p.Comments = []model.Comment{}
	return p, nil
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
