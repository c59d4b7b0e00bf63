package model

import "time"

const StatusLive = "Live"

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	// Never serialized.
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Post struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Topic          []string  `json:"topic"`
	Body           string    `json:"body"`
	Timestamp      time.Time `json:"timestamp"`
	ExpirationTime time.Time `json:"expirationTime"`
	Status         string    `json:"status"`
	Owner          string    `json:"owner"`
	Likes          int       `json:"likes"`
	Dislikes       int       `json:"dislikes"`
	Comments       []Comment `json:"comments"`
}

// Active reports whether the post still accepts interactions at now.
func (p Post) Active(now time.Time) bool {
	return !now.After(p.ExpirationTime)
}

type Comment struct {
	User      string    `json:"user"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

// Identity is the authenticated caller decoded from a token.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type InterestSummary struct {
	Title    string `json:"title"`
	Likes    int    `json:"likes"`
	Dislikes int    `json:"dislikes"`
}
