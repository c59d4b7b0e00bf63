package httpapp

import (
	"time"

	"github.com/alphabot-ai/topicboard/internal/model"
)

type errorResponse struct {
	Error string `json:"error" example:"Post not found"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type registerRequest struct {
	Name     string `json:"name" example:"alice"`
	Email    string `json:"email" example:"alice@example.com"`
	Password string `json:"password" example:"hunter2"`
}

type registerResponse struct {
	Message string     `json:"message"`
	User    model.User `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email" example:"alice@example.com"`
	Password string `json:"password" example:"hunter2"`
}

type loginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type createPostRequest struct {
	Title          string     `json:"title"`
	Topic          []string   `json:"topic"`
	Body           string     `json:"body"`
	ExpirationTime *time.Time `json:"expirationTime"`
}

type createPostResponse struct {
	Message string     `json:"message"`
	Post    model.Post `json:"post"`
}

type actionRequest struct {
	Action  string `json:"action" enums:"like,dislike,comment"`
	Comment string `json:"comment,omitempty"`
}

type interestResponse struct {
	Post model.InterestSummary `json:"post"`
}
