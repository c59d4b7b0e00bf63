package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/alphabot-ai/topicboard/internal/client"
)

var users = []struct {
	name  string
	email string
}{
	{"ada", "ada@example.com"},
	{"grace", "grace@example.com"},
	{"linus", "linus@example.com"},
	{"barbara", "barbara@example.com"},
	{"ken", "ken@example.com"},
}

var seedPosts = []struct {
	title   string
	topics  []string
	body    string
	expires time.Duration
}{
	{"Go 1.24 released", []string{"tech", "go"}, "Generic type aliases are here.", 48 * time.Hour},
	{"Morning run club", []string{"health", "sports"}, "Meet at the park at 7.", 24 * time.Hour},
	{"Election debate recap", []string{"politics"}, "Highlights from last night.", 12 * time.Hour},
	{"Is sqlite enough for production?", []string{"tech"}, "Discuss.", 72 * time.Hour},
	{"Cup final predictions", []string{"sports"}, "Who takes it this year?", 6 * time.Hour},
	{"Eat more fibre", []string{"health"}, "Your gut will thank you.", 36 * time.Hour},
	{"Yesterday's news", []string{"tech", "politics"}, "This one has already expired.", -time.Hour},
}

var comments = []string{
	"Great post!",
	"I disagree with the premise here.",
	"Has anyone measured this?",
	"This reminds me of the old days.",
	"Interesting take. I wonder how this scales.",
	"Would love a follow-up.",
	"Not sure I agree, but appreciate the perspective.",
}

func main() {
	baseURL := flag.String("url", "http://localhost:5000", "Topicboard server URL")
	password := flag.String("password", "seed-password", "Password for every seeded user")
	flag.Parse()

	ctx := context.Background()
	log.Printf("Seeding %s...\n", *baseURL)

	var clients []*client.Client
	for _, u := range users {
		c := client.New(*baseURL)
		defer c.Close()

		if _, err := c.Register(ctx, u.name, u.email, *password); err != nil {
			if !client.IsStatus(err, http.StatusBadRequest) {
				log.Fatalf("register %s: %v", u.name, err)
			}
			// Already registered on a previous run.
			if _, err := c.Login(ctx, u.email, *password); err != nil {
				log.Fatalf("login %s: %v", u.name, err)
			}
		}
		log.Printf("✓ User: %s", u.name)
		clients = append(clients, c)
	}

	var postIDs []string
	for _, p := range seedPosts {
		ownerIdx := rand.Intn(len(clients))
		post, err := clients[ownerIdx].CreatePost(ctx, client.CreatePostInput{
			Title:          p.title,
			Topic:          p.topics,
			Body:           p.body,
			ExpirationTime: time.Now().Add(p.expires),
		})
		if err != nil {
			log.Printf("✗ Failed to create post: %v", err)
			continue
		}
		postIDs = append(postIDs, post.ID)
		log.Printf("✓ Post %s: %s (by %s)", post.ID, p.title, users[ownerIdx].name)

		time.Sleep(20 * time.Millisecond)
	}

	var likes, dislikes, commented, skipped int
	for _, id := range postIDs {
		for i, c := range clients {
			var err error
			switch r := rand.Float32(); {
			case r < 0.5:
				_, err = c.Like(ctx, id)
				if err == nil {
					likes++
				}
			case r < 0.7:
				_, err = c.Dislike(ctx, id)
				if err == nil {
					dislikes++
				}
			case r < 0.9:
				_, err = c.Comment(ctx, id, comments[rand.Intn(len(comments))])
				if err == nil {
					commented++
				}
			}
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest {
				// Expired posts and owner likes are expected.
				skipped++
				continue
			}
			if err != nil {
				log.Printf("✗ %s on %s: %v", users[i].name, id, err)
			}
		}
	}
	log.Printf("✓ Added %d likes, %d dislikes, %d comments (%d rejected)", likes, dislikes, commented, skipped)

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("Users: %d\n", len(clients))
	fmt.Printf("Posts: %d\n", len(postIDs))
	fmt.Println("\nTry:", *baseURL+"/api/posts/tech/active-highest-interest")
}
