package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/alphabot-ai/topicboard/internal/client"
)

// CLIConfig holds the client configuration persisted to disk.
type CLIConfig struct {
	BaseURL string `json:"base_url"`
	Email   string `json:"email"`
	Token   string `json:"token"`
}

const defaultBaseURL = "http://localhost:5000"

func defaultCLIConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".topicboard", "config.json")
	}
	return filepath.Join(home, ".topicboard", "config.json")
}

func loadCLIConfig(path string) (CLIConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return CLIConfig{}, errors.New("not logged in - run 'topicboard register' or 'topicboard login'")
		}
		return CLIConfig{}, err
	}
	var cfg CLIConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func saveCLIConfig(path string, cfg CLIConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func urlFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "url",
		Usage:   "Topicboard server URL",
		Value:   defaultBaseURL,
		EnvVars: []string{"TOPICBOARD_URL"},
	}
}

// loadClient builds an authenticated client from the saved config.
func loadClient(c *cli.Context) (*client.Client, CLIConfig, error) {
	cfg, err := loadCLIConfig(c.String("config"))
	if err != nil {
		return nil, CLIConfig{}, err
	}
	api := client.New(cfg.BaseURL)
	api.Token = cfg.Token
	return api, cfg, nil
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create an account and save its token",
		Flags: []cli.Flag{
			urlFlag(),
			&cli.StringFlag{Name: "name", Usage: "Display name", Required: true},
			&cli.StringFlag{Name: "email", Usage: "Email address", Required: true},
			&cli.StringFlag{Name: "password", Usage: "Password", Required: true, EnvVars: []string{"TOPICBOARD_PASSWORD"}},
		},
		Action: func(c *cli.Context) error {
			api := client.New(c.String("url"))
			defer api.Close()

			user, err := api.Register(c.Context, c.String("name"), c.String("email"), c.String("password"))
			if err != nil {
				return err
			}
			if err := saveCLIConfig(c.String("config"), CLIConfig{BaseURL: c.String("url"), Email: user.Email, Token: api.Token}); err != nil {
				return err
			}
			fmt.Printf("Registered %s (%s), id %s\n", user.Name, user.Email, user.ID)
			return nil
		},
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Log in and save the token (tokens last one hour)",
		Flags: []cli.Flag{
			urlFlag(),
			&cli.StringFlag{Name: "email", Usage: "Email address", Required: true},
			&cli.StringFlag{Name: "password", Usage: "Password", Required: true, EnvVars: []string{"TOPICBOARD_PASSWORD"}},
		},
		Action: func(c *cli.Context) error {
			api := client.New(c.String("url"))
			defer api.Close()

			token, err := api.Login(c.Context, c.String("email"), c.String("password"))
			if err != nil {
				return err
			}
			if err := saveCLIConfig(c.String("config"), CLIConfig{BaseURL: c.String("url"), Email: strings.ToLower(c.String("email")), Token: token}); err != nil {
				return err
			}
			fmt.Println("Logged in.")
			return nil
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the saved token",
		Action: func(c *cli.Context) error {
			api, cfg, err := loadClient(c)
			if err != nil {
				return err
			}
			defer api.Close()

			if err := api.Logout(c.Context); err != nil {
				return err
			}
			cfg.Token = ""
			if err := saveCLIConfig(c.String("config"), cfg); err != nil {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}

func postCommand() *cli.Command {
	return &cli.Command{
		Name:  "post",
		Usage: "Create a post",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Usage: "Post title", Required: true},
			&cli.StringSliceFlag{Name: "topic", Usage: "Topic tag (repeatable or comma separated)", Required: true},
			&cli.StringFlag{Name: "body", Usage: "Post body", Required: true},
			&cli.DurationFlag{Name: "expires-in", Usage: "Time until the post expires", Value: 24 * time.Hour},
		},
		Action: func(c *cli.Context) error {
			api, _, err := loadClient(c)
			if err != nil {
				return err
			}
			defer api.Close()

			post, err := api.CreatePost(c.Context, client.CreatePostInput{
				Title:          c.String("title"),
				Topic:          c.StringSlice("topic"),
				Body:           c.String("body"),
				ExpirationTime: time.Now().Add(c.Duration("expires-in")),
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created post %s (expires %s)\n", post.ID, post.ExpirationTime.Format(time.RFC3339))
			return nil
		},
	}
}

func actCommand() *cli.Command {
	return &cli.Command{
		Name:  "act",
		Usage: "Like, dislike or comment on a post",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Usage: "Post ID", Required: true},
			&cli.StringFlag{Name: "action", Usage: "like, dislike or comment", Required: true},
			&cli.StringFlag{Name: "comment", Usage: "Comment text for the comment action"},
		},
		Action: func(c *cli.Context) error {
			api, _, err := loadClient(c)
			if err != nil {
				return err
			}
			defer api.Close()

			post, err := api.Act(c.Context, c.String("id"), c.String("action"), c.String("comment"))
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d likes, %d dislikes, %d comments\n", post.Title, post.Likes, post.Dislikes, len(post.Comments))
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List posts of a topic",
		ArgsUsage: "<topic>",
		Flags:     []cli.Flag{urlFlag()},
		Action: func(c *cli.Context) error {
			topic := c.Args().First()
			if topic == "" {
				return errors.New("usage: topicboard list <topic>")
			}
			api := client.New(baseURLFor(c))
			defer api.Close()

			list, err := api.ListPosts(c.Context, topic)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No posts.")
				return nil
			}
			now := time.Now()
			for _, p := range list {
				state := "active"
				if !p.Active(now) {
					state = "expired"
				}
				fmt.Printf("%s  %-30s  +%d -%d  %d comments  by %s  [%s]\n",
					p.ID, p.Title, p.Likes, p.Dislikes, len(p.Comments), p.Owner, state)
			}
			return nil
		},
	}
}

func topCommand() *cli.Command {
	return &cli.Command{
		Name:      "top",
		Usage:     "Show the most liked active post of a topic",
		ArgsUsage: "<topic>",
		Flags:     []cli.Flag{urlFlag()},
		Action: func(c *cli.Context) error {
			topic := c.Args().First()
			if topic == "" {
				return errors.New("usage: topicboard top <topic>")
			}
			api := client.New(baseURLFor(c))
			defer api.Close()

			top, err := api.HighestInterest(c.Context, topic)
			if err != nil {
				return err
			}
			fmt.Printf("%s  +%d -%d\n", top.Title, top.Likes, top.Dislikes)
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the saved config and server health",
		Action: func(c *cli.Context) error {
			api, cfg, err := loadClient(c)
			if err != nil {
				return err
			}
			defer api.Close()

			fmt.Printf("Server:    %s\n", cfg.BaseURL)
			fmt.Printf("Email:     %s\n", cfg.Email)
			fmt.Printf("Logged in: %t\n", cfg.Token != "")
			if err := api.Health(c.Context); err != nil {
				fmt.Printf("Health:    %v\n", err)
				return nil
			}
			fmt.Println("Health:    ok")
			return nil
		},
	}
}

// baseURLFor prefers an explicit --url, then the saved config.
func baseURLFor(c *cli.Context) string {
	if c.IsSet("url") {
		return c.String("url")
	}
	if cfg, err := loadCLIConfig(c.String("config")); err == nil && cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	return c.String("url")
}
