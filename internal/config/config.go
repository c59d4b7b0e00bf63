package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const CookieName = "token"

// DevTokenSecret is the HS256 secret used when JWT_SECRET is unset. Validate
// refuses it in production.
const DevTokenSecret = "dev-token-secret"

type Config struct {
	Addr        string
	DatabaseURL string
	Env         string
	LogLevel    string
	NATSURL     string
	Token       TokenConfig
	RateLimits  RateLimits
}

type TokenConfig struct {
	Alg    string
	Secret string
	// Hex encoded secp256k1 private key, only read when Alg is ES256K.
	Key string
	TTL time.Duration
}

type RateLimits struct {
	AuthPerMinute   int
	PostPerMinute   int
	ActionPerMinute int
}

func Load() Config {
	addr := envString("TOPICBOARD_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":5000"
		}
	}
	env := envString("TOPICBOARD_ENV", "")
	if env == "" {
		env = envString("NODE_ENV", "development")
	}
	cfg := Config{
		Addr:        addr,
		DatabaseURL: envString("TOPICBOARD_DB", "topicboard.db"),
		Env:         strings.ToLower(env),
		LogLevel:    envString("TOPICBOARD_LOG_LEVEL", "info"),
		NATSURL:     envString("TOPICBOARD_NATS_URL", ""),
		Token: TokenConfig{
			Alg:    strings.ToUpper(envString("TOPICBOARD_TOKEN_ALG", "HS256")),
			Secret: envString("JWT_SECRET", DevTokenSecret),
			Key:    envString("TOPICBOARD_TOKEN_KEY", ""),
			TTL:    envDuration("TOPICBOARD_TOKEN_TTL", time.Hour),
		},
		RateLimits: RateLimits{
			AuthPerMinute:   envInt("TOPICBOARD_RL_AUTH_PER_MIN", 30),
			PostPerMinute:   envInt("TOPICBOARD_RL_POST_PER_MIN", 20),
			ActionPerMinute: envInt("TOPICBOARD_RL_ACTION_PER_MIN", 120),
		},
	}

	return cfg
}

// Validate rejects settings that must not reach a production deployment.
func (c Config) Validate() error {
	if c.Production() && c.Token.Alg == "HS256" && c.Token.Secret == DevTokenSecret {
		return errors.New("JWT_SECRET must be set in production")
	}
	return nil
}

// Production reports whether auth cookies must carry the Secure flag.
func (c Config) Production() bool {
	return c.Env == "production"
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
