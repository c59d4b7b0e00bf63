package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/alphabot-ai/topicboard/internal/config"
	"github.com/alphabot-ai/topicboard/internal/model"
)

type tokenClaims struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies the signed identity tokens carried in the
// auth cookie.
type TokenService struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	ttl       time.Duration
	now       func() time.Time
}

func NewTokenService(cfg config.TokenConfig) (*TokenService, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &TokenService{ttl: ttl, now: time.Now}

	switch cfg.Alg {
	case "", "HS256":
		if cfg.Secret == "" {
			return nil, errors.New("token secret required for HS256")
		}
		s.method = jwt.SigningMethodHS256
		s.signKey = []byte(cfg.Secret)
		s.verifyKey = []byte(cfg.Secret)
	case algES256K:
		priv, err := ParseSecp256k1Key(cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("token key: %w", err)
		}
		s.method = SigningMethodES256K
		s.signKey = priv
		s.verifyKey = priv.PubKey()
	default:
		return nil, fmt.Errorf("unsupported token alg: %s", cfg.Alg)
	}
	return s, nil
}

func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue returns a token for id that expires after the configured TTL.
func (s *TokenService) Issue(id model.Identity) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := tokenClaims{
		ID:   id.ID,
		Name: id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry. Signature, format and expiry failures
// return ErrInvalidToken; a verified token lacking id or name returns
// ErrTokenNotValid.
func (s *TokenService) Verify(token string) (model.Identity, error) {
	if token == "" {
		return model.Identity{}, ErrNoToken
	}
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.verifyKey, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" || claims.Name == "" {
		return model.Identity{}, ErrTokenNotValid
	}
	return model.Identity{ID: claims.ID, Name: claims.Name}, nil
}
