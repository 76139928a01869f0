// Package auth issues and verifies bearer tokens and resolves them to the
// caller's current identity.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/cache"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims are the token claims. Role is informational, the current role is
// always reloaded from the user record.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the verified caller attached to a request
type Identity struct {
	UserID   uint        `json:"user_id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

// UserLookup loads the user behind a token
type UserLookup interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// Options configures the token service
type Options struct {
	Secret           string
	Issuer           string
	TokenTTL         time.Duration
	IdentityCacheTTL time.Duration
}

// Service handles HS256 bearer tokens
type Service struct {
	secret   []byte
	issuer   string
	ttl      time.Duration
	users    UserLookup
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewService creates a token service. identities may be nil to disable caching.
func NewService(opts Options, users UserLookup, identities cache.Cache) (*Service, error) {
	if opts.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 30 * time.Minute
	}
	return &Service{
		secret:   []byte(opts.Secret),
		issuer:   opts.Issuer,
		ttl:      opts.TokenTTL,
		users:    users,
		cache:    identities,
		cacheTTL: opts.IdentityCacheTTL,
	}, nil
}

// IssueToken signs a token for user
func (s *Service) IssueToken(user *models.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)

	claims := &Claims{
		Username: user.Username,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return token, expiresAt, nil
}

// ParseToken verifies the signature, issuer and expiry of a token
func (s *Service) ParseToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate resolves a bearer token to the caller's current identity.
// Unknown and deactivated users are rejected even with a valid signature.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*Identity, error) {
	claims, err := s.ParseToken(tokenString)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, apperrors.Unauthenticated("token expired")
		}
		return nil, apperrors.Unauthenticated("invalid token")
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return nil, apperrors.Unauthenticated("invalid token subject")
	}

	return s.resolve(ctx, uint(id))
}

// Invalidate drops the cached identity, used after role or status changes
func (s *Service) Invalidate(ctx context.Context, userID uint) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, identityKey(userID))
	}
}

func (s *Service) resolve(ctx context.Context, userID uint) (*Identity, error) {
	key := identityKey(userID)
	if s.cache != nil {
		if raw, ok := s.cache.Get(ctx, key); ok {
			var identity Identity
			if err := json.Unmarshal(raw, &identity); err == nil {
				return &identity, nil
			}
		}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrCodeNotFound) {
			return nil, apperrors.Unauthenticated("unknown user")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperrors.Unauthenticated("account is disabled")
	}

	identity := &Identity{UserID: user.ID, Username: user.Username, Role: user.Role}
	if s.cache != nil {
		if raw, err := json.Marshal(identity); err == nil {
			_ = s.cache.Set(ctx, key, raw, s.cacheTTL)
		}
	}
	return identity, nil
}

func identityKey(userID uint) string {
	return "identity:" + strconv.FormatUint(uint64(userID), 10)
}
