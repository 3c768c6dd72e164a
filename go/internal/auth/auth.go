// Package auth resolves the caller identity from a signed session token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/taprounds/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrInvalidToken is returned for tokens that are malformed, expired or signed with another key.
var ErrInvalidToken = errors.New("invalid session token")

// Claims are the session token claims. Subject holds the user ID.
type Claims struct {
	Username string      `json:"username"`
	Role     models.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 session tokens from the Authorization header or session cookie.
type Authenticator struct {
	secret     []byte
	cookieName string
	clock      clockwork.Clock
}

// NewAuthenticator creates an authenticator. A nil clock uses the real clock.
func NewAuthenticator(secret, cookieName string, clock clockwork.Clock) *Authenticator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Authenticator{
		secret:     []byte(secret),
		cookieName: cookieName,
		clock:      clock,
	}
}

// IssueToken signs a session token for user valid for ttl.
func (a *Authenticator) IssueToken(user models.User, ttl time.Duration) (string, error) {
	now := a.clock.Now()
	claims := Claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Resolve returns the caller, or nil when the request carries no token.
func (a *Authenticator) Resolve(r *http.Request) (*models.User, error) {
	token := a.tokenFromRequest(r)
	if token == "" {
		return nil, nil
	}
	return a.Verify(token)
}

// Verify parses and validates a session token.
func (a *Authenticator) Verify(token string) (*models.User, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil || id == uuid.Nil {
		return nil, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}

	role := claims.Role
	switch role {
	case models.RoleAdmin, models.RoleObserver, models.RoleSurvivor:
	case "":
		role = models.RoleFromUsername(claims.Username)
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, role)
	}

	return &models.User{ID: id, Username: claims.Username, Role: role}, nil
}

func (a *Authenticator) tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if a.cookieName != "" {
		if cookie, err := r.Cookie(a.cookieName); err == nil {
			return cookie.Value
		}
	}
	return ""
}

// Middleware attaches the resolved caller to the request context. Requests with a bad
// token continue anonymously; handlers decide whether identity is required.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.Resolve(r)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("ignoring invalid session token")
		}
		if user != nil {
			r = r.WithContext(WithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

type contextKey struct{}

// WithUser returns a context carrying user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the caller attached by Middleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(contextKey{}).(*models.User)
	return user, ok && user != nil
}
