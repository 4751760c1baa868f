// Package auth resolves incoming requests to verified identities. The rest
// of the system consumes only the Authenticator interface; how a request
// maps to a user is this package's business.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/foundrly/platform/internal/models"
)

// ErrAnonymous is returned when a request carries no usable credentials or
// the credentials do not resolve to a known user.
var ErrAnonymous = errors.New("auth: anonymous")

// Authenticator resolves a request to a verified user, or ErrAnonymous.
type Authenticator interface {
	Authenticate(r *http.Request) (*models.User, error)
}

// UserGetter is the slice of the store the authenticator needs.
type UserGetter interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Claims are the JWT claims carried by platform tokens.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// JWT authenticates requests via HS256 bearer tokens. WebSocket dials may
// pass the token as a "token" query parameter since browsers cannot set
// headers on WebSocket handshakes.
type JWT struct {
	secret []byte
	ttl    time.Duration
	users  UserGetter
}

// NewJWT creates a JWT authenticator backed by the given user lookup.
func NewJWT(secret string, ttl time.Duration, users UserGetter) *JWT {
	return &JWT{secret: []byte(secret), ttl: ttl, users: users}
}

// IssueToken signs a token for the given user id.
func (j *JWT) IssueToken(userID int64) (string, error) {
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(j.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// Authenticate resolves the request's token to a user. Missing, malformed,
// expired, or unknown-user tokens all yield ErrAnonymous; the caller never
// learns which.
func (j *JWT) Authenticate(r *http.Request) (*models.User, error) {
	tokenString := extractToken(r)
	if tokenString == "" {
		return nil, ErrAnonymous
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrAnonymous
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID == 0 {
		return nil, ErrAnonymous
	}

	user, err := j.users.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrAnonymous
	}
	return user, nil
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
