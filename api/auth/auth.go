// Package auth verifies the session tokens issued by the identity provider.
// Tokens are HS256 JWTs whose "sub" claim is the user's UUID.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrUnauthenticated is returned for a missing, malformed or expired token.
var ErrUnauthenticated = errors.New("unauthenticated")

// AccessTokenParam carries the token for clients that cannot set headers (websockets).
const AccessTokenParam = "access_token"

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Email  string
}

// Valid reports whether the identity names a user.
func (i Identity) Valid() bool { return i.UserID != "" }

// Verifier checks token signatures and expiry.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier returns a Verifier for tokens signed with secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Verify parses token and returns the identity it carries.
func (v *Verifier) Verify(token string) (Identity, error) {
	token = strings.Trim(token, "\"' ")
	if token == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrUnauthenticated)
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: subject is not a user id", ErrUnauthenticated)
	}
	email, _ := claims["email"].(string)
	return Identity{UserID: id.String(), Email: strings.TrimSpace(email)}, nil
}

// FromRequest verifies the bearer token on r. When allowQuery is set the
// access_token query parameter is accepted as a fallback.
func (v *Verifier) FromRequest(r *http.Request, allowQuery bool) (Identity, error) {
	token := BearerToken(r.Header.Get("Authorization"))
	if token == "" && allowQuery {
		token = r.URL.Query().Get(AccessTokenParam)
	}
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing authorization", ErrUnauthenticated)
	}
	return v.Verify(token)
}

// BearerToken extracts the token from an Authorization header value. A bare
// token without the scheme is accepted.
func BearerToken(header string) string {
	header = strings.Trim(header, "\"' ")
	if header == "" {
		return ""
	}
	scheme, rest, found := strings.Cut(header, " ")
	if !found {
		return header
	}
	if !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(rest)
}

// Sign issues a token for id. It is used by local tooling and tests; production
// tokens come from the identity provider.
func Sign(secret string, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": id.UserID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if id.Email != "" {
		claims["email"] = id.Email
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
