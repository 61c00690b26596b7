package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingKey       = errors.New("jwt key is empty")
	ErrInvalidToken     = errors.New("invalid token")
	ErrEmailNotVerified = errors.New("email not verified")
)

// Claims are the bearer token claims the API relies on. UID falls back to
// the registered subject when absent.
type Claims struct {
	UID           string `json:"uid"`
	EmailVerified bool   `json:"email_verified"`
	Admin         bool   `json:"admin"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string {
	if strings.TrimSpace(c.UID) != "" {
		return c.UID
	}
	return c.Subject
}

type Verifier struct {
	key    []byte
	issuer string
	now    func() time.Time
}

func NewVerifier(key, issuer string) (*Verifier, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	return &Verifier{key: []byte(key), issuer: issuer, now: time.Now}, nil
}

// Issue signs an HS256 token. It backs operator tooling and tests; end-user
// tokens come from the identity provider.
func (v *Verifier) Issue(uid string, emailVerified, admin bool, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := v.now()
	claims := Claims{
		UID:           uid,
		EmailVerified: emailVerified,
		Admin:         admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    v.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
}

// Parse verifies signature, expiry and issuer. Tokens without exp are rejected. A valid token whose e-mail is
// not verified yields its claims together with ErrEmailNotVerified.
func (v *Verifier) Parse(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID() == "" {
		return nil, ErrInvalidToken
	}
	if !claims.EmailVerified {
		return claims, ErrEmailNotVerified
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
