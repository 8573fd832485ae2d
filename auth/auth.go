package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrChallengeMismatch is returned when a token was signed for a different
// verification challenge.
var ErrChallengeMismatch = errors.New("token does not answer the issued challenge")

// AuthSpec describes authentication requirements for a route.
type AuthSpec struct {
	Require   bool
	Validator JWTValidator
}

// JWTClaims represents the structure of JWT token claims with standard registered claims
// and additional custom fields for the peer name and allowed routes.
type JWTClaims struct {
	jwt.RegisteredClaims
	Peer   string   `json:"peer,omitempty"`
	Routes []string `json:"routes,omitempty"`
}

// AllowsRoute reports whether the claims grant access to route. Claims
// without a route list allow every route.
func (c *JWTClaims) AllowsRoute(route string) bool {
	if len(c.Routes) == 0 {
		return true
	}
	for _, r := range c.Routes {
		if r == route || r == "*" {
			return true
		}
	}
	return false
}

// JWTValidator defines the interface for JWT token validation implementations.
type JWTValidator interface {
	ParseAndValidate(token string) (*JWTClaims, error)
}

// JwtHS256 implements JWTValidator for HS256 signing algorithm using a shared Secret.
type JwtHS256 struct {
	Secret []byte
}

// ParseAndValidate parses and validates a JWT token string using HS256 algorithm.
func (v *JwtHS256) ParseAndValidate(tokenStr string) (*JWTClaims, error) {
	tok, err := jwt.ParseWithClaims(tokenStr, &JWTClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return v.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*JWTClaims)
	if !ok || !tok.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// TokenOptions are the optional claims of a signed token.
type TokenOptions struct {
	ExpiresIn time.Duration
	Issuer    string
	Challenge string
	Routes    []string
}

// CreateTokenHS256 signs a token for peer. A non-empty Challenge is stored as
// the JWT ID so the token answers exactly one verification challenge.
func CreateTokenHS256(secret []byte, peer string, opts TokenOptions) (string, error) {
	now := time.Now().UTC()
	rc := jwt.RegisteredClaims{
		Subject:   peer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        opts.Challenge,
		Issuer:    opts.Issuer,
	}
	if opts.ExpiresIn > 0 {
		rc.ExpiresAt = jwt.NewNumericDate(now.Add(opts.ExpiresIn))
	}

	claims := &JWTClaims{
		RegisteredClaims: rc,
		Peer:             peer,
	}
	if len(opts.Routes) > 0 {
		claims.Routes = opts.Routes
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(secret)
}

// SignChallenge answers a verification challenge with a short-lived token.
func SignChallenge(secret []byte, peer, challenge string, ttl time.Duration) (string, error) {
	return CreateTokenHS256(secret, peer, TokenOptions{ExpiresIn: ttl, Challenge: challenge})
}

// VerifyChallenge validates token with v and checks that it was signed for
// challenge.
func VerifyChallenge(v JWTValidator, token, challenge string) (*JWTClaims, error) {
	claims, err := v.ParseAndValidate(token)
	if err != nil {
		return nil, err
	}
	if claims.ID != challenge {
		return nil, ErrChallengeMismatch
	}
	return claims, nil
}

// BearerFromRequest extracts a bearer token from the HTTP request.
// It checks both the Authorization header and access_token query parameter.
func BearerFromRequest(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		if tok := strings.TrimSpace(h[len("Bearer "):]); tok != "" {
			return tok, true
		}
	}
	if r.URL != nil {
		if q := r.URL.Query().Get("access_token"); q != "" {
			return q, true
		}
	}
	return "", false
}
