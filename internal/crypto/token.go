package crypto

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMalformed        = errors.New("malformed token")
)

// Claims are the only token claims the channel trusts.
type Claims struct {
	Issuer   string
	IssuedAt time.Time // zero when the token carried no iat
}

// TokenCodec signs and verifies HS256 bearer tokens carrying {iss, iat}.
type TokenCodec struct {
	now func() time.Time
}

// TokenOption configures a TokenCodec.
type TokenOption func(*TokenCodec)

// WithTokenClock sets the time source used for iat and age checks.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec creates a new token codec.
func NewTokenCodec(opts ...TokenOption) *TokenCodec {
	c := &TokenCodec{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sign produces a token whose payload is exactly {iss: channelID, iat: now}.
func (c *TokenCodec) Sign(channelID, secret string) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:   channelID,
		IssuedAt: jwt.NewNumericDate(c.now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify checks the token signature against secret and returns its claims.
// Issuer and freshness are not checked here; see Authorize.
func (c *TokenCodec) Verify(token, secret string) (*Claims, error) {
	var registered jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &registered, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	claims := &Claims{Issuer: registered.Issuer}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	return claims, nil
}

// Age returns how long ago the token was issued according to the codec clock.
func (c *TokenCodec) Age(claims *Claims) time.Duration {
	return c.now().Sub(claims.IssuedAt)
}

// Authorize reports whether verified claims were issued by channelID within maxAge.
// Tokens issued more than skew in the future, or without iat, are rejected.
func (c *TokenCodec) Authorize(claims *Claims, channelID string, maxAge, skew time.Duration) bool {
	if claims == nil || claims.IssuedAt.IsZero() {
		return false
	}
	if claims.Issuer != channelID {
		return false
	}
	age := c.Age(claims)
	return age <= maxAge && age >= -skew
}

// BearerToken extracts the token from an Authorization header value.
// It returns "" when the header is absent or not a Bearer credential.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" {
		return ""
	}
	return strings.TrimSpace(token)
}
