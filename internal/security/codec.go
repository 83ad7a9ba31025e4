package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind separates access tokens from refresh tokens that share one claim shape.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

const claimTokenUse = "token_use"

var reservedClaims = map[string]struct{}{
	"sub":         {},
	"jti":         {},
	"iss":         {},
	"iat":         {},
	"exp":         {},
	"nbf":         {},
	"aud":         {},
	claimTokenUse: {},
}

// Claims is the decoded, verified content of a token.
type Claims struct {
	Subject   string
	TokenID   string
	Issuer    string
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]interface{}
}

// StringClaim returns a non-registered claim as a string, or "" when absent.
func (c *Claims) StringClaim(name string) string {
	if c == nil {
		return ""
	}
	value, _ := c.Extra[name].(string)
	return value
}

// CodecOption customises a Codec.
type CodecOption func(*Codec)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// Codec mints and verifies signed, self-contained tokens. It performs no I/O and is
// safe for concurrent use.
type Codec struct {
	key    *SigningKey
	issuer string
	now    func() time.Time
}

// NewCodec builds a codec bound to a signing key and issuer.
func NewCodec(key *SigningKey, issuer string, opts ...CodecOption) *Codec {
	c := &Codec{key: key, issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mint produces a compact JWS. Extra claims never override registered ones.
func (c *Codec) Mint(kind TokenKind, subject, tokenID string, issuedAt time.Time, ttl time.Duration, extra map[string]interface{}) (string, error) {
	if subject == "" || tokenID == "" {
		return "", fmt.Errorf("%w: subject and token id are required", ErrMalformed)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: ttl must be positive", ErrMalformed)
	}
	if kind != KindAccess && kind != KindRefresh {
		return "", fmt.Errorf("%w: unknown token kind %q", ErrMalformed, kind)
	}

	claims := make(jwt.MapClaims, len(extra)+6)
	for name, value := range extra {
		if _, reserved := reservedClaims[name]; reserved {
			continue
		}
		claims[name] = value
	}
	claims["sub"] = subject
	claims["jti"] = tokenID
	claims["iss"] = c.issuer
	claims["iat"] = jwt.NewNumericDate(issuedAt)
	claims["exp"] = jwt.NewNumericDate(issuedAt.Add(ttl))
	claims[claimTokenUse] = string(kind)

	signed, err := jwt.NewWithClaims(c.key.method, claims).SignedString(c.key.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry. The returned error wraps exactly one of
// ErrMalformed, ErrSignatureInvalid or ErrExpired.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	parsed := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, parsed, c.key.keyFunc,
		jwt.WithValidMethods([]string{c.key.Algorithm()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}

	return claimsFromMap(parsed)
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

func claimsFromMap(m jwt.MapClaims) (*Claims, error) {
	subject, err := m.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	tokenID, _ := m["jti"].(string)
	if tokenID == "" {
		return nil, fmt.Errorf("%w: missing token id", ErrMalformed)
	}
	kind, _ := m[claimTokenUse].(string)
	if kind == "" {
		return nil, fmt.Errorf("%w: missing token use", ErrMalformed)
	}
	issuer, _ := m.GetIssuer()

	claims := &Claims{
		Subject: subject,
		TokenID: tokenID,
		Issuer:  issuer,
		Kind:    TokenKind(kind),
		Extra:   make(map[string]interface{}),
	}
	if iat, err := m.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := m.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	for name, value := range m {
		if _, reserved := reservedClaims[name]; !reserved {
			claims.Extra[name] = value
		}
	}
	return claims, nil
}
