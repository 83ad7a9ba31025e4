package security

import (
	_ "crypto/sha256"
	_ "crypto/sha512"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// SigningKey holds the process-wide HMAC secret and algorithm. It is built once at
// startup and never mutated; replacing it invalidates every outstanding token.
type SigningKey struct {
	secret []byte
	method *jwt.SigningMethodHMAC
}

var hmacMethods = map[string]*jwt.SigningMethodHMAC{
	jwt.SigningMethodHS256.Alg(): jwt.SigningMethodHS256,
	jwt.SigningMethodHS384.Alg(): jwt.SigningMethodHS384,
	jwt.SigningMethodHS512.Alg(): jwt.SigningMethodHS512,
}

// NewSigningKey validates the secret against the algorithm's minimum key size.
func NewSigningKey(secret, algorithm string) (*SigningKey, error) {
	if secret == "" {
		return nil, errors.New("signing secret must not be empty")
	}
	method, ok := hmacMethods[strings.ToUpper(algorithm)]
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
	if minLen := method.Hash.Size(); len(secret) < minLen {
		return nil, fmt.Errorf("signing secret must be at least %d bytes for %s", minLen, method.Alg())
	}

	key := make([]byte, len(secret))
	copy(key, secret)
	return &SigningKey{secret: key, method: method}, nil
}

// Algorithm returns the JWS alg header value.
func (k *SigningKey) Algorithm() string {
	return k.method.Alg()
}

func (k *SigningKey) keyFunc(token *jwt.Token) (interface{}, error) {
	if token.Method.Alg() != k.method.Alg() {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return k.secret, nil
}
