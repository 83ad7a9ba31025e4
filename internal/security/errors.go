package security

import "errors"

// Token rejection reasons. Callers must surface all of them identically to clients;
// they stay distinct for logging and metrics only.
var (
	ErrMalformed        = errors.New("token malformed")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrRevoked          = errors.New("token revoked")
)
