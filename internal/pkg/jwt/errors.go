package jwt

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedToken      = errors.New("malformed token")
	ErrExpiredToken        = errors.New("token expired")
	ErrRevokedToken        = errors.New("token revoked")
	ErrWrongTokenType      = errors.New("wrong token type")
	ErrSubjectMismatch     = errors.New("token subject mismatch")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrSecretTooShort      = errors.New("signing secret too short")
)

// ConfigurationError is returned at construction time when the token
// service cannot be built from the supplied settings.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("jwt configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
