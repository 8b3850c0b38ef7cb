package auth

import "errors"

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailAlreadyExists  = errors.New("email already exists")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidGoogleToken  = errors.New("invalid google token")
	ErrGoogleDisabled      = errors.New("google sign-in is not configured")
)
