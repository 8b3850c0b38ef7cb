package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the smallest accepted HMAC-SHA256 key, in bytes.
const MinSecretLength = 32

// MinTTL is the shortest token lifetime; expiry claims have second precision.
const MinTTL = time.Second

type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

type Claims struct {
	Type TokenType `json:"type"`
	jwtlib.RegisteredClaims
}

// Codec signs and parses HS256 tokens. It holds no state besides the key.
type Codec struct {
	secret  []byte
	strict  *jwtlib.Parser
	lenient *jwtlib.Parser
}

func NewCodec(secret string, now func() time.Time) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, &ConfigurationError{
			Field: "secret",
			Err:   fmt.Errorf("%w: got %d bytes, need at least %d", ErrSecretTooShort, len(secret), MinSecretLength),
		}
	}
	if now == nil {
		now = time.Now
	}

	methods := jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()})
	return &Codec{
		secret:  []byte(secret),
		strict:  jwtlib.NewParser(methods, jwtlib.WithTimeFunc(now), jwtlib.WithExpirationRequired()),
		lenient: jwtlib.NewParser(methods, jwtlib.WithoutClaimsValidation()),
	}, nil
}

func (c *Codec) Encode(claims *Claims) (string, error) {
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and the expiry.
func (c *Codec) Decode(raw string) (*Claims, error) {
	return c.parse(c.strict, raw)
}

// Inspect verifies the signature only, so expired tokens still yield their claims.
func (c *Codec) Inspect(raw string) (*Claims, error) {
	return c.parse(c.lenient, raw)
}

func (c *Codec) parse(p *jwtlib.Parser, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := p.ParseWithClaims(raw, claims, func(*jwtlib.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if !token.Valid {
		return nil, ErrMalformedToken
	}
	return claims, nil
}
