package guardedengineproxy

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
)

// issued-at skew tolerated by engine authentication, per the Engine API
// authentication spec.
const authTokenSkew = 60 * time.Second

var (
	// ErrTokenMalformed is returned when a bearer token cannot be parsed.
	ErrTokenMalformed = errors.New("auth: malformed token")
	// ErrTokenSignature is returned when a token's signature does not
	// verify against the shared secret.
	ErrTokenSignature = errors.New("auth: invalid token signature")
	// ErrTokenIssuedAt is returned when a token's issue time is outside
	// the tolerated clock-skew window.
	ErrTokenIssuedAt = errors.New("auth: token issued-at outside tolerance")
	// ErrTokenMissing is returned when no bearer token was supplied.
	ErrTokenMissing = errors.New("auth: missing token")
)

// Authenticator issues and verifies the short-lived HS256 bearer tokens
// used on calls to the authenticated execution node. The shared symmetric
// secret is fixed for the process lifetime.
type Authenticator struct {
	secret []byte
	// now is replaceable for tests.
	now func() time.Time
}

// NewAuthenticator returns an Authenticator over the given shared secret.
func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret, now: time.Now}
}

// IssueToken signs a fresh token carrying the current time as its
// issued-at claim.
func (a *Authenticator) IssueToken() (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": a.now().Unix(),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "auth: could not sign token")
	}
	return signed, nil
}

// VerifyToken checks a bearer token's signature and its issued-at claim
// against a ±60s window around the local clock. Malformed tokens, bad
// signatures and out-of-window issue times are distinct errors.
func (a *Authenticator) VerifyToken(tokenString string) error {
	if tokenString == "" {
		return ErrTokenMissing
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		// iat is range-checked below against the skew window instead of
		// the library's not-after-now rule.
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrTokenSignature
	default:
		return ErrTokenMalformed
	}

	iatValue, ok := claims["iat"]
	if !ok {
		return ErrTokenMalformed
	}
	iat, ok := iatValue.(float64)
	if !ok {
		return ErrTokenMalformed
	}
	issued := time.Unix(int64(iat), 0)
	drift := a.now().Sub(issued)
	if drift < 0 {
		drift = -drift
	}
	if drift > authTokenSkew {
		return ErrTokenIssuedAt
	}
	return nil
}
