package guardedengineproxy

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
	"gotest.tools/assert"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func tokenIssuedAt(t *testing.T, secret []byte, issued time.Time) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": issued.Unix(),
	})
	signed, err := token.SignedString(secret)
	assert.NilError(t, err)
	return signed
}

func TestIssueAndVerify(t *testing.T) {
	a := NewAuthenticator(testSecret)
	token, err := a.IssueToken()
	assert.NilError(t, err)
	assert.NilError(t, a.VerifyToken(token))
}

func TestVerifySkewWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a := NewAuthenticator(testSecret)
	a.now = func() time.Time { return now }

	cases := []struct {
		name   string
		issued time.Time
		want   error
	}{
		{"59s old", now.Add(-59 * time.Second), nil},
		{"59s early", now.Add(59 * time.Second), nil},
		{"60s old", now.Add(-60 * time.Second), nil},
		{"61s old", now.Add(-61 * time.Second), ErrTokenIssuedAt},
		{"61s early", now.Add(61 * time.Second), ErrTokenIssuedAt},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := a.VerifyToken(tokenIssuedAt(t, testSecret, tc.issued))
			if tc.want == nil {
				assert.NilError(t, err)
			} else {
				assert.Assert(t, errors.Is(err, tc.want))
			}
		})
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a := NewAuthenticator(testSecret)
	token := tokenIssuedAt(t, []byte("not-the-shared-secret-at-all!!!!"), time.Now())
	assert.Assert(t, errors.Is(a.VerifyToken(token), ErrTokenSignature))
}

func TestVerifyRejectsMalformed(t *testing.T) {
	a := NewAuthenticator(testSecret)
	assert.Assert(t, errors.Is(a.VerifyToken("not.a.token"), ErrTokenMalformed))
	assert.Assert(t, errors.Is(a.VerifyToken(""), ErrTokenMissing))
}

func TestVerifyRejectsMissingIssuedAt(t *testing.T) {
	a := NewAuthenticator(testSecret)
	token := jwt.New(jwt.SigningMethodHS256)
	signed, err := token.SignedString(testSecret)
	assert.NilError(t, err)
	assert.Assert(t, errors.Is(a.VerifyToken(signed), ErrTokenMalformed))
}
