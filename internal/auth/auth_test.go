package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/proctorquiz/internal/auth"
	"github.com/victornm/proctorquiz/internal/errors"
)

const testSecret = "test-secret"

func TestVerify(t *testing.T) {
	tests := map[string]struct {
		token func(t *testing.T) string

		wantUserID string
		wantCode   errors.Code
	}{
		"a valid token yields the user ID": {
			token: func(t *testing.T) string {
				return signToken(t, auth.Claims{UserID: "user-1"}, testSecret)
			},

			wantUserID: "user-1",
		},

		"a token signed with another secret is rejected": {
			token: func(t *testing.T) string {
				return signToken(t, auth.Claims{UserID: "user-1"}, "other-secret")
			},

			wantCode: errors.CodeUnauthenticated,
		},

		"an expired token is rejected": {
			token: func(t *testing.T) string {
				return signToken(t, auth.Claims{
					UserID: "user-1",
					RegisteredClaims: jwt.RegisteredClaims{
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
					},
				}, testSecret)
			},

			wantCode: errors.CodeUnauthenticated,
		},

		"a token without a user is rejected": {
			token: func(t *testing.T) string {
				return signToken(t, auth.Claims{}, testSecret)
			},

			wantCode: errors.CodeUnauthenticated,
		},

		"garbage is rejected": {
			token: func(t *testing.T) string {
				return "not-a-jwt"
			},

			wantCode: errors.CodeUnauthenticated,
		},

		"an unsigned token is rejected": {
			token: func(t *testing.T) string {
				tok := jwt.NewWithClaims(jwt.SigningMethodNone, auth.Claims{UserID: "user-1"})
				s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return s
			},

			wantCode: errors.CodeUnauthenticated,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			userID, err := auth.Verify(tt.token(t), testSecret)

			if tt.wantCode != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.Convert(err).Code)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantUserID, userID)
		})
	}
}

func signToken(t *testing.T, claims auth.Claims, secret string) string {
	t.Helper()

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}
