package auth

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/victornm/proctorquiz/internal/errors"
)

// Token issuance is external: this package only verifies bearer tokens
// minted by the auth collaborator and extracts the caller identity.

const userIDKey = "auth.user_id"

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Verify parses and validates an HS256 token, returning the user ID.
func Verify(token, secret string) (string, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid token"),
			errors.WithCause(err))
	}

	if claims.UserID == "" {
		return "", errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("token has no user"))
	}

	return claims.UserID, nil
}

// Middleware authenticates requests via the Authorization bearer header.
// WebSocket upgrades cannot set headers from browsers, so a "token" query
// parameter is accepted as a fallback.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			e := errors.New(errors.CodeUnauthenticated, errors.WithMessagef("missing credentials"))
			c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
			return
		}

		userID, err := Verify(token, secret)
		if err != nil {
			e := errors.Convert(err)
			c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated caller set by Middleware.
func UserID(c *gin.Context) string {
	v, _ := c.Get(userIDKey)
	id, _ := v.(string)
	return id
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h == "" {
		return ""
	}

	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return parts[1]
}
