// Package auth guards the HTTP import API with HS256 bearer tokens. The
// service runs inside facility networks behind a shared secret; there is no
// user store and no refresh flow, only a signed token naming the operator.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

// SubjectKey is the echo context key holding the authenticated subject.
const SubjectKey contextKey = "auth_subject"

// Claims is the token payload. Subject identifies the operator running
// imports, for the audit trail.
type Claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs a token for the given subject, valid for ttl. Used by the
// token subcommand and by tests.
func IssueToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Middleware validates the Authorization bearer token and stores its subject
// on the request context. Requests without a valid token get 401.
func Middleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(string(SubjectKey), claims.Subject)
			return next(c)
		}
	}
}

// Subject returns the authenticated subject, or "" outside the middleware.
func Subject(c echo.Context) string {
	s, _ := c.Get(string(SubjectKey)).(string)
	return s
}
