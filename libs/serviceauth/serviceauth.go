// Package serviceauth implements the shared-key credential exchanged between
// internal services. Every collaborator call carries the key in a header; the
// receiving side compares it in constant time.
package serviceauth

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const Header = "X-Service-Key"

var ErrInvalidKey = errors.New("invalid service key")

// Attach sets the service credential on an outbound request.
func Attach(req *http.Request, key string) {
	if key != "" {
		req.Header.Set(Header, key)
	}
}

// Verify checks a presented key against the expected one.
func Verify(presented, expected string) error {
	if expected == "" {
		// Credential checking disabled (local dev, tests).
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
		return ErrInvalidKey
	}
	return nil
}

// Middleware rejects requests without a valid service key.
func Middleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := Verify(c.GetHeader(Header), expected); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "UNAUTHORIZED",
				"message": "invalid service credential",
			})
			return
		}
		c.Next()
	}
}
