package middleware

import (
	"net/http"
	"strings"

	"github.com/fundacion-cms/content-scheduler/internal/reqctx"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	errUnauthorized = "Unauthorized"

	// ActorKey is the gin context key holding the authenticated user's id.
	ActorKey = "actor"
)

// Auth validates an HS256 Bearer JWT issued by the CMS and records its subject
// as the acting user.
func Auth(jwtKey []byte) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		claims := jwt.RegisteredClaims{}
		token, err := parser.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), &claims, func(*jwt.Token) (any, error) {
			return jwtKey, nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		c.Set(ActorKey, claims.Subject)
		c.Request = c.Request.WithContext(reqctx.WithActor(c.Request.Context(), claims.Subject))
		c.Next()
	}
}
