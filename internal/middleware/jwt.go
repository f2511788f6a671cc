package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

// Claims are the token claims the dataload API reads
type Claims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

func unauthorized(c *gin.Context, code, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
	c.Abort()
}

// JWTAuthMiddleware validates HMAC bearer tokens for deployments without an
// Istio sidecar. The token's tenant overrides any tenant header.
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "MISSING_TOKEN", "Authorization header is required")
			return
		}
		scheme, tokenString, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" || tokenString == "" {
			unauthorized(c, "INVALID_TOKEN_FORMAT", "Authorization header must be in format: Bearer <token>")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			unauthorized(c, "INVALID_TOKEN", "Invalid or expired token")
			return
		}
		if claims.UserID == "" {
			unauthorized(c, "INVALID_CLAIMS", "Token has no user")
			return
		}

		c.Set("userId", claims.UserID)
		c.Set("user_id", claims.UserID)
		c.Set("staff_id", claims.UserID)
		c.Set("user_email", claims.Email)
		if claims.TenantID != "" {
			c.Set("tenant_id", claims.TenantID)
		}
		c.Next()
	}
}
