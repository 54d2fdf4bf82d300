package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CtxUserIDKey = "user_id"
	CtxRoleKey   = "role"
	CtxNameKey   = "user_name"
)

// RequireAuth validates "Authorization: Bearer <token>" and stores sub/role/name
// on the gin context.
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "not authorized, no token"})
			return
		}

		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid Authorization header"})
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "empty token"})
			return
		}

		// alg pinned to HS256 so "none" and key-confusion tokens are refused
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil || token == nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "not authorized, token failed"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid claims"})
			return
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid sub"})
			return
		}

		role, _ := claims["role"].(string)
		name, _ := claims["name"].(string)

		c.Set(CtxUserIDKey, sub)
		c.Set(CtxRoleKey, role)
		c.Set(CtxNameKey, name)
		c.Next()
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	roleSet := make(map[string]struct{})
	for _, r := range roles {
		if r == "" {
			continue
		}
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role := c.GetString(CtxRoleKey)
		if role == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "missing role"})
			return
		}
		if _, allowed := roleSet[role]; !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "access denied"})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller, or "" outside RequireAuth.
func UserID(c *gin.Context) string { return c.GetString(CtxUserIDKey) }

func IsAdmin(c *gin.Context) bool { return c.GetString(CtxRoleKey) == RoleAdmin }
