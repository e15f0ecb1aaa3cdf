package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"linkshelf/internal/domain"
)

const (
	userIDKey  = "user_id"
	profileKey = "profile"
)

// Claims is the access token payload issued by the hosted auth provider.
type Claims struct {
	jwt.RegisteredClaims
	Email        string       `json:"email"`
	UserMetadata UserMetadata `json:"user_metadata"`
}

// UserMetadata carries the display fields of a profile.
type UserMetadata struct {
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
}

// Profile maps verified claims to the identity used by the link store.
func (c Claims) Profile() domain.Profile {
	name := c.UserMetadata.FullName
	if name == "" {
		name = c.Email
	}
	return domain.Profile{
		ID:        c.Subject,
		Name:      name,
		Email:     c.Email,
		AvatarURL: c.UserMetadata.AvatarURL,
	}
}

// AuthMiddleware verifies HS256 bearer tokens signed with secret and stores the
// caller's user id in the context. With an empty secret every request runs as
// guest.
func AuthMiddleware(secret string, guest domain.Profile) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Set(userIDKey, guest.ID)
			c.Set(profileKey, guest)
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		var claims Claims
		_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(t *jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		if claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has no subject"})
			return
		}

		c.Set(userIDKey, claims.Subject)
		c.Set(profileKey, claims.Profile())
		c.Next()
	}
}
