package middlewares

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mongoscan/config"
	"mongoscan/internal/apis/dtos"
	"mongoscan/internal/di"
	"mongoscan/internal/utils"
)

// AuthMiddleware protects the API with bearer tokens when JWT_SECRET is set.
// Without a secret every request passes.
func AuthMiddleware() gin.HandlerFunc {
	if config.Env.JWTSecret == "" {
		return func(c *gin.Context) { c.Next() }
	}

	var jwtService utils.JWTService
	if err := di.DiContainer.Invoke(func(service utils.JWTService) {
		jwtService = service
	}); err != nil {
		log.Fatalf("Failed to provide JWT service: %v", err)
	}
	return BearerAuth(jwtService)
}

// BearerAuth validates the Authorization header and stores the token
// subject under "subject".
func BearerAuth(jwtService utils.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, "Authorization header is required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abort(c, "Invalid authorization header format")
			return
		}

		subject, err := jwtService.ValidateToken(parts[1])
		if err != nil {
			log.Printf("AuthMiddleware -> BearerAuth -> Rejected token: %v", err)
			abort(c, "Invalid or expired token")
			return
		}

		c.Set("subject", *subject)
		c.Next()
	}
}

func abort(c *gin.Context, errorMsg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, dtos.Response{
		Success: false,
		Error:   &errorMsg,
	})
}
