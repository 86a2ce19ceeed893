package middleware

import (
	"fmt"
	"log"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"mongoscan/internal/apis/dtos"
)

// CustomRecoveryMiddleware turns a panic in a handler into a 500 response.
// An open scan is ended by the handler's deferred calls as the stack unwinds.
func CustomRecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Recovery -> %s %s -> Panic: %v\n%s", c.Request.Method, c.Request.URL.Path, err, debug.Stack())

				errorMsg := "Internal Server Error"
				if gin.IsDebugging() {
					errorMsg = fmt.Sprintf("Internal Server Error: %v", err)
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, dtos.Response{
					Success: false,
					Error:   &errorMsg,
				})
			}
		}()
		c.Next()
	}
}
