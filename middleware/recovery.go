package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"shifttrack/utils"

	"github.com/gin-gonic/gin"
)

func EnhancedRecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID, _ := c.Get("request_id")
				log.Printf("Panic serving %s %s (request %v): %v\n%s",
					c.Request.Method, c.Request.URL.Path, requestID, err, debug.Stack())
				utils.TrackError("http", "panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
			}
		}()
		c.Next()
	}
}
