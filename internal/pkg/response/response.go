package response

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// TooManyRequests writes the rate-limit rejection body and Retry-After header.
func TooManyRequests(c *gin.Context, message string, retryAfter int64) {
	c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
	c.JSON(http.StatusTooManyRequests, gin.H{
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"status":     http.StatusTooManyRequests,
		"error":      http.StatusText(http.StatusTooManyRequests),
		"message":    message,
		"retryAfter": retryAfter,
	})
}
