package middleware

import (
	"github.com/gin-gonic/gin"

	"blinkroom/pkg/errors"
)

func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()

			c.JSON(errors.HTTPStatusFromError(err.Err), gin.H{
				"error": err.Error(),
			})
		}
	}
}
