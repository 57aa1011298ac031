package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"farmledger/pkg/errutil"
)

func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil {
			return
		}

		if v, ok := err.Err.(errutil.BaseError); ok {
			c.JSON(v.Code.HTTPCode(), v.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{
			"code":    errutil.StatusInternal,
			"message": err.Error(),
		}})
	}
}
