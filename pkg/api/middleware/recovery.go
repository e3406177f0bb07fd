package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/procflow/procflow/pkg/faults"
	"github.com/procflow/procflow/pkg/telemetry"
)

// Recovery turns a handler panic into an unclassified fault response.
func Recovery(logger *telemetry.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"panic": fmt.Sprint(r),
					"path":  c.Request.URL.Path,
					"stack": string(debug.Stack()),
				}).Error("panic recovered")

				AbortWithProblem(c, faults.Unclassified(fmt.Errorf("panic: %v", r)).WithOperation(c.FullPath()))
			}
		}()
		c.Next()
	}
}
