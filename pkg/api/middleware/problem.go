// Package middleware holds the gin middleware of the HTTP API.
package middleware

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/procflow/procflow/pkg/faults"
)

// AbortWithProblem writes err as an application/problem+json body and stops
// the handler chain.
func AbortWithProblem(c *gin.Context, err error) {
	p := faults.NewProblem(err)
	body, mErr := json.Marshal(p)
	if mErr != nil {
		body = []byte(`{"type":"` + faults.ProblemTypeBase + `unclassified","status":500}`)
		p.Status = 500
	}
	_ = c.Error(err)
	c.Data(p.Status, faults.ContentType, body)
	c.Abort()
}
