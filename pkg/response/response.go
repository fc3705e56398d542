// Package response centralizes the gin JSON envelope the HTTP handlers
// use, matching the teacher's thin handler/service split: handlers
// marshal results and map domain errors to status codes, they never
// hold business logic.
package response

import (
	"github.com/gin-gonic/gin"

	"github.com/dimasergei/streampulse/pkg/streamerr"
)

// OK writes a 200 response with data as the body.
func OK(c *gin.Context, data interface{}) {
	c.JSON(200, data)
}

// Error maps err to its AppError status code (500 for a plain error)
// and writes a JSON error body.
func Error(c *gin.Context, err error) {
	status := streamerr.GetStatusCode(err)
	c.JSON(status, gin.H{"error": err.Error()})
}
