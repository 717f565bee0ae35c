// Package response provides shared gin response helpers.
package response

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "github.com/reelforge/server/internal/shared/errors"
)

// ErrorBody is the standard JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code          string   `json:"code"`
	Message       string   `json:"message"`
	EstimatedCost *float64 `json:"estimated_cost,omitempty"`
}

// Error writes a domain error as a JSON response. Approval-required outcomes
// are a distinct third result carrying the estimate, never collapsed into a
// plain failure.
func Error(c *gin.Context, err error) {
	status := apperrors.GetStatusCode(err)

	var approval *apperrors.RequiresApproval
	if errors.As(err, &approval) {
		cost := approval.EstimatedCost
		c.JSON(status, ErrorBody{Error: ErrorDetail{
			Code:          "PRECONDITION_FAILED",
			Message:       approval.Error(),
			EstimatedCost: &cost,
		}})
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		c.JSON(status, ErrorBody{Error: ErrorDetail{
			Code:    appErr.Code,
			Message: appErr.Message,
		}})
		return
	}

	c.JSON(status, ErrorBody{Error: ErrorDetail{
		Code:    "INTERNAL_ERROR",
		Message: err.Error(),
	}})
}

// BadRequest writes a 400 response for malformed input.
func BadRequest(c *gin.Context, message string) {
	Error(c, apperrors.BadRequest(message))
}
