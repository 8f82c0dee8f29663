// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"repairtrack/internal/http/middleware"
	"repairtrack/internal/modules/job"
	"repairtrack/internal/modules/pricing"
	"repairtrack/internal/modules/request"
)

type errorResponse struct {
	Error  string                   `json:"error"`
	Detail *request.TransitionError `json:"detail,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeRequestError maps service errors to responses. Rule violations carry
// the full detail so the admin UI can show which field and values failed.
func writeRequestError(c *gin.Context, err error) {
	var te *request.TransitionError
	switch {
	case errors.As(err, &te):
		writeJSON(c, te.HTTPStatus(), errorResponse{Error: te.Error(), Detail: te})
	case errors.Is(err, request.ErrNotFound), errors.Is(err, job.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, request.ErrBadRequest), errors.Is(err, job.ErrBadRequest),
		errors.Is(err, pricing.ErrUnknownTier):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, request.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func actor(c *gin.Context) string {
	return middleware.CallerActor(c)
}
