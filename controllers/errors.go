package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/chopchop-backend/services"
	"github.com/yeremiapane/chopchop-backend/utils"
)

// statusForError maps a service error code to an HTTP status.
func statusForError(err error) int {
	switch services.ErrorCode(err) {
	case services.CodeOrderNotFound, services.CodeVendorNotFound:
		return http.StatusNotFound
	case services.CodeValidation:
		return http.StatusBadRequest
	case services.CodeUpstream:
		return http.StatusBadGateway
	case services.CodeInvalidDocument:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func respondServiceError(c *gin.Context, err error) {
	code := statusForError(err)
	if code >= http.StatusInternalServerError {
		utils.ErrorLogger.WithField("path", c.FullPath()).WithError(err).Error("Request failed")
	}
	utils.RespondErrorCode(c, code, services.ErrorCode(err), err)
}

// respondWireError answers with the bare {error, details} shape used by the
// webhook and sync endpoints.
func respondWireError(c *gin.Context, summary string, err error) {
	code := statusForError(err)
	if code >= http.StatusInternalServerError {
		utils.ErrorLogger.WithField("path", c.FullPath()).WithError(err).Error(summary)
	}
	if code == http.StatusBadRequest {
		c.JSON(code, gin.H{"error": errorMessage(err)})
		return
	}
	c.JSON(code, gin.H{"error": summary, "details": err.Error()})
}

func errorMessage(err error) string {
	var se *services.ServiceError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
