package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/ticket-chat-service/internal/errs"
)

// writeError maps domain errors onto HTTP statuses. Unclassified errors
// are logged and reported with a generic body.
func writeError(c *gin.Context, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, errs.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": clientMessage(err)})
	case errors.Is(err, errs.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, errs.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
	case errors.Is(err, errs.ErrAssigneeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "assignee not found"})
	case errors.Is(err, errs.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, errs.ErrTicketClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "ticket is closed"})
	default:
		log.Error("request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Any("err", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// clientMessage drops the sentinel prefix from "invalid argument: reason".
func clientMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, errs.ErrInvalidArgument.Error()+": "); i >= 0 {
		return msg[i+len(errs.ErrInvalidArgument.Error())+2:]
	}
	return msg
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
