package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"invite-engine/internal/channel"
	"invite-engine/internal/models"
)

const (
	codeEventNotFound        = "event_not_found"
	codeGuestNotFound        = "guest_not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeInvalidTemplateInput = "invalid_template_input"
	codeInvalidTier          = "invalid_package_tier"
	codeDuplicatePhone       = "duplicate_phone"
	codeChannelError         = "channel_error"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, errorResponse{Error: msg, Code: code})
}

// writeDomainError maps engine errors onto HTTP statuses. Only the
// direct-send paths use this; webhook paths always ACK with 200.
func writeDomainError(c *gin.Context, err error) {
	var chErr *channel.ChannelError
	switch {
	case errors.Is(err, models.ErrEventNotFound):
		writeError(c, http.StatusNotFound, codeEventNotFound, err.Error())
	case errors.Is(err, models.ErrGuestNotFound):
		writeError(c, http.StatusNotFound, codeGuestNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidTemplateInput):
		writeError(c, http.StatusUnprocessableEntity, codeInvalidTemplateInput, err.Error())
	case errors.Is(err, models.ErrInvalidTier):
		writeError(c, http.StatusBadRequest, codeInvalidTier, err.Error())
	case errors.Is(err, models.ErrDuplicatePhone):
		writeError(c, http.StatusConflict, codeDuplicatePhone, err.Error())
	case errors.As(err, &chErr):
		writeError(c, http.StatusBadGateway, codeChannelError, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
