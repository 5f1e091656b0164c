package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type sendRequest struct {
	EventID string `json:"event_id" binding:"required"`
	GuestID string `json:"guest_id" binding:"required"`
}

type sendResponse struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

func (s *Server) handleSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
		return
	}

	messageID, err := s.svc.SendInvitation(c.Request.Context(), req.EventID, req.GuestID)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, sendResponse{Success: true, ProviderMessageID: messageID})
}

type sendBulkRequest struct {
	EventID  string   `json:"event_id" binding:"required"`
	GuestIDs []string `json:"guest_ids" binding:"required,min=1"`
}

func (s *Server) handleSendBulk(c *gin.Context) {
	var req sendBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
		return
	}

	outcomes := s.svc.SendBulk(c.Request.Context(), req.EventID, req.GuestIDs)
	c.JSON(http.StatusAccepted, gin.H{"outcomes": outcomes})
}
