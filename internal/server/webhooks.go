package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"invite-engine/internal/models"
)

// webhookPayload is the (trimmed) WhatsApp Cloud API webhook envelope.
// Both the status and message endpoints receive this shape.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Statuses []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
					Errors []struct {
						Code  int    `json:"code"`
						Title string `json:"title"`
					} `json:"errors"`
				} `json:"statuses"`
				Messages []struct {
					From string `json:"from"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
					Button struct {
						Payload string `json:"payload"`
						Text    string `json:"text"`
					} `json:"button"`
					Interactive struct {
						ButtonReply struct {
							ID    string `json:"id"`
							Title string `json:"title"`
						} `json:"button_reply"`
					} `json:"interactive"`
					Context struct {
						ID string `json:"id"`
					} `json:"context"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// handleVerify answers the provider's subscription handshake.
func (s *Server) handleVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == s.cfg.VerifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	c.Status(http.StatusForbidden)
}

// handleStatusWebhook consumes delivery-status notifications. It
// always returns 200: a non-2xx answer makes the provider redeliver in
// a retry storm, and every internal failure here is already terminal
// and logged inside the engine.
func (s *Server) handleStatusWebhook(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.log.Warn().Err(err).Msg("Undecodable status webhook body")
		c.Status(http.StatusOK)
		return
	}

	ctx := c.Request.Context()
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, st := range change.Value.Statuses {
				evt := models.StatusEvent{
					ProviderMessageID: st.ID,
					Status:            st.Status,
				}
				if len(st.Errors) > 0 {
					evt.ErrorCode = st.Errors[0].Code
					evt.ErrorDetail = st.Errors[0].Title
				}
				s.svc.HandleStatus(ctx, evt)
			}
		}
	}

	c.Status(http.StatusOK)
}

// handleMessageWebhook consumes inbound guest replies. Same always-200
// contract as the status endpoint.
func (s *Server) handleMessageWebhook(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.log.Warn().Err(err).Msg("Undecodable message webhook body")
		c.Status(http.StatusOK)
		return
	}

	ctx := c.Request.Context()
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				inbound := models.InboundMessage{
					FromPhone:         msg.From,
					OriginalMessageID: msg.Context.ID,
					Text:              msg.Text.Body,
				}
				// Button payload wins over free text; the interactive
				// variant is the same thing in newer API versions.
				if msg.Button.Payload != "" {
					inbound.ButtonPayload = msg.Button.Payload
				} else if msg.Interactive.ButtonReply.ID != "" {
					inbound.ButtonPayload = msg.Interactive.ButtonReply.ID
				}
				s.svc.HandleInbound(ctx, inbound)
			}
		}
	}

	c.Status(http.StatusOK)
}
