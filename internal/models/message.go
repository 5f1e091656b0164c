package models

// Delivery status values reported by the messaging provider. Anything
// outside this set is logged and ignored.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// StatusEvent is one asynchronous delivery-status notification, keyed
// by the provider-assigned message identifier.
type StatusEvent struct {
	ProviderMessageID string `json:"provider_message_id"`
	Status            string `json:"status"`
	ErrorCode         int    `json:"error_code,omitempty"`
	ErrorDetail       string `json:"error_detail,omitempty"`
}

// InboundMessage is one guest reply delivered by the provider. Exactly
// one of Text / ButtonPayload is expected to be populated.
type InboundMessage struct {
	FromPhone         string `json:"from_phone"`
	OriginalMessageID string `json:"original_message_id,omitempty"`
	Text              string `json:"text,omitempty"`
	ButtonPayload     string `json:"button_payload,omitempty"`
}

// Reply returns whichever reply field the provider populated, or ""
// when the message shape is unknown.
func (m InboundMessage) Reply() string {
	if m.ButtonPayload != "" {
		return m.ButtonPayload
	}
	return m.Text
}
