package models

import "time"

// RSVPStatus represents the attendance confirmation status
type RSVPStatus string

const (
	RSVPPending  RSVPStatus = "pending"
	RSVPAccepted RSVPStatus = "accepted"
	RSVPDeclined RSVPStatus = "declined"
)

// Terminal reports whether the status accepts no further transitions.
func (s RSVPStatus) Terminal() bool {
	return s == RSVPAccepted || s == RSVPDeclined
}

// Guest represents one invitee belonging to exactly one event, tracked
// through the send / delivery / RSVP lifecycle.
type Guest struct {
	ID                string `json:"id"`
	EventID           string `json:"event_id"`
	Name              string `json:"name"`
	Phone             string `json:"phone"`
	AccompanyingCount int    `json:"accompanying_count"`
	InviteImage       string `json:"invite_image,omitempty"`

	MessageSent   bool       `json:"message_sent"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	LastMessageID string     `json:"last_message_id,omitempty"`

	// FallbackAttempted latches true before the one permitted resend
	// and is never reset. It is the single source of truth preventing
	// a second retry no matter how many failure webhooks arrive.
	FallbackAttempted bool `json:"fallback_attempted"`

	RSVPStatus        RSVPStatus `json:"rsvp_status"`
	RSVPRespondedAt   *time.Time `json:"rsvp_responded_at,omitempty"`
	RawResponseText   string     `json:"raw_response_text,omitempty"`
	RefundedOnDecline bool       `json:"refunded_on_decline"`

	CreatedAt time.Time `json:"created_at"`
}
