package invites

import (
	"context"
	"strings"

	"invite-engine/internal/models"
	"invite-engine/internal/template"
)

// HandleInbound consumes one guest reply. Attribution uses the
// compound (phone, original message id) key so a reply lands on the
// invitation that solicited it, never on a stale earlier send. Like
// the status path, this never surfaces errors to the provider.
func (s *Service) HandleInbound(ctx context.Context, msg models.InboundMessage) {
	phone := NormalizePhone(msg.FromPhone, s.opts.DefaultCountryCode)

	guest, err := s.store.FindGuestByPhoneAndMessageID(ctx, phone, msg.OriginalMessageID)
	if err != nil {
		s.log.Warn().
			Str("phone", phone).
			Str("message_id", msg.OriginalMessageID).
			Msg("Inbound reply did not resolve to a guest, dropping")
		return
	}

	reply := msg.Reply()
	if reply == "" {
		s.log.Warn().
			Str("guest_id", guest.ID).
			Msg("Inbound reply has no recognizable text or button payload, dropping")
		return
	}

	status, recognized := s.classify(reply)
	if !recognized {
		s.log.Info().
			Str("guest_id", guest.ID).
			Str("reply", reply).
			Msg("Unrecognized reply, no state change")
		return
	}

	if guest.RSVPStatus.Terminal() {
		s.log.Info().
			Str("guest_id", guest.ID).
			Str("status", string(guest.RSVPStatus)).
			Msg("Guest already responded, ignoring duplicate reply")
		return
	}

	switch status {
	case models.RSVPAccepted:
		s.accept(ctx, guest, reply)
	case models.RSVPDeclined:
		s.decline(ctx, guest, reply)
	}
}

// classify maps a reply onto an RSVP outcome. Exactly two payload
// literals are accepted; everything else is unrecognized.
func (s *Service) classify(reply string) (models.RSVPStatus, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(reply))
	switch normalized {
	case strings.ToUpper(s.opts.AcceptPayload):
		return models.RSVPAccepted, true
	case strings.ToUpper(s.opts.DeclinePayload):
		return models.RSVPDeclined, true
	default:
		return "", false
	}
}

func (s *Service) accept(ctx context.Context, guest *models.Guest, rawText string) {
	won, err := s.store.TransitionRSVP(ctx, guest.ID, models.RSVPAccepted, rawText, s.now().UTC())
	if err != nil {
		s.log.Error().Err(err).Str("guest_id", guest.ID).Msg("Could not record acceptance")
		return
	}
	if !won {
		s.log.Info().Str("guest_id", guest.ID).Msg("Acceptance lost the transition guard, already responded")
		return
	}

	s.log.Info().Str("guest_id", guest.ID).Str("event_id", guest.EventID).Msg("Guest accepted")

	// The RSVP fact is committed; confirmation deliverability does not
	// roll it back.
	event, err := s.store.GetEvent(ctx, guest.EventID)
	if err != nil {
		s.log.Error().Err(err).Str("guest_id", guest.ID).Msg("Could not load event for confirmation send")
		return
	}
	messageID, err := s.sendKind(ctx, event, guest, template.KindConfirmation)
	if err != nil {
		s.log.Warn().Err(err).Str("guest_id", guest.ID).Msg("Confirmation send failed")
		return
	}
	s.log.Info().Str("guest_id", guest.ID).Str("message_id", messageID).Msg("Confirmation sent")
}

func (s *Service) decline(ctx context.Context, guest *models.Guest, rawText string) {
	won, err := s.store.TransitionRSVP(ctx, guest.ID, models.RSVPDeclined, rawText, s.now().UTC())
	if err != nil {
		s.log.Error().Err(err).Str("guest_id", guest.ID).Msg("Could not record decline")
		return
	}
	if !won {
		s.log.Info().Str("guest_id", guest.ID).Msg("Decline lost the transition guard, already responded")
		return
	}

	s.log.Info().Str("guest_id", guest.ID).Str("event_id", guest.EventID).Msg("Guest declined")

	event, err := s.store.GetEvent(ctx, guest.EventID)
	if err != nil {
		s.log.Error().Err(err).Str("guest_id", guest.ID).Msg("Could not load event for refund accounting")
		return
	}

	refunded, err := s.TryRefund(ctx, event, guest.AccompanyingCount)
	if err != nil {
		s.log.Error().Err(err).Str("guest_id", guest.ID).Msg("Refund accounting failed")
		return
	}
	if !refunded {
		s.log.Info().
			Str("guest_id", guest.ID).
			Str("event_id", event.ID).
			Int("slots", guest.AccompanyingCount).
			Msg("Decline recorded without refund")
		return
	}

	if err := s.store.MarkRefunded(ctx, guest.ID); err != nil {
		s.log.Error().Err(err).Str("guest_id", guest.ID).Msg("Could not mark guest refunded")
		return
	}
	s.log.Info().
		Str("guest_id", guest.ID).
		Str("event_id", event.ID).
		Int("slots", guest.AccompanyingCount).
		Msg("Refund slots reclaimed for decline")
}

// NormalizePhone normalizes phone numbers to E.164. Formatting
// characters are stripped, local numbers with a leading zero get the
// default country code, and the + prefix is restored because the
// provider delivers bare digits.
func NormalizePhone(phone, defaultCountryCode string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	number := digits.String()
	if number == "" {
		return ""
	}

	if strings.HasPrefix(number, "0") && defaultCountryCode != "" {
		number = defaultCountryCode + number[1:]
	}
	// Some providers keep the local zero after the country code.
	if defaultCountryCode != "" && strings.HasPrefix(number, defaultCountryCode+"0") {
		number = defaultCountryCode + number[len(defaultCountryCode)+1:]
	}

	return "+" + number
}
