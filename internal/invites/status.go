package invites

import (
	"context"

	"invite-engine/internal/models"
	"invite-engine/internal/template"
)

// HandleStatus consumes one delivery-status notification. The provider
// redelivers and reorders these freely, so everything here must be
// idempotent: the fallback latch decides who acts, not arrival order.
// Errors never propagate to the provider; the webhook is always ACKed.
func (s *Service) HandleStatus(ctx context.Context, evt models.StatusEvent) {
	switch evt.Status {
	case models.StatusFailed:
		s.handleFailed(ctx, evt)
	case models.StatusSent, models.StatusDelivered, models.StatusRead:
		s.log.Debug().
			Str("message_id", evt.ProviderMessageID).
			Str("status", evt.Status).
			Msg("Delivery status received")
	default:
		s.log.Info().
			Str("message_id", evt.ProviderMessageID).
			Str("status", evt.Status).
			Msg("Ignoring unknown delivery status")
	}
}

func (s *Service) handleFailed(ctx context.Context, evt models.StatusEvent) {
	guest, err := s.store.FindGuestByLastMessageID(ctx, evt.ProviderMessageID)
	if err != nil {
		// Unknown or stale message id. This also covers the race
		// where a status lands before the send was recorded; the
		// provider will redeliver if it matters.
		s.log.Warn().
			Str("message_id", evt.ProviderMessageID).
			Int("error_code", evt.ErrorCode).
			Msg("Failed status for unresolved message, dropping")
		return
	}

	if guest.FallbackAttempted {
		s.log.Info().
			Str("guest_id", guest.ID).
			Str("message_id", evt.ProviderMessageID).
			Msg("Fallback already attempted, delivery failure is terminal")
		return
	}

	event, err := s.store.GetEvent(ctx, guest.EventID)
	if err != nil {
		s.log.Error().Err(err).Str("guest_id", guest.ID).Msg("Could not load event for failed delivery")
		return
	}
	if !event.PackageTier.HasFallback() {
		s.log.Debug().
			Str("guest_id", guest.ID).
			Str("tier", string(event.PackageTier)).
			Msg("Tier has no fallback, delivery failure is terminal")
		return
	}

	s.attemptFallback(ctx, event, guest)
}

// attemptFallback performs the one permitted resend. The latch is
// written before the send: a duplicate failure arriving while the
// resend is in flight loses the conditional update and stops here.
func (s *Service) attemptFallback(ctx context.Context, event *models.Event, guest *models.Guest) {
	won, err := s.store.LatchFallback(ctx, guest.ID)
	if err != nil {
		s.log.Error().Err(err).Str("guest_id", guest.ID).Msg("Could not latch fallback flag")
		return
	}
	if !won {
		s.log.Info().Str("guest_id", guest.ID).Msg("Fallback already latched by concurrent delivery, skipping")
		return
	}

	messageID, err := s.sendKind(ctx, event, guest, template.KindFallback)
	if err != nil {
		// The latch is already set, so this failure is terminal: the
		// guest simply does not receive the invitation.
		s.log.Error().Err(err).
			Str("guest_id", guest.ID).
			Str("event_id", event.ID).
			Msg("Fallback send failed, giving up on guest")
		return
	}

	if err := s.store.RecordSend(ctx, guest.ID, messageID, s.now().UTC()); err != nil {
		s.log.Error().Err(err).
			Str("guest_id", guest.ID).
			Str("message_id", messageID).
			Msg("Fallback sent but not recorded")
		return
	}

	s.log.Info().
		Str("guest_id", guest.ID).
		Str("event_id", event.ID).
		Str("message_id", messageID).
		Msg("Fallback invitation sent")
}
