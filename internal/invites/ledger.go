package invites

import (
	"context"
	"math"

	"invite-engine/internal/models"
)

// TryRefund reclaims slots from an event's refund quota. Classic
// events never refund. The quota is initialized lazily on the first
// decline as floor(inviteCount × tier rate); the refund itself is a
// capacity-guarded update, so concurrent declines on one event cannot
// overdraw it.
func (s *Service) TryRefund(ctx context.Context, event *models.Event, slots int) (bool, error) {
	rate := event.PackageTier.RefundRate()
	if rate == 0 {
		return false, nil
	}
	if slots <= 0 {
		return false, nil
	}

	if event.RefundLedger.Total == 0 {
		total := int(math.Floor(float64(event.InviteCount) * rate))
		if total <= 0 {
			return false, nil
		}
		if err := s.store.InitRefundLedger(ctx, event.ID, total); err != nil {
			return false, err
		}
		s.log.Info().
			Str("event_id", event.ID).
			Int("total", total).
			Msg("Refund ledger initialized")
	}

	return s.store.TryRefund(ctx, event.ID, slots)
}
