package invites

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"invite-engine/internal/channel"
	"invite-engine/internal/models"
	"invite-engine/internal/template"
)

// Store is the persistence surface the engine needs. Every mutation is
// an atomic conditional update; the bool returns report whether the
// caller's write won the guard.
type Store interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetGuest(ctx context.Context, guestID string) (*models.Guest, error)
	FindGuestByLastMessageID(ctx context.Context, messageID string) (*models.Guest, error)
	FindGuestByPhoneAndMessageID(ctx context.Context, phone, messageID string) (*models.Guest, error)
	RecordSend(ctx context.Context, guestID, providerMessageID string, at time.Time) error
	LatchFallback(ctx context.Context, guestID string) (bool, error)
	TransitionRSVP(ctx context.Context, guestID string, status models.RSVPStatus, rawText string, at time.Time) (bool, error)
	InitRefundLedger(ctx context.Context, eventID string, total int) error
	TryRefund(ctx context.Context, eventID string, slots int) (bool, error)
	MarkRefunded(ctx context.Context, guestID string) error
}

// Options tunes the engine's policy knobs.
type Options struct {
	AcceptPayload      string
	DeclinePayload     string
	DefaultCountryCode string
	BulkSendDelay      time.Duration
	SendTimeout        time.Duration
}

// Service runs the invitation delivery and RSVP lifecycle: outbound
// sends, delivery-status handling with the one-shot fallback, reply
// classification, RSVP transitions and refund accounting.
type Service struct {
	store   Store
	channel channel.Channel
	builder *template.Builder
	opts    Options
	log     zerolog.Logger
	now     func() time.Time

	// sleep is swapped out in tests so bulk sends don't wait.
	sleep func(time.Duration)
}

func NewService(store Store, ch channel.Channel, builder *template.Builder, opts Options) *Service {
	if opts.AcceptPayload == "" {
		opts.AcceptPayload = "CONFIRM_ATTENDANCE"
	}
	if opts.DeclinePayload == "" {
		opts.DeclinePayload = "DECLINE_ATTENDANCE"
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	return &Service{
		store:   store,
		channel: ch,
		builder: builder,
		opts:    opts,
		log:     zerolog.New(os.Stdout).With().Timestamp().Str("component", "invites").Logger(),
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// SendInvitation builds and sends the initial invitation to one guest
// and records the provider message id as the guest's current send.
func (s *Service) SendInvitation(ctx context.Context, eventID, guestID string) (string, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return "", err
	}
	guest, err := s.store.GetGuest(ctx, guestID)
	if err != nil {
		return "", err
	}
	if guest.EventID != event.ID {
		return "", models.ErrGuestNotFound
	}

	messageID, err := s.sendKind(ctx, event, guest, template.KindInitial)
	if err != nil {
		return "", err
	}

	if err := s.store.RecordSend(ctx, guest.ID, messageID, s.now().UTC()); err != nil {
		// The message is already out; losing the marker means status
		// webhooks for it will not resolve. Surface it.
		return messageID, fmt.Errorf("invitation sent but not recorded: %w", err)
	}

	s.log.Info().
		Str("event_id", event.ID).
		Str("guest_id", guest.ID).
		Str("message_id", messageID).
		Msg("Invitation sent")

	return messageID, nil
}

// BulkOutcome is the per-guest result of a bulk send.
type BulkOutcome struct {
	GuestID           string `json:"guest_id"`
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

// SendBulk sends invitations to the listed guests sequentially with an
// inter-message delay to stay inside provider rate limits. A failed
// send does not stop the run.
func (s *Service) SendBulk(ctx context.Context, eventID string, guestIDs []string) []BulkOutcome {
	outcomes := make([]BulkOutcome, 0, len(guestIDs))
	for i, guestID := range guestIDs {
		if i > 0 && s.opts.BulkSendDelay > 0 {
			s.sleep(s.opts.BulkSendDelay)
		}

		messageID, err := s.SendInvitation(ctx, eventID, guestID)
		if err != nil {
			s.log.Warn().Err(err).Str("guest_id", guestID).Msg("Bulk send failed for guest")
			outcomes = append(outcomes, BulkOutcome{GuestID: guestID, Error: err.Error()})
			continue
		}
		outcomes = append(outcomes, BulkOutcome{GuestID: guestID, Success: true, ProviderMessageID: messageID})
	}
	return outcomes
}

// sendKind builds the descriptor for one template kind and performs a
// single channel send with a bounded timeout.
func (s *Service) sendKind(ctx context.Context, event *models.Event, guest *models.Guest, kind template.Kind) (string, error) {
	descriptor, err := s.builder.Build(event, guest, kind)
	if err != nil {
		return "", err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	defer cancel()

	messageID, err := s.channel.Send(sendCtx, descriptor)
	if err != nil {
		return "", err
	}
	return messageID, nil
}
