package invites

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invite-engine/internal/models"
	"invite-engine/internal/template"
)

const testImage = "https://cdn.example.com/invites/header.jpg"

func testEvent(tier models.PackageTier) *models.Event {
	return &models.Event{
		ID:              "event-1",
		Name:            "Garden Party",
		HostName:        "Dana",
		PackageTier:     tier,
		InvitationImage: testImage,
		InvitationText:  "Join us for an evening in the garden",
		EventDate:       "2026-09-18",
		EventTime:       "19:00",
		Location:        "Rothschild 12, Tel Aviv",
		MapLink:         "https://maps.example.com/abc",
		InviteCount:     100,
	}
}

func testGuest(id, phone, lastMessageID string) *models.Guest {
	return &models.Guest{
		ID:                id,
		EventID:           "event-1",
		Name:              "Guest " + id,
		Phone:             phone,
		AccompanyingCount: 1,
		InviteImage:       testImage,
		MessageSent:       lastMessageID != "",
		LastMessageID:     lastMessageID,
		RSVPStatus:        models.RSVPPending,
	}
}

func newTestService(store *fakeStore, ch *fakeChannel) *Service {
	builder := template.NewBuilder(template.Config{
		Initial:      "event_invitation",
		Fallback:     "event_invitation_short",
		Reminder:     "event_reminder",
		Confirmation: "event_confirmation",
		ThankYou:     "event_thankyou",
		Language:     "en",
	})
	svc := NewService(store, ch, builder, Options{
		AcceptPayload:      "CONFIRM_ATTENDANCE",
		DeclinePayload:     "DECLINE_ATTENDANCE",
		DefaultCountryCode: "972",
	})
	svc.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	svc.sleep = func(time.Duration) {}
	return svc
}

func TestSendInvitation(t *testing.T) {
	t.Run("sends initial template and records message id", func(t *testing.T) {
		store := newFakeStore(
			[]*models.Event{testEvent(models.TierPremium)},
			[]*models.Guest{testGuest("g1", "+972501234001", "")},
		)
		ch := &fakeChannel{}
		svc := newTestService(store, ch)

		id, err := svc.SendInvitation(context.Background(), "event-1", "g1")
		require.NoError(t, err)
		assert.Equal(t, "wamid.1", id)
		assert.Equal(t, 1, ch.sendCount())
		assert.Equal(t, template.KindInitial, ch.lastSend().Kind)

		g := store.guest("g1")
		assert.True(t, g.MessageSent)
		assert.Equal(t, "wamid.1", g.LastMessageID)
		require.NotNil(t, g.SentAt)
	})

	t.Run("missing event image blocks the send entirely", func(t *testing.T) {
		event := testEvent(models.TierPremium)
		event.InvitationImage = ""
		store := newFakeStore(
			[]*models.Event{event},
			[]*models.Guest{testGuest("g1", "+972501234001", "")},
		)
		ch := &fakeChannel{}
		svc := newTestService(store, ch)

		_, err := svc.SendInvitation(context.Background(), "event-1", "g1")
		require.ErrorIs(t, err, models.ErrInvalidTemplateInput)
		assert.Equal(t, 0, ch.sendCount(), "channel must not be called on invalid template input")
		assert.False(t, store.guest("g1").MessageSent)
	})

	t.Run("guest from another event is not found", func(t *testing.T) {
		other := testGuest("g1", "+972501234001", "")
		other.EventID = "event-2"
		store := newFakeStore([]*models.Event{testEvent(models.TierPremium)}, []*models.Guest{other})
		svc := newTestService(store, &fakeChannel{})

		_, err := svc.SendInvitation(context.Background(), "event-1", "g1")
		require.ErrorIs(t, err, models.ErrGuestNotFound)
	})
}

func TestSendBulk(t *testing.T) {
	store := newFakeStore(
		[]*models.Event{testEvent(models.TierPremium)},
		[]*models.Guest{
			testGuest("g1", "+972501234001", ""),
			testGuest("g2", "+972501234002", ""),
		},
	)
	ch := &fakeChannel{}
	svc := newTestService(store, ch)

	outcomes := svc.SendBulk(context.Background(), "event-1", []string{"g1", "missing", "g2"})
	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].Success)
	assert.False(t, outcomes[1].Success)
	assert.NotEmpty(t, outcomes[1].Error)
	assert.True(t, outcomes[2].Success, "a failed guest must not stop the run")
	assert.Equal(t, 2, ch.sendCount())
}

func TestFallbackOnFailedDelivery(t *testing.T) {
	t.Run("failed status triggers exactly one fallback", func(t *testing.T) {
		store := newFakeStore(
			[]*models.Event{testEvent(models.TierPremium)},
			[]*models.Guest{testGuest("g1", "+972501234001", "M1")},
		)
		ch := &fakeChannel{}
		svc := newTestService(store, ch)

		svc.HandleStatus(context.Background(), models.StatusEvent{ProviderMessageID: "M1", Status: models.StatusFailed})

		g := store.guest("g1")
		assert.True(t, g.FallbackAttempted)
		assert.Equal(t, "wamid.1", g.LastMessageID, "fallback id overwrites the original")
		require.Equal(t, 1, ch.sendCount())
		assert.Equal(t, template.KindFallback, ch.lastSend().Kind)

		// Duplicate failure for the original id: the guest now hangs
		// off the new id, so it resolves nothing.
		svc.HandleStatus(context.Background(), models.StatusEvent{ProviderMessageID: "M1", Status: models.StatusFailed})
		assert.Equal(t, 1, ch.sendCount())

		// Failure of the fallback send itself is terminal.
		svc.HandleStatus(context.Background(), models.StatusEvent{ProviderMessageID: "wamid.1", Status: models.StatusFailed})
		assert.Equal(t, 1, ch.sendCount())
		assert.True(t, store.guest("g1").FallbackAttempted)
	})

	t.Run("at most two sends across many duplicate failures", func(t *testing.T) {
		store := newFakeStore(
			[]*models.Event{testEvent(models.TierVIP)},
			[]*models.Guest{testGuest("g1", "+972501234001", "")},
		)
		ch := &fakeChannel{}
		svc := newTestService(store, ch)

		first, err := svc.SendInvitation(context.Background(), "event-1", "g1")
		require.NoError(t, err)

		for i := 0; i < 10; i++ {
			svc.HandleStatus(context.Background(), models.StatusEvent{ProviderMessageID: first, Status: models.StatusFailed})
			svc.HandleStatus(context.Background(), models.StatusEvent{ProviderMessageID: store.guest("g1").LastMessageID, Status: models.StatusFailed})
		}

		assert.Equal(t, 2, ch.sendCount(), "initial plus one fallback, never more")
		assert.True(t, store.guest("g1").FallbackAttempted)
	})

	t.Run("classic tier gets no fallback", func(t *testing.T) {
		store := newFakeStore(
			[]*models.Event{testEvent(models.TierClassic)},
			[]*models.Guest{testGuest("g1", "+972501234001", "M1")},
		)
		ch := &fakeChannel{}
		svc := newTestService(store, ch)

		svc.HandleStatus(context.Background(), models.StatusEvent{ProviderMessageID: "M1", Status: models.StatusFailed})

		assert.Equal(t, 0, ch.sendCount())
		assert.False(t, store.guest("g1").FallbackAttempted)
	})

	t.Run("unresolved message id is dropped", func(t *testing.T) {
		store := newFakeStore([]*models.Event{testEvent(models.TierPremium)}, nil)
		ch := &fakeChannel{}
		svc := newTestService(store, ch)

		svc.HandleStatus(context.Background(), models.StatusEvent{ProviderMessageID: "unknown", Status: models.StatusFailed})
		assert.Equal(t, 0, ch.sendCount())
	})

	t.Run("fallback send failure after latch does not unlatch", func(t *testing.T) {
		store := newFakeStore(
			[]*models.Event{testEvent(models.TierPremium)},
			[]*models.Guest{testGuest("g1", "+972501234001", "M1")},
		)
		ch := &fakeChannel{err: errors.New("auth expired")}
		svc := newTestService(store, ch)

		svc.HandleStatus(context.Background(), models.StatusEvent{ProviderMessageID: "M1", Status: models.StatusFailed})

		g := store.guest("g1")
		assert.True(t, g.FallbackAttempted, "latch is written before the resend")
		assert.Equal(t, "M1", g.LastMessageID)

		// Redelivery cannot retry past the latch even though the
		// fallback never went out.
		ch.err = nil
		svc.HandleStatus(context.Background(), models.StatusEvent{ProviderMessageID: "M1", Status: models.StatusFailed})
		assert.Equal(t, 0, ch.sendCount())
	})

	t.Run("non-failed statuses are no-ops", func(t *testing.T) {
		store := newFakeStore(
			[]*models.Event{testEvent(models.TierPremium)},
			[]*models.Guest{testGuest("g1", "+972501234001", "M1")},
		)
		ch := &fakeChannel{}
		svc := newTestService(store, ch)

		for _, st := range []string{models.StatusSent, models.StatusDelivered, models.StatusRead, "warning"} {
			svc.HandleStatus(context.Background(), models.StatusEvent{ProviderMessageID: "M1", Status: st})
		}
		assert.Equal(t, 0, ch.sendCount())
		assert.False(t, store.guest("g1").FallbackAttempted)
	})
}

func TestHandleInbound(t *testing.T) {
	accept := models.InboundMessage{FromPhone: "972501234001", OriginalMessageID: "M2", ButtonPayload: "CONFIRM_ATTENDANCE"}
	decline := models.InboundMessage{FromPhone: "972501234001", OriginalMessageID: "M2", ButtonPayload: "DECLINE_ATTENDANCE"}

	t.Run("accept transitions and sends confirmation", func(t *testing.T) {
		store := newFakeStore(
			[]*models.Event{testEvent(models.TierPremium)},
			[]*models.Guest{testGuest("g1", "+972501234001", "M2")},
		)
		ch := &fakeChannel{}
		svc := newTestService(store, ch)

		svc.HandleInbound(context.Background(), accept)

		g := store.guest("g1")
		assert.Equal(t, models.RSVPAccepted, g.RSVPStatus)
		assert.Equal(t, "CONFIRM_ATTENDANCE", g.RawResponseText)
		require.NotNil(t, g.RSVPRespondedAt)
		require.Equal(t, 1, ch.sendCount())
		assert.Equal(t, template.KindConfirmation, ch.lastSend().Kind)
	})

	t.Run("confirmation failure does not roll back the acceptance", func(t *testing.T) {
		store := newFakeStore(
			[]*models.Event{testEvent(models.TierPremium)},
			[]*models.Guest{testGuest("g1", "+972501234001", "M2")},
		)
		ch := &fakeChannel{err: errors.New("provider down")}
		svc := newTestService(store, ch)

		svc.HandleInbound(context.Background(), accept)
		assert.Equal(t, models.RSVPAccepted, store.guest("g1").RSVPStatus)
	})

	t.Run("decline transitions and refunds", func(t *testing.T) {
		store := newFakeStore(
			[]*models.Event{testEvent(models.TierPremium)},
			[]*models.Guest{testGuest("g1", "+972501234001", "M2")},
		)
		ch := &fakeChannel{}
		svc := newTestService(store, ch)

		svc.HandleInbound(context.Background(), decline)

		g := store.guest("g1")
		assert.Equal(t, models.RSVPDeclined, g.RSVPStatus)
		assert.True(t, g.RefundedOnDecline)
		assert.Equal(t, 0, ch.sendCount(), "no confirmation on decline")

		e := store.event("event-1")
		assert.Equal(t, 20, e.RefundLedger.Total, "premium quota is 20% of 100 invites")
		assert.Equal(t, 1, e.RefundLedger.Used)
	})

	t.Run("terminal guest ignores replays of any classified reply", func(t *testing.T) {
		store := newFakeStore(
			[]*models.Event{testEvent(models.TierPremium)},
			[]*models.Guest{testGuest("g1", "+972501234001", "M2")},
		)
		ch := &fakeChannel{}
		svc := newTestService(store, ch)

		svc.HandleInbound(context.Background(), decline)
		first := store.guest("g1")
		usedBefore := store.event("event-1").RefundLedger.Used

		svc.HandleInbound(context.Background(), decline)
		svc.HandleInbound(context.Background(), accept)

		g := store.guest("g1")
		assert.Equal(t, models.RSVPDeclined, g.RSVPStatus)
		assert.Equal(t, first.RSVPRespondedAt, g.RSVPRespondedAt)
		assert.Equal(t, usedBefore, store.event("event-1").RefundLedger.Used, "replays never touch the ledger")
		assert.Equal(t, 0, ch.sendCount())
	})

	t.Run("stale message id does not resolve", func(t *testing.T) {
		store := newFakeStore(
			[]*models.Event{testEvent(models.TierPremium)},
			[]*models.Guest{testGuest("g1", "+972501234001", "M2")},
		)
		ch := &fakeChannel{}
		svc := newTestService(store, ch)

		stale := decline
		stale.OriginalMessageID = "M1"
		svc.HandleInbound(context.Background(), stale)

		assert.Equal(t, models.RSVPPending, store.guest("g1").RSVPStatus)
	})

	t.Run("unrecognized text produces no state change", func(t *testing.T) {
		store := newFakeStore(
			[]*models.Event{testEvent(models.TierPremium)},
			[]*models.Guest{testGuest("g1", "+972501234001", "M2")},
		)
		svc := newTestService(store, &fakeChannel{})

		svc.HandleInbound(context.Background(), models.InboundMessage{
			FromPhone:         "972501234001",
			OriginalMessageID: "M2",
			Text:              "what time does it start?",
		})
		assert.Equal(t, models.RSVPPending, store.guest("g1").RSVPStatus)
	})

	t.Run("free-text matching the payload literal classifies", func(t *testing.T) {
		store := newFakeStore(
			[]*models.Event{testEvent(models.TierPremium)},
			[]*models.Guest{testGuest("g1", "+972501234001", "M2")},
		)
		svc := newTestService(store, &fakeChannel{})

		svc.HandleInbound(context.Background(), models.InboundMessage{
			FromPhone:         "972501234001",
			OriginalMessageID: "M2",
			Text:              "  decline_attendance ",
		})
		assert.Equal(t, models.RSVPDeclined, store.guest("g1").RSVPStatus)
	})

	t.Run("empty reply shape is dropped", func(t *testing.T) {
		store := newFakeStore(
			[]*models.Event{testEvent(models.TierPremium)},
			[]*models.Guest{testGuest("g1", "+972501234001", "M2")},
		)
		svc := newTestService(store, &fakeChannel{})

		svc.HandleInbound(context.Background(), models.InboundMessage{
			FromPhone:         "972501234001",
			OriginalMessageID: "M2",
		})
		assert.Equal(t, models.RSVPPending, store.guest("g1").RSVPStatus)
	})
}

func TestRefundLedger(t *testing.T) {
	t.Run("premium scenario: 100 invites, declines of 8/8/8", func(t *testing.T) {
		guests := []*models.Guest{
			testGuest("g1", "+972501234001", "A1"),
			testGuest("g2", "+972501234002", "A2"),
			testGuest("g3", "+972501234003", "A3"),
		}
		for _, g := range guests {
			g.AccompanyingCount = 8
		}
		store := newFakeStore([]*models.Event{testEvent(models.TierPremium)}, guests)
		svc := newTestService(store, &fakeChannel{})

		for i, g := range guests {
			svc.HandleInbound(context.Background(), models.InboundMessage{
				FromPhone:         g.Phone,
				OriginalMessageID: g.LastMessageID,
				ButtonPayload:     "DECLINE_ATTENDANCE",
			})
			e := store.event("event-1")
			switch i {
			case 0:
				assert.Equal(t, 20, e.RefundLedger.Total)
				assert.Equal(t, 8, e.RefundLedger.Used)
			case 1:
				assert.Equal(t, 16, e.RefundLedger.Used)
			case 2:
				assert.Equal(t, 16, e.RefundLedger.Used, "4 remaining slots cannot cover 8")
			}
		}

		assert.True(t, store.guest("g1").RefundedOnDecline)
		assert.True(t, store.guest("g2").RefundedOnDecline)
		assert.False(t, store.guest("g3").RefundedOnDecline)
		assert.Equal(t, models.RSVPDeclined, store.guest("g3").RSVPStatus, "decline is recorded even without refund")
	})

	t.Run("classic tier never refunds or mutates", func(t *testing.T) {
		store := newFakeStore([]*models.Event{testEvent(models.TierClassic)}, nil)
		svc := newTestService(store, &fakeChannel{})

		event := store.event("event-1")
		refunded, err := svc.TryRefund(context.Background(), &event, 3)
		require.NoError(t, err)
		assert.False(t, refunded)

		after := store.event("event-1")
		assert.Equal(t, 0, after.RefundLedger.Total)
		assert.Equal(t, 0, after.RefundLedger.Used)
	})

	t.Run("vip rate is 30 percent", func(t *testing.T) {
		event := testEvent(models.TierVIP)
		store := newFakeStore([]*models.Event{event}, nil)
		svc := newTestService(store, &fakeChannel{})

		ev := store.event("event-1")
		refunded, err := svc.TryRefund(context.Background(), &ev, 5)
		require.NoError(t, err)
		assert.True(t, refunded)
		assert.Equal(t, 30, store.event("event-1").RefundLedger.Total)
		assert.Equal(t, 5, store.event("event-1").RefundLedger.Used)
	})

	t.Run("used never exceeds total under a decline storm", func(t *testing.T) {
		store := newFakeStore([]*models.Event{testEvent(models.TierPremium)}, nil)
		svc := newTestService(store, &fakeChannel{})

		for i := 0; i < 50; i++ {
			ev := store.event("event-1")
			_, err := svc.TryRefund(context.Background(), &ev, 3)
			require.NoError(t, err)
			after := store.event("event-1")
			assert.LessOrEqual(t, after.RefundLedger.Used, after.RefundLedger.Total)
		}
	})
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"972501234001", "+972501234001"},
		{"+972 50-123-4001", "+972501234001"},
		{"0501234001", "+972501234001"},
		{"9720501234001", "+972501234001"},
		{"(050) 123-4001", "+972501234001"},
		{"", ""},
		{"abc", ""},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.in, "972"); got != tc.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
