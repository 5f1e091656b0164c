package invites

import (
	"context"
	"fmt"
	"sync"
	"time"

	"invite-engine/internal/models"
	"invite-engine/internal/template"
)

// fakeStore is an in-memory Store with the same conditional-update
// semantics as the sqlite layer.
type fakeStore struct {
	mu     sync.Mutex
	events map[string]*models.Event
	guests map[string]*models.Guest
}

func newFakeStore(events []*models.Event, guests []*models.Guest) *fakeStore {
	s := &fakeStore{
		events: make(map[string]*models.Event),
		guests: make(map[string]*models.Guest),
	}
	for _, e := range events {
		cp := *e
		s.events[e.ID] = &cp
	}
	for _, g := range guests {
		cp := *g
		s.guests[g.ID] = &cp
	}
	return s
}

func (s *fakeStore) GetEvent(_ context.Context, id string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, models.ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *fakeStore) GetGuest(_ context.Context, guestID string) (*models.Guest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guests[guestID]
	if !ok {
		return nil, models.ErrGuestNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *fakeStore) FindGuestByLastMessageID(_ context.Context, messageID string) (*models.Guest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if messageID == "" {
		return nil, models.ErrGuestNotFound
	}
	for _, g := range s.guests {
		if g.LastMessageID == messageID {
			cp := *g
			return &cp, nil
		}
	}
	return nil, models.ErrGuestNotFound
}

func (s *fakeStore) FindGuestByPhoneAndMessageID(_ context.Context, phone, messageID string) (*models.Guest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if phone == "" || messageID == "" {
		return nil, models.ErrGuestNotFound
	}
	for _, g := range s.guests {
		if g.Phone == phone && g.LastMessageID == messageID {
			cp := *g
			return &cp, nil
		}
	}
	return nil, models.ErrGuestNotFound
}

func (s *fakeStore) RecordSend(_ context.Context, guestID, providerMessageID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guests[guestID]
	if !ok {
		return models.ErrGuestNotFound
	}
	g.MessageSent = true
	g.LastMessageID = providerMessageID
	t := at
	g.SentAt = &t
	return nil
}

func (s *fakeStore) LatchFallback(_ context.Context, guestID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guests[guestID]
	if !ok {
		return false, models.ErrGuestNotFound
	}
	if g.FallbackAttempted {
		return false, nil
	}
	g.FallbackAttempted = true
	return true, nil
}

func (s *fakeStore) TransitionRSVP(_ context.Context, guestID string, status models.RSVPStatus, rawText string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guests[guestID]
	if !ok {
		return false, models.ErrGuestNotFound
	}
	if g.RSVPStatus != models.RSVPPending {
		return false, nil
	}
	g.RSVPStatus = status
	g.RawResponseText = rawText
	t := at
	g.RSVPRespondedAt = &t
	return true, nil
}

func (s *fakeStore) InitRefundLedger(_ context.Context, eventID string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return models.ErrEventNotFound
	}
	if e.RefundLedger.Total == 0 {
		e.RefundLedger.Total = total
	}
	return nil
}

func (s *fakeStore) TryRefund(_ context.Context, eventID string, slots int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return false, models.ErrEventNotFound
	}
	if slots <= 0 || e.RefundLedger.Total-e.RefundLedger.Used < slots {
		return false, nil
	}
	e.RefundLedger.Used += slots
	return true, nil
}

func (s *fakeStore) MarkRefunded(_ context.Context, guestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guests[guestID]
	if !ok {
		return models.ErrGuestNotFound
	}
	g.RefundedOnDecline = true
	return nil
}

func (s *fakeStore) guest(id string) models.Guest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.guests[id]
}

func (s *fakeStore) event(id string) models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.events[id]
}

// fakeChannel records every send and hands out sequential message ids.
type fakeChannel struct {
	mu    sync.Mutex
	sends []template.Descriptor
	next  int
	err   error
}

func (c *fakeChannel) Send(_ context.Context, d template.Descriptor) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.sends = append(c.sends, d)
	c.next++
	return fmt.Sprintf("wamid.%d", c.next), nil
}

func (c *fakeChannel) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sends)
}

func (c *fakeChannel) lastSend() template.Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sends[len(c.sends)-1]
}
