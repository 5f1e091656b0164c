package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"invite-engine/internal/models"
)

// Storage persists events and guests in sqlite. Every mutation the
// engine's correctness depends on (fallback latch, RSVP transition,
// ledger init and refund) is a single guarded UPDATE so that duplicate
// webhooks racing each other resolve through RowsAffected, not through
// load-mutate-save.
type Storage struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	host_name        TEXT NOT NULL DEFAULT '',
	package_tier     TEXT NOT NULL,
	invitation_image TEXT NOT NULL DEFAULT '',
	invitation_text  TEXT NOT NULL DEFAULT '',
	event_date       TEXT NOT NULL DEFAULT '',
	event_time       TEXT NOT NULL DEFAULT '',
	location         TEXT NOT NULL DEFAULT '',
	map_link         TEXT NOT NULL DEFAULT '',
	refund_total     INTEGER NOT NULL DEFAULT 0,
	refund_used      INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS guests (
	id                  TEXT PRIMARY KEY,
	event_id            TEXT NOT NULL REFERENCES events(id),
	name                TEXT NOT NULL,
	phone               TEXT NOT NULL,
	accompanying_count  INTEGER NOT NULL DEFAULT 1,
	invite_image        TEXT NOT NULL DEFAULT '',
	message_sent        INTEGER NOT NULL DEFAULT 0,
	sent_at             TIMESTAMP,
	last_message_id     TEXT NOT NULL DEFAULT '',
	fallback_attempted  INTEGER NOT NULL DEFAULT 0,
	rsvp_status         TEXT NOT NULL DEFAULT 'pending',
	rsvp_responded_at   TIMESTAMP,
	raw_response_text   TEXT NOT NULL DEFAULT '',
	refunded_on_decline INTEGER NOT NULL DEFAULT 0,
	created_at          TIMESTAMP NOT NULL,
	UNIQUE(event_id, phone)
);

CREATE INDEX IF NOT EXISTS idx_guests_last_message ON guests(last_message_id);
CREATE INDEX IF NOT EXISTS idx_guests_phone ON guests(phone);
`

// NewStorage opens (creating if needed) the sqlite database at path.
func NewStorage(path string) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// CreateEvent inserts a new event and assigns its id.
func (s *Storage) CreateEvent(ctx context.Context, event *models.Event) error {
	if !event.PackageTier.Valid() {
		return models.ErrInvalidTier
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, name, host_name, package_tier, invitation_image, invitation_text,
			event_date, event_time, location, map_link, refund_total, refund_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Name, event.HostName, string(event.PackageTier), event.InvitationImage,
		event.InvitationText, event.EventDate, event.EventTime, event.Location, event.MapLink,
		event.RefundLedger.Total, event.RefundLedger.Used, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetEvent loads one event with its refund ledger and invite count.
func (s *Storage) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT e.id, e.name, e.host_name, e.package_tier, e.invitation_image, e.invitation_text,
			e.event_date, e.event_time, e.location, e.map_link, e.refund_total, e.refund_used,
			e.created_at, (SELECT COUNT(*) FROM guests g WHERE g.event_id = e.id)
		FROM events e WHERE e.id = ?`, id)

	var ev models.Event
	var tier string
	err := row.Scan(&ev.ID, &ev.Name, &ev.HostName, &tier, &ev.InvitationImage, &ev.InvitationText,
		&ev.EventDate, &ev.EventTime, &ev.Location, &ev.MapLink,
		&ev.RefundLedger.Total, &ev.RefundLedger.Used, &ev.CreatedAt, &ev.InviteCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load event: %w", err)
	}
	ev.PackageTier = models.PackageTier(tier)
	return &ev, nil
}

// CreateGuest inserts a new guest and assigns its id. Phone numbers
// are unique within an event.
func (s *Storage) CreateGuest(ctx context.Context, guest *models.Guest) error {
	if guest.ID == "" {
		guest.ID = uuid.NewString()
	}
	if guest.CreatedAt.IsZero() {
		guest.CreatedAt = time.Now().UTC()
	}
	if guest.RSVPStatus == "" {
		guest.RSVPStatus = models.RSVPPending
	}
	if guest.AccompanyingCount < 1 {
		guest.AccompanyingCount = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guests (id, event_id, name, phone, accompanying_count, invite_image,
			message_sent, last_message_id, fallback_attempted, rsvp_status,
			raw_response_text, refunded_on_decline, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, '', 0, ?, '', 0, ?)`,
		guest.ID, guest.EventID, guest.Name, guest.Phone, guest.AccompanyingCount,
		guest.InviteImage, string(guest.RSVPStatus), guest.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return models.ErrDuplicatePhone
		}
		return fmt.Errorf("failed to insert guest: %w", err)
	}
	return nil
}

const guestColumns = `id, event_id, name, phone, accompanying_count, invite_image,
	message_sent, sent_at, last_message_id, fallback_attempted, rsvp_status,
	rsvp_responded_at, raw_response_text, refunded_on_decline, created_at`

func scanGuest(row *sql.Row) (*models.Guest, error) {
	var g models.Guest
	var status string
	var sentAt, respondedAt sql.NullTime
	err := row.Scan(&g.ID, &g.EventID, &g.Name, &g.Phone, &g.AccompanyingCount, &g.InviteImage,
		&g.MessageSent, &sentAt, &g.LastMessageID, &g.FallbackAttempted, &status,
		&respondedAt, &g.RawResponseText, &g.RefundedOnDecline, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrGuestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan guest: %w", err)
	}
	g.RSVPStatus = models.RSVPStatus(status)
	if sentAt.Valid {
		t := sentAt.Time
		g.SentAt = &t
	}
	if respondedAt.Valid {
		t := respondedAt.Time
		g.RSVPRespondedAt = &t
	}
	return &g, nil
}

// GetGuest retrieves one guest by id.
func (s *Storage) GetGuest(ctx context.Context, guestID string) (*models.Guest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+guestColumns+` FROM guests WHERE id = ?`, guestID)
	return scanGuest(row)
}

// FindGuestByLastMessageID resolves the guest whose most recent send
// carries the given provider message id.
func (s *Storage) FindGuestByLastMessageID(ctx context.Context, messageID string) (*models.Guest, error) {
	if messageID == "" {
		return nil, models.ErrGuestNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+guestColumns+` FROM guests WHERE last_message_id = ?`, messageID)
	return scanGuest(row)
}

// FindGuestByPhoneAndMessageID resolves a guest by the compound reply
// key. Both fields must match: the phone alone could attribute a reply
// to a stale prior message id.
func (s *Storage) FindGuestByPhoneAndMessageID(ctx context.Context, phone, messageID string) (*models.Guest, error) {
	if phone == "" || messageID == "" {
		return nil, models.ErrGuestNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+guestColumns+` FROM guests WHERE phone = ? AND last_message_id = ?`, phone, messageID)
	return scanGuest(row)
}

// ListGuests returns all guests of an event.
func (s *Storage) ListGuests(ctx context.Context, eventID string) ([]models.Guest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+guestColumns+` FROM guests WHERE event_id = ? ORDER BY created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list guests: %w", err)
	}
	defer rows.Close()

	var guests []models.Guest
	for rows.Next() {
		var g models.Guest
		var status string
		var sentAt, respondedAt sql.NullTime
		err := rows.Scan(&g.ID, &g.EventID, &g.Name, &g.Phone, &g.AccompanyingCount, &g.InviteImage,
			&g.MessageSent, &sentAt, &g.LastMessageID, &g.FallbackAttempted, &status,
			&respondedAt, &g.RawResponseText, &g.RefundedOnDecline, &g.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guest: %w", err)
		}
		g.RSVPStatus = models.RSVPStatus(status)
		if sentAt.Valid {
			t := sentAt.Time
			g.SentAt = &t
		}
		if respondedAt.Valid {
			t := respondedAt.Time
			g.RSVPRespondedAt = &t
		}
		guests = append(guests, g)
	}
	return guests, rows.Err()
}

// RecordSend marks a completed outbound send. Assigning
// last_message_id here is the atomic "send completed" marker: status
// webhooks that arrive before it land resolve nothing and are dropped.
func (s *Storage) RecordSend(ctx context.Context, guestID, providerMessageID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE guests SET message_sent = 1, sent_at = ?, last_message_id = ?
		WHERE id = ?`, at, providerMessageID, guestID)
	if err != nil {
		return fmt.Errorf("failed to record send: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrGuestNotFound
	}
	return nil
}

// LatchFallback flips fallback_attempted false→true. The returned
// bool reports whether this caller won the latch; a false return with
// nil error means another delivery of the same failure got there
// first (or the fallback already ran).
func (s *Storage) LatchFallback(ctx context.Context, guestID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE guests SET fallback_attempted = 1
		WHERE id = ? AND fallback_attempted = 0`, guestID)
	if err != nil {
		return false, fmt.Errorf("failed to latch fallback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// TransitionRSVP moves a guest out of pending. Only the first caller
// for a guest succeeds; replays and conflicting replies lose the
// guard and return false.
func (s *Storage) TransitionRSVP(ctx context.Context, guestID string, status models.RSVPStatus, rawText string, at time.Time) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("cannot transition to non-terminal status %q", status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE guests SET rsvp_status = ?, raw_response_text = ?, rsvp_responded_at = ?
		WHERE id = ? AND rsvp_status = ?`,
		string(status), rawText, at, guestID, string(models.RSVPPending))
	if err != nil {
		return false, fmt.Errorf("failed to transition rsvp: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// InitRefundLedger sets the refund quota once. refund_total = 0 marks
// an uninitialized ledger; concurrent initializers race harmlessly
// because both compute the same total.
func (s *Storage) InitRefundLedger(ctx context.Context, eventID string, total int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE events SET refund_total = ?
		WHERE id = ? AND refund_total = 0`, total, eventID)
	if err != nil {
		return fmt.Errorf("failed to init refund ledger: %w", err)
	}
	return nil
}

// TryRefund consumes slots from the event's refund quota. The capacity
// check and the increment are one statement, so two near-simultaneous
// declines cannot both pass a check there is only room for one of.
func (s *Storage) TryRefund(ctx context.Context, eventID string, slots int) (bool, error) {
	if slots <= 0 {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE events SET refund_used = refund_used + ?
		WHERE id = ? AND refund_total - refund_used >= ?`, slots, eventID, slots)
	if err != nil {
		return false, fmt.Errorf("failed to apply refund: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// MarkRefunded records that a guest's decline consumed refund slots.
func (s *Storage) MarkRefunded(ctx context.Context, guestID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE guests SET refunded_on_decline = 1 WHERE id = ?`, guestID)
	if err != nil {
		return fmt.Errorf("failed to mark refunded: %w", err)
	}
	return nil
}
