package whatsapp

import (
	"context"
	"fmt"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"invite-engine/internal/models"
	"invite-engine/internal/template"
)

// StatusHandler receives delivery-status events bridged from the
// linked device. ReplyHandler receives inbound guest replies.
type StatusHandler func(context.Context, models.StatusEvent)
type ReplyHandler func(context.Context, models.InboundMessage)

type Config struct {
	DataDir string
}

// Service is the linked-device channel: it delivers invitations as
// rendered text through a paired WhatsApp account and feeds receipts
// and replies into the same handlers the Cloud API webhooks feed.
// Deployments without Cloud API access run in this mode; it cannot
// report provider-side template failures, so fallback only triggers
// off whatever receipts the device produces.
type Service struct {
	client        *whatsmeow.Client
	cfg           *Config
	log           zerolog.Logger
	statusHandler StatusHandler
	replyHandler  ReplyHandler
}

// NewService creates a new WhatsApp linked-device service.
func NewService(cfg *Config) (*Service, error) {
	ctx := context.Background()
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "whatsapp").Logger()

	// sqlstore uses a no-op logger when given nil.
	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s/whatsmeow.db?_foreign_keys=on", cfg.DataDir), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, nil)

	service := &Service{
		client: client,
		cfg:    cfg,
		log:    logger,
	}

	client.AddEventHandler(func(evt interface{}) {
		service.eventHandler(evt)
	})

	return service, nil
}

// SetStatusHandler wires the delivery-status consumer.
func (s *Service) SetStatusHandler(handler StatusHandler) {
	s.statusHandler = handler
}

// SetReplyHandler wires the inbound-reply consumer.
func (s *Service) SetReplyHandler(handler ReplyHandler) {
	s.replyHandler = handler
}

// Connect connects to WhatsApp, pairing via QR code on first run.
func (s *Service) Connect() error {
	if s.client.Store.ID == nil {
		qrChan, _ := s.client.GetQRChannel(context.Background())
		if err := s.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				q, err := qrcode.New(evt.Code, qrcode.Medium)
				if err != nil {
					fmt.Printf("QR Code: %s\n", evt.Code)
					fmt.Println("Please scan this QR code with WhatsApp to connect.")
				} else {
					fmt.Println("\n" + q.ToSmallString(false))
					fmt.Println("Scan the QR code above with WhatsApp (Settings > Linked Devices > Link a Device).")
				}
			} else {
				s.log.Info().Str("event", evt.Event).Msg("Login event")
			}
		}
		return nil
	}

	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// Disconnect disconnects from WhatsApp
func (s *Service) Disconnect() {
	s.client.Disconnect()
}

// Send renders the descriptor as a text message and delivers it to the
// target phone, returning the WhatsApp message id. One attempt per
// call; the engine owns all retry policy.
func (s *Service) Send(ctx context.Context, d template.Descriptor) (string, error) {
	number := strings.TrimPrefix(d.To, "+")

	jid, err := s.resolveJID(ctx, number)
	if err != nil {
		return "", err
	}

	message := renderText(d)
	sent, err := s.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: &message,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	s.log.Debug().
		Str("jid", jid.String()).
		Str("message_id", sent.ID).
		Str("kind", d.Kind.String()).
		Msg("Message sent via linked device")

	return sent.ID, nil
}

// resolveJID verifies the number is on WhatsApp and returns the JID the
// server reports for it.
func (s *Service) resolveJID(ctx context.Context, number string) (types.JID, error) {
	resp, err := s.client.IsOnWhatsApp(ctx, []string{number})
	if err != nil {
		return types.JID{}, fmt.Errorf("failed to verify number on WhatsApp: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return types.JID{}, fmt.Errorf("number %s is not registered on WhatsApp", number)
	}
	return resp[0].JID, nil
}

// renderText flattens a template descriptor into plain text. The
// linked device cannot send provider templates, so the kind picks a
// heading and the ordered params become the body lines.
func renderText(d template.Descriptor) string {
	var b strings.Builder

	switch d.Kind {
	case template.KindInitial, template.KindFallback:
		b.WriteString("🎉 *You're invited!*\n\n")
	case template.KindReminder:
		b.WriteString("⏰ *A reminder about your invitation*\n\n")
	case template.KindConfirmation:
		b.WriteString("✅ *Your attendance is confirmed*\n\n")
	case template.KindThankYou:
		b.WriteString("💕 *Thank you*\n\n")
	}

	for _, p := range d.Params {
		if p.Text == "" {
			continue
		}
		b.WriteString(p.Text)
		b.WriteString("\n")
	}

	if d.HeaderImage != "" {
		b.WriteString("\n")
		b.WriteString(d.HeaderImage)
	}

	return strings.TrimSpace(b.String())
}

// eventHandler bridges incoming WhatsApp events into the engine.
func (s *Service) eventHandler(evt interface{}) {
	if evt == nil {
		return
	}
	switch evt := evt.(type) {
	case *events.Message:
		s.handleMessage(evt)
	case *events.Receipt:
		s.handleReceipt(evt)
	case *events.Connected:
		s.log.Info().Msg("Connected to WhatsApp")
	case *events.Disconnected:
		s.log.Info().Msg("Disconnected from WhatsApp")
	case *events.LoggedOut:
		s.log.Info().Msg("Logged out from WhatsApp")
	}
}

// handleReceipt maps device receipts onto the engine's status events.
func (s *Service) handleReceipt(r *events.Receipt) {
	if s.statusHandler == nil {
		return
	}

	var status string
	switch r.Type {
	case events.ReceiptTypeDelivered:
		status = models.StatusDelivered
	case events.ReceiptTypeRead:
		status = models.StatusRead
	default:
		return
	}

	ctx := context.Background()
	for _, id := range r.MessageIDs {
		s.statusHandler(ctx, models.StatusEvent{
			ProviderMessageID: id,
			Status:            status,
		})
	}
}

// handleMessage forwards guest replies. Quoted replies carry the
// stanza id of the message they answer, which is what the engine uses
// for attribution; bare messages arrive without it and get dropped by
// the router.
func (s *Service) handleMessage(msg *events.Message) {
	if msg.Info.IsFromMe || msg.Message == nil {
		return
	}
	if s.replyHandler == nil {
		s.log.Info().
			Str("sender", msg.Info.Sender.String()).
			Msg("Received message with no reply handler set")
		return
	}

	text := msg.Message.GetConversation()
	originalID := ""
	if ext := msg.Message.GetExtendedTextMessage(); ext != nil {
		if text == "" {
			text = ext.GetText()
		}
		originalID = ext.GetContextInfo().GetStanzaID()
	}

	s.replyHandler(context.Background(), models.InboundMessage{
		FromPhone:         msg.Info.Sender.User,
		OriginalMessageID: originalID,
		Text:              text,
	})
}
