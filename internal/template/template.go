package template

import (
	"fmt"
	"net/url"

	"invite-engine/internal/models"
)

// Kind is the closed set of message templates the engine can send.
// Adding a kind is a compile-time change: Build switches exhaustively.
type Kind int

const (
	KindInitial Kind = iota
	KindFallback
	KindReminder
	KindConfirmation
	KindThankYou
)

func (k Kind) String() string {
	switch k {
	case KindInitial:
		return "initial"
	case KindFallback:
		return "fallback"
	case KindReminder:
		return "reminder"
	case KindConfirmation:
		return "confirmation"
	case KindThankYou:
		return "thankyou"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParamType mirrors the provider's template parameter types.
type ParamType string

const (
	ParamText ParamType = "text"
)

// Param is one ordered, typed template parameter.
type Param struct {
	Type ParamType
	Text string
}

// Descriptor is an immutable outbound-message description: everything
// the channel needs to deliver one templated message. Builders return
// it fully populated; nothing downstream mutates it.
type Descriptor struct {
	To           string
	TemplateName string
	Language     string
	Params       []Param
	HeaderImage  string
	Kind         Kind
}

// Config names the provider-registered templates used per kind.
type Config struct {
	Initial      string
	Fallback     string
	Reminder     string
	Confirmation string
	ThankYou     string
	Language     string
}

// Builder assembles outbound message descriptors from event and guest
// data. It is pure: no side effects, no network, deterministic for
// identical inputs.
type Builder struct {
	cfg Config
}

func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg}
}

// Build produces the descriptor for one (event, guest, kind) triple.
// It fails with models.ErrInvalidTemplateInput when a required image or
// field is missing; the caller must not send in that case.
func (b *Builder) Build(event *models.Event, guest *models.Guest, kind Kind) (Descriptor, error) {
	if event == nil || guest == nil {
		return Descriptor{}, fmt.Errorf("%w: nil event or guest", models.ErrInvalidTemplateInput)
	}
	if guest.Phone == "" {
		return Descriptor{}, fmt.Errorf("%w: guest has no phone", models.ErrInvalidTemplateInput)
	}

	d := Descriptor{
		To:       guest.Phone,
		Language: b.cfg.Language,
		Kind:     kind,
	}

	host := Sanitize(event.HostName)
	inviteText := Sanitize(event.InvitationText)

	switch kind {
	case KindInitial:
		if err := validateImage(event.InvitationImage); err != nil {
			return Descriptor{}, fmt.Errorf("%w: event invitation image: %v", models.ErrInvalidTemplateInput, err)
		}
		d.TemplateName = b.cfg.Initial
		d.HeaderImage = event.InvitationImage
		d.Params = textParams(guest.Name, host, inviteText, event.EventDate, event.EventTime)

	case KindFallback:
		// Same data as initial minus the long free-text body. The
		// provider rejects the full template on fallback sends, so
		// the short variant exists for compliance, not business
		// reasons.
		if err := validateImage(event.InvitationImage); err != nil {
			return Descriptor{}, fmt.Errorf("%w: event invitation image: %v", models.ErrInvalidTemplateInput, err)
		}
		d.TemplateName = b.cfg.Fallback
		d.HeaderImage = event.InvitationImage
		d.Params = textParams(guest.Name, host, event.EventDate, event.EventTime)

	case KindReminder:
		if err := validateImage(event.InvitationImage); err != nil {
			return Descriptor{}, fmt.Errorf("%w: event invitation image: %v", models.ErrInvalidTemplateInput, err)
		}
		d.TemplateName = b.cfg.Reminder
		d.HeaderImage = event.InvitationImage
		d.Params = textParams(guest.Name, event.EventDate, event.EventTime, event.Location)

	case KindConfirmation:
		if err := validateImage(guest.InviteImage); err != nil {
			return Descriptor{}, fmt.Errorf("%w: guest invite image: %v", models.ErrInvalidTemplateInput, err)
		}
		d.TemplateName = b.cfg.Confirmation
		d.HeaderImage = guest.InviteImage
		d.Params = textParams(guest.Name, event.EventDate, event.EventTime, event.Location, event.MapLink)

	case KindThankYou:
		d.TemplateName = b.cfg.ThankYou
		d.Params = textParams(guest.Name, host)

	default:
		return Descriptor{}, fmt.Errorf("%w: unknown template kind %d", models.ErrInvalidTemplateInput, int(kind))
	}

	if d.TemplateName == "" {
		return Descriptor{}, fmt.Errorf("%w: no template registered for kind %s", models.ErrInvalidTemplateInput, kind)
	}

	return d, nil
}

func textParams(values ...string) []Param {
	params := make([]Param, 0, len(values))
	for _, v := range values {
		params = append(params, Param{Type: ParamText, Text: v})
	}
	return params
}

// validateImage requires an absolute HTTPS URL. The provider fetches
// header images itself and rejects anything else.
func validateImage(raw string) error {
	if raw == "" {
		return fmt.Errorf("missing")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("unparseable url: %v", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("scheme %q is not https", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url is not absolute")
	}
	return nil
}
