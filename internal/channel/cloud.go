package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"invite-engine/internal/template"
)

// CloudConfig carries the Cloud API credentials. They are injected
// here and nowhere else.
type CloudConfig struct {
	BaseURL       string
	AccessToken   string
	PhoneNumberID string
	Timeout       time.Duration
}

// CloudAPI sends template messages through the WhatsApp Business Cloud
// API. Delivery statuses and replies for these sends come back through
// the webhook endpoints, not through this client.
type CloudAPI struct {
	cfg    CloudConfig
	client *http.Client
	log    zerolog.Logger
}

func NewCloudAPI(cfg CloudConfig) *CloudAPI {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CloudAPI{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    zerolog.New(os.Stdout).With().Timestamp().Str("component", "cloudapi").Logger(),
	}
}

type cloudTemplatePayload struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Template         cloudTemplate `json:"template"`
}

type cloudTemplate struct {
	Name       string           `json:"name"`
	Language   cloudLanguage    `json:"language"`
	Components []cloudComponent `json:"components"`
}

type cloudLanguage struct {
	Code string `json:"code"`
}

type cloudComponent struct {
	Type       string           `json:"type"`
	Parameters []cloudParameter `json:"parameters"`
}

type cloudParameter struct {
	Type  string      `json:"type"`
	Text  string      `json:"text,omitempty"`
	Image *cloudImage `json:"image,omitempty"`
}

type cloudImage struct {
	Link string `json:"link"`
}

type cloudSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send posts one template message and returns the provider message id.
func (c *CloudAPI) Send(ctx context.Context, d template.Descriptor) (string, error) {
	payload := cloudTemplatePayload{
		MessagingProduct: "whatsapp",
		To:               d.To,
		Type:             "template",
		Template: cloudTemplate{
			Name:     d.TemplateName,
			Language: cloudLanguage{Code: d.Language},
		},
	}

	if d.HeaderImage != "" {
		payload.Template.Components = append(payload.Template.Components, cloudComponent{
			Type: "header",
			Parameters: []cloudParameter{
				{Type: "image", Image: &cloudImage{Link: d.HeaderImage}},
			},
		})
	}
	if len(d.Params) > 0 {
		body := cloudComponent{Type: "body"}
		for _, p := range d.Params {
			body.Parameters = append(body.Parameters, cloudParameter{Type: string(p.Type), Text: p.Text})
		}
		payload.Template.Components = append(payload.Template.Components, body)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", &ChannelError{Op: "marshal payload", Cause: err}
	}

	url := fmt.Sprintf("%s/%s/messages", c.cfg.BaseURL, c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return "", &ChannelError{Op: "build request", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &ChannelError{Op: "post message", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &ChannelError{Op: "read response", Cause: err}
	}

	var parsed cloudSendResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &ChannelError{Op: "decode response", Cause: err}
	}

	if resp.StatusCode != http.StatusOK || parsed.Error != nil {
		msg := "request rejected"
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", &ChannelError{
			Op:    "send template",
			Cause: fmt.Errorf("status %d: %s", resp.StatusCode, msg),
		}
	}
	if len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return "", &ChannelError{Op: "send template", Cause: fmt.Errorf("no message id in response")}
	}

	c.log.Debug().
		Str("to", d.To).
		Str("template", d.TemplateName).
		Str("message_id", parsed.Messages[0].ID).
		Msg("Template message sent")

	return parsed.Messages[0].ID, nil
}
