package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Channel selects how outbound messages reach WhatsApp.
const (
	ChannelCloud  = "cloud"  // WhatsApp Business Cloud API + webhooks
	ChannelDevice = "device" // linked device via whatsmeow
)

// Config holds the application configuration
type Config struct {
	ServerPort   string
	DatabasePath string
	DataDir      string

	// Channel selection and Cloud API credentials. Credentials are
	// injected into the adapter; nothing else reads them.
	ChannelMode   string
	GraphBaseURL  string
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string

	// Template names registered with the provider.
	InitialTemplate      string
	FallbackTemplate     string
	ReminderTemplate     string
	ConfirmationTemplate string
	ThankYouTemplate     string
	TemplateLanguage     string

	// Quick-reply button payloads the classifier accepts.
	AcceptPayload  string
	DeclinePayload string

	// Delay between sends in a bulk run, for provider rate limits.
	BulkSendDelay time.Duration

	// Timeout applied to every outbound provider call.
	SendTimeout time.Duration

	DefaultCountryCode string
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is applied first when
// present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:   getEnv("PORT", "8080"),
		DatabasePath: getEnv("DB_PATH", "data/invites.db"),
		DataDir:      getEnv("DATA_DIR", "data"),

		ChannelMode:   getEnv("CHANNEL_MODE", ChannelCloud),
		GraphBaseURL:  getEnv("GRAPH_BASE_URL", "https://graph.facebook.com/v19.0"),
		AccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		PhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		VerifyToken:   getEnv("WEBHOOK_VERIFY_TOKEN", ""),

		InitialTemplate:      getEnv("TEMPLATE_INITIAL", "event_invitation"),
		FallbackTemplate:     getEnv("TEMPLATE_FALLBACK", "event_invitation_short"),
		ReminderTemplate:     getEnv("TEMPLATE_REMINDER", "event_reminder"),
		ConfirmationTemplate: getEnv("TEMPLATE_CONFIRMATION", "event_confirmation"),
		ThankYouTemplate:     getEnv("TEMPLATE_THANKYOU", "event_thankyou"),
		TemplateLanguage:     getEnv("TEMPLATE_LANGUAGE", "en"),

		AcceptPayload:  getEnv("ACCEPT_PAYLOAD", "CONFIRM_ATTENDANCE"),
		DeclinePayload: getEnv("DECLINE_PAYLOAD", "DECLINE_ATTENDANCE"),

		BulkSendDelay: getDuration("BULK_SEND_DELAY", 2*time.Second),
		SendTimeout:   getDuration("SEND_TIMEOUT", 15*time.Second),

		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "972"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
