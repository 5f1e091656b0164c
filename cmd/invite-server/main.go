package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"invite-engine/internal/channel"
	"invite-engine/internal/config"
	"invite-engine/internal/invites"
	"invite-engine/internal/server"
	"invite-engine/internal/storage"
	"invite-engine/internal/template"
	"invite-engine/internal/whatsapp"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("component", "main").Logger()

	cfg := config.Load()

	store, err := storage.NewStorage(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing storage")
	}
	defer store.Close()

	builder := template.NewBuilder(template.Config{
		Initial:      cfg.InitialTemplate,
		Fallback:     cfg.FallbackTemplate,
		Reminder:     cfg.ReminderTemplate,
		Confirmation: cfg.ConfirmationTemplate,
		ThankYou:     cfg.ThankYouTemplate,
		Language:     cfg.TemplateLanguage,
	})

	var ch channel.Channel
	var device *whatsapp.Service

	switch cfg.ChannelMode {
	case config.ChannelDevice:
		device, err = whatsapp.NewService(&whatsapp.Config{DataDir: cfg.DataDir})
		if err != nil {
			log.Fatal().Err(err).Msg("Error initializing WhatsApp service")
		}
		ch = device
	case config.ChannelCloud:
		ch = channel.NewCloudAPI(channel.CloudConfig{
			BaseURL:       cfg.GraphBaseURL,
			AccessToken:   cfg.AccessToken,
			PhoneNumberID: cfg.PhoneNumberID,
			Timeout:       cfg.SendTimeout,
		})
	default:
		log.Fatal().Str("mode", cfg.ChannelMode).Msg("Unknown channel mode")
	}

	svc := invites.NewService(store, ch, builder, invites.Options{
		AcceptPayload:      cfg.AcceptPayload,
		DeclinePayload:     cfg.DeclinePayload,
		DefaultCountryCode: cfg.DefaultCountryCode,
		BulkSendDelay:      cfg.BulkSendDelay,
		SendTimeout:        cfg.SendTimeout,
	})

	// Device mode has no HTTP callbacks: receipts and replies come off
	// the socket and feed the same handlers the webhooks feed.
	if device != nil {
		device.SetStatusHandler(svc.HandleStatus)
		device.SetReplyHandler(svc.HandleInbound)

		log.Info().Msg("Connecting to WhatsApp...")
		if err := device.Connect(); err != nil {
			log.Fatal().Err(err).Msg("Error connecting to WhatsApp")
		}
		defer device.Disconnect()
	}

	srv := server.NewServer(svc, store, server.Config{
		VerifyToken:        cfg.VerifyToken,
		DefaultCountryCode: cfg.DefaultCountryCode,
	})

	go func() {
		addr := fmt.Sprintf(":%s", cfg.ServerPort)
		log.Info().Str("addr", addr).Msg("Invitation server listening")
		if err := srv.Run(addr); err != nil {
			log.Fatal().Err(err).Msg("Server stopped")
		}
	}()

	// Wait for interrupt signal
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Info().Msg("Shutting down")
}
