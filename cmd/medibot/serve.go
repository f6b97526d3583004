package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"medibot/internal/backend"
	"medibot/internal/channel"
	"medibot/internal/domain"
	"medibot/internal/server"
)

const drainTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server, enabled channels and the dispatcher",
		Long:  "Serves the Twilio, WhatsApp Cloud and JSON webhooks, polls Telegram when enabled, and answers every message. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srvCfg := server.Config{
		Port:   cfg.Server.Port,
		Checks: a.healthChecks(),
		Logger: logger,
	}
	var channels []domain.Channel
	outbound := backend.SharedHTTPClient(30 * time.Second)

	if c := cfg.Channels.Twilio; c.Enabled {
		srvCfg.Twilio = channel.NewTwilio(channel.TwilioConfig{
			AccountSID: c.AccountSID,
			AuthToken:  c.AuthToken,
			From:       c.From,
			PublicURL:  c.PublicURL,
			HTTPClient: outbound,
			Bus:        a.bus,
			Logger:     logger,
		})
		channels = append(channels, srvCfg.Twilio)
	}
	if c := cfg.Channels.WhatsApp; c.Enabled {
		srvCfg.WhatsApp = channel.NewWhatsApp(channel.WhatsAppConfig{
			AccessToken:   c.AccessToken,
			PhoneNumberID: c.PhoneNumberID,
			VerifyToken:   c.VerifyToken,
			AppSecret:     c.AppSecret,
			HTTPClient:    outbound,
			Bus:           a.bus,
			Logger:        logger,
		})
		channels = append(channels, srvCfg.WhatsApp)
	}
	if c := cfg.Channels.Webhook; c.Enabled {
		srvCfg.Webhook = channel.NewWebhook(channel.WebhookConfig{
			Secret:    c.Secret,
			Responder: a.router,
			Logger:    logger,
		})
	}
	if c := cfg.Channels.Telegram; c.Enabled {
		channels = append(channels, channel.NewTelegram(channel.TelegramConfig{
			Token:     c.Token,
			AllowFrom: c.AllowFrom,
			Logger:    logger,
		}))
	}

	for _, ch := range channels {
		go func(ch domain.Channel) {
			if err := ch.Start(ctx, a.bus); err != nil {
				logger.Error("channel error", "channel", ch.Name(), "err", err)
			}
		}(ch)
	}
	logger.Info("channels started", "enabled", enabledChannels(cfg))

	drain := startDispatch(ctx, a)

	a.janitor.Start()
	defer a.janitor.Stop()

	srvErr := server.Run(ctx, srvCfg)
	stop()

	logger.Info("shutting down, draining queued messages")
	for _, ch := range channels {
		ch.Stop()
	}
	drain()
	logger.Info("shutdown complete")
	return srvErr
}

// startDispatch runs the dispatcher in the background and returns a function that
// closes the bus and waits for every queued reply.
func startDispatch(ctx context.Context, a *app) (drain func()) {
	done := make(chan struct{})
	go func() {
		a.dispatcher().Run(ctx)
		close(done)
	}()
	return func() {
		a.bus.Close()
		select {
		case <-done:
		case <-time.After(drainTimeout):
			logger.Warn("dispatcher did not drain in time")
		}
	}
}

