package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"medibot/internal/channel"
	"medibot/internal/domain"
)

func chatCmd() *cobra.Command {
	var sender string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the bot in the terminal",
		Long:  "Starts an interactive session against the configured backend and store, as if messaging from the given phone number.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if sender == "" {
				sender = cfg.Channels.CLI.Sender
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			drain := startDispatch(ctx, a)
			cli := channel.NewCLI(channel.CLIConfig{Sender: sender, Logger: logger})
			err = cli.Start(ctx, a.bus)
			drain()
			return err
		},
	}
	cmd.Flags().StringVar(&sender, "as", "", "sender phone number (default: channels.cli.sender)")
	return cmd
}

func askCmd() *cobra.Command {
	var (
		sender   string
		mediaURL string
		mimeType string
	)
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send one message and print the reply",
		Example: `  medibot ask hi
  medibot ask --as 9876543210 "#ORD12345"
  medibot ask --media https://example.com/rx.jpg --mime image/jpeg "my prescription"`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if sender == "" {
				sender = cfg.Channels.CLI.Sender
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Println(ask(ctx, a, sender, strings.Join(args, " "), mediaURL, mimeType))
			return nil
		},
	}
	cmd.Flags().StringVar(&sender, "as", "", "sender phone number (default: channels.cli.sender)")
	cmd.Flags().StringVar(&mediaURL, "media", "", "attach a media URL")
	cmd.Flags().StringVar(&mimeType, "mime", "image/jpeg", "MIME type of the attached media")
	return cmd
}

// ask runs one message through the router synchronously.
func ask(ctx context.Context, a *app, sender, text, mediaURL, mimeType string) string {
	msg := domain.IncomingMessage{
		Channel:    "cli",
		SenderID:   sender,
		Text:       text,
		ReceivedAt: time.Now(),
	}
	if mediaURL != "" {
		msg.Attachments = []domain.Attachment{{URL: mediaURL, MimeType: mimeType}}
	}
	return a.router.Handle(ctx, msg)
}
