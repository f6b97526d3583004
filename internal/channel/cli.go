package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"medibot/internal/domain"
)

// DefaultCLISender is the phone the REPL impersonates when none is configured.
const DefaultCLISender = "9999999999"

// CLI implements domain.Channel for interactive terminal chat.
type CLI struct {
	bus    domain.MessageBus
	logger *slog.Logger
	sender string
	in     io.Reader

	outMu sync.Mutex
	out   io.Writer
}

type CLIConfig struct {
	Sender string // phone number the bot sees as the sender
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Sender == "" {
		cfg.Sender = DefaultCLISender
	}
	return &CLI{
		logger: cfg.Logger,
		sender: cfg.Sender,
		in:     cfg.In,
		out:    cfg.Out,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the interactive REPL and blocks until input ends or ctx is cancelled.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus

	bus.OnOutbound("cli", func(msg domain.OutboundMessage) {
		c.outMu.Lock()
		defer c.outMu.Unlock()
		fmt.Fprintln(c.out, "--- MediBot ---")
		fmt.Fprintln(c.out, msg.Content)
		fmt.Fprintln(c.out, "---------------")
		fmt.Fprint(c.out, "You> ")
	})

	c.print("MediBot CLI chatting as %s. Type a message and press Enter. Type /quit to exit.\nYou> ", c.sender)

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.print("You> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}

		c.bus.Publish(domain.IncomingMessage{
			Channel:    "cli",
			SenderID:   c.sender,
			Text:       line,
			ReceivedAt: time.Now(),
		})
	}
}

func (c *CLI) print(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Stop is a no-op; the REPL exits when Start returns.
func (c *CLI) Stop() error { return nil }

func (c *CLI) Send(ctx context.Context, chatID string, content string) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, err := fmt.Fprintln(c.out, content)
	return err
}
