package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"medibot/internal/backend"
	"medibot/internal/config"
	"medibot/internal/session"
	"medibot/internal/store"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your MediBot installation",
		Long: `Verifies that MediBot's configuration, store, backend and context store
are reachable and correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("MediBot Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var r report

			if _, err := os.Stat(cfgPath); err != nil {
				r.fail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'medibot init' to create a default configuration.\n")
				return nil
			}
			r.pass("Config file", cfgPath)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				fmt.Printf("\n%d passed, %d failed\n", r.passed, r.failed)
				return fmt.Errorf("config invalid")
			}
			r.pass("Config validation", "valid")

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()

			if err := checkStore(ctx, cfg.Store); err != nil {
				r.fail("Store", err.Error())
			} else {
				r.pass("Store", cfg.Store.Driver)
			}

			if err := checkBackend(ctx, cfg.Backend); err != nil {
				r.fail("Backend", err.Error())
			} else {
				r.pass("Backend", cfg.Backend.BaseURL)
			}

			if cfg.Session.Driver == "redis" {
				rs, err := session.NewRedisStore(ctx, cfg.Session.Redis.Addr, cfg.Session.Redis.Password, cfg.Session.Redis.DB, cfg.Session.TTL())
				if err != nil {
					r.fail("Redis", err.Error())
				} else {
					rs.Close()
					r.pass("Redis", cfg.Session.Redis.Addr)
				}
			}

			if channels := enabledChannels(cfg); len(channels) == 0 {
				r.warn("Channels", "none enabled; only 'chat' and 'ask' will work")
			} else {
				r.pass("Channels", fmt.Sprint(channels))
			}
			if cfg.Channels.Twilio.Enabled && cfg.Channels.Twilio.PublicURL == "" {
				r.warn("Twilio public URL", "not set; signatures are checked against the request host")
			}

			if err := checkPort(cfg.Server.Port); err != nil {
				r.warn("Server port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
			} else {
				r.pass("Server port", fmt.Sprintf(":%d available", cfg.Server.Port))
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
			if r.failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running MediBot.\n")
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			if r.warned > 0 {
				fmt.Printf("\nMediBot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! MediBot is ready to serve.\n")
			}
			return nil
		},
	}
}

type report struct {
	passed, warned, failed int
}

func (r *report) pass(check, detail string) {
	r.passed++
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func (r *report) fail(check, detail string) {
	r.failed++
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func (r *report) warn(check, detail string) {
	r.warned++
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

// checkStore opens the store, which runs migrations, and reads its row counts.
func checkStore(ctx context.Context, cfg config.StoreConfig) error {
	st, err := store.Open(cfg.Driver, cfg.Path, cfg.DSN, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	if _, err := st.Stats(ctx); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	return nil
}

// checkBackend treats any HTTP response from the base URL as reachable.
func checkBackend(ctx context.Context, cfg config.BackendConfig) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL, nil)
	if err != nil {
		return err
	}
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	resp, err := backend.SharedHTTPClient(cfg.Timeout()).Do(req)
	if err != nil {
		return fmt.Errorf("unreachable: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("responded %d", resp.StatusCode)
	}
	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
