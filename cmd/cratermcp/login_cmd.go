package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pkt.systems/cratermcp/client"
	"pkt.systems/cratermcp/internal/version"
	"pkt.systems/cratermcp/session"
	"pkt.systems/pslog"
)

func newLoginCommand(baseLogger pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify Crater credentials without starting the server",
		Long: `Authenticate against the configured Crater installation and fetch the
company settings once. Email/password credentials are exchanged for a token;
a pre-issued API token is used as-is.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfigFile(); err != nil {
				return err
			}
			cfg, err := configFromViper()
			if err != nil {
				return err
			}
			if !cfg.HasCredentials() {
				return fmt.Errorf("no Crater credentials configured (set CRATER_EMAIL and CRATER_PASSWORD, or CRATER_API_TOKEN)")
			}
			logger := applyLogLevel(baseLogger)
			sess, err := session.New(cfg.SessionConfig(), session.WithLogger(logger))
			if err != nil {
				return err
			}
			cli, err := client.New("", sess,
				client.WithLogger(logger),
				client.WithHTTPTimeout(cfg.HTTPTimeout),
				client.WithUserAgent(version.UserAgent()),
			)
			if err != nil {
				return err
			}

			started := time.Now()
			settings, err := cli.Settings(cmd.Context())
			if err != nil {
				return fmt.Errorf("login to %s: %w", cfg.CraterURL, err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "crater:   %s\n", cfg.CraterURL)
			fmt.Fprintf(out, "session:  %s\n", sess.State())
			fmt.Fprintf(out, "method:   %s\n", loginMethod(cfg.Email, cfg.APIToken))
			fmt.Fprintf(out, "settings: %s in %s\n", humanize.Bytes(uint64(len(settings))), time.Since(started).Round(time.Millisecond))
			if currency := settingsCurrency(settings); currency != "" {
				fmt.Fprintf(out, "currency: %s\n", currency)
			}
			return nil
		},
	}
	return cmd
}

func loginMethod(email, token string) string {
	switch {
	case email != "":
		return "password (" + email + ")"
	case token != "":
		return "api token"
	default:
		return "none"
	}
}

// settingsCurrency returns the company currency when the settings payload
// carries one, either as a plain code or as a currency object.
func settingsCurrency(raw json.RawMessage) string {
	var payload struct {
		Currency json.RawMessage `json:"currency"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload.Currency) == 0 {
		return ""
	}
	var code string
	if err := json.Unmarshal(payload.Currency, &code); err == nil {
		return code
	}
	var obj struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(payload.Currency, &obj); err == nil {
		return obj.Code
	}
	return ""
}
