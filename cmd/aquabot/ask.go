package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/HerbHall/aquabot/pkg/plugin"
	"github.com/HerbHall/aquabot/pkg/roles"
	"github.com/spf13/cobra"
)

type askOptions struct {
	deviceID  string
	siteID    string
	sessionID string
	timeout   time.Duration
}

func newAskCmd(configPath *string) *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question and print the result as JSON",
		Example: `  aquabot ask --device esp32-01 --site tanque-1 "como está o pH hoje?"
  aquabot ask --device esp32-01 --site tanque-1 "qual foi a maior temperatura nos últimos 3 dias?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errors.New("question must not be empty")
			}
			return runAsk(cmd.Context(), *configPath, opts, question, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.deviceID, "device", "", "device ID the question is about")
	cmd.Flags().StringVar(&opts.siteID, "site", "", "site ID the question is about")
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "session ID to continue (new when empty)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 3*time.Minute, "overall time limit")
	return cmd
}

func runAsk(parent context.Context, configPath string, opts askOptions, question string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(parent, opts.timeout)
	defer cancel()

	a, err := newApp(ctx, configPath, "telemetry", "llm", "assistant")
	if err != nil {
		return err
	}
	defer a.stop(context.Background())

	if err := a.start(ctx); err != nil {
		return err
	}
	assistant, err := resolveAssistant(a.reg.ResolveByRole(roles.RoleAssistant))
	if err != nil {
		return err
	}

	res, err := assistant.Ask(ctx, roles.AskRequest{
		SessionID: opts.sessionID,
		Message:   question,
		DeviceID:  opts.deviceID,
		SiteID:    opts.siteID,
	})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(res)
}

func resolveAssistant(candidates []plugin.Plugin) (roles.Assistant, error) {
	for _, p := range candidates {
		if a, ok := p.(roles.Assistant); ok {
			return a, nil
		}
	}
	return nil, errors.New("no assistant plugin is enabled")
}
