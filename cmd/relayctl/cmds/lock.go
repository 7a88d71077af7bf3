package cmds

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aixcyberchallenge/submission-relay/internal/audit"
	"github.com/aixcyberchallenge/submission-relay/internal/config"
	"github.com/aixcyberchallenge/submission-relay/internal/exiterr"
	"github.com/aixcyberchallenge/submission-relay/internal/ledger"
)

const lockResetActor = "relayctl"

// Replaced in tests
var openLedger = func() (ledger.Ledger, *config.Config, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	led, err := ledger.Open(cfg, afero.NewOsFs())
	if err != nil {
		return nil, nil, err
	}

	return led, cfg, nil
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect and reset submission locks",
}

var lockListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the lock state of every team as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, span := tracer.Start(cmd.Context(), "lockListCmd")
		defer span.End()

		led, cfg, err := openLedger()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to open ledger")
			return err
		}

		snapshot, err := led.Snapshot(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read ledger")
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(ledger.Statuses(snapshot, cfg.Teams)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to print locks")
			return err
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "")
		return nil
	},
}

var lockResetCmd = &cobra.Command{
	Use:   "reset <team>",
	Short: "Clear a team's submission lock so it can submit again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "lockResetCmd")
		defer span.End()

		team := args[0]
		span.SetAttributes(attribute.String("team", team))

		led, cfg, err := openLedger()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to open ledger")
			return err
		}

		if cfg.Team(team) == nil {
			err := exiterr.Usage(fmt.Errorf("team %q is not configured", team))
			span.RecordError(err)
			span.SetStatus(codes.Error, "unknown team")
			return err
		}

		if err := led.Reset(ctx, team); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to reset lock")
			return err
		}

		audit.LogLockReset(audit.Context{Team: team}, lockResetActor)
		fmt.Fprintf(cmd.OutOrStdout(), "reset submission lock for %s\n", team)

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "")
		return nil
	},
}

func init() {
	lockCmd.AddCommand(lockListCmd, lockResetCmd)
	rootCmd.AddCommand(lockCmd)
}
