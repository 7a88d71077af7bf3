package cmds

import (
	"context"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/aixcyberchallenge/submission-relay/cmd/relayctl/cmds")

var rootCmd = &cobra.Command{
	Use:           "relayctl",
	Short:         "Administration for the submission relay",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
