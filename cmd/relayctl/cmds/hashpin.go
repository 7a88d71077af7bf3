package cmds

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"

	"github.com/aixcyberchallenge/submission-relay/internal/exiterr"
)

var errEmptyPIN = errors.New("pin must not be empty")

var hashPINCmd = &cobra.Command{
	Use:   "hash-pin [pin]",
	Short: "Print the argon2id hash of a team PIN for the teams config",
	Long:  "Hashes the PIN given as argument, or the first line of stdin when no argument is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "hashPINCmd")
		defer span.End()

		var pin string
		if len(args) == 1 {
			pin = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				err = exiterr.Usage(fmt.Errorf("failed to read pin from stdin: %w", err))
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to read pin")
				return err
			}
			pin = strings.TrimRight(line, "\r\n")
		}

		if pin == "" {
			err := exiterr.Usage(errEmptyPIN)
			span.RecordError(err)
			span.SetStatus(codes.Error, "empty pin")
			return err
		}

		hash, err := argon2id.CreateHash(pin, argon2id.DefaultParams)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to hash pin")
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), hash)

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashPINCmd)
}
