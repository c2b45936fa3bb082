package packet

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/compose-network/ibc-app-orchestrator/internal/bootstrap"
	"github.com/spf13/cobra"
)

var withFee bool

var CMD = &cobra.Command{
	Use:   "send-packet-config <source>",
	Short: "Send a packet from the app on <source> and follow it until the acknowledgement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := bootstrap.ForCommand(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		slog.With(
			"source", args[0],
			"fee", withFee,
			"deadline", AckDeadline(env.Settings).String(),
		).Info("starting send-packet-config command")

		result, err := NewService(env).Send(cmd.Context(), args[0], Options{WithFee: withFee})
		if errors.Is(err, ErrNotAcknowledged) {
			if emitErr := env.Emitter.Emit(result); emitErr != nil {
				return emitErr
			}
			return err
		}
		if err != nil {
			return fmt.Errorf("send packet failed: %w", err)
		}

		return env.Emitter.Emit(result)
	},
}

func init() {
	CMD.Flags().BoolVar(&withFee, "fee", false, "pay the relayer with a quote from the fee estimator")
}
