package verify

import (
	"log/slog"

	"github.com/compose-network/ibc-app-orchestrator/internal/bootstrap"
	"github.com/spf13/cobra"
)

var CMD = &cobra.Command{
	Use:   "verify <network> <address>",
	Short: "Verify a deployed app on the network's block explorer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := bootstrap.ForCommand(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		slog.With("network", args[0], "address", args[1]).Info("starting verify command")

		result, err := NewService(env).Verify(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return env.Emitter.Emit(result)
	},
}
