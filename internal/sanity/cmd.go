package sanity

import (
	"errors"
	"log/slog"

	"github.com/compose-network/ibc-app-orchestrator/internal/bootstrap"
	"github.com/spf13/cobra"
)

var CMD = &cobra.Command{
	Use:   "sanity-check",
	Short: "Compare the dispatcher and middleware stored in each app with the registry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := bootstrap.ForCommand(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		slog.With("config_path", env.ConfigPath()).Info("starting sanity-check command")

		report, err := NewService(env).Run(cmd.Context())
		if err != nil && !errors.Is(err, ErrSanityFailed) {
			return err
		}
		if emitErr := env.Emitter.Emit(report); emitErr != nil {
			return emitErr
		}
		return err
	},
}
