package clients

import (
	"errors"
	"log/slog"

	"github.com/compose-network/ibc-app-orchestrator/configs"
	"github.com/compose-network/ibc-app-orchestrator/internal/bootstrap"
	"github.com/spf13/cobra"
)

var policy string

var CMD = &cobra.Command{
	Use:   "switch-clients",
	Short: "Point every app at the other light client and flip proofsEnabled",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := bootstrap.ForCommand(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		if policy != "" {
			env.Settings.Switch.Policy = configs.SwitchPolicy(policy)
		}
		slog.With("policy", env.Settings.Switch.Policy).Info("starting switch-clients command")

		report, err := NewService(env).Switch(cmd.Context())
		if err != nil && !errors.Is(err, ErrRotationFailed) {
			return err
		}
		if emitErr := env.Emitter.Emit(report); emitErr != nil {
			return emitErr
		}
		return err
	},
}

func init() {
	CMD.Flags().StringVar(&policy, "policy", "", "abort-on-failure or flip-anyway, overrides switch.policy")
}
