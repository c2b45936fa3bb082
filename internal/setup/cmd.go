package setup

import (
	"log/slog"

	"github.com/compose-network/ibc-app-orchestrator/internal/bootstrap"
	"github.com/compose-network/ibc-app-orchestrator/internal/deploy"
	"github.com/spf13/cobra"
)

var InitCMD = &cobra.Command{
	Use:   "init-config <chainA> <chainB>",
	Short: "Write a fresh configuration document for a pair of networks",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := bootstrap.ForCommand(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		slog.With("chain_a", args[0], "chain_b", args[1], "force", force).Info("starting init-config command")

		path, err := NewService(env).Init(cmd.Context(), args[0], args[1], force)
		if err != nil {
			return err
		}

		env.Emitter.Printf("🆗 Created %s for %s and %s\n", path, args[0], args[1])
		return nil
	},
}

var SetContractsCMD = &cobra.Command{
	Use:   "set-contracts-config <chain> <contractType> <isUniversal>",
	Short: "Record the contract type to deploy on a network",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		isUniversal, err := deploy.ParseStrictBool(args[2])
		if err != nil {
			return err
		}

		env, err := bootstrap.ForCommand(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		slog.With("chain", args[0], "contract_type", args[1], "universal", isUniversal).Info("starting set-contracts-config command")

		if err := NewService(env).SetContracts(cmd.Context(), args[0], args[1], isUniversal); err != nil {
			return err
		}

		env.Emitter.Printf("🆗 Updated %s: %s deploys %s (universal: %t)\n", env.ConfigPath(), args[0], args[1], isUniversal)
		return nil
	},
}

func init() {
	InitCMD.Flags().Bool("force", false, "overwrite an existing configuration document")
}
