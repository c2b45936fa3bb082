package deploy

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/compose-network/ibc-app-orchestrator/internal/artifacts"
	"github.com/compose-network/ibc-app-orchestrator/internal/bootstrap"
	"github.com/spf13/cobra"
)

var CMD = &cobra.Command{
	Use:   "deploy <network>",
	Short: "Deploy the configured app on one network and record its address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := bootstrap.ForCommand(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		isSource, err := cmd.Flags().GetBool("source")
		if err != nil {
			return err
		}

		slog.With("network", args[0], "source", isSource).Info("starting deploy command")

		result, err := NewService(env).DeployAndRecord(cmd.Context(), args[0], isSource)
		if err != nil {
			return fmt.Errorf("deploy failed: %w", err)
		}

		return env.Emitter.Emit(result)
	},
}

var ConfigCMD = &cobra.Command{
	Use:   "deploy-config <source> <destination> [universal]",
	Short: "Deploy apps on both networks and record them, source first",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var universal *bool
		if len(args) == 3 {
			v, err := ParseStrictBool(args[2])
			if err != nil {
				return err
			}
			universal = &v
		}

		env, err := bootstrap.ForCommand(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		slog.With("source", args[0], "destination", args[1]).Info("starting deploy-config command")

		results, err := NewService(env).DeployPair(cmd.Context(), args[0], args[1], universal)
		for _, r := range results {
			if emitErr := env.Emitter.Emit(r); emitErr != nil {
				return emitErr
			}
			env.Emitter.Printf("🆗 Updated %s with address %s on network %s\n", env.ConfigPath(), r.Address, r.Network)
		}
		if err != nil {
			return fmt.Errorf("deploy-config failed: %w", err)
		}

		return nil
	},
}

var CompileCMD = &cobra.Command{
	Use:   "compile <contract>...",
	Short: "Compile app contracts with forge into the artifacts file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := bootstrap.ForCommand(cmd)
		if err != nil {
			return err
		}

		output := env.Settings.ArtifactsPath
		if output == "" {
			return fmt.Errorf("artifacts-path must be set to compile contracts")
		}

		compiler := artifacts.NewCompiler(env.Settings.ContractsDir, output, env.Writer())
		if err := compiler.Compile(cmd.Context(), args); err != nil {
			return fmt.Errorf("contract compilation failed: %w", err)
		}

		slog.With("output", output).Info("contract compilation completed successfully")
		return nil
	},
}

// ParseStrictBool accepts exactly "true" or "false".
func ParseStrictBool(s string) (bool, error) {
	switch s {
	case "true", "false":
		return strconv.ParseBool(s)
	default:
		return false, fmt.Errorf("expected true or false, got %q", s)
	}
}

func init() {
	CMD.Flags().Bool("source", false, "record the app as the source end of the channel")
}
