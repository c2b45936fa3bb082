package channel

import (
	"fmt"
	"log/slog"

	"github.com/compose-network/ibc-app-orchestrator/internal/bootstrap"
	"github.com/spf13/cobra"
)

var CMD = &cobra.Command{
	Use:   "create-channel-config",
	Short: "Open a custom channel between the apps in createChannel and record its ids",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := bootstrap.ForCommand(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		st, err := env.OpenStore()
		if err != nil {
			return err
		}
		cc := st.Document().CreateChannel
		slog.With(
			"source", cc.SrcChain,
			"destination", cc.DstChain,
			"timeout", handshakeTimeout(env, st.Document().ProofsEnabled).String(),
		).Info("starting create-channel-config command")

		result, err := NewService(env).Create(cmd.Context())
		if err != nil {
			return fmt.Errorf("channel creation failed: %w", err)
		}

		if err := env.Emitter.Emit(result); err != nil {
			return err
		}
		env.Emitter.Printf("🆗 Updated %s with %s on network %s and %s on network %s\n",
			env.ConfigPath(), result.ChannelID, result.Network, result.CpChannelID, result.CpNetwork)
		return nil
	},
}
