package bootstrap

import (
	"github.com/compose-network/ibc-app-orchestrator/configs"
	"github.com/spf13/cobra"
)

// ForCommand builds the environment of a command from the loaded settings.
// Results go to the command's stdout.
func ForCommand(cmd *cobra.Command) (*Env, error) {
	return New(configs.Values, cmd.OutOrStdout())
}
