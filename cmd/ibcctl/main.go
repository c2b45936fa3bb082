package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/compose-network/ibc-app-orchestrator/configs"
	"github.com/compose-network/ibc-app-orchestrator/internal/channel"
	"github.com/compose-network/ibc-app-orchestrator/internal/clients"
	"github.com/compose-network/ibc-app-orchestrator/internal/deploy"
	"github.com/compose-network/ibc-app-orchestrator/internal/logger"
	"github.com/compose-network/ibc-app-orchestrator/internal/packet"
	"github.com/compose-network/ibc-app-orchestrator/internal/sanity"
	"github.com/compose-network/ibc-app-orchestrator/internal/setup"
	"github.com/compose-network/ibc-app-orchestrator/internal/verify"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	appName   = "ibcctl"
	envPrefix = "IBCCTL"
)

var rootCmd = &cobra.Command{
	Use:          appName,
	Short:        "Deploy IBC apps and drive channels and packets between them",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Wallet keys usually live in .env next to the deployment document
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.Join(err, errors.New("error reading .env file"))
		}

		viper.SetEnvPrefix(envPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
		viper.AutomaticEnv()

		logger.InitializeWith(os.Stderr, viper.GetString("log-format"), logger.ParseLevel(viper.GetString("log-level")))

		if err := configs.ApplyDefaults(viper.GetViper()); err != nil {
			return err
		}

		viper.SetConfigName(appName)
		viper.SetConfigType("yaml")

		if execPath, err := os.Executable(); err == nil {
			viper.AddConfigPath(filepath.Dir(execPath))
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				slog.Debug("no settings file found, will rely on flags and defaults")
			} else {
				const errMsg = "error reading settings file"
				slog.With("err", err.Error()).Error(errMsg)
				return errors.Join(err, errors.New(errMsg))
			}
		} else {
			slog.With("config_file", viper.ConfigFileUsed()).Debug("settings file loaded")
		}

		settings, err := configs.Decode(viper.GetViper())
		if err != nil {
			slog.With("err", err.Error()).Error("unable to decode application settings")
			return err
		}
		configs.Values = settings

		if err := configs.Values.Validate(); err != nil {
			return err
		}

		slog.With("config", configs.Values).Debug("configuration loaded")

		return nil
	},
}

func main() {
	rootCmd.AddCommand(deploy.CompileCMD)
	rootCmd.AddCommand(deploy.CMD)
	rootCmd.AddCommand(deploy.ConfigCMD)
	rootCmd.AddCommand(channel.CMD)
	rootCmd.AddCommand(packet.CMD)
	rootCmd.AddCommand(sanity.CMD)
	rootCmd.AddCommand(clients.CMD)
	rootCmd.AddCommand(setup.InitCMD)
	rootCmd.AddCommand(setup.SetContractsCMD)
	rootCmd.AddCommand(verify.CMD)

	if err := rootCmd.Execute(); err != nil {
		slog.With("err", err.Error()).Error("failed to execute root command")
		os.Exit(1)
	}
}
