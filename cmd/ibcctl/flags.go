package main

import (
	"github.com/spf13/viper"
)

// flagDef defines a persistent flag and the viper key it overrides.
type (
	flagType interface {
		string | int | bool
	}

	flagDef[T flagType] struct {
		name         string
		viperKey     string
		defaultValue T
		description  string
	}
)

var (
	stringFlags = []flagDef[string]{
		// Output
		{"output", "output", "human", "Output format (human, json or yaml)"},
		{"log-level", "log-level", "info", "Log level (debug, info, warn or error)"},
		{"log-format", "log-format", "json", "Log format (json or text)"},

		// Documents
		{"config-path", "config-path", "config/config.json", "Path of the deployment document"},
		{"registry-url", "registry.url", "", "URL of the channel registry"},
		{"registry-file", "registry.file", "config/registry.json", "Local copy of the channel registry"},

		// Contracts
		{"abi-source", "abi-source", "artifacts", "Where app ABIs come from (artifacts or explorer)"},
		{"artifacts-path", "artifacts-path", "", "Compiled contracts file, empty for the embedded interfaces"},
		{"contracts-dir", "contracts-dir", "contracts", "Foundry project used for compile and verify"},

		// Relayer fees
		{"fee-estimator-url", "fee-estimator-url", "", "Fee estimator API base URL"},
	}

	intFlags = []flagDef[int]{
		{"ack-poll-attempts", "ack-poll.attempts", 100, "Acknowledgement poll attempts"},
	}

	boolFlags = []flagDef[bool]{}
)

func init() {
	if err := declareFlags(stringFlags); err != nil {
		panic(err)
	}
	if err := declareFlags(intFlags); err != nil {
		panic(err)
	}
	if err := declareFlags(boolFlags); err != nil {
		panic(err)
	}
}

// declareFlags declares persistent flags and binds them to viper configuration keys.
func declareFlags[T flagType](flags []flagDef[T]) error {
	for _, flag := range flags {
		if err := declareFlag(flag.name, flag.viperKey, flag.defaultValue, flag.description); err != nil {
			return err
		}
	}
	return nil
}

func declareFlag[T flagType](flagName, viperKey string, defaultValue T, description string) error {
	var zero T
	switch any(zero).(type) {
	case string:
		rootCmd.PersistentFlags().String(flagName, any(defaultValue).(string), description)
	case int:
		rootCmd.PersistentFlags().Int(flagName, any(defaultValue).(int), description)
	case bool:
		rootCmd.PersistentFlags().Bool(flagName, any(defaultValue).(bool), description)
	}
	return viper.BindPFlag(viperKey, rootCmd.PersistentFlags().Lookup(flagName))
}
