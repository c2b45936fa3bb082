package configs

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExampleIsValid(t *testing.T) {
	example, err := readExample()
	require.NoError(t, err)
	cfg, err := Decode(example)
	require.NoError(t, err)

	require.NoError(t, cfg.Validate())

	op, ok := cfg.Network("optimism")
	require.True(t, ok)
	assert.Equal(t, uint64(11155420), op.ChainID)
}

func TestApplyDefaultsLeavesNetworksToTheUser(t *testing.T) {
	v := viper.New()
	require.NoError(t, ApplyDefaults(v))

	cfg, err := Decode(v)
	require.NoError(t, err)
	assert.Empty(t, cfg.Networks)
	assert.Equal(t, SwitchPolicyAbortOnFailure, cfg.Switch.Policy)
	assert.Equal(t, 100, cfg.AckPoll.Attempts)
	assert.Equal(t, 2*time.Second, cfg.AckPoll.Interval)

	v.Set("networks.molten.chain-id", 49321)
	v.Set("networks.molten.rpc-url", "https://rpc.molten.example")
	v.Set("networks.molten.private-key-env", "MOLTEN_WALLET_KEY")

	cfg, err = Decode(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"molten"}, cfg.NetworkNames())
	require.NoError(t, cfg.Validate())
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := Config{
		Output:    "xml",
		ABISource: "ipfs",
		Networks: map[NetworkName]Network{
			"optimism": {},
		},
	}

	err := cfg.Validate()
	require.Error(t, err)

	for _, want := range []string{
		"output must be one of",
		"abi-source must be either",
		"registry.url or registry.file is required",
		"networks.optimism.chain-id is required",
		"networks.optimism.rpc-url is required",
		"networks.optimism.private-key-env is required",
		"timeouts.channel-handshake must be greater than 0",
		"ack-poll.attempts must be greater than 0",
		"switch.policy must be either",
	} {
		assert.Contains(t, err.Error(), want)
	}
}
