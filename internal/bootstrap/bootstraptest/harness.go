// Package bootstraptest wires commands to in-memory chains for tests.
package bootstraptest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/compose-network/ibc-app-orchestrator/configs"
	"github.com/compose-network/ibc-app-orchestrator/internal/bootstrap"
	"github.com/compose-network/ibc-app-orchestrator/internal/chaintest"
	"github.com/compose-network/ibc-app-orchestrator/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const (
	Source      = "optimism"
	Destination = "base"

	SourceChainID      = 11155420
	DestinationChainID = 84532

	// Key is the well known first anvil account.
	Key = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

// Registry addresses. The sim client and the op client of each chain use
// distinct contracts so client rotation is observable.
var (
	SimDispatcher = map[string]common.Address{
		Source:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Destination: common.HexToAddress("0x1111111111111111111111111111111111112222"),
	}
	SimMiddleware = map[string]common.Address{
		Source:      common.HexToAddress("0x2222222222222222222222222222222222221111"),
		Destination: common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}
	OpDispatcher = map[string]common.Address{
		Source:      common.HexToAddress("0x3333333333333333333333333333333333331111"),
		Destination: common.HexToAddress("0x3333333333333333333333333333333333332222"),
	}
	OpMiddleware = map[string]common.Address{
		Source:      common.HexToAddress("0x4444444444444444444444444444444444441111"),
		Destination: common.HexToAddress("0x4444444444444444444444444444444444442222"),
	}
	SimUniversalChannel = map[string]string{Source: "channel-10", Destination: "channel-11"}
	OpUniversalChannel  = map[string]string{Source: "channel-20", Destination: "channel-21"}
)

// Harness is a configured environment backed by one in-memory chain per network.
type Harness struct {
	Env    *bootstrap.Env
	Chains map[string]*chaintest.Chain
	Out    *bytes.Buffer
	Dir    string
}

func chainEntry(network string) string {
	return fmt.Sprintf(`{
    "clients": {
      "sim-client": {"dispatcherAddr": %q, "universalChannelAddr": %q, "universalChannelId": %q, "canonConnFrom": "connection-%s-0", "canonConnTo": "connection-%s-1"},
      "op-client": {"dispatcherAddr": %q, "universalChannelAddr": %q, "universalChannelId": %q, "canonConnFrom": "connection-%s-2", "canonConnTo": "connection-%s-3"}
    },
    "explorers": [{"url": "https://%s.explorer.example/", "apiUrl": "https://%s.explorer.example/api"}]
  }`,
		SimDispatcher[network].Hex(), SimMiddleware[network].Hex(), SimUniversalChannel[network], network, network,
		OpDispatcher[network].Hex(), OpMiddleware[network].Hex(), OpUniversalChannel[network], network, network,
		network, network)
}

// RegistryJSON is the registry document served to the harness.
func RegistryJSON() string {
	return fmt.Sprintf(`{"%d": %s, "%d": %s}`,
		SourceChainID, chainEntry(Source), DestinationChainID, chainEntry(Destination))
}

// Settings returns the default settings pointing at dir.
func Settings(dir string) configs.Config {
	v := viper.New()
	if err := configs.ApplyDefaults(v); err != nil {
		panic(err)
	}
	cfg, err := configs.Decode(v)
	if err != nil {
		panic(err)
	}
	cfg.ConfigPath = filepath.Join(dir, "config", "config.json")
	cfg.Output = configs.OutputHuman
	cfg.ABISource = configs.ABISourceArtifacts
	cfg.Registry = configs.Registry{File: filepath.Join(dir, "registry.json")}
	cfg.Networks = map[configs.NetworkName]configs.Network{
		Source: {
			ChainID:       SourceChainID,
			RPCURL:        "mem://" + Source,
			PrivateKeyEnv: "OP_WALLET_KEY",
			ExplorerURL:   "https://optimism-sepolia.blockscout.com/",
			PortPrefix:    "polyibc.optimism.",
		},
		Destination: {
			ChainID:       DestinationChainID,
			RPCURL:        "mem://" + Destination,
			PrivateKeyEnv: "BASE_WALLET_KEY",
			ExplorerURL:   "https://base-sepolia.blockscout.com/",
			PortPrefix:    "polyibc.base.",
		},
	}
	cfg.Timeouts = configs.Timeouts{
		ChannelHandshake:       5 * time.Second,
		ChannelHandshakeProofs: 5 * time.Second,
		PacketAck:              5 * time.Second,
	}
	cfg.AckPoll = configs.AckPoll{Interval: 10 * time.Millisecond, Attempts: 300}
	cfg.Switch = configs.Switch{Policy: configs.SwitchPolicyAbortOnFailure}
	return cfg
}

// New writes the registry and, when document is not empty, the
// configuration document, then builds an environment over fresh chains.
func New(t *testing.T, document string) *Harness {
	t.Helper()
	t.Setenv("CONFIG_PATH", "")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "registry.json"), []byte(RegistryJSON()), 0o644))
	if document != "" {
		path := filepath.Join(dir, "config", "config.json")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(document), 0o644))
	}

	return NewWithSettings(t, Settings(dir), dir)
}

// NewWithSettings builds an environment over fresh chains for cfg.
func NewWithSettings(t *testing.T, cfg configs.Config, dir string) *Harness {
	t.Helper()

	h := &Harness{
		Chains: map[string]*chaintest.Chain{
			Source:      chaintest.New(SourceChainID),
			Destination: chaintest.New(DestinationChainID),
		},
		Out: &bytes.Buffer{},
		Dir: dir,
	}

	env, err := bootstrap.New(cfg, h.Out)
	require.NoError(t, err)

	h.Env = env.
		WithDialer(func(_ context.Context, url string) (bootstrap.Client, error) {
			chain, ok := h.Chains[strings.TrimPrefix(url, "mem://")]
			if !ok {
				return nil, fmt.Errorf("no chain behind %s", url)
			}
			return chain, nil
		}).
		WithGetenv(func(name string) string {
			if strings.HasSuffix(name, "_WALLET_KEY") {
				return Key
			}
			return ""
		}).
		WithReceiptInterval(time.Millisecond)

	t.Cleanup(h.Env.Close)
	return h
}

// Document reloads the configuration document from disk.
func (h *Harness) Document(t *testing.T) *store.Document {
	t.Helper()
	s, err := store.Open(h.Env.ConfigPath(), h.Env.Reader(), h.Env.Writer())
	require.NoError(t, err)
	return s.Document()
}
