package deploy

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/compose-network/ibc-app-orchestrator/internal/bootstrap/bootstraptest"
	"github.com/compose-network/ibc-app-orchestrator/internal/store"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const document = `{
  "proofsEnabled": false,
  "isUniversal": false,
  "deploy": {"optimism": "XCounter", "base": "XCounter"},
  "createChannel": {"srcChain": "", "srcAddr": "", "dstChain": "", "dstAddr": "", "version": "1.0", "ordering": 0, "fees": false},
  "sendPacket": {
    "optimism": {"portAddr": "0x1234567890abcdef1234567890abcdef12345678", "channelId": "channel-n", "timeout": 36000},
    "base": {"portAddr": "0x1234567890abcdef1234567890abcdef12345678", "channelId": "channel-n", "timeout": 36000}
  },
  "sendUniversalPacket": {}
}`

const counterArtifacts = `{
  "XCounter": {
    "abi": [{"type": "constructor", "stateMutability": "nonpayable", "inputs": [{"name": "dispatcher", "type": "address"}]}],
    "bytecode": "0x6080604052"
  },
  "XCounterUC": {
    "abi": [{"type": "constructor", "stateMutability": "nonpayable", "inputs": [{"name": "middleware", "type": "address"}, {"name": "start", "type": "uint256"}]}],
    "bytecode": "0x6080604053"
  }
}`

func newHarness(t *testing.T, doc string) *bootstraptest.Harness {
	t.Helper()
	h := bootstraptest.New(t, doc)
	path := filepath.Join(h.Dir, "contracts.json")
	require.NoError(t, os.WriteFile(path, []byte(counterArtifacts), 0o644))
	h.Env.Settings.ArtifactsPath = path
	return h
}

func deployedAddress(t *testing.T, tx *types.Transaction) common.Address {
	t.Helper()
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	require.NoError(t, err)
	return crypto.CreateAddress(from, tx.Nonce())
}

func TestParseDeployOutput(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want Result
		err  bool
	}{
		{
			name: "json line",
			out:  "compiling...\n{\"contractType\":\"XCounter\",\"address\":\"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed\",\"network\":\"optimism\"}\n",
			want: Result{ContractType: "XCounter", Address: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", Network: "optimism"},
		},
		{
			name: "legacy line",
			out:  "Contract XCounterUC deployed to 0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359 on network base\n",
			want: Result{ContractType: "XCounterUC", Address: "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", Network: "base"},
		},
		{
			name: "json wins over legacy",
			out:  "Contract Old deployed to 0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359 on network base\n{\"contractType\":\"New\",\"address\":\"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed\",\"network\":\"base\"}",
			want: Result{ContractType: "New", Address: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", Network: "base"},
		},
		{name: "nothing", out: "XCounter deployed to 0x01", err: true},
		{name: "bad address", out: "Contract X deployed to 0xnope on network base", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDeployOutput([]byte(tt.out))
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConstructorArgs(t *testing.T) {
	h := newHarness(t, document)
	h.Env.Settings.Deploy.Arguments = map[string][]string{"xcounteruc": {"7"}}

	contractType, args, err := NewService(h.Env).ConstructorArgs(context.Background(), bootstraptest.Source)
	require.NoError(t, err)
	assert.Equal(t, "XCounter", contractType)
	assert.Equal(t, []string{bootstraptest.SimDispatcher[bootstraptest.Source].Hex()}, args)
}

func TestDeployAndRecordCustom(t *testing.T) {
	h := newHarness(t, document)

	result, err := NewService(h.Env).DeployAndRecord(context.Background(), bootstraptest.Destination, false)
	require.NoError(t, err)

	sent := h.Chains[bootstraptest.Destination].Sent()
	require.Len(t, sent, 1)
	assert.Nil(t, sent[0].To())
	assert.Equal(t, deployedAddress(t, sent[0]).Hex(), result.Address)

	// creation code is followed by the dispatcher as constructor argument
	args, err := abi.Arguments{{Type: mustType(t, "address")}}.Unpack(sent[0].Data()[5:])
	require.NoError(t, err)
	assert.Equal(t, bootstraptest.SimDispatcher[bootstraptest.Destination], args[0])

	doc := h.Document(t)
	assert.Equal(t, result.Address, doc.CreateChannel.DstAddr)
	assert.Equal(t, bootstraptest.Destination, doc.CreateChannel.DstChain)
	assert.Equal(t, result.Address, doc.SendPacket[bootstraptest.Destination].PortAddr)
}

func TestDeployPairUniversal(t *testing.T) {
	doc := `{"proofsEnabled": false, "isUniversal": false, "deploy": {"optimism": "XCounterUC", "base": "XCounterUC"}}`
	h := newHarness(t, doc)
	h.Env.Settings.Deploy.Arguments = map[string][]string{"xcounteruc": {"7"}}

	universal := true
	results, err := NewService(h.Env).DeployPair(context.Background(), bootstraptest.Source, bootstraptest.Destination, &universal)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].IsSource)
	assert.Equal(t, bootstraptest.Destination, results[1].Network)

	saved := h.Document(t)
	assert.True(t, saved.IsUniversal)
	for _, r := range results {
		port := saved.SendUniversalPacket[r.Network]
		assert.Equal(t, r.Address, port.PortAddr)
		assert.Equal(t, bootstraptest.SimUniversalChannel[r.Network], port.ChannelID)
		assert.EqualValues(t, store.DefaultTimeout, port.Timeout)
	}

	sent := h.Chains[bootstraptest.Source].Sent()
	require.Len(t, sent, 1)
	args, err := abi.Arguments{{Type: mustType(t, "address")}, {Type: mustType(t, "uint256")}}.Unpack(sent[0].Data()[5:])
	require.NoError(t, err)
	assert.Equal(t, bootstraptest.SimMiddleware[bootstraptest.Source], args[0])
	assert.Equal(t, big.NewInt(7), args[1])
}

func TestDeployPairKeepsSourceWhenDestinationFails(t *testing.T) {
	h := newHarness(t, document)
	h.Chains[bootstraptest.Destination].Estimate = func(ethereum.CallMsg) (uint64, error) {
		return 0, errors.New("execution reverted")
	}

	results, err := NewService(h.Env).DeployPair(context.Background(), bootstraptest.Source, bootstraptest.Destination, nil)
	require.Error(t, err)
	require.Len(t, results, 1)

	doc := h.Document(t)
	assert.Equal(t, results[0].Address, doc.CreateChannel.SrcAddr)
	assert.Equal(t, store.PlaceholderPortAddr, doc.SendPacket[bootstraptest.Destination].PortAddr)
}

func TestDeployPairRejectsUnknownNetworkBeforeDeploying(t *testing.T) {
	h := newHarness(t, document)

	universal := true
	_, err := NewService(h.Env).DeployPair(context.Background(), bootstraptest.Source, "molten", &universal)
	assert.ErrorIs(t, err, ErrNotWhitelisted)

	assert.Empty(t, h.Chains[bootstraptest.Source].Sent())
	assert.False(t, h.Document(t).IsUniversal)
}

func TestDeployExternalCommand(t *testing.T) {
	h := newHarness(t, document)
	h.Env.Settings.Deploy.Command = "npx hardhat run scripts/deploy.js --network {network} {contract} {args}"

	var invoked []string
	runner := func(_ context.Context, name string, args ...string) ([]byte, error) {
		invoked = append([]string{name}, args...)
		return []byte("Contract XCounter deployed to 0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed on network optimism\n"), nil
	}

	result, err := NewService(h.Env).WithCommandRunner(runner).DeployAndRecord(context.Background(), bootstraptest.Source, true)
	require.NoError(t, err)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", result.Address)
	assert.Equal(t, []string{"npx", "hardhat", "run", "scripts/deploy.js", "--network", "optimism", "XCounter",
		bootstraptest.SimDispatcher[bootstraptest.Source].Hex()}, invoked)
	assert.Empty(t, h.Chains[bootstraptest.Source].Sent())

	doc := h.Document(t)
	assert.Equal(t, bootstraptest.Source, doc.CreateChannel.SrcChain)
	assert.Equal(t, result.Address, doc.CreateChannel.SrcAddr)
}

func TestDeployExternalCommandWrongNetwork(t *testing.T) {
	h := newHarness(t, document)
	h.Env.Settings.Deploy.Command = "deployer {network}"
	runner := func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Contract XCounter deployed to 0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed on network base"), nil
	}

	_, err := NewService(h.Env).WithCommandRunner(runner).Deploy(context.Background(), bootstraptest.Source)
	assert.ErrorContains(t, err, "expected optimism")
}

func TestParseStrictBool(t *testing.T) {
	v, err := ParseStrictBool("true")
	require.NoError(t, err)
	assert.True(t, v)

	_, err = ParseStrictBool("True")
	assert.Error(t, err)
}

func mustType(t *testing.T, name string) abi.Type {
	t.Helper()
	typ, err := abi.NewType(name, "", nil)
	require.NoError(t, err)
	return typ
}
