package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/compose-network/ibc-app-orchestrator/internal/bootstrap/bootstraptest"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const document = `{
  "proofsEnabled": false,
  "isUniversal": true,
  "deploy": {"optimism": "XCounterUC", "base": "XCounterUC"},
  "sendUniversalPacket": {}
}`

const counterArtifacts = `{
  "XCounterUC": {
    "abi": [{"type": "constructor", "stateMutability": "nonpayable", "inputs": [{"name": "middleware", "type": "address"}, {"name": "start", "type": "uint256"}]}],
    "bytecode": "0x6080604053"
  }
}`

func newHarness(t *testing.T) *bootstraptest.Harness {
	t.Helper()
	h := bootstraptest.New(t, document)
	path := filepath.Join(h.Dir, "contracts.json")
	require.NoError(t, os.WriteFile(path, []byte(counterArtifacts), 0o644))
	h.Env.Settings.ArtifactsPath = path
	h.Env.Settings.ContractsDir = "contracts"
	h.Env.Settings.Deploy.Arguments = map[string][]string{"xcounteruc": {"7"}}
	return h
}

func TestVerify(t *testing.T) {
	h := newHarness(t)

	var got []string
	runner := func(_ context.Context, dir string, args ...string) ([]byte, error) {
		assert.Equal(t, "contracts", dir)
		got = args
		return []byte("Submitted contract for verification\n"), nil
	}

	result, err := NewService(h.Env).WithRunner(runner).
		Verify(context.Background(), bootstraptest.Destination, "0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359")
	require.NoError(t, err)

	mw := bootstraptest.SimMiddleware[bootstraptest.Destination]
	wantArgs := "0x" + strings.ToLower(common.Bytes2Hex(common.LeftPadBytes(mw.Bytes(), 32))) +
		"0000000000000000000000000000000000000000000000000000000000000007"
	assert.Equal(t, wantArgs, result.ConstructorArgs)
	assert.Equal(t, "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", result.Address)
	assert.Equal(t, "Submitted contract for verification", result.Output)

	assert.Equal(t, []string{
		"verify-contract", "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", "XCounterUC",
		"--chain-id", "84532",
		"--constructor-args", wantArgs,
		"--verifier", "blockscout",
		"--verifier-url", "https://base.explorer.example/api",
	}, got)
}

func TestVerifyErrors(t *testing.T) {
	h := newHarness(t)
	failing := func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("forge exited 1")
	}
	svc := NewService(h.Env).WithRunner(failing)

	_, err := svc.Verify(context.Background(), "molten", "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")
	assert.ErrorIs(t, err, ErrNotWhitelisted)

	_, err = svc.Verify(context.Background(), bootstraptest.Destination, "0x1234")
	assert.Error(t, err)

	_, err = svc.Verify(context.Background(), bootstraptest.Destination, "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")
	assert.ErrorContains(t, err, "forge exited 1")
}
