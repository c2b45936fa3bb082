package gateway

import (
	"math/big"
	"testing"
	"time"

	"github.com/compose-network/ibc-app-orchestrator/internal/addr"
	"github.com/compose-network/ibc-app-orchestrator/internal/artifacts"
	"github.com/compose-network/ibc-app-orchestrator/internal/chaintest"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/require"
)

const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testChainID = big.NewInt(11155420)

func newFakeBackend() *chaintest.Chain {
	return chaintest.New(testChainID.Int64())
}

func newTestGateway(t *testing.T, backend Backend) *Gateway {
	t.Helper()
	key, err := addr.KeyFromHex(testKey)
	require.NoError(t, err)

	g, err := New("optimism", backend, key, testChainID)
	require.NoError(t, err)
	return g.WithReceiptInterval(time.Millisecond)
}

func embeddedABI(t *testing.T, name string) abi.ABI {
	t.Helper()
	c, err := artifacts.MustEmbedded().Get(name)
	require.NoError(t, err)
	return c.ABI
}
