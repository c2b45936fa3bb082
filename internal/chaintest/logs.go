package chaintest

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

// AddressTopic encodes an indexed address.
func AddressTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

// Log builds a log of the named event emitted by contract. indexed holds the
// topic values after the event id, data the non-indexed values in order.
func Log(t *testing.T, contractABI abi.ABI, contract common.Address, name string, indexed []common.Hash, data ...any) types.Log {
	t.Helper()
	ev, ok := contractABI.Events[name]
	require.True(t, ok, name)

	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	require.NoError(t, err)

	return types.Log{
		Address: contract,
		Topics:  append([]common.Hash{ev.ID}, indexed...),
		Data:    packed,
		TxHash:  common.BytesToHash(append([]byte(name), contract.Bytes()...)),
	}
}
