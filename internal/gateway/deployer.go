package gateway

import (
	"context"
	"fmt"

	"github.com/compose-network/ibc-app-orchestrator/internal/artifacts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Deploy creates contract with the given constructor arguments and waits
// until the creation transaction is mined.
func (g *Gateway) Deploy(ctx context.Context, contract artifacts.Contract, constructorArgs ...any) (common.Address, *types.Receipt, error) {
	if !contract.Deployable() {
		return common.Address{}, nil, fmt.Errorf("contract %s has no bytecode", contract.Name)
	}

	packedArgs, err := contract.ABI.Pack("", constructorArgs...)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to pack constructor arguments of %s: %w", contract.Name, err)
	}

	data := append(append([]byte{}, contract.Bytecode...), packedArgs...)

	g.logger.
		With("contract", contract.Name).
		With("args", len(constructorArgs)).
		Info("deploying contract")

	receipt, err := g.Transact(ctx, nil, nil, data)
	if err != nil {
		return common.Address{}, receipt, fmt.Errorf("failed to deploy %s: %w", contract.Name, err)
	}

	g.logger.
		With("contract", contract.Name).
		With("address", receipt.ContractAddress.Hex()).
		With("tx_hash", receipt.TxHash.Hex()).
		Info("contract deployed")

	return receipt.ContractAddress, receipt, nil
}

// ConstructorInputs returns the declared constructor parameter types.
func ConstructorInputs(contract artifacts.Contract) []string {
	inputs := make([]string, 0, len(contract.ABI.Constructor.Inputs))
	for _, in := range contract.ABI.Constructor.Inputs {
		inputs = append(inputs, in.Type.String())
	}
	return inputs
}
