package gateway

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type bound struct {
	gateway *Gateway
	address common.Address
	abi     abi.ABI
}

func (b *bound) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	out, err := b.gateway.backend.CallContract(ctx, ethereum.CallMsg{
		From: b.gateway.From(),
		To:   &b.address,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s on %s: %v", ErrContractCall, method, b.address.Hex(), err)
	}

	values, err := b.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unpack %s from %s: %v", ErrContractCall, method, b.address.Hex(), err)
	}

	return values, nil
}

func (b *bound) callAddress(ctx context.Context, method string, args ...any) (common.Address, error) {
	out, err := b.call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("%w: %s returned %d values", ErrContractCall, method, len(out))
	}
	address, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s returned %T, not an address", ErrContractCall, method, out[0])
	}
	return address, nil
}

func (b *bound) transact(ctx context.Context, value *big.Int, method string, args ...any) (*types.Receipt, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	b.gateway.logger.
		With("contract", b.address.Hex()).
		With("method", method).
		Info("sending transaction")

	receipt, err := b.gateway.Transact(ctx, &b.address, value, data)
	if err != nil {
		return receipt, fmt.Errorf("%s on %s: %w", method, b.address.Hex(), err)
	}
	return receipt, nil
}

func (b *bound) has(method string) bool {
	_, ok := b.abi.Methods[method]
	return ok
}
