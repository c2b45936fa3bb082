package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// gasHeadroomPercent is added on top of the node's gas estimate.
const gasHeadroomPercent = 20

// Transact signs and sends a dynamic fee transaction and waits for its
// receipt. A nil to deploys data as contract creation code. Estimation
// reverts and failed receipts surface as ErrContractCall.
func (g *Gateway) Transact(ctx context.Context, to *common.Address, value *big.Int, data []byte) (*types.Receipt, error) {
	if value == nil {
		value = big.NewInt(0)
	}
	from := g.opts.From

	nonce, err := g.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get pending nonce: %v", ErrContractCall, err)
	}

	tipCap, err := g.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to suggest gas tip: %v", ErrContractCall, err)
	}

	head, err := g.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get latest header: %v", ErrContractCall, err)
	}
	feeCap := new(big.Int).Set(tipCap)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	gas, err := g.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:      from,
		To:        to,
		GasFeeCap: feeCap,
		GasTipCap: tipCap,
		Value:     value,
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: gas estimation reverted: %v", ErrContractCall, err)
	}
	gas += gas * gasHeadroomPercent / 100

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   g.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        to,
		Value:     value,
		Data:      data,
	})

	signed, err := g.opts.Signer(from, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := g.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("%w: failed to send transaction: %v", ErrContractCall, err)
	}

	g.logger.
		With("tx_hash", signed.Hash().Hex()).
		With("nonce", nonce).
		With("gas", gas).
		Info("transaction sent")

	receipt, err := g.waitReceipt(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: transaction %s failed with status %d", ErrContractCall, signed.Hash().Hex(), receipt.Status)
	}

	g.logger.
		With("tx_hash", signed.Hash().Hex()).
		With("block", receipt.BlockNumber).
		Info("transaction mined")

	return receipt, nil
}

func (g *Gateway) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(g.receiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: failed to get receipt for %s: %v", ErrContractCall, hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: waiting for receipt of %s: %v", ErrContractCall, hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
