package gateway

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Fee is a relayer fee quote. Total is attached as transaction value and
// must match what the app's fee vault expects, otherwise the call reverts.
type Fee struct {
	GasLimits [2]*big.Int
	GasPrices [2]*big.Int
	Total     *big.Int
}

// App is a deployed IBC application.
type App struct {
	bound *bound
}

func (a *App) Address() common.Address {
	return a.bound.address
}

func (a *App) CreateChannel(ctx context.Context, version string, ordering uint8, feesEnabled bool, hops []string, counterpartyPortID string) (*types.Receipt, error) {
	return a.bound.transact(ctx, nil, "createChannel", version, ordering, feesEnabled, hops, counterpartyPortID)
}

// SendPacket sends on a custom channel, through sendPacketWithFee when fee is set.
func (a *App) SendPacket(ctx context.Context, channelID string, timeoutSeconds uint64, fee *Fee) (*types.Receipt, error) {
	channel, err := EncodeBytes32String(channelID)
	if err != nil {
		return nil, err
	}

	if fee == nil {
		return a.bound.transact(ctx, nil, "sendPacket", channel, timeoutSeconds)
	}
	return a.bound.transact(ctx, fee.Total, "sendPacketWithFee", channel, timeoutSeconds, fee.GasLimits, fee.GasPrices)
}

// SendUniversalPacket sends through the universal channel to destPort.
func (a *App) SendUniversalPacket(ctx context.Context, destPort common.Address, channelID string, timeoutSeconds uint64, fee *Fee) (*types.Receipt, error) {
	channel, err := EncodeBytes32String(channelID)
	if err != nil {
		return nil, err
	}

	if fee == nil {
		return a.bound.transact(ctx, nil, "sendUniversalPacket", destPort, channel, timeoutSeconds)
	}
	return a.bound.transact(ctx, fee.Total, "sendUniversalPacketWithFee", destPort, channel, timeoutSeconds, fee.GasLimits, fee.GasPrices)
}

func (a *App) UpdateDispatcher(ctx context.Context, dispatcher common.Address) (*types.Receipt, error) {
	return a.bound.transact(ctx, nil, "updateDispatcher", dispatcher)
}

// UpdateMiddleware points a universal app at a new middleware. Older apps
// only expose setDefaultMw.
func (a *App) UpdateMiddleware(ctx context.Context, middleware common.Address) (*types.Receipt, error) {
	if !a.bound.has("updateMiddleware") && a.bound.has("setDefaultMw") {
		return a.bound.transact(ctx, nil, "setDefaultMw", middleware)
	}
	return a.bound.transact(ctx, nil, "updateMiddleware", middleware)
}

func (a *App) ConnectedChannels(ctx context.Context) ([]ChannelPair, error) {
	out, err := a.bound.call(ctx, "getConnectedChannels")
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: getConnectedChannels returned %d values", ErrContractCall, len(out))
	}

	raw := *abi.ConvertType(out[0], new([]channelPairRaw)).(*[]channelPairRaw)

	pairs := make([]ChannelPair, 0, len(raw))
	for _, p := range raw {
		pairs = append(pairs, ChannelPair{
			ChannelID:   DecodeBytes32String(p.ChannelId),
			CpChannelID: DecodeBytes32String(p.CpChannelId),
		})
	}
	return pairs, nil
}

// Dispatcher returns the dispatcher a custom app is bound to.
func (a *App) Dispatcher(ctx context.Context) (common.Address, error) {
	return a.bound.callAddress(ctx, "dispatcher")
}

// Mw returns the middleware a universal app is bound to.
func (a *App) Mw(ctx context.Context) (common.Address, error) {
	return a.bound.callAddress(ctx, "mw")
}

// Middleware is the universal channel handler.
type Middleware struct {
	bound *bound
}

func (m *Middleware) Address() common.Address {
	return m.bound.address
}

func (m *Middleware) Dispatcher(ctx context.Context) (common.Address, error) {
	return m.bound.callAddress(ctx, "dispatcher")
}

// ConnectedChannel returns the channel id stored at index.
func (m *Middleware) ConnectedChannel(ctx context.Context, index int64) (string, error) {
	out, err := m.bound.call(ctx, "connectedChannels", big.NewInt(index))
	if err != nil {
		return "", err
	}
	if len(out) != 1 {
		return "", fmt.Errorf("%w: connectedChannels returned %d values", ErrContractCall, len(out))
	}
	channel, ok := out[0].([32]byte)
	if !ok {
		return "", fmt.Errorf("%w: connectedChannels returned %T", ErrContractCall, out[0])
	}
	return DecodeBytes32String(channel), nil
}

// Dispatcher is the IBC core contract of a network.
type Dispatcher struct {
	bound *bound
}

func (d *Dispatcher) Address() common.Address {
	return d.bound.address
}

func (d *Dispatcher) PortPrefix(ctx context.Context) (string, error) {
	out, err := d.bound.call(ctx, "portPrefix")
	if err != nil {
		return "", err
	}
	prefix, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("%w: portPrefix returned %T", ErrContractCall, out[0])
	}
	return prefix, nil
}
