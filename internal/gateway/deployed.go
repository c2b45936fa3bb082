package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/compose-network/ibc-app-orchestrator/internal/addr"
	"github.com/compose-network/ibc-app-orchestrator/internal/store"
)

var ErrAppNotConfigured = errors.New("no app configured for network")

// DeployedApp binds the app recorded for the gateway's network: the
// contract type from the deploy section and the address of the active port.
func (g *Gateway) DeployedApp(ctx context.Context, doc *store.Document, source ABISource) (*App, error) {
	port, ok := doc.ActivePort(g.network)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAppNotConfigured, g.network)
	}

	address, err := addr.Parse(port.PortAddr)
	if err != nil {
		return nil, fmt.Errorf("port address of %s: %w", g.network, err)
	}

	contractType := doc.Deploy[g.network]
	contractABI, err := source.ABI(ctx, contractType, address)
	if err != nil {
		return nil, err
	}

	g.logger.
		With("address", address.Hex()).
		With("contract_type", contractType).
		Debug("bound deployed app")

	return g.App(address, contractABI), nil
}
