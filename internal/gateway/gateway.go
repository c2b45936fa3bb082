package gateway

import (
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/compose-network/ibc-app-orchestrator/internal/artifacts"
	"github.com/compose-network/ibc-app-orchestrator/internal/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const defaultReceiptInterval = 2 * time.Second

// Gateway sends calls and transactions to one network on behalf of one account.
type Gateway struct {
	network         string
	backend         Backend
	opts            *bind.TransactOpts
	chainID         *big.Int
	receiptInterval time.Duration
	logger          *slog.Logger
}

func New(network string, backend Backend, key *ecdsa.PrivateKey, chainID *big.Int) (*Gateway, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	return &Gateway{
		network:         network,
		backend:         backend,
		opts:            opts,
		chainID:         chainID,
		receiptInterval: defaultReceiptInterval,
		logger:          logger.Named("gateway").With("network", network),
	}, nil
}

// WithReceiptInterval changes how often receipts are polled.
func (g *Gateway) WithReceiptInterval(interval time.Duration) *Gateway {
	g.receiptInterval = interval
	return g
}

func (g *Gateway) Network() string {
	return g.network
}

func (g *Gateway) From() common.Address {
	return g.opts.From
}

func (g *Gateway) Backend() Backend {
	return g.backend
}

// App binds an application contract.
func (g *Gateway) App(address common.Address, contractABI abi.ABI) *App {
	return &App{bound: g.bind(address, contractABI)}
}

// Middleware binds the universal channel middleware.
func (g *Gateway) Middleware(address common.Address) *Middleware {
	uch := artifacts.MustEmbedded()
	c, _ := uch.Get(artifacts.NameUniversalChannelHandler)
	return &Middleware{bound: g.bind(address, c.ABI)}
}

// Dispatcher binds the dispatcher.
func (g *Gateway) Dispatcher(address common.Address) *Dispatcher {
	set := artifacts.MustEmbedded()
	c, _ := set.Get(artifacts.NameDispatcher)
	return &Dispatcher{bound: g.bind(address, c.ABI)}
}

func (g *Gateway) bind(address common.Address, contractABI abi.ABI) *bound {
	return &bound{
		gateway: g,
		address: address,
		abi:     contractABI,
	}
}
