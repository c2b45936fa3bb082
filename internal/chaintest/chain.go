// Package chaintest provides an in-memory chain client for tests. It answers
// eth_call by method selector, mines every transaction it receives and
// delivers logs to subscribers.
package chaintest

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/require"
)

type revertError string

func (e revertError) Error() string { return string(e) }

const ErrExecutionReverted = revertError("execution reverted")

const (
	DefaultTipCap  = 1_000_000_000
	DefaultBaseFee = 2_000_000_000
	DefaultGas     = 100_000
)

type (
	CallHandler func(ethereum.CallMsg) ([]byte, error)

	callKey struct {
		to       common.Address
		selector [4]byte
	}

	subscriber struct {
		query ethereum.FilterQuery
		ch    chan<- types.Log
		quit  chan struct{}
	}
)

// Chain is safe for concurrent use.
type Chain struct {
	mu sync.Mutex

	chainID *big.Int
	head    uint64

	calls   map[[4]byte]CallHandler
	callsAt map[callKey]CallHandler

	// Estimate overrides gas estimation when set.
	Estimate func(ethereum.CallMsg) (uint64, error)
	// Status decides the receipt status of a transaction when set.
	Status func(*types.Transaction) uint64
	// OnMined runs after a transaction has been mined, outside the chain lock.
	OnMined func(*types.Transaction, *types.Receipt)
	// NoSubscriptions makes SubscribeFilterLogs fail like a plain HTTP endpoint.
	NoSubscriptions bool

	nonce    uint64
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	polled   map[common.Hash]bool

	logs []types.Log
	subs []*subscriber
}

func New(chainID int64) *Chain {
	return &Chain{
		chainID:  big.NewInt(chainID),
		head:     100,
		calls:    make(map[[4]byte]CallHandler),
		callsAt:  make(map[callKey]CallHandler),
		receipts: make(map[common.Hash]*types.Receipt),
		polled:   make(map[common.Hash]bool),
	}
}

func selectorOf(t *testing.T, contractABI abi.ABI, method string) ([4]byte, abi.Method) {
	t.Helper()
	m, ok := contractABI.Methods[method]
	require.True(t, ok, method)

	var selector [4]byte
	copy(selector[:], m.ID)
	return selector, m
}

// OnCall answers every call of method with outputs.
func (c *Chain) OnCall(t *testing.T, contractABI abi.ABI, method string, outputs ...any) {
	t.Helper()
	selector, m := selectorOf(t, contractABI, method)
	packed, err := m.Outputs.Pack(outputs...)
	require.NoError(t, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[selector] = func(ethereum.CallMsg) ([]byte, error) { return packed, nil }
}

// OnCallAt answers calls of method on one contract. It wins over OnCall.
func (c *Chain) OnCallAt(t *testing.T, to common.Address, contractABI abi.ABI, method string, outputs ...any) {
	t.Helper()
	selector, m := selectorOf(t, contractABI, method)
	packed, err := m.Outputs.Pack(outputs...)
	require.NoError(t, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.callsAt[callKey{to: to, selector: selector}] = func(ethereum.CallMsg) ([]byte, error) { return packed, nil }
}

// HandleCall installs a custom handler for method on every contract.
func (c *Chain) HandleCall(t *testing.T, contractABI abi.ABI, method string, handler CallHandler) {
	t.Helper()
	selector, _ := selectorOf(t, contractABI, method)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[selector] = handler
}

// Sent returns the transactions mined so far.
func (c *Chain) Sent() []*types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.Transaction(nil), c.sent...)
}

func (c *Chain) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

func (c *Chain) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	var selector [4]byte
	copy(selector[:], call.Data)

	c.mu.Lock()
	var handler CallHandler
	if call.To != nil {
		handler = c.callsAt[callKey{to: *call.To, selector: selector}]
	}
	if handler == nil {
		handler = c.calls[selector]
	}
	c.mu.Unlock()

	if handler == nil {
		return nil, ErrExecutionReverted
	}
	return handler(call)
}

func (c *Chain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonce, nil
}

func (c *Chain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(DefaultTipCap), nil
}

func (c *Chain) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &types.Header{Number: new(big.Int).SetUint64(c.head), BaseFee: big.NewInt(DefaultBaseFee)}, nil
}

func (c *Chain) EstimateGas(_ context.Context, call ethereum.CallMsg) (uint64, error) {
	if c.Estimate != nil {
		return c.Estimate(call)
	}
	return DefaultGas, nil
}

func (c *Chain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return err
	}

	status := types.ReceiptStatusSuccessful
	if c.Status != nil {
		status = c.Status(tx)
	}

	c.mu.Lock()
	c.head++
	receipt := &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(c.head),
	}
	if tx.To() == nil {
		receipt.ContractAddress = crypto.CreateAddress(from, tx.Nonce())
	}
	c.sent = append(c.sent, tx)
	c.receipts[tx.Hash()] = receipt
	c.nonce++
	onMined := c.OnMined
	c.mu.Unlock()

	if onMined != nil {
		onMined(tx, receipt)
	}
	return nil
}

// TransactionReceipt reports NotFound once per transaction before the receipt.
func (c *Chain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	receipt, ok := c.receipts[hash]
	if !ok || !c.polled[hash] {
		c.polled[hash] = true
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (c *Chain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

func (c *Chain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []types.Log
	for _, l := range c.logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if matches(q, l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (c *Chain) SubscribeFilterLogs(_ context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	if c.NoSubscriptions {
		return nil, errNotificationsUnsupported
	}

	s := &subscriber{query: q, ch: ch, quit: make(chan struct{})}
	c.mu.Lock()
	c.subs = append(c.subs, s)
	c.mu.Unlock()

	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		c.mu.Lock()
		defer c.mu.Unlock()
		close(s.quit)
		for i, other := range c.subs {
			if other == s {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				break
			}
		}
		return nil
	}), nil
}

// Emit mines logs into a new block and pushes them to live subscribers.
func (c *Chain) Emit(logs ...types.Log) {
	c.mu.Lock()
	c.head++
	for i := range logs {
		logs[i].BlockNumber = c.head
	}
	c.logs = append(c.logs, logs...)
	subs := append([]*subscriber(nil), c.subs...)
	c.mu.Unlock()

	for _, l := range logs {
		for _, s := range subs {
			if !matches(s.query, l) {
				continue
			}
			select {
			case s.ch <- l:
			case <-s.quit:
			}
		}
	}
}

func (c *Chain) Close() {}

func matches(q ethereum.FilterQuery, l types.Log) bool {
	if len(q.Addresses) > 0 {
		found := false
		for _, a := range q.Addresses {
			if a == l.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i, options := range q.Topics {
		if len(options) == 0 {
			continue
		}
		if i >= len(l.Topics) {
			return false
		}
		found := false
		for _, topic := range options {
			if topic == l.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type notificationsError struct{}

func (notificationsError) Error() string { return "notifications not supported" }

var errNotificationsUnsupported = notificationsError{}
