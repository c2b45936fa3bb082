package watcher

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/compose-network/ibc-app-orchestrator/internal/artifacts"
	"github.com/compose-network/ibc-app-orchestrator/internal/gateway"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	dispatcherA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	dispatcherB = common.HexToAddress("0x2222222222222222222222222222222222222222")
	portA       = common.HexToAddress("0xaAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa")
	portB       = common.HexToAddress("0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB")
	foreignPort = common.HexToAddress("0xcCCCcCCcCCCcCCcCCCcCcccCCcCcccCCcCCcCcCc")
)

type ackPacket struct {
	Success bool
	Data    []byte
}

func dispatcherABI(t *testing.T) abi.ABI {
	t.Helper()
	set, err := artifacts.Embedded()
	require.NoError(t, err)
	c, err := set.Get(artifacts.NameDispatcher)
	require.NoError(t, err)
	return c.ABI
}

func channelID(t *testing.T, id string) [32]byte {
	t.Helper()
	b, err := gateway.EncodeBytes32String(id)
	require.NoError(t, err)
	return b
}

// packLog builds a dispatcher log. indexed holds topic values in order,
// data the non-indexed values.
func packLog(t *testing.T, name string, block uint64, indexed []common.Hash, data ...any) types.Log {
	t.Helper()
	ev, ok := dispatcherABI(t).Events[name]
	require.True(t, ok, name)

	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	require.NoError(t, err)

	return types.Log{
		Address:     dispatcherA,
		Topics:      append([]common.Hash{ev.ID}, indexed...),
		Data:        packed,
		BlockNumber: block,
		TxHash:      common.BigToHash(common.Big1),
	}
}

func addressTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func openInitLog(t *testing.T, port common.Address, block uint64) types.Log {
	return packLog(t, EventChannelOpenInit, block, []common.Hash{addressTopic(port)},
		"1.0", uint8(0), false, []string{"connection-0", "connection-5"}, "polyibc.base.abc")
}

func channelLog(t *testing.T, name string, port common.Address, id string, block uint64) types.Log {
	return packLog(t, name, block, []common.Hash{addressTopic(port)}, channelID(t, id))
}

func TestDecodeChannelEvents(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	ev, err := d.Decode("optimism", openInitLog(t, portA, 7))
	require.NoError(t, err)
	assert.Equal(t, EventChannelOpenInit, ev.Name)
	assert.Equal(t, "optimism", ev.Network)
	assert.Equal(t, portA, ev.PortAddress)
	assert.Equal(t, "1.0", ev.Version)
	assert.Equal(t, []string{"connection-0", "connection-5"}, ev.ConnectionHops)
	assert.Equal(t, "polyibc.base.abc", ev.CounterpartyPortID)
	assert.EqualValues(t, 7, ev.BlockNumber)

	try := packLog(t, EventChannelOpenTry, 8, []common.Hash{addressTopic(portB)},
		"1.0", uint8(1), true, []string{"connection-4"}, "polyibc.optimism.abc", channelID(t, "channel-10"))
	ev, err = d.Decode("base", try)
	require.NoError(t, err)
	assert.Equal(t, "channel-10", ev.CounterpartyChannelID)
	assert.EqualValues(t, 1, ev.Ordering)
	assert.True(t, ev.FeeEnabled)

	ev, err = d.Decode("base", channelLog(t, EventChannelOpenConfirm, portB, "channel-11", 9))
	require.NoError(t, err)
	assert.Equal(t, "channel-11", ev.ChannelID)

	closeLog := packLog(t, EventChannelCloseConfirm, 10,
		[]common.Hash{addressTopic(portA), common.Hash(channelID(t, "channel-10"))})
	ev, err = d.Decode("optimism", closeLog)
	require.NoError(t, err)
	assert.Equal(t, portA, ev.PortAddress)
	assert.Equal(t, "channel-10", ev.ChannelID)
}

func TestDecodePacketEvents(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	send := packLog(t, EventSendPacket, 3,
		[]common.Hash{addressTopic(portA), common.Hash(channelID(t, "channel-10"))},
		[]byte("payload"), uint64(4), uint64(1700000000))
	ev, err := d.Decode("optimism", send)
	require.NoError(t, err)
	assert.Equal(t, "channel-10", ev.ChannelID)
	assert.EqualValues(t, 4, ev.Sequence)
	assert.EqualValues(t, 1700000000, ev.TimeoutTimestamp)
	assert.Nil(t, ev.AckSuccess)

	ack := packLog(t, EventWriteAckPacket, 5,
		[]common.Hash{addressTopic(portB), common.Hash(channelID(t, "channel-11"))},
		uint64(4), ackPacket{Success: true, Data: []byte{1}})
	ev, err = d.Decode("base", ack)
	require.NoError(t, err)
	assert.Equal(t, portB, ev.PortAddress)
	require.NotNil(t, ev.AckSuccess)
	assert.True(t, *ev.AckSuccess)

	_, err = d.Decode("base", types.Log{Topics: []common.Hash{common.HexToHash("0x01")}})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestChannelLifecycle(t *testing.T) {
	l := NewChannelLifecycle()
	assert.Equal(t, "Idle", l.Stage())

	assert.True(t, l.Advance(Event{Name: EventChannelOpenInit}))
	assert.True(t, l.Advance(Event{Name: EventChannelOpenAck}))
	// a late try does not move the handshake backwards
	assert.False(t, l.Advance(Event{Name: EventChannelOpenTry}))
	assert.Equal(t, "OpenAck", l.Stage())
	assert.False(t, l.Terminal())

	assert.True(t, l.Advance(Event{Name: EventChannelOpenConfirm}))
	assert.True(t, l.Terminal())
	assert.False(t, l.Closed())
	assert.False(t, l.Advance(Event{Name: EventChannelCloseConfirm}))

	closed := NewChannelLifecycle()
	closed.Advance(Event{Name: EventChannelOpenInit})
	assert.True(t, closed.Advance(Event{Name: EventChannelCloseConfirm}))
	assert.True(t, closed.Terminal())
	assert.True(t, closed.Closed())
}

func TestLifecycleTracksNetworksIndependently(t *testing.T) {
	l := NewChannelLifecycle()

	assert.True(t, l.Advance(Event{Name: EventChannelOpenInit, Network: "optimism"}))
	assert.True(t, l.Advance(Event{Name: EventChannelOpenAck, Network: "optimism"}))
	// the destination's try arrives after the source's ack
	assert.True(t, l.Advance(Event{Name: EventChannelOpenTry, Network: "base"}))
	assert.Equal(t, "OpenAck", l.Stage())
	assert.False(t, l.Advance(Event{Name: EventChannelOpenInit, Network: "optimism"}))
	assert.False(t, l.Terminal())

	assert.True(t, l.Advance(Event{Name: EventChannelOpenConfirm, Network: "base"}))
	assert.True(t, l.Terminal())
	assert.Equal(t, "OpenConfirm", l.Stage())

	p := NewPacketLifecycle()
	assert.True(t, p.Advance(Event{Name: EventWriteAckPacket, Network: "base"}))
	assert.True(t, p.Advance(Event{Name: EventSendPacket, Network: "optimism"}))
	assert.False(t, p.Advance(Event{Name: EventRecvPacket, Network: "base"}))
	assert.Equal(t, "AckWritten", p.Stage())
	assert.True(t, p.Advance(Event{Name: EventAcknowledgement, Network: "optimism"}))
	assert.True(t, p.Terminal())
}

func TestPacketLifecycle(t *testing.T) {
	l := NewPacketLifecycle()

	assert.True(t, l.Advance(Event{Name: EventSendPacket}))
	assert.True(t, l.Advance(Event{Name: EventWriteAckPacket}))
	assert.False(t, l.Advance(Event{Name: EventRecvPacket}))
	assert.False(t, l.Advance(Event{Name: EventChannelOpenInit}))
	assert.Equal(t, "AckWritten", l.Stage())

	assert.True(t, l.Advance(Event{Name: EventAcknowledgement}))
	assert.True(t, l.Terminal())
	assert.Equal(t, "Acknowledged", l.Stage())
}

func TestFilters(t *testing.T) {
	cf, err := NewChannelFilter(portA.Hex(), portB.Hex())
	require.NoError(t, err)
	assert.True(t, cf.Match(Event{PortAddress: portA}))
	assert.False(t, cf.Match(Event{PortAddress: foreignPort}))

	_, err = NewChannelFilter("nope", portB.Hex())
	assert.Error(t, err)

	pf := NewPacketFilter()
	require.NoError(t, pf.Allow("optimism", portA.Hex(), ""))
	require.NoError(t, pf.Allow("base", portB.Hex()))
	assert.True(t, pf.Match(Event{Network: "optimism", PortAddress: portA}))
	assert.False(t, pf.Match(Event{Network: "base", PortAddress: portA}))
	assert.False(t, pf.Match(Event{Network: "molten", PortAddress: portA}))
}

type fakeSource struct {
	mu           sync.Mutex
	subscribeErr error
	sink         chan<- types.Log
	head         uint64
	logs         []types.Log
}

func (f *fakeSource) SubscribeFilterLogs(_ context.Context, _ ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.mu.Lock()
	f.sink = ch
	f.mu.Unlock()
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	}), nil
}

func (f *fakeSource) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= q.FromBlock.Uint64() && l.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeSource) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

// push delivers l through the subscription when there is one and records
// it for polling otherwise.
func (f *fakeSource) push(l types.Log) {
	f.mu.Lock()
	sink := f.sink
	if sink == nil {
		f.logs = append(f.logs, l)
		if l.BlockNumber > f.head {
			f.head = l.BlockNumber
		}
	}
	f.mu.Unlock()

	if sink != nil {
		sink <- l
	}
}

func newChannelWatcher(t *testing.T, printer Printer) *Watcher {
	t.Helper()
	filter, err := NewChannelFilter(portA.Hex(), portB.Hex())
	require.NoError(t, err)
	w, err := New(KindChannel, filter, NewChannelLifecycle(), printer)
	require.NoError(t, err)
	return w.WithPollInterval(5 * time.Millisecond)
}

func TestWatchReachesTerminal(t *testing.T) {
	src, dst := &fakeSource{}, &fakeSource{}
	recorder := NewRecordingPrinter(nil)
	w := newChannelWatcher(t, recorder)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := w.Start(ctx, []Target{
		{Network: "optimism", Client: src, Dispatcher: dispatcherA},
		{Network: "base", Client: dst, Dispatcher: dispatcherB},
	})
	require.NoError(t, err)

	go func() {
		src.push(channelLog(t, EventChannelOpenAck, foreignPort, "channel-99", 1))
		src.push(openInitLog(t, portA, 2))
		dst.push(packLog(t, EventChannelOpenTry, 3, []common.Hash{addressTopic(portB)},
			"1.0", uint8(0), false, []string{"connection-4"}, "polyibc.optimism.abc", channelID(t, "channel-10")))
		src.push(channelLog(t, EventChannelOpenAck, portA, "channel-10", 4))
		dst.push(channelLog(t, EventChannelOpenConfirm, portB, "channel-11", 5))
	}()

	require.NoError(t, session.Wait(ctx))
	assert.True(t, w.Lifecycle().Terminal())

	// streams of different networks interleave freely, order holds per network
	byNetwork := make(map[string][]string)
	for _, ev := range recorder.Events() {
		assert.NotEqual(t, foreignPort, ev.PortAddress)
		byNetwork[ev.Network] = append(byNetwork[ev.Network], ev.Name)
	}
	assert.Equal(t, []string{EventChannelOpenTry, EventChannelOpenConfirm}, byNetwork["base"])
	source := []string{EventChannelOpenInit, EventChannelOpenAck}
	require.LessOrEqual(t, len(byNetwork["optimism"]), len(source))
	assert.Equal(t, source[:len(byNetwork["optimism"])], byNetwork["optimism"])
}

func TestWatchTimesOut(t *testing.T) {
	w := newChannelWatcher(t, NewRecordingPrinter(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := w.Watch(ctx, []Target{{Network: "optimism", Client: &fakeSource{}, Dispatcher: dispatcherA}})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, w.Lifecycle().Terminal())
}

func TestWatchFallsBackToPolling(t *testing.T) {
	src := &fakeSource{subscribeErr: errors.New("notifications not supported"), head: 10}
	recorder := NewRecordingPrinter(nil)
	w := newChannelWatcher(t, recorder)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := w.Start(ctx, []Target{{Network: "optimism", Client: src, Dispatcher: dispatcherA}})
	require.NoError(t, err)

	src.push(openInitLog(t, portA, 11))
	src.push(channelLog(t, EventChannelOpenConfirm, portB, "channel-11", 12))

	require.NoError(t, session.Wait(ctx))
	require.Len(t, recorder.Events(), 2)
	assert.Equal(t, EventChannelOpenConfirm, recorder.Events()[1].Name)
}

func TestHumanPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewHumanPrinter(&buf, map[string]string{"optimism": "https://optimism-sepolia.blockscout.com"})

	p.Print(Event{
		Name:        EventSendPacket,
		Network:     "optimism",
		PortAddress: portA,
		ChannelID:   "channel-10",
		Sequence:    4,
		TxHash:      common.HexToHash("0xabc"),
	})

	out := buf.String()
	assert.Contains(t, out, "PACKET HAS BEEN SENT")
	assert.Contains(t, out, "📈 Sequence: 4")
	assert.Contains(t, out, "https://optimism-sepolia.blockscout.com/tx/"+common.HexToHash("0xabc").Hex())
	assert.Contains(t, out, "Waiting for packet receipt")
}

type captureEmitter struct {
	records []any
}

func (c *captureEmitter) Emit(v any) error {
	c.records = append(c.records, v)
	return nil
}

func TestStructuredPrinter(t *testing.T) {
	e := &captureEmitter{}
	NewStructuredPrinter(e).Print(Event{Name: EventRecvPacket, Network: "base"})

	require.Len(t, e.records, 1)
	assert.Equal(t, EventRecvPacket, e.records[0].(Event).Name)
}
