package watcher

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/compose-network/ibc-app-orchestrator/internal/artifacts"
	"github.com/compose-network/ibc-app-orchestrator/internal/gateway"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var ErrUnknownEvent = errors.New("unknown dispatcher event")

var (
	portKeys    = []string{"receiver", "portAddress", "sourcePortAddress", "destPortAddress", "writerPortAddress"}
	channelKeys = []string{"channelId", "sourceChannelId", "destChannelId", "writerChannelId"}
)

// Decoder turns dispatcher logs into events.
type Decoder struct {
	abi abi.ABI
}

func NewDecoder() (*Decoder, error) {
	set, err := artifacts.Embedded()
	if err != nil {
		return nil, err
	}
	dispatcher, err := set.Get(artifacts.NameDispatcher)
	if err != nil {
		return nil, err
	}
	return &Decoder{abi: dispatcher.ABI}, nil
}

// Topics returns the topic ids of the named events.
func (d *Decoder) Topics(names []string) ([]common.Hash, error) {
	topics := make([]common.Hash, 0, len(names))
	for _, name := range names {
		ev, ok := d.abi.Events[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
		}
		topics = append(topics, ev.ID)
	}
	return topics, nil
}

func (d *Decoder) Decode(network string, log types.Log) (Event, error) {
	if len(log.Topics) == 0 {
		return Event{}, fmt.Errorf("%w: log without topics", ErrUnknownEvent)
	}

	ev, err := d.abi.EventByID(log.Topics[0])
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownEvent, log.Topics[0].Hex())
	}

	values := make(map[string]any)

	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, log.Topics[1:]); err != nil {
		return Event{}, fmt.Errorf("failed to parse topics of %s: %w", ev.Name, err)
	}
	if err := d.abi.UnpackIntoMap(values, ev.Name, log.Data); err != nil {
		return Event{}, fmt.Errorf("failed to unpack %s: %w", ev.Name, err)
	}

	out := Event{
		Name:        ev.Name,
		Network:     network,
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
	}

	for _, key := range portKeys {
		if v, ok := values[key].(common.Address); ok {
			out.PortAddress = v
		}
	}
	for _, key := range channelKeys {
		if v, ok := values[key].([32]byte); ok {
			out.ChannelID = gateway.DecodeBytes32String(v)
		}
	}

	if v, ok := values["version"].(string); ok {
		out.Version = v
	}
	if v, ok := values["ordering"].(uint8); ok {
		out.Ordering = v
	}
	if v, ok := values["feeEnabled"].(bool); ok {
		out.FeeEnabled = v
	}
	if v, ok := values["connectionHops"].([]string); ok {
		out.ConnectionHops = v
	}
	if v, ok := values["counterpartyPortId"].(string); ok {
		out.CounterpartyPortID = v
	}
	if v, ok := values["counterpartyChannelId"].([32]byte); ok {
		out.CounterpartyChannelID = gateway.DecodeBytes32String(v)
	}
	if v, ok := values["sequence"].(uint64); ok {
		out.Sequence = v
	}
	if v, ok := values["timeoutTimestamp"].(uint64); ok {
		out.TimeoutTimestamp = v
	}
	if v, ok := values["ackPacket"]; ok {
		if success, ok := ackSuccess(v); ok {
			out.AckSuccess = &success
		}
	}

	return out, nil
}

// ackSuccess reads the success flag of the ack tuple, which the ABI
// decoder returns as an anonymous struct.
func ackSuccess(v any) (bool, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Struct {
		return false, false
	}
	field := rv.FieldByName("Success")
	if !field.IsValid() || field.Kind() != reflect.Bool {
		return false, false
	}
	return field.Bool(), true
}
