package watcher

import (
	"github.com/ethereum/go-ethereum/common"
)

const (
	EventChannelOpenInit     = "ChannelOpenInit"
	EventChannelOpenTry      = "ChannelOpenTry"
	EventChannelOpenAck      = "ChannelOpenAck"
	EventChannelOpenConfirm  = "ChannelOpenConfirm"
	EventChannelCloseConfirm = "ChannelCloseConfirm"
	EventSendPacket          = "SendPacket"
	EventRecvPacket          = "RecvPacket"
	EventWriteAckPacket      = "WriteAckPacket"
	EventAcknowledgement     = "Acknowledgement"
)

// Kind selects which dispatcher events a watcher follows.
type Kind string

const (
	KindChannel Kind = "channel"
	KindPacket  Kind = "packet"
)

// Events returns the dispatcher event names of a kind.
func (k Kind) Events() []string {
	switch k {
	case KindChannel:
		return []string{EventChannelOpenInit, EventChannelOpenTry, EventChannelOpenAck, EventChannelOpenConfirm, EventChannelCloseConfirm}
	case KindPacket:
		return []string{EventSendPacket, EventRecvPacket, EventWriteAckPacket, EventAcknowledgement}
	default:
		return nil
	}
}

// Event is a decoded dispatcher log. Fields that the event does not carry
// keep their zero value.
type Event struct {
	Name        string         `json:"event" yaml:"event"`
	Network     string         `json:"network" yaml:"network"`
	PortAddress common.Address `json:"portAddress" yaml:"portAddress"`
	ChannelID   string         `json:"channelId,omitempty" yaml:"channelId,omitempty"`

	Version               string   `json:"version,omitempty" yaml:"version,omitempty"`
	Ordering              uint8    `json:"ordering,omitempty" yaml:"ordering,omitempty"`
	FeeEnabled            bool     `json:"feeEnabled,omitempty" yaml:"feeEnabled,omitempty"`
	ConnectionHops        []string `json:"connectionHops,omitempty" yaml:"connectionHops,omitempty"`
	CounterpartyPortID    string   `json:"counterpartyPortId,omitempty" yaml:"counterpartyPortId,omitempty"`
	CounterpartyChannelID string   `json:"counterpartyChannelId,omitempty" yaml:"counterpartyChannelId,omitempty"`

	Sequence         uint64 `json:"sequence,omitempty" yaml:"sequence,omitempty"`
	TimeoutTimestamp uint64 `json:"timeoutTimestamp,omitempty" yaml:"timeoutTimestamp,omitempty"`
	AckSuccess       *bool  `json:"ackSuccess,omitempty" yaml:"ackSuccess,omitempty"`

	TxHash      common.Hash `json:"txHash" yaml:"txHash"`
	BlockNumber uint64      `json:"blockNumber" yaml:"blockNumber"`
}
