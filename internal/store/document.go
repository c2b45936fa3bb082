package store

import (
	"encoding/json"
	"fmt"
	"maps"
)

const (
	PlaceholderPortAddr  = "0x1234567890abcdef1234567890abcdef12345678"
	PlaceholderChannelID = "channel-n"
	DefaultTimeout       = 36000
)

type (
	// Document is the shared deployment configuration. Keys that are not
	// modelled here are carried through load and save untouched.
	Document struct {
		ProofsEnabled       bool                  `json:"proofsEnabled"`
		IsUniversal         bool                  `json:"isUniversal"`
		Deploy              map[string]string     `json:"deploy"`
		CreateChannel       CreateChannel         `json:"createChannel"`
		SendPacket          map[string]PortConfig `json:"sendPacket"`
		SendUniversalPacket map[string]PortConfig `json:"sendUniversalPacket"`
		RecvPacketGasLimit  *uint64               `json:"recvPacketGasLimit,omitempty"`
		AckPacketGasLimit   *uint64               `json:"ackPacketGasLimit,omitempty"`
		Backup              *Backup               `json:"backup,omitempty"`

		extra map[string]json.RawMessage
	}

	CreateChannel struct {
		SrcChain string `json:"srcChain"`
		SrcAddr  string `json:"srcAddr"`
		DstChain string `json:"dstChain"`
		DstAddr  string `json:"dstAddr"`
		Version  string `json:"version"`
		Ordering uint8  `json:"ordering"`
		Fees     bool   `json:"fees"`
	}

	PortConfig struct {
		PortAddr  string `json:"portAddr"`
		ChannelID string `json:"channelId"`
		Timeout   uint64 `json:"timeout"`
	}

	Backup struct {
		SendPacket          map[string]PortConfig `json:"sendPacket,omitempty"`
		SendUniversalPacket map[string]PortConfig `json:"sendUniversalPacket,omitempty"`
	}

	// documentFields avoids recursion into the custom (un)marshalers.
	documentFields Document
)

var knownKeys = map[string]struct{}{
	"proofsEnabled":       {},
	"isUniversal":         {},
	"deploy":              {},
	"createChannel":       {},
	"sendPacket":          {},
	"sendUniversalPacket": {},
	"recvPacketGasLimit":  {},
	"ackPacketGasLimit":   {},
	"backup":              {},
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var fields documentFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*d = Document(fields)
	for key, value := range raw {
		if _, ok := knownKeys[key]; ok {
			continue
		}
		if d.extra == nil {
			d.extra = make(map[string]json.RawMessage)
		}
		d.extra[key] = value
	}

	return nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(documentFields(d))
	if err != nil {
		return nil, err
	}
	if len(d.extra) == 0 {
		return known, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, fmt.Errorf("failed to merge document keys: %w", err)
	}
	for key, value := range d.extra {
		merged[key] = value
	}

	// encoding/json sorts map keys, which keeps the output stable.
	return json.Marshal(merged)
}

// Extra returns an unmodelled top-level value such as a service URL.
func (d *Document) Extra(key string) (json.RawMessage, bool) {
	v, ok := d.extra[key]
	return v, ok
}

// ExtraString returns an unmodelled top-level string value.
func (d *Document) ExtraString(key string) string {
	raw, ok := d.extra[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// ActivePorts returns the routing map selected by IsUniversal.
func (d *Document) ActivePorts() map[string]PortConfig {
	if d.IsUniversal {
		return d.SendUniversalPacket
	}
	return d.SendPacket
}

// ActivePort returns the active port configuration of a network.
func (d *Document) ActivePort(network string) (PortConfig, bool) {
	p, ok := d.ActivePorts()[network]
	return p, ok
}

// Counterparty returns the other end of the channel described in createChannel.
func (d *Document) Counterparty(network string) (string, string) {
	if d.CreateChannel.SrcChain == network {
		return d.CreateChannel.DstChain, d.CreateChannel.DstAddr
	}
	return d.CreateChannel.SrcChain, d.CreateChannel.SrcAddr
}

func (b *Backup) empty() bool {
	return b == nil || (len(b.SendPacket) == 0 && len(b.SendUniversalPacket) == 0)
}

func (d *Document) clone() *Document {
	c := *d
	c.Deploy = maps.Clone(d.Deploy)
	c.SendPacket = maps.Clone(d.SendPacket)
	c.SendUniversalPacket = maps.Clone(d.SendUniversalPacket)
	c.extra = maps.Clone(d.extra)
	if d.Backup != nil {
		c.Backup = &Backup{
			SendPacket:          maps.Clone(d.Backup.SendPacket),
			SendUniversalPacket: maps.Clone(d.Backup.SendUniversalPacket),
		}
	}
	return &c
}
