package gateway

import (
	"bytes"
	"fmt"
)

// ChannelPair is one connected channel of an app and its counterparty.
type ChannelPair struct {
	ChannelID   string
	CpChannelID string
}

// channelPairRaw mirrors the tuple returned by getConnectedChannels.
type channelPairRaw struct {
	ChannelId   [32]byte
	CpChannelId [32]byte
}

// EncodeBytes32String right-pads s with zeros. s must leave room for a
// terminating zero byte.
func EncodeBytes32String(s string) ([32]byte, error) {
	var out [32]byte
	if len(s) > 31 {
		return out, fmt.Errorf("string %q is too long for bytes32", s)
	}
	copy(out[:], s)
	return out, nil
}

// DecodeBytes32String returns the text before the first zero byte.
func DecodeBytes32String(b [32]byte) string {
	if i := bytes.IndexByte(b[:], 0); i >= 0 {
		return string(b[:i])
	}
	return string(b[:])
}

// NewChannels returns the channels present in after but not in before.
// Connected channels only ever grow, so the new entries are the tail.
func NewChannels(before, after []ChannelPair) []ChannelPair {
	if len(after) <= len(before) {
		return nil
	}
	return after[len(before):]
}
