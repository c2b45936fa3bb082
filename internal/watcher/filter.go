package watcher

import (
	"github.com/compose-network/ibc-app-orchestrator/internal/addr"
	"github.com/ethereum/go-ethereum/common"
)

// Filter decides whether an event concerns the apps being orchestrated.
type Filter interface {
	Match(ev Event) bool
}

// ChannelFilter matches channel events of either end of the pending channel.
type ChannelFilter struct {
	ports map[common.Address]struct{}
}

func NewChannelFilter(srcAddr, dstAddr string) (*ChannelFilter, error) {
	f := &ChannelFilter{ports: make(map[common.Address]struct{}, 2)}
	for _, s := range []string{srcAddr, dstAddr} {
		a, err := addr.Parse(s)
		if err != nil {
			return nil, err
		}
		f.ports[a] = struct{}{}
	}
	return f, nil
}

func (f *ChannelFilter) Match(ev Event) bool {
	_, ok := f.ports[ev.PortAddress]
	return ok
}

// PacketFilter matches packet events of each network's app port or its
// universal middleware.
type PacketFilter struct {
	ports map[string]map[common.Address]struct{}
}

func NewPacketFilter() *PacketFilter {
	return &PacketFilter{ports: make(map[string]map[common.Address]struct{})}
}

// Allow adds addresses accepted on network. Empty strings are skipped.
func (f *PacketFilter) Allow(network string, addresses ...string) error {
	if f.ports[network] == nil {
		f.ports[network] = make(map[common.Address]struct{})
	}
	for _, s := range addresses {
		if s == "" {
			continue
		}
		a, err := addr.Parse(s)
		if err != nil {
			return err
		}
		f.ports[network][a] = struct{}{}
	}
	return nil
}

func (f *PacketFilter) Match(ev Event) bool {
	_, ok := f.ports[ev.Network][ev.PortAddress]
	return ok
}
