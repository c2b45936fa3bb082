package registry

import (
	"errors"
	"fmt"
	"slices"

	"github.com/compose-network/ibc-app-orchestrator/configs"
	"github.com/compose-network/ibc-app-orchestrator/internal/addr"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownNetwork            = errors.New("unknown network")
	ErrUnknownChainRegistryEntry = errors.New("chain not present in registry")
)

// Resolver answers address questions for named networks. Every lookup goes
// through the local network table to a chain id and then to the registry
// entry of the client selected by proofsEnabled.
type Resolver struct {
	doc           Document
	networks      map[configs.NetworkName]configs.Network
	proofsEnabled bool
}

func NewResolver(doc Document, networks map[configs.NetworkName]configs.Network, proofsEnabled bool) *Resolver {
	return &Resolver{
		doc:           doc,
		networks:      networks,
		proofsEnabled: proofsEnabled,
	}
}

// WithProofs returns a resolver over the same data for the other client mode.
func (r *Resolver) WithProofs(enabled bool) *Resolver {
	return &Resolver{
		doc:           r.doc,
		networks:      r.networks,
		proofsEnabled: enabled,
	}
}

func (r *Resolver) ProofsEnabled() bool {
	return r.proofsEnabled
}

func (r *Resolver) network(name string) (configs.Network, error) {
	n, ok := r.networks[configs.NetworkName(name)]
	if !ok {
		return configs.Network{}, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
	}
	return n, nil
}

func (r *Resolver) ChainIDOf(network string) (uint64, error) {
	n, err := r.network(network)
	if err != nil {
		return 0, err
	}
	return n.ChainID, nil
}

// ClientName returns the registry client used for network in the current mode.
func (r *Resolver) ClientName(network string) (string, error) {
	n, err := r.network(network)
	if err != nil {
		return "", err
	}
	if !r.proofsEnabled {
		return configs.ClientSim, nil
	}
	if n.ProofClient != "" {
		return n.ProofClient, nil
	}
	return configs.ClientOp, nil
}

func (r *Resolver) client(network string) (Client, error) {
	n, err := r.network(network)
	if err != nil {
		return Client{}, err
	}
	name, err := r.ClientName(network)
	if err != nil {
		return Client{}, err
	}

	entry, ok := r.doc.entry(n.ChainID)
	if !ok {
		return Client{}, fmt.Errorf("%w: chain id %d (%s)", ErrUnknownChainRegistryEntry, n.ChainID, network)
	}
	c, ok := entry.Clients[name]
	if !ok {
		return Client{}, fmt.Errorf("%w: client %s on chain id %d (%s)", ErrUnknownChainRegistryEntry, name, n.ChainID, network)
	}
	return c, nil
}

func (r *Resolver) ResolveDispatcher(network string) (common.Address, error) {
	c, err := r.client(network)
	if err != nil {
		return common.Address{}, err
	}
	return addr.Parse(c.DispatcherAddr)
}

func (r *Resolver) ResolveUniversalMiddleware(network string) (common.Address, error) {
	c, err := r.client(network)
	if err != nil {
		return common.Address{}, err
	}
	return addr.Parse(c.UniversalChannelAddr)
}

func (r *Resolver) ResolveUniversalChannelID(network string) (string, error) {
	c, err := r.client(network)
	if err != nil {
		return "", err
	}
	return c.UniversalChannelID, nil
}

// ResolveConnectionHops returns the outgoing connection of src followed by
// the incoming connection of dst.
func (r *Resolver) ResolveConnectionHops(src, dst string) (string, string, error) {
	from, err := r.client(src)
	if err != nil {
		return "", "", err
	}
	to, err := r.client(dst)
	if err != nil {
		return "", "", err
	}
	return from.CanonConnFrom, to.CanonConnTo, nil
}

// WhitelistedNetworks returns the chain ids present in the registry in ascending order.
func (r *Resolver) WhitelistedNetworks() []uint64 {
	ids := r.doc.ChainIDs()
	slices.Sort(ids)
	return ids
}

// IsWhitelisted reports whether network is known locally and listed in the registry.
func (r *Resolver) IsWhitelisted(network string) bool {
	n, err := r.network(network)
	if err != nil {
		return false
	}
	_, ok := r.doc.entry(n.ChainID)
	return ok
}

// Explorer returns the explorer endpoints of network. Locally configured URLs
// win over the registry's first listed explorer.
func (r *Resolver) Explorer(network string) (Explorer, error) {
	n, err := r.network(network)
	if err != nil {
		return Explorer{}, err
	}
	if n.ExplorerAPIURL != "" {
		return Explorer{URL: n.ExplorerURL, APIURL: n.ExplorerAPIURL}, nil
	}

	entry, ok := r.doc.entry(n.ChainID)
	if !ok || len(entry.Explorers) == 0 {
		return Explorer{}, fmt.Errorf("%w: no explorer for chain id %d (%s)", ErrUnknownChainRegistryEntry, n.ChainID, network)
	}
	return entry.Explorers[0], nil
}
