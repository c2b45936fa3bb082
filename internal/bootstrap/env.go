package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/compose-network/ibc-app-orchestrator/configs"
	"github.com/compose-network/ibc-app-orchestrator/internal/addr"
	"github.com/compose-network/ibc-app-orchestrator/internal/artifacts"
	"github.com/compose-network/ibc-app-orchestrator/internal/feeestimator"
	"github.com/compose-network/ibc-app-orchestrator/internal/gateway"
	"github.com/compose-network/ibc-app-orchestrator/internal/infra/filesystem"
	fsjson "github.com/compose-network/ibc-app-orchestrator/internal/infra/filesystem/json"
	"github.com/compose-network/ibc-app-orchestrator/internal/logger"
	"github.com/compose-network/ibc-app-orchestrator/internal/output"
	"github.com/compose-network/ibc-app-orchestrator/internal/registry"
	"github.com/compose-network/ibc-app-orchestrator/internal/store"
	"github.com/compose-network/ibc-app-orchestrator/internal/watcher"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	// ExtraRegistryURL and ExtraFeeEstimatorURL are document keys that win
	// over the settings file.
	ExtraRegistryURL     = "polymerRegistryTestnetRepoUrl"
	ExtraFeeEstimatorURL = "feeEstimatorApiUrl"
)

var (
	ErrMissingPrivateKey     = errors.New("private key environment variable is empty")
	ErrChainIDMismatch       = errors.New("rpc chain id does not match configured chain id")
	ErrFeeEstimatorUnset     = errors.New("no fee estimator url configured")
	ErrExplorerNotConfigured = errors.New("no explorer configured")
)

// Client is everything commands need from one RPC endpoint.
type Client interface {
	gateway.Backend
	watcher.LogSource
	Close()
}

// Dialer connects to an RPC endpoint.
type Dialer func(ctx context.Context, url string) (Client, error)

func dialEthclient(ctx context.Context, url string) (Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Env holds the per-command wiring: settings, the configuration document,
// the registry resolver and lazily dialed network clients.
type Env struct {
	Settings configs.Config
	Emitter  *output.Emitter

	reader filesystem.Reader
	writer filesystem.Writer
	dial   Dialer
	getenv func(string) string

	receiptInterval time.Duration

	store     *store.Store
	registry  registry.Document
	resolver  *registry.Resolver
	artifacts *artifacts.Set

	mu         sync.Mutex
	clients    map[string]Client
	logClients map[string]Client
	gateways   map[string]*gateway.Gateway

	logger *slog.Logger
}

func New(settings configs.Config, stdout io.Writer) (*Env, error) {
	format, err := output.ParseFormat(settings.Output)
	if err != nil {
		return nil, err
	}

	return &Env{
		Settings:   settings,
		Emitter:    output.NewEmitter(stdout, format),
		reader:     fsjson.NewReader(),
		writer:     fsjson.NewWriter(),
		dial:       dialEthclient,
		getenv:     os.Getenv,
		clients:    make(map[string]Client),
		logClients: make(map[string]Client),
		gateways:   make(map[string]*gateway.Gateway),
		logger:     logger.Named("bootstrap"),
	}, nil
}

// WithDialer replaces how RPC endpoints are reached.
func (e *Env) WithDialer(dial Dialer) *Env {
	e.dial = dial
	return e
}

// WithGetenv replaces how private keys are read from the environment.
func (e *Env) WithGetenv(getenv func(string) string) *Env {
	e.getenv = getenv
	return e
}

// WithReceiptInterval changes how often gateways poll for receipts.
func (e *Env) WithReceiptInterval(interval time.Duration) *Env {
	e.receiptInterval = interval
	return e
}

func (e *Env) Reader() filesystem.Reader {
	return e.reader
}

func (e *Env) Writer() filesystem.Writer {
	return e.writer
}

// ConfigPath returns the document path after CONFIG_PATH and fallback resolution.
func (e *Env) ConfigPath() string {
	configured := e.Settings.ConfigPath
	if configured == "" {
		configured = configs.DefaultConfigPath
	}
	return store.ResolvePath(configured, configs.FallbackConfigPath)
}

// OpenStore loads the configuration document once per command.
func (e *Env) OpenStore() (*store.Store, error) {
	if e.store != nil {
		return e.store, nil
	}

	path := e.ConfigPath()
	s, err := store.Open(path, e.reader, e.writer)
	if err != nil {
		return nil, err
	}
	e.logger.With("path", path).Debug("configuration document loaded")
	e.store = s
	return s, nil
}

// UseStore installs an already opened store.
func (e *Env) UseStore(s *store.Store) {
	e.store = s
}

func (e *Env) Store() *store.Store {
	return e.store
}

// LoadRegistry fetches the registry. A URL in the document wins over the
// settings, which prefer a URL over the bundled file.
func (e *Env) LoadRegistry(ctx context.Context) (registry.Document, error) {
	if e.registry != nil {
		return e.registry, nil
	}

	url := e.Settings.Registry.URL
	if e.store != nil {
		if fromDoc := e.store.Document().ExtraString(ExtraRegistryURL); fromDoc != "" {
			url = fromDoc
		}
	}

	doc, err := registry.NewFetcher(e.reader).Load(ctx, url, e.Settings.Registry.File)
	if err != nil {
		return nil, err
	}
	e.registry = doc
	return doc, nil
}

// Resolver returns a resolver in the document's client mode, or sim mode
// when no document is open.
func (e *Env) Resolver(ctx context.Context) (*registry.Resolver, error) {
	if e.resolver != nil {
		return e.resolver, nil
	}

	doc, err := e.LoadRegistry(ctx)
	if err != nil {
		return nil, err
	}

	proofs := false
	if e.store != nil {
		proofs = e.store.Document().ProofsEnabled
	}
	e.resolver = registry.NewResolver(doc, e.Settings.Networks, proofs)
	return e.resolver, nil
}

// Prepare opens the document and the registry, which almost every command needs.
func (e *Env) Prepare(ctx context.Context) (*store.Store, *registry.Resolver, error) {
	s, err := e.OpenStore()
	if err != nil {
		return nil, nil, err
	}
	r, err := e.Resolver(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s, r, nil
}

// Artifacts returns the compiled contracts, layered over the embedded interfaces.
func (e *Env) Artifacts() (*artifacts.Set, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.artifacts != nil {
		return e.artifacts, nil
	}

	var (
		set *artifacts.Set
		err error
	)
	if e.Settings.ArtifactsPath != "" {
		set, err = artifacts.Load(e.reader, e.Settings.ArtifactsPath)
	} else {
		set, err = artifacts.Embedded()
	}
	if err != nil {
		return nil, err
	}
	e.artifacts = set
	return set, nil
}

func (e *Env) network(name string) (configs.Network, error) {
	n, ok := e.Settings.Network(name)
	if !ok {
		return configs.Network{}, fmt.Errorf("%w: %s", registry.ErrUnknownNetwork, name)
	}
	return n, nil
}

// Client dials the RPC endpoint of network once and checks its chain id.
func (e *Env) Client(ctx context.Context, name string) (Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.clients[name]; ok {
		return c, nil
	}

	n, err := e.network(name)
	if err != nil {
		return nil, err
	}

	e.logger.With("network", name, "url", n.RPCURL).Info("dialing the RPC")
	c, err := e.dial(ctx, n.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", n.RPCURL, err)
	}

	chainID, err := c.ChainID(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to get chain ID of %s: %w", name, err)
	}
	if chainID.Uint64() != n.ChainID {
		c.Close()
		return nil, fmt.Errorf("%w: %s reports %s, configured %d", ErrChainIDMismatch, name, chainID, n.ChainID)
	}

	e.clients[name] = c
	return c, nil
}

// LogSource returns a client able to follow logs on network. The websocket
// endpoint is used when configured, otherwise the RPC client, which the
// watcher polls when it cannot subscribe.
func (e *Env) LogSource(ctx context.Context, name string) (watcher.LogSource, error) {
	n, err := e.network(name)
	if err != nil {
		return nil, err
	}
	if n.WSURL == "" {
		return e.Client(ctx, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.logClients[name]; ok {
		return c, nil
	}
	c, err := e.dial(ctx, n.WSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", n.WSURL, err)
	}
	e.logClients[name] = c
	return c, nil
}

// Gateway returns the signing gateway of network. The key is read from the
// environment variable named by the network's private-key-env.
func (e *Env) Gateway(ctx context.Context, name string) (*gateway.Gateway, error) {
	e.mu.Lock()
	g, ok := e.gateways[name]
	e.mu.Unlock()
	if ok {
		return g, nil
	}

	n, err := e.network(name)
	if err != nil {
		return nil, err
	}

	hexKey := e.getenv(n.PrivateKeyEnv)
	if hexKey == "" {
		return nil, fmt.Errorf("%w: %s (network %s)", ErrMissingPrivateKey, n.PrivateKeyEnv, name)
	}
	key, err := addr.KeyFromHex(hexKey)
	if err != nil {
		return nil, fmt.Errorf("private key of %s: %w", name, err)
	}

	client, err := e.Client(ctx, name)
	if err != nil {
		return nil, err
	}

	g, err = gateway.New(name, client, key, new(big.Int).SetUint64(n.ChainID))
	if err != nil {
		return nil, err
	}
	if e.receiptInterval > 0 {
		g = g.WithReceiptInterval(e.receiptInterval)
	}

	e.mu.Lock()
	e.gateways[name] = g
	e.mu.Unlock()
	return g, nil
}

// ABISource returns the ABI source of network selected by abi-source.
func (e *Env) ABISource(ctx context.Context, name string) (gateway.ABISource, error) {
	if e.Settings.ABISource == configs.ABISourceExplorer {
		explorer, err := e.Explorer(ctx, name)
		if err != nil {
			return nil, err
		}
		if explorer.APIURL == "" {
			return nil, fmt.Errorf("%w: %s has no explorer api url", ErrExplorerNotConfigured, name)
		}
		return gateway.NewExplorerSource(explorer.APIURL)
	}

	set, err := e.Artifacts()
	if err != nil {
		return nil, err
	}
	return gateway.NewArtifactSource(set), nil
}

// Explorer returns the explorer endpoints of network. Each endpoint comes
// from settings when set there and from the registry otherwise.
func (e *Env) Explorer(ctx context.Context, name string) (registry.Explorer, error) {
	n, err := e.network(name)
	if err != nil {
		return registry.Explorer{}, err
	}
	local := registry.Explorer{URL: n.ExplorerURL, APIURL: n.ExplorerAPIURL}
	if local.URL != "" && local.APIURL != "" {
		return local, nil
	}

	remote, err := e.registryExplorer(ctx, name)
	if err != nil {
		if local.URL != "" || local.APIURL != "" {
			return local, nil
		}
		return registry.Explorer{}, err
	}
	if local.URL == "" {
		local.URL = remote.URL
	}
	if local.APIURL == "" {
		local.APIURL = remote.APIURL
	}
	return local, nil
}

func (e *Env) registryExplorer(ctx context.Context, name string) (registry.Explorer, error) {
	r, err := e.Resolver(ctx)
	if err != nil {
		return registry.Explorer{}, err
	}
	return r.Explorer(name)
}

// Explorers returns explorer base URLs for printing transaction links.
// Networks without an explorer are left out.
func (e *Env) Explorers(ctx context.Context, names ...string) map[string]string {
	out := make(map[string]string, len(names))
	for _, name := range names {
		explorer, err := e.Explorer(ctx, name)
		if err != nil {
			e.logger.With("network", name, "err", err).Debug("no explorer for transaction links")
			continue
		}
		out[name] = explorer.URL
	}
	return out
}

// DeployedApp binds the app recorded in the document for network.
func (e *Env) DeployedApp(ctx context.Context, name string) (*gateway.App, error) {
	if e.store == nil {
		return nil, errors.New("configuration document is not open")
	}
	g, err := e.Gateway(ctx, name)
	if err != nil {
		return nil, err
	}
	source, err := e.ABISource(ctx, name)
	if err != nil {
		return nil, err
	}
	return g.DeployedApp(ctx, e.store.Document(), source)
}

// FeeEstimator returns the relayer fee client. A URL in the document wins.
func (e *Env) FeeEstimator() (*feeestimator.Client, error) {
	url := e.Settings.FeeEstimatorURL
	if e.store != nil {
		if fromDoc := e.store.Document().ExtraString(ExtraFeeEstimatorURL); fromDoc != "" {
			url = fromDoc
		}
	}
	if url == "" {
		return nil, ErrFeeEstimatorUnset
	}
	return feeestimator.NewClient(url), nil
}

// Printer returns the watcher printer matching the output format.
func (e *Env) Printer(ctx context.Context, networks ...string) watcher.Printer {
	if e.Emitter.Structured() {
		return watcher.NewStructuredPrinter(e.Emitter)
	}
	return watcher.NewHumanPrinter(e.Emitter.Writer(), e.Explorers(ctx, networks...))
}

// WatchTarget returns the dispatcher of network in the current client mode
// together with a log source.
func (e *Env) WatchTarget(ctx context.Context, name string) (watcher.Target, error) {
	r, err := e.Resolver(ctx)
	if err != nil {
		return watcher.Target{}, err
	}
	dispatcher, err := r.ResolveDispatcher(name)
	if err != nil {
		return watcher.Target{}, err
	}
	source, err := e.LogSource(ctx, name)
	if err != nil {
		return watcher.Target{}, err
	}
	return watcher.Target{Network: name, Client: source, Dispatcher: dispatcher}, nil
}

// Close releases every dialed client.
func (e *Env) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, c := range e.clients {
		c.Close()
		delete(e.clients, name)
	}
	for name, c := range e.logClients {
		c.Close()
		delete(e.logClients, name)
	}
}
