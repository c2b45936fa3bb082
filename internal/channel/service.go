package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/compose-network/ibc-app-orchestrator/internal/addr"
	"github.com/compose-network/ibc-app-orchestrator/internal/bootstrap"
	"github.com/compose-network/ibc-app-orchestrator/internal/gateway"
	"github.com/compose-network/ibc-app-orchestrator/internal/logger"
	"github.com/compose-network/ibc-app-orchestrator/internal/registry"
	"github.com/compose-network/ibc-app-orchestrator/internal/watcher"
)

var (
	ErrChannelClosed  = errors.New("channel was closed during the handshake")
	ErrNoNewChannel   = errors.New("no new connected channel after the handshake")
	ErrNotWhitelisted = errors.New("network is not in the registry")
)

// Result describes a newly opened channel.
type Result struct {
	Network     string `json:"network" yaml:"network"`
	ChannelID   string `json:"channelId" yaml:"channelId"`
	PortID      string `json:"portId" yaml:"portId"`
	CpNetwork   string `json:"counterpartyNetwork" yaml:"counterpartyNetwork"`
	CpChannelID string `json:"counterpartyChannelId" yaml:"counterpartyChannelId"`
	CpPortID    string `json:"counterpartyPortId" yaml:"counterpartyPortId"`
	TxHash      string `json:"txHash" yaml:"txHash"`
}

func (r Result) Human() string {
	return fmt.Sprintf(`
🎊   Created Channel   🎊
-----------------------------------------
🛣️  Channel ID: %s
🔗 Port ID: %s
🌍 Network: %s
-----------------------------------------
🛣️  Counterparty Channel ID: %s
🪐 Counterparty Network: %s
-----------------------------------------`, r.ChannelID, r.PortID, r.Network, r.CpChannelID, r.CpNetwork)
}

// Service opens a custom channel between the apps of createChannel.
type Service struct {
	env    *bootstrap.Env
	logger *slog.Logger
}

func NewService(env *bootstrap.Env) *Service {
	return &Service{
		env:    env,
		logger: logger.Named("create_channel"),
	}
}

// portPrefix comes from settings, or from the dispatcher when unset.
func (s *Service) portPrefix(ctx context.Context, r *registry.Resolver, network string) (string, error) {
	if n, ok := s.env.Settings.Network(network); ok && n.PortPrefix != "" {
		return n.PortPrefix, nil
	}

	dispatcher, err := r.ResolveDispatcher(network)
	if err != nil {
		return "", err
	}
	g, err := s.env.Gateway(ctx, network)
	if err != nil {
		return "", err
	}
	return g.Dispatcher(dispatcher).PortPrefix(ctx)
}

// Create runs the handshake and records both channel ids. The watcher is
// started before the createChannel transaction so no event is missed.
func (s *Service) Create(ctx context.Context) (Result, error) {
	st, r, err := s.env.Prepare(ctx)
	if err != nil {
		return Result{}, err
	}
	doc := st.Document()
	cc := doc.CreateChannel
	src, dst := cc.SrcChain, cc.DstChain

	for _, network := range []string{src, dst} {
		if !r.IsWhitelisted(network) {
			return Result{}, fmt.Errorf("%w: %q", ErrNotWhitelisted, network)
		}
	}

	srcAddress, err := addr.Parse(cc.SrcAddr)
	if err != nil {
		return Result{}, fmt.Errorf("createChannel.srcAddr: %w", err)
	}

	hop1, hop2, err := r.ResolveConnectionHops(src, dst)
	if err != nil {
		return Result{}, err
	}

	srcPrefix, err := s.portPrefix(ctx, r, src)
	if err != nil {
		return Result{}, err
	}
	dstPrefix, err := s.portPrefix(ctx, r, dst)
	if err != nil {
		return Result{}, err
	}
	srcPortID := addr.ToPortID(srcPrefix, cc.SrcAddr)
	dstPortID := addr.ToPortID(dstPrefix, cc.DstAddr)

	g, err := s.env.Gateway(ctx, src)
	if err != nil {
		return Result{}, err
	}
	source, err := s.env.ABISource(ctx, src)
	if err != nil {
		return Result{}, err
	}
	appABI, err := source.ABI(ctx, doc.Deploy[src], srcAddress)
	if err != nil {
		return Result{}, err
	}
	app := g.App(srcAddress, appABI)

	filter, err := watcher.NewChannelFilter(cc.SrcAddr, cc.DstAddr)
	if err != nil {
		return Result{}, err
	}
	lifecycle := watcher.NewChannelLifecycle()
	w, err := watcher.New(watcher.KindChannel, filter, lifecycle, s.env.Printer(ctx, src, dst))
	if err != nil {
		return Result{}, err
	}

	var targets []watcher.Target
	for _, network := range []string{src, dst} {
		target, err := s.env.WatchTarget(ctx, network)
		if err != nil {
			return Result{}, err
		}
		targets = append(targets, target)
	}

	timeout := handshakeTimeout(s.env, doc.ProofsEnabled)
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session, err := w.Start(wctx, targets)
	if err != nil {
		return Result{}, err
	}

	before, err := app.ConnectedChannels(ctx)
	if err != nil {
		session.Stop()
		return Result{}, err
	}

	log := s.logger.With("source", src, "destination", dst, "hops", []string{hop1, hop2}, "counterparty_port_id", dstPortID)
	log.Info("creating channel")

	receipt, err := app.CreateChannel(ctx, cc.Version, cc.Ordering, cc.Fees, []string{hop1, hop2}, dstPortID)
	if err != nil {
		session.Stop()
		return Result{}, err
	}
	log.With("tx_hash", receipt.TxHash.Hex()).Info("createChannel mined, waiting for the handshake")

	waitErr := session.Wait(wctx)
	if waitErr != nil && !errors.Is(waitErr, watcher.ErrTimeout) {
		return Result{}, waitErr
	}
	if lifecycle.Closed() {
		return Result{}, ErrChannelClosed
	}
	if waitErr != nil {
		log.With("timeout", timeout.String(), "stage", lifecycle.Stage()).Warn("handshake events not complete, checking connected channels")
	}

	after, err := app.ConnectedChannels(ctx)
	if err != nil {
		return Result{}, err
	}
	fresh := gateway.NewChannels(before, after)
	if len(fresh) == 0 {
		if waitErr != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrNoNewChannel, waitErr)
		}
		return Result{}, ErrNoNewChannel
	}
	created := fresh[len(fresh)-1]

	if err := st.UpdateChannelIDs(src, created.ChannelID, dst, created.CpChannelID); err != nil {
		return Result{}, err
	}

	return Result{
		Network:     src,
		ChannelID:   created.ChannelID,
		PortID:      srcPortID,
		CpNetwork:   dst,
		CpChannelID: created.CpChannelID,
		CpPortID:    dstPortID,
		TxHash:      receipt.TxHash.Hex(),
	}, nil
}

// handshakeTimeout returns the proofs timeout when proofs are enabled.
func handshakeTimeout(env *bootstrap.Env, proofs bool) time.Duration {
	if proofs {
		return env.Settings.Timeouts.ChannelHandshakeProofs
	}
	return env.Settings.Timeouts.ChannelHandshake
}
