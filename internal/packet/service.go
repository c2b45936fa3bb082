package packet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/compose-network/ibc-app-orchestrator/configs"
	"github.com/compose-network/ibc-app-orchestrator/internal/addr"
	"github.com/compose-network/ibc-app-orchestrator/internal/bootstrap"
	"github.com/compose-network/ibc-app-orchestrator/internal/feeestimator"
	"github.com/compose-network/ibc-app-orchestrator/internal/gateway"
	"github.com/compose-network/ibc-app-orchestrator/internal/logger"
	"github.com/compose-network/ibc-app-orchestrator/internal/registry"
	"github.com/compose-network/ibc-app-orchestrator/internal/store"
	"github.com/compose-network/ibc-app-orchestrator/internal/watcher"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrNotWhitelisted     = errors.New("network is not in the registry")
	ErrNoPortConfig       = errors.New("no packet configuration for network")
	ErrPlaceholderChannel = errors.New("channel id is still a placeholder")
	ErrNotAcknowledged    = errors.New("packet was not acknowledged in time")
)

// Result describes a sent packet and how far its lifecycle got.
type Result struct {
	Network      string `json:"network" yaml:"network"`
	CpNetwork    string `json:"counterpartyNetwork" yaml:"counterpartyNetwork"`
	ChannelID    string `json:"channelId" yaml:"channelId"`
	Universal    bool   `json:"universal" yaml:"universal"`
	Sequence     uint64 `json:"sequence,omitempty" yaml:"sequence,omitempty"`
	Fee          string `json:"fee,omitempty" yaml:"fee,omitempty"`
	TxHash       string `json:"txHash" yaml:"txHash"`
	Stage        string `json:"stage" yaml:"stage"`
	Acknowledged bool   `json:"acknowledged" yaml:"acknowledged"`
}

func (r Result) Human() string {
	return fmt.Sprintf("Packet lifecycle was concluded successfully: %t (last stage %s, tx %s)",
		r.Acknowledged, r.Stage, r.TxHash)
}

// Options tune a single send.
type Options struct {
	// WithFee pays the relayer with a quote from the fee estimator.
	WithFee bool
}

// Service sends a packet from one app to its counterparty and follows it
// until the acknowledgement.
type Service struct {
	env    *bootstrap.Env
	logger *slog.Logger
}

func NewService(env *bootstrap.Env) *Service {
	return &Service{
		env:    env,
		logger: logger.Named("send_packet"),
	}
}

// AckDeadline is how long a send waits for the acknowledgement.
func AckDeadline(settings configs.Config) time.Duration {
	if settings.AckPoll.Interval > 0 && settings.AckPoll.Attempts > 0 {
		return settings.AckPoll.Interval * time.Duration(settings.AckPoll.Attempts)
	}
	return settings.Timeouts.PacketAck
}

// route is where a packet goes. cpAddress is the counterparty app, which
// universal packets name as their destination port.
type route struct {
	source      string
	destination string
	port        store.PortConfig
	cpAddress   string
	universal   bool
}

func (s *Service) route(doc *store.Document, r *registry.Resolver, source string) (route, error) {
	if !r.IsWhitelisted(source) {
		return route{}, fmt.Errorf("%w: %q", ErrNotWhitelisted, source)
	}

	port, ok := doc.ActivePort(source)
	if !ok {
		return route{}, fmt.Errorf("%w: %s", ErrNoPortConfig, source)
	}
	if port.ChannelID == "" || port.ChannelID == store.PlaceholderChannelID {
		return route{}, fmt.Errorf("%w: %s on %s", ErrPlaceholderChannel, port.ChannelID, source)
	}

	destination, cpAddress := doc.Counterparty(source)
	if !r.IsWhitelisted(destination) {
		return route{}, fmt.Errorf("%w: %q", ErrNotWhitelisted, destination)
	}
	if cpPort, ok := doc.ActivePort(destination); ok && cpPort.PortAddr != "" && cpPort.PortAddr != store.PlaceholderPortAddr {
		cpAddress = cpPort.PortAddr
	}

	return route{
		source:      source,
		destination: destination,
		port:        port,
		cpAddress:   cpAddress,
		universal:   doc.IsUniversal,
	}, nil
}

// filter accepts packet events of both apps, and of the universal
// middleware on each side when routing through it.
func (s *Service) filter(r *registry.Resolver, rt route) (*watcher.PacketFilter, error) {
	f := watcher.NewPacketFilter()
	sides := []struct {
		network string
		address string
	}{
		{rt.source, rt.port.PortAddr},
		{rt.destination, rt.cpAddress},
	}
	for _, side := range sides {
		allowed := []string{side.address}
		if rt.universal {
			mw, err := r.ResolveUniversalMiddleware(side.network)
			if err != nil {
				return nil, err
			}
			allowed = append(allowed, mw.Hex())
		}
		if err := f.Allow(side.network, allowed...); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// fee quotes the relayer fee. Gas limits come from the document when set,
// otherwise from settings.
func (s *Service) fee(ctx context.Context, doc *store.Document, r *registry.Resolver, rt route) (*gateway.Fee, error) {
	client, err := s.env.FeeEstimator()
	if err != nil {
		return nil, err
	}

	srcID, err := r.ChainIDOf(rt.source)
	if err != nil {
		return nil, err
	}
	dstID, err := r.ChainIDOf(rt.destination)
	if err != nil {
		return nil, err
	}

	recv, ack := s.env.Settings.Gas.RecvPacketLimit, s.env.Settings.Gas.AckPacketLimit
	if doc.RecvPacketGasLimit != nil {
		recv = *doc.RecvPacketGasLimit
	}
	if doc.AckPacketGasLimit != nil {
		ack = *doc.AckPacketGasLimit
	}

	estimate, err := client.EstimatePacket(ctx, feeestimator.Request{
		SrcChainID:     srcID,
		DestChainID:    dstID,
		MaxRecvExecGas: recv,
		MaxAckExecGas:  ack,
	})
	if err != nil {
		return nil, err
	}

	return &gateway.Fee{
		GasLimits: estimate.GasLimits,
		GasPrices: estimate.GasPrices,
		Total:     estimate.Total,
	}, nil
}

// Send sends a packet from source and waits for its acknowledgement. When the
// deadline passes first, the partial result is returned with ErrNotAcknowledged.
func (s *Service) Send(ctx context.Context, source string, opts Options) (Result, error) {
	st, r, err := s.env.Prepare(ctx)
	if err != nil {
		return Result{}, err
	}
	doc := st.Document()

	rt, err := s.route(doc, r, source)
	if err != nil {
		return Result{}, err
	}
	log := s.logger.With("source", rt.source, "destination", rt.destination, "channel_id", rt.port.ChannelID, "universal", rt.universal)

	srcAddress, err := addr.Parse(rt.port.PortAddr)
	if err != nil {
		return Result{}, fmt.Errorf("port address of %s: %w", source, err)
	}

	var fee *gateway.Fee
	if opts.WithFee {
		if fee, err = s.fee(ctx, doc, r, rt); err != nil {
			return Result{}, err
		}
		log.With("fee", fee.Total.String()).Info("relayer fee quoted")
	}

	g, err := s.env.Gateway(ctx, source)
	if err != nil {
		return Result{}, err
	}
	abiSource, err := s.env.ABISource(ctx, source)
	if err != nil {
		return Result{}, err
	}
	appABI, err := abiSource.ABI(ctx, doc.Deploy[source], srcAddress)
	if err != nil {
		return Result{}, err
	}
	app := g.App(srcAddress, appABI)

	filter, err := s.filter(r, rt)
	if err != nil {
		return Result{}, err
	}
	lifecycle := watcher.NewPacketLifecycle()
	recorder := watcher.NewRecordingPrinter(s.env.Printer(ctx, rt.source, rt.destination))
	w, err := watcher.New(watcher.KindPacket, filter, lifecycle, recorder)
	if err != nil {
		return Result{}, err
	}

	var targets []watcher.Target
	for _, network := range []string{rt.source, rt.destination} {
		target, err := s.env.WatchTarget(ctx, network)
		if err != nil {
			return Result{}, err
		}
		targets = append(targets, target)
	}

	deadline := AckDeadline(s.env.Settings)
	wctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	session, err := w.Start(wctx, targets)
	if err != nil {
		return Result{}, err
	}

	log.Info("sending packet")
	receipt, err := s.send(ctx, app, rt, fee)
	if err != nil {
		session.Stop()
		return Result{}, err
	}
	log.With("tx_hash", receipt.TxHash.Hex()).Info("packet sent, waiting for the acknowledgement")

	waitErr := session.Wait(wctx)
	if waitErr != nil && !errors.Is(waitErr, watcher.ErrTimeout) {
		return Result{}, waitErr
	}

	result := Result{
		Network:      rt.source,
		CpNetwork:    rt.destination,
		ChannelID:    rt.port.ChannelID,
		Universal:    rt.universal,
		Sequence:     sequenceOf(recorder.Events(), rt.source),
		TxHash:       receipt.TxHash.Hex(),
		Stage:        lifecycle.Stage(),
		Acknowledged: lifecycle.Terminal(),
	}
	if fee != nil {
		result.Fee = fee.Total.String()
	}

	if waitErr != nil {
		log.With("deadline", deadline.String(), "stage", result.Stage).Warn("acknowledgement not observed")
		return result, fmt.Errorf("%w: %w", ErrNotAcknowledged, waitErr)
	}
	return result, nil
}

func (s *Service) send(ctx context.Context, app *gateway.App, rt route, fee *gateway.Fee) (*types.Receipt, error) {
	if !rt.universal {
		return app.SendPacket(ctx, rt.port.ChannelID, rt.port.Timeout, fee)
	}

	destPort, err := addr.Parse(rt.cpAddress)
	if err != nil {
		return nil, fmt.Errorf("counterparty port address of %s: %w", rt.destination, err)
	}
	return app.SendUniversalPacket(ctx, destPort, rt.port.ChannelID, rt.port.Timeout, fee)
}

func sequenceOf(events []watcher.Event, network string) uint64 {
	for _, ev := range events {
		if ev.Name == watcher.EventSendPacket && ev.Network == network {
			return ev.Sequence
		}
	}
	return 0
}
