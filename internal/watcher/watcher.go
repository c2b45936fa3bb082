package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/compose-network/ibc-app-orchestrator/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

var ErrTimeout = errors.New("timed out waiting for terminal event")

const defaultPollInterval = 2 * time.Second

// LogSource is the subset of ethclient.Client used to follow dispatcher logs.
type LogSource interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Target is one network's dispatcher to follow.
type Target struct {
	Network    string
	Client     LogSource
	Dispatcher common.Address
}

// Watcher follows one lifecycle across several networks.
type Watcher struct {
	kind         Kind
	decoder      *Decoder
	filter       Filter
	lifecycle    Lifecycle
	printer      Printer
	pollInterval time.Duration
	logger       *slog.Logger
}

func New(kind Kind, filter Filter, lifecycle Lifecycle, printer Printer) (*Watcher, error) {
	decoder, err := NewDecoder()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		kind:         kind,
		decoder:      decoder,
		filter:       filter,
		lifecycle:    lifecycle,
		printer:      printer,
		pollInterval: defaultPollInterval,
		logger:       logger.Named("event_watcher").With("kind", string(kind)),
	}, nil
}

// WithPollInterval sets the interval used when a network cannot push logs.
func (w *Watcher) WithPollInterval(interval time.Duration) *Watcher {
	w.pollInterval = interval
	return w
}

func (w *Watcher) Lifecycle() Lifecycle {
	return w.lifecycle
}

// Session is a running watch. Wait must be called exactly once.
type Session struct {
	watcher *Watcher
	events  chan Event
	cancel  context.CancelFunc
	done    chan error
}

// Start subscribes to every target before returning, so transactions sent
// afterwards are observed. Targets whose endpoint cannot subscribe are polled.
func (w *Watcher) Start(ctx context.Context, targets []Target) (*Session, error) {
	topics, err := w.decoder.Topics(w.kind.Events())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	s := &Session{
		watcher: w,
		events:  make(chan Event, 64),
		cancel:  cancel,
		done:    make(chan error, 1),
	}

	for _, target := range targets {
		query := ethereum.FilterQuery{
			Addresses: []common.Address{target.Dispatcher},
			Topics:    [][]common.Hash{topics},
		}

		stream, err := w.open(gctx, target, query)
		if err != nil {
			cancel()
			_ = g.Wait()
			return nil, err
		}
		g.Go(func() error {
			return stream(gctx, s.events)
		})
	}

	go func() {
		s.done <- g.Wait()
	}()

	return s, nil
}

// Watch starts a session and waits for it.
func (w *Watcher) Watch(ctx context.Context, targets []Target) error {
	s, err := w.Start(ctx, targets)
	if err != nil {
		return err
	}
	return s.Wait(ctx)
}

// Wait processes events until the lifecycle reaches a terminal stage, then
// tears every stream down. When ctx expires first it returns ErrTimeout.
func (s *Session) Wait(ctx context.Context) error {
	w := s.watcher
	defer s.cancel()

	for {
		select {
		case ev := <-s.events:
			if !w.filter.Match(ev) {
				w.logger.With("event", ev.Name, "network", ev.Network, "port", ev.PortAddress.Hex()).Debug("event filtered out")
				continue
			}

			w.printer.Print(ev)

			if w.lifecycle.Advance(ev) {
				w.logger.With("event", ev.Name, "network", ev.Network, "stage", w.lifecycle.Stage()).Info("lifecycle advanced")
			}

			if w.lifecycle.Terminal() {
				s.cancel()
				<-s.done
				w.logger.With("stage", w.lifecycle.Stage()).Info("terminal event observed, listeners removed")
				return nil
			}

		case err := <-s.done:
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("event stream failed: %w", err)
			}
			return s.expired(ctx)

		case <-ctx.Done():
			s.cancel()
			<-s.done
			return s.expired(ctx)
		}
	}
}

// Stop tears the session down without waiting for a terminal event.
func (s *Session) Stop() {
	s.cancel()
}

func (s *Session) expired(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: last stage %s", ErrTimeout, s.watcher.lifecycle.Stage())
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: all event streams ended at stage %s", ErrTimeout, s.watcher.lifecycle.Stage())
}

type streamFunc func(ctx context.Context, out chan<- Event) error

func (w *Watcher) open(ctx context.Context, target Target, query ethereum.FilterQuery) (streamFunc, error) {
	log := w.logger.With("network", target.Network, "dispatcher", target.Dispatcher.Hex())

	logs := make(chan types.Log, 64)
	sub, err := target.Client.SubscribeFilterLogs(ctx, query, logs)
	if err == nil {
		log.Info("listening for dispatcher events")
		return func(ctx context.Context, out chan<- Event) error {
			defer sub.Unsubscribe()
			for {
				select {
				case <-ctx.Done():
					return nil
				case err := <-sub.Err():
					if err == nil {
						return nil
					}
					return fmt.Errorf("subscription on %s: %w", target.Network, err)
				case l := <-logs:
					if !w.forward(ctx, target.Network, l, out) {
						return nil
					}
				}
			}
		}, nil
	}

	log.With("err", err).Warn("log subscription unavailable, polling instead")

	from, err := target.Client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get block number on %s: %w", target.Network, err)
	}

	return func(ctx context.Context, out chan<- Event) error {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()

		next := from
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}

			latest, err := target.Client.BlockNumber(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to get block number on %s: %w", target.Network, err)
			}
			if latest < next {
				continue
			}

			q := query
			q.FromBlock = new(big.Int).SetUint64(next)
			q.ToBlock = new(big.Int).SetUint64(latest)
			found, err := target.Client.FilterLogs(ctx, q)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to filter logs on %s: %w", target.Network, err)
			}

			for _, l := range found {
				if !w.forward(ctx, target.Network, l, out) {
					return nil
				}
			}
			next = latest + 1
		}
	}, nil
}

// forward decodes l and hands it to the processing loop. It returns false
// once ctx is done.
func (w *Watcher) forward(ctx context.Context, network string, l types.Log, out chan<- Event) bool {
	if l.Removed {
		return true
	}

	ev, err := w.decoder.Decode(network, l)
	if err != nil {
		w.logger.With("network", network, "tx_hash", l.TxHash.Hex(), "err", err).Warn("skipping undecodable log")
		return true
	}

	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
