package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/compose-network/ibc-app-orchestrator/configs"
	"github.com/compose-network/ibc-app-orchestrator/internal/addr"
	"github.com/compose-network/ibc-app-orchestrator/internal/artifacts"
	"github.com/compose-network/ibc-app-orchestrator/internal/bootstrap"
	"github.com/compose-network/ibc-app-orchestrator/internal/gateway"
	"github.com/compose-network/ibc-app-orchestrator/internal/logger"
	"github.com/compose-network/ibc-app-orchestrator/internal/registry"
	"github.com/compose-network/ibc-app-orchestrator/internal/store"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

var (
	ErrRotationFailed = errors.New("client rotation failed")
	ErrUnknownPolicy  = errors.New("unknown switch policy")
)

const (
	ModeCustom    = "custom"
	ModeUniversal = "universal"
)

// Rotation is one app pointed at the infrastructure of the target client.
type Rotation struct {
	Network string `json:"network" yaml:"network"`
	Mode    string `json:"mode" yaml:"mode"`
	App     string `json:"app" yaml:"app"`
	Target  string `json:"target" yaml:"target"`
	TxHash  string `json:"txHash,omitempty" yaml:"txHash,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

func (r Rotation) OK() bool {
	return r.Error == ""
}

type Report struct {
	Policy        configs.SwitchPolicy `json:"policy" yaml:"policy"`
	ProofsEnabled bool                 `json:"proofsEnabled" yaml:"proofsEnabled"`
	Flipped       bool                 `json:"flipped" yaml:"flipped"`
	Rotations     []Rotation           `json:"rotations" yaml:"rotations"`
}

func (r Report) failures() []string {
	var out []string
	for _, rot := range r.Rotations {
		if !rot.OK() {
			out = append(out, rot.Network+"/"+rot.Mode)
		}
	}
	return out
}

func (r Report) Human() string {
	var b strings.Builder
	for _, rot := range r.Rotations {
		subject := "Dispatcher"
		if rot.Mode == ModeUniversal {
			subject = "Universal channel handler"
		}
		if rot.OK() {
			fmt.Fprintf(&b, "✅ Updated %s of %s on network %s to %s\n", subject, rot.App, rot.Network, rot.Target)
		} else {
			fmt.Fprintf(&b, "⛔ Failed to update %s of %s on network %s: %s\n", subject, rot.App, rot.Network, rot.Error)
		}
	}
	if r.Flipped {
		fmt.Fprintf(&b, "🔁 Switched to proofsEnabled=%t", r.ProofsEnabled)
	} else {
		fmt.Fprintf(&b, "⏸️  Kept proofsEnabled=%t (policy %s)", r.ProofsEnabled, r.Policy)
	}
	return b.String()
}

// Service moves every recorded app between the sim client and the proof
// client, then flips the document's client mode according to the policy.
type Service struct {
	env    *bootstrap.Env
	logger *slog.Logger
}

func NewService(env *bootstrap.Env) *Service {
	return &Service{
		env:    env,
		logger: logger.Named("switch_clients"),
	}
}

type job struct {
	network string
	mode    string
	app     common.Address
	target  common.Address
	bound   *gateway.App
}

// rotationMethods are the app methods able to carry a rotation, per mode.
var rotationMethods = map[string][]string{
	ModeCustom:    {"updateDispatcher"},
	ModeUniversal: {"updateMiddleware", "setDefaultMw"},
}

func supports(contractABI abi.ABI, mode string) bool {
	for _, method := range rotationMethods[mode] {
		if _, ok := contractABI.Methods[method]; ok {
			return true
		}
	}
	return false
}

func (j job) rotation() Rotation {
	return Rotation{Network: j.network, Mode: j.mode, App: j.app.Hex(), Target: j.target.Hex()}
}

// jobs lists the apps of both routing maps with the target client's
// dispatcher (custom) or middleware (universal).
func jobs(doc *store.Document, target *registry.Resolver) ([]job, []Rotation) {
	var (
		out    []job
		failed []Rotation
	)
	modes := []struct {
		name  string
		ports map[string]store.PortConfig
	}{
		{ModeCustom, doc.SendPacket},
		{ModeUniversal, doc.SendUniversalPacket},
	}
	for _, mode := range modes {
		networks := make([]string, 0, len(mode.ports))
		for network := range mode.ports {
			networks = append(networks, network)
		}
		slices.Sort(networks)

		for _, network := range networks {
			port := mode.ports[network]
			if port.PortAddr == "" || port.PortAddr == store.PlaceholderPortAddr {
				continue
			}
			rot := Rotation{Network: network, Mode: mode.name, App: port.PortAddr}

			app, err := addr.Parse(port.PortAddr)
			if err != nil {
				rot.Error = err.Error()
				failed = append(failed, rot)
				continue
			}

			var infra common.Address
			if mode.name == ModeCustom {
				infra, err = target.ResolveDispatcher(network)
			} else {
				infra, err = target.ResolveUniversalMiddleware(network)
			}
			if err != nil {
				rot.Error = err.Error()
				failed = append(failed, rot)
				continue
			}

			out = append(out, job{network: network, mode: mode.name, app: app, target: infra})
		}
	}
	return out, failed
}

// Switch rotates the apps and flips the client mode. With abort-on-failure
// the document is left untouched when any rotation fails; flip-anyway flips
// regardless. Either way failures are reported with ErrRotationFailed.
func (s *Service) Switch(ctx context.Context) (Report, error) {
	policy := s.env.Settings.Switch.Policy
	if policy == "" {
		policy = configs.SwitchPolicyAbortOnFailure
	}
	if policy != configs.SwitchPolicyAbortOnFailure && policy != configs.SwitchPolicyFlipAnyway {
		return Report{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}

	st, r, err := s.env.Prepare(ctx)
	if err != nil {
		return Report{}, err
	}
	doc := st.Document()
	target := r.WithProofs(!doc.ProofsEnabled)

	log := s.logger.With("from_proofs", doc.ProofsEnabled, "to_proofs", target.ProofsEnabled(), "policy", policy)
	log.Info("rotating apps to the target client")

	todo, rotations := jobs(doc, target)

	// every app is bound before the first transaction is sent
	ready := make([]job, 0, len(todo))
	for _, j := range todo {
		bound, err := s.bind(ctx, doc, j)
		if err != nil {
			rot := j.rotation()
			rot.Error = err.Error()
			rotations = append(rotations, rot)
			continue
		}
		j.bound = bound
		ready = append(ready, j)
	}

	if policy == configs.SwitchPolicyAbortOnFailure {
		if failures := (Report{Rotations: rotations}).failures(); len(failures) > 0 {
			log.With("failed", failures).Warn("apps could not be prepared, nothing sent")
			report := Report{Policy: policy, ProofsEnabled: doc.ProofsEnabled, Rotations: rotations}
			return report, fmt.Errorf("%w: %s", ErrRotationFailed, strings.Join(failures, ", "))
		}
	}

	// one goroutine per network keeps the nonces of a signer in order
	byNetwork := make(map[string][]int)
	var order []string
	for i, j := range ready {
		if _, ok := byNetwork[j.network]; !ok {
			order = append(order, j.network)
		}
		byNetwork[j.network] = append(byNetwork[j.network], i)
	}

	results := make([]Rotation, len(ready))
	g, gctx := errgroup.WithContext(ctx)
	for _, network := range order {
		indexes := byNetwork[network]
		g.Go(func() error {
			for _, i := range indexes {
				results[i] = s.rotate(gctx, ready[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	rotations = append(rotations, results...)

	report := Report{Policy: policy, ProofsEnabled: doc.ProofsEnabled, Rotations: rotations}
	failures := report.failures()

	if len(failures) > 0 && policy == configs.SwitchPolicyAbortOnFailure {
		log.With("failed", failures).Warn("rotation failed, client mode unchanged")
		return report, fmt.Errorf("%w: %s", ErrRotationFailed, strings.Join(failures, ", "))
	}

	if err := st.FlipClientMode(); err != nil {
		return report, err
	}
	report.Flipped = true
	report.ProofsEnabled = st.Document().ProofsEnabled
	log.With("proofs_enabled", report.ProofsEnabled).Info("client mode switched")

	if len(failures) > 0 {
		log.With("failed", failures).Warn("client mode switched with failed rotations")
		return report, fmt.Errorf("%w: %s", ErrRotationFailed, strings.Join(failures, ", "))
	}
	return report, nil
}

// bind resolves the ABI of one app. The contract type recorded for the
// network names a single contract, so an ABI lacking the rotation method
// falls back to the generic app interface.
func (s *Service) bind(ctx context.Context, doc *store.Document, j job) (*gateway.App, error) {
	g, err := s.env.Gateway(ctx, j.network)
	if err != nil {
		return nil, err
	}

	log := s.logger.With("network", j.network, "mode", j.mode, "app", j.app.Hex())
	source, err := s.env.ABISource(ctx, j.network)
	if err == nil {
		var contractABI abi.ABI
		contractABI, err = source.ABI(ctx, doc.Deploy[j.network], j.app)
		if err == nil && supports(contractABI, j.mode) {
			return g.App(j.app, contractABI), nil
		}
	}
	log.With("contract_type", doc.Deploy[j.network], "err", err).Debug("using the generic app interface")

	iface, err := artifacts.MustEmbedded().Get(artifacts.NameIbcApp)
	if err != nil {
		return nil, err
	}
	return g.App(j.app, iface.ABI), nil
}

func (s *Service) rotate(ctx context.Context, j job) Rotation {
	rot := j.rotation()
	log := s.logger.With("network", j.network, "mode", j.mode, "app", rot.App, "target", rot.Target)

	var (
		receipt *types.Receipt
		err     error
	)
	if j.mode == ModeCustom {
		receipt, err = j.bound.UpdateDispatcher(ctx, j.target)
	} else {
		receipt, err = j.bound.UpdateMiddleware(ctx, j.target)
	}
	if err != nil {
		log.With("err", err).Error("rotation failed")
		rot.Error = err.Error()
		return rot
	}

	rot.TxHash = receipt.TxHash.Hex()
	log.With("tx_hash", rot.TxHash).Info("app rotated")
	return rot
}
