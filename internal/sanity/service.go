package sanity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/compose-network/ibc-app-orchestrator/internal/bootstrap"
	"github.com/compose-network/ibc-app-orchestrator/internal/logger"
	"github.com/compose-network/ibc-app-orchestrator/internal/registry"
	"github.com/compose-network/ibc-app-orchestrator/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSanityFailed = errors.New("sanity check failed")

	errNoApp = errors.New("no app recorded")
)

const (
	ItemDispatcher           = "dispatcher"
	ItemMiddleware           = "universal middleware"
	ItemMiddlewareDispatcher = "middleware dispatcher"
	ItemUniversalChannel     = "universal channel"
	ItemApp                  = "app"
)

// Check compares one on-chain value with its expected value.
type Check struct {
	Network  string `json:"network" yaml:"network"`
	Item     string `json:"item" yaml:"item"`
	Expected string `json:"expected" yaml:"expected"`
	Actual   string `json:"actual" yaml:"actual"`
	Passed   bool   `json:"passed" yaml:"passed"`
}

// Report holds every check of a run, grouped by network in name order.
type Report struct {
	ProofsEnabled bool    `json:"proofsEnabled" yaml:"proofsEnabled"`
	Universal     bool    `json:"universal" yaml:"universal"`
	Checks        []Check `json:"checks" yaml:"checks"`
	Passed        bool    `json:"passed" yaml:"passed"`
}

// Failed returns the networks with at least one failed check.
func (r Report) Failed() []string {
	var out []string
	for _, c := range r.Checks {
		if !c.Passed && !slices.Contains(out, c.Network) {
			out = append(out, c.Network)
		}
	}
	return out
}

func (r Report) Human() string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Sanity check (universal: %t, proofs: %t)", r.Universal, r.ProofsEnabled))
	t.AppendHeader(table.Row{"Network", "Item", "Expected", "Actual", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Network", AutoMerge: true},
		{Name: "Actual", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, c := range r.Checks {
		status := "✅ pass"
		if !c.Passed {
			status = "⛔ fail"
		}
		t.AppendRow(table.Row{c.Network, c.Item, c.Expected, c.Actual, status})
	}

	if r.Passed {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}
	return t.Render()
}

// Service compares the infrastructure addresses stored in the apps with the
// registry. It never sends transactions.
type Service struct {
	env    *bootstrap.Env
	logger *slog.Logger
}

func NewService(env *bootstrap.Env) *Service {
	return &Service{
		env:    env,
		logger: logger.Named("sanity_check"),
	}
}

// Run checks every network of the active routing map concurrently. A failed
// check yields ErrSanityFailed together with the full report.
func (s *Service) Run(ctx context.Context) (Report, error) {
	st, r, err := s.env.Prepare(ctx)
	if err != nil {
		return Report{}, err
	}
	doc := st.Document()

	networks := make([]string, 0, len(doc.ActivePorts()))
	for network := range doc.ActivePorts() {
		networks = append(networks, network)
	}
	slices.Sort(networks)

	results := make([][]Check, len(networks))
	g, gctx := errgroup.WithContext(ctx)
	for i, network := range networks {
		g.Go(func() error {
			results[i] = s.checkNetwork(gctx, doc, r, network)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{ProofsEnabled: doc.ProofsEnabled, Universal: doc.IsUniversal, Passed: true}
	for _, checks := range results {
		report.Checks = append(report.Checks, checks...)
	}
	for _, c := range report.Checks {
		report.Passed = report.Passed && c.Passed
	}

	if !report.Passed {
		failed := report.Failed()
		s.logger.With("networks", failed).Warn("sanity check failed")
		return report, fmt.Errorf("%w for %s", ErrSanityFailed, strings.Join(failed, ", "))
	}
	s.logger.With("networks", networks).Info("sanity check passed")
	return report, nil
}

func (s *Service) checkNetwork(ctx context.Context, doc *store.Document, r *registry.Resolver, network string) []Check {
	log := s.logger.With("network", network)

	fail := func(item, expected string, err error) []Check {
		log.With("item", item, "err", err).Warn("check could not complete")
		return []Check{{Network: network, Item: item, Expected: expected, Actual: err.Error()}}
	}

	port, _ := doc.ActivePort(network)
	if port.PortAddr == "" || port.PortAddr == store.PlaceholderPortAddr {
		return fail(ItemApp, "deployed app", errNoApp)
	}

	app, err := s.env.DeployedApp(ctx, network)
	if err != nil {
		return fail(ItemApp, port.PortAddr, err)
	}

	expectedDispatcher, err := r.ResolveDispatcher(network)
	if err != nil {
		return fail(ItemDispatcher, "registry dispatcher", err)
	}

	if !doc.IsUniversal {
		actual, err := app.Dispatcher(ctx)
		if err != nil {
			return fail(ItemDispatcher, expectedDispatcher.Hex(), err)
		}
		return []Check{compare(network, ItemDispatcher, expectedDispatcher, actual)}
	}

	expectedMiddleware, err := r.ResolveUniversalMiddleware(network)
	if err != nil {
		return fail(ItemMiddleware, "registry middleware", err)
	}
	actualMiddleware, err := app.Mw(ctx)
	if err != nil {
		return fail(ItemMiddleware, expectedMiddleware.Hex(), err)
	}
	checks := []Check{compare(network, ItemMiddleware, expectedMiddleware, actualMiddleware)}
	if !checks[0].Passed {
		return checks
	}

	gw, err := s.env.Gateway(ctx, network)
	if err != nil {
		return append(checks, fail(ItemMiddlewareDispatcher, expectedDispatcher.Hex(), err)...)
	}
	mw := gw.Middleware(actualMiddleware)

	actualDispatcher, err := mw.Dispatcher(ctx)
	if err != nil {
		return append(checks, fail(ItemMiddlewareDispatcher, expectedDispatcher.Hex(), err)...)
	}
	checks = append(checks, compare(network, ItemMiddlewareDispatcher, expectedDispatcher, actualDispatcher))
	if !checks[1].Passed {
		return checks
	}

	channel, err := mw.ConnectedChannel(ctx, 0)
	if err != nil {
		return append(checks, fail(ItemUniversalChannel, port.ChannelID, err)...)
	}
	return append(checks, Check{
		Network:  network,
		Item:     ItemUniversalChannel,
		Expected: port.ChannelID,
		Actual:   channel,
		Passed:   channel == port.ChannelID,
	})
}

func compare(network, item string, expected, actual common.Address) Check {
	return Check{
		Network:  network,
		Item:     item,
		Expected: expected.Hex(),
		Actual:   actual.Hex(),
		Passed:   expected == actual,
	}
}
