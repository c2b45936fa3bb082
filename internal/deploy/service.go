package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/compose-network/ibc-app-orchestrator/internal/bootstrap"
	"github.com/compose-network/ibc-app-orchestrator/internal/gateway"
	"github.com/compose-network/ibc-app-orchestrator/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

var ErrNotWhitelisted = errors.New("network is not in the registry")

// CommandRunner runs an external deployer and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return out, err
	}
	return out, nil
}

// Service deploys the apps named in the configuration document.
type Service struct {
	env    *bootstrap.Env
	run    CommandRunner
	logger *slog.Logger
}

func NewService(env *bootstrap.Env) *Service {
	return &Service{
		env:    env,
		run:    runCommand,
		logger: logger.Named("deploy"),
	}
}

// WithCommandRunner replaces how deploy.command is executed.
func (s *Service) WithCommandRunner(run CommandRunner) *Service {
	s.run = run
	return s
}

// ConstructorArgs returns the textual constructor arguments of the app on
// network: the dispatcher, or the universal middleware in universal mode,
// followed by deploy.arguments of the contract type.
func (s *Service) ConstructorArgs(ctx context.Context, network string) (string, []string, error) {
	st, r, err := s.env.Prepare(ctx)
	if err != nil {
		return "", nil, err
	}
	doc := st.Document()

	contractType := doc.Deploy[network]
	if contractType == "" {
		return "", nil, fmt.Errorf("no contract type set for %s in deploy", network)
	}

	var infra common.Address
	if doc.IsUniversal {
		infra, err = r.ResolveUniversalMiddleware(network)
	} else {
		infra, err = r.ResolveDispatcher(network)
	}
	if err != nil {
		return "", nil, err
	}

	args := []string{infra.Hex()}
	args = append(args, s.extraArguments(contractType)...)
	return contractType, args, nil
}

// extraArguments looks contract types up case-insensitively since settings
// keys are lowercased on load.
func (s *Service) extraArguments(contractType string) []string {
	for name, args := range s.env.Settings.Deploy.Arguments {
		if strings.EqualFold(name, contractType) {
			return args
		}
	}
	return nil
}

// Deploy deploys the configured app on network and returns its result
// without recording it.
func (s *Service) Deploy(ctx context.Context, network string) (Result, error) {
	contractType, args, err := s.ConstructorArgs(ctx, network)
	if err != nil {
		return Result{}, err
	}

	log := s.logger.With("network", network, "contract_type", contractType)

	if command := s.env.Settings.Deploy.Command; command != "" {
		log.With("command", command).Info("running external deployer")
		return s.deployExternal(ctx, command, network, contractType, args)
	}

	set, err := s.env.Artifacts()
	if err != nil {
		return Result{}, err
	}
	contract, err := set.Get(contractType)
	if err != nil {
		return Result{}, err
	}

	values := make([]any, len(args))
	for i, a := range args {
		values[i] = a
	}
	coerced, err := gateway.CoerceArgs(contract.ABI.Constructor.Inputs, values)
	if err != nil {
		return Result{}, fmt.Errorf("constructor arguments of %s: %w", contractType, err)
	}

	g, err := s.env.Gateway(ctx, network)
	if err != nil {
		return Result{}, err
	}

	address, receipt, err := g.Deploy(ctx, contract, coerced...)
	if err != nil {
		return Result{}, err
	}

	log.With("address", address.Hex()).Info("app deployed")

	return Result{
		ContractType: contractType,
		Address:      address.Hex(),
		Network:      network,
		TxHash:       receipt.TxHash.Hex(),
	}, nil
}

func (s *Service) deployExternal(ctx context.Context, command, network, contractType string, args []string) (Result, error) {
	replacer := strings.NewReplacer(
		"{network}", network,
		"{contract}", contractType,
		"{args}", strings.Join(args, " "),
	)
	fields := strings.Fields(replacer.Replace(command))
	if len(fields) == 0 {
		return Result{}, fmt.Errorf("deploy.command is empty after substitution")
	}

	out, err := s.run(ctx, fields[0], fields[1:]...)
	if err != nil {
		return Result{}, fmt.Errorf("deployer for %s failed: %w", network, err)
	}

	result, err := ParseDeployOutput(out)
	if err != nil {
		return Result{}, fmt.Errorf("deployer for %s: %w", network, err)
	}
	if result.Network != network {
		return Result{}, fmt.Errorf("deployer reported network %s, expected %s", result.Network, network)
	}
	return result, nil
}

// Record stores a result in the configuration document. Universal
// deployments bind to the registry's universal channel of the network.
func (s *Service) Record(ctx context.Context, result Result) error {
	st, r, err := s.env.Prepare(ctx)
	if err != nil {
		return err
	}

	var universalChannelID string
	if st.Document().IsUniversal {
		universalChannelID, err = r.ResolveUniversalChannelID(result.Network)
		if err != nil {
			return err
		}
	}

	if err := st.UpdateDeployAddress(result.Network, result.Address, result.IsSource, universalChannelID); err != nil {
		return err
	}

	s.logger.
		With("network", result.Network, "address", result.Address, "path", st.Path()).
		Info("deployment recorded")
	return nil
}

// DeployAndRecord deploys on one network and records the result.
func (s *Service) DeployAndRecord(ctx context.Context, network string, isSource bool) (Result, error) {
	result, err := s.Deploy(ctx, network)
	if err != nil {
		return Result{}, err
	}
	result.IsSource = isSource

	if err := s.Record(ctx, result); err != nil {
		return result, err
	}
	return result, nil
}

// DeployPair deploys on source and destination concurrently and records the
// results in that order once both deployments have finished. universal, when
// set, switches the routing mode first. A successful source deployment is
// recorded even when the destination one failed.
func (s *Service) DeployPair(ctx context.Context, source, destination string, universal *bool) ([]Result, error) {
	st, err := s.env.OpenStore()
	if err != nil {
		return nil, err
	}

	// Resolve registry and artifacts up front so the goroutines only read.
	r, err := s.env.Resolver(ctx)
	if err != nil {
		return nil, err
	}
	for _, network := range []string{source, destination} {
		if !r.IsWhitelisted(network) {
			return nil, fmt.Errorf("%w: %q (allowed chain ids %v)", ErrNotWhitelisted, network, r.WhitelistedNetworks())
		}
	}
	if _, err := s.env.Artifacts(); err != nil {
		return nil, err
	}

	if universal != nil {
		if err := st.SetUniversal(*universal); err != nil {
			return nil, err
		}
	}

	networks := []string{source, destination}
	results := make([]Result, len(networks))
	errs := make([]error, len(networks))

	var g errgroup.Group
	for i, network := range networks {
		g.Go(func() error {
			results[i], errs[i] = s.Deploy(ctx, network)
			return nil
		})
	}
	_ = g.Wait()

	var recorded []Result
	for i, network := range networks {
		if errs[i] != nil {
			return recorded, fmt.Errorf("deploy on %s failed: %w", network, errs[i])
		}
		results[i].IsSource = i == 0
		if err := s.Record(ctx, results[i]); err != nil {
			return recorded, err
		}
		recorded = append(recorded, results[i])
	}

	return recorded, nil
}
