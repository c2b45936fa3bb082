package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/compose-network/ibc-app-orchestrator/internal/addr"
	"github.com/compose-network/ibc-app-orchestrator/internal/artifacts"
	"github.com/compose-network/ibc-app-orchestrator/internal/bootstrap"
	"github.com/compose-network/ibc-app-orchestrator/internal/deploy"
	"github.com/compose-network/ibc-app-orchestrator/internal/gateway"
	"github.com/compose-network/ibc-app-orchestrator/internal/logger"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrNotWhitelisted = errors.New("network is not in the registry")
	ErrNoVerifierURL  = errors.New("no explorer api url to verify against")
)

// Result describes a submitted verification.
type Result struct {
	Network         string `json:"network" yaml:"network"`
	Address         string `json:"address" yaml:"address"`
	ContractType    string `json:"contractType" yaml:"contractType"`
	ConstructorArgs string `json:"constructorArgs" yaml:"constructorArgs"`
	VerifierURL     string `json:"verifierUrl" yaml:"verifierUrl"`
	Output          string `json:"output,omitempty" yaml:"output,omitempty"`
}

func (r Result) Human() string {
	return fmt.Sprintf("✅ Submitted %s at %s on network %s for verification at %s", r.ContractType, r.Address, r.Network, r.VerifierURL)
}

// Service submits deployed apps to the explorer's blockscout verifier.
type Service struct {
	env    *bootstrap.Env
	run    artifacts.Runner
	logger *slog.Logger
}

func NewService(env *bootstrap.Env) *Service {
	return &Service{
		env:    env,
		run:    artifacts.RunForge,
		logger: logger.Named("verify"),
	}
}

// WithRunner replaces the forge invocation.
func (s *Service) WithRunner(run artifacts.Runner) *Service {
	s.run = run
	return s
}

// EncodeConstructorArgs ABI-encodes the textual constructor arguments of a
// compiled contract.
func EncodeConstructorArgs(contract artifacts.Contract, args []string) (string, error) {
	values := make([]any, len(args))
	for i, a := range args {
		values[i] = a
	}
	coerced, err := gateway.CoerceArgs(contract.ABI.Constructor.Inputs, values)
	if err != nil {
		return "", fmt.Errorf("constructor arguments of %s: %w", contract.Name, err)
	}
	packed, err := contract.ABI.Constructor.Inputs.Pack(coerced...)
	if err != nil {
		return "", fmt.Errorf("failed to encode constructor arguments of %s: %w", contract.Name, err)
	}
	return hexutil.Encode(packed), nil
}

// Verify rebuilds the constructor arguments the app on network was deployed
// with and runs forge verify-contract against the explorer api.
func (s *Service) Verify(ctx context.Context, network, address string) (Result, error) {
	_, r, err := s.env.Prepare(ctx)
	if err != nil {
		return Result{}, err
	}
	if !r.IsWhitelisted(network) {
		return Result{}, fmt.Errorf("%w: %q", ErrNotWhitelisted, network)
	}

	checksummed, err := addr.Checksum(address)
	if err != nil {
		return Result{}, err
	}

	contractType, args, err := deploy.NewService(s.env).ConstructorArgs(ctx, network)
	if err != nil {
		return Result{}, err
	}

	set, err := s.env.Artifacts()
	if err != nil {
		return Result{}, err
	}
	contract, err := set.Get(contractType)
	if err != nil {
		return Result{}, err
	}
	encoded, err := EncodeConstructorArgs(contract, args)
	if err != nil {
		return Result{}, err
	}

	explorer, err := s.env.Explorer(ctx, network)
	if err != nil {
		return Result{}, err
	}
	if explorer.APIURL == "" {
		return Result{}, fmt.Errorf("%w: %s", ErrNoVerifierURL, network)
	}

	chainID, err := r.ChainIDOf(network)
	if err != nil {
		return Result{}, err
	}

	log := s.logger.With("network", network, "address", checksummed, "contract_type", contractType)
	log.With("verifier_url", explorer.APIURL).Info("submitting contract for verification")

	out, err := s.run(ctx, s.env.Settings.ContractsDir,
		"verify-contract", checksummed, contractType,
		"--chain-id", strconv.FormatUint(chainID, 10),
		"--constructor-args", encoded,
		"--verifier", "blockscout",
		"--verifier-url", explorer.APIURL,
	)
	if err != nil {
		return Result{}, fmt.Errorf("verification of %s failed: %w", checksummed, err)
	}
	log.Info("verification submitted")

	return Result{
		Network:         network,
		Address:         checksummed,
		ContractType:    contractType,
		ConstructorArgs: encoded,
		VerifierURL:     explorer.APIURL,
		Output:          strings.TrimSpace(string(out)),
	}, nil
}
