package setup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/compose-network/ibc-app-orchestrator/internal/bootstrap"
	"github.com/compose-network/ibc-app-orchestrator/internal/logger"
	"github.com/compose-network/ibc-app-orchestrator/internal/store"
)

var (
	ErrNotWhitelisted = errors.New("network is not in the registry")
	ErrSameNetwork    = errors.New("both chains are the same network")
	ErrConfigExists   = errors.New("configuration document already exists")
)

// Service writes the configuration document before any deployment.
type Service struct {
	env    *bootstrap.Env
	logger *slog.Logger
}

func NewService(env *bootstrap.Env) *Service {
	return &Service{
		env:    env,
		logger: logger.Named("setup"),
	}
}

func (s *Service) whitelisted(ctx context.Context, networks ...string) error {
	r, err := s.env.Resolver(ctx)
	if err != nil {
		return err
	}
	for _, network := range networks {
		if !r.IsWhitelisted(network) {
			return fmt.Errorf("%w: %q (allowed chain ids %v)", ErrNotWhitelisted, network, r.WhitelistedNetworks())
		}
	}
	return nil
}

// Init writes a fresh document for chainA and chainB and returns its path.
// An existing document is kept unless overwrite is set.
func (s *Service) Init(ctx context.Context, chainA, chainB string, overwrite bool) (string, error) {
	if chainA == chainB {
		return "", fmt.Errorf("%w: %s", ErrSameNetwork, chainA)
	}
	if err := s.whitelisted(ctx, chainA, chainB); err != nil {
		return "", err
	}

	path := s.env.ConfigPath()
	if _, err := os.Stat(path); err == nil && !overwrite {
		return "", fmt.Errorf("%w: %s", ErrConfigExists, path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}

	st := store.New(path, store.Build(chainA, chainB), s.env.Reader(), s.env.Writer())
	if err := st.Save(); err != nil {
		return "", err
	}
	s.env.UseStore(st)

	s.logger.With("path", path, "chain_a", chainA, "chain_b", chainB).Info("configuration document created")
	return path, nil
}

// SetContracts records the contract type deployed on chain and the routing mode.
func (s *Service) SetContracts(ctx context.Context, chain, contractType string, isUniversal bool) error {
	if contractType == "" {
		return errors.New("contract type must not be empty")
	}

	st, err := s.env.OpenStore()
	if err != nil {
		return err
	}
	if err := s.whitelisted(ctx, chain); err != nil {
		return err
	}

	if err := st.SetContract(chain, contractType, isUniversal); err != nil {
		return err
	}

	s.logger.With("chain", chain, "contract_type", contractType, "universal", isUniversal).Info("contract type recorded")
	return nil
}
