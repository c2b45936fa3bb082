package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/compose-network/ibc-app-orchestrator/internal/artifacts"
	"github.com/compose-network/ibc-app-orchestrator/internal/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/tidwall/gjson"
)

const abiCacheSize = 64

// ABISource resolves the ABI of a deployed app. Every source must yield the
// same call encoding for the same contract.
type ABISource interface {
	ABI(ctx context.Context, contractType string, address common.Address) (abi.ABI, error)
}

// ExplorerSource downloads verified ABIs from a blockscout style explorer.
type ExplorerSource struct {
	apiURL string
	client *http.Client
	cache  *lru.Cache
	logger *slog.Logger
}

func NewExplorerSource(apiURL string) (*ExplorerSource, error) {
	cache, err := lru.New(abiCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create abi cache: %w", err)
	}

	return &ExplorerSource{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache:  cache,
		logger: logger.Named("explorer_abi"),
	}, nil
}

func (s *ExplorerSource) ABI(ctx context.Context, _ string, address common.Address) (abi.ABI, error) {
	if cached, ok := s.cache.Get(address); ok {
		return cached.(abi.ABI), nil
	}

	url := fmt.Sprintf("%s/v2/smart-contracts/%s", s.apiURL, address.Hex())
	s.logger.With("url", url).Debug("fetching abi")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("%w: failed to create request: %v", ErrAbiFetchFailed, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("%w: %s: %v", ErrAbiFetchFailed, address.Hex(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return abi.ABI{}, fmt.Errorf("%w: %s: unexpected status code: %d", ErrAbiFetchFailed, address.Hex(), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("%w: failed to read response body: %v", ErrAbiFetchFailed, err)
	}

	if !gjson.ValidBytes(body) {
		return abi.ABI{}, fmt.Errorf("%w: %s: malformed response", ErrAbiFetchFailed, address.Hex())
	}
	raw := gjson.GetBytes(body, "abi")
	if !raw.IsArray() {
		return abi.ABI{}, fmt.Errorf("%w: %s: response has no abi", ErrAbiFetchFailed, address.Hex())
	}

	parsed, err := abi.JSON(strings.NewReader(raw.Raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("%w: %s: %v", ErrAbiFetchFailed, address.Hex(), err)
	}

	s.cache.Add(address, parsed)

	return parsed, nil
}

// ArtifactSource serves ABIs from compiled contracts. Contract types that
// were not compiled fall back to the generic app interface.
type ArtifactSource struct {
	set *artifacts.Set
}

func NewArtifactSource(set *artifacts.Set) *ArtifactSource {
	return &ArtifactSource{set: set}
}

func (s *ArtifactSource) ABI(_ context.Context, contractType string, _ common.Address) (abi.ABI, error) {
	if contractType != "" {
		if c, err := s.set.Get(contractType); err == nil {
			return c.ABI, nil
		}
	}

	c, err := s.set.Get(artifacts.NameIbcApp)
	if err != nil {
		return abi.ABI{}, err
	}
	return c.ABI, nil
}
