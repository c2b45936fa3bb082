package artifacts

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/compose-network/ibc-app-orchestrator/internal/infra/filesystem"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var ErrContractNotFound = errors.New("contract not found in artifacts")

//go:embed abi/*.json
var embeddedABIs embed.FS

// Set is a collection of compiled contracts keyed by contract name.
type Set struct {
	contracts map[string]Contract
}

// Embedded returns the interface ABIs bundled with the binary.
func Embedded() (*Set, error) {
	entries, err := embeddedABIs.ReadDir("abi")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded abis: %w", err)
	}

	set := &Set{contracts: make(map[string]Contract, len(entries))}
	for _, entry := range entries {
		raw, err := embeddedABIs.ReadFile(path.Join("abi", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded abi %s: %w", entry.Name(), err)
		}

		name := strings.TrimSuffix(entry.Name(), ".json")
		parsed, err := abi.JSON(strings.NewReader(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("failed to parse embedded abi %s: %w", name, err)
		}

		set.contracts[name] = Contract{
			Name:   name,
			ABI:    parsed,
			RawABI: string(raw),
		}
	}

	return set, nil
}

// MustEmbedded returns the embedded set or panics.
func MustEmbedded() *Set {
	set, err := Embedded()
	if err != nil {
		panic(err)
	}
	return set
}

// Load reads a compiled contracts file and layers it over the embedded
// interfaces. An empty path yields the embedded set alone.
func Load(reader filesystem.Reader, contractsPath string) (*Set, error) {
	set, err := Embedded()
	if err != nil {
		return nil, err
	}
	if contractsPath == "" {
		return set, nil
	}

	data, err := reader.ReadBytes(contractsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read compiled contracts: %w", err)
	}

	compiled, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for name, contract := range compiled.contracts {
		set.contracts[name] = contract
	}

	return set, nil
}

// Parse decodes the `{name: {abi, bytecode}}` document written by the compiler.
func Parse(data []byte) (*Set, error) {
	var result map[string]struct {
		ABI      json.RawMessage `json:"abi"`
		Bytecode string          `json:"bytecode"`
	}

	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse compiled contracts: %w", err)
	}

	set := &Set{contracts: make(map[string]Contract, len(result))}
	for name, contract := range result {
		parsedABI, err := abi.JSON(strings.NewReader(string(contract.ABI)))
		if err != nil {
			return nil, fmt.Errorf("failed to parse ABI for %s: %w", name, err)
		}

		bytecodeHex := strings.TrimPrefix(strings.TrimSpace(contract.Bytecode), "0x")

		set.contracts[name] = Contract{
			Name:     name,
			ABI:      parsedABI,
			RawABI:   string(contract.ABI),
			Bytecode: common.Hex2Bytes(bytecodeHex),
		}
	}

	return set, nil
}

// Get looks a contract up by name, ignoring case.
func (s *Set) Get(name string) (Contract, error) {
	if c, ok := s.contracts[name]; ok {
		return c, nil
	}
	for key, c := range s.contracts {
		if strings.EqualFold(key, name) {
			return c, nil
		}
	}
	return Contract{}, fmt.Errorf("%w: %s", ErrContractNotFound, name)
}

func (s *Set) Names() []string {
	names := make([]string, 0, len(s.contracts))
	for name := range s.contracts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
