package deploy

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/compose-network/ibc-app-orchestrator/internal/addr"
)

var ErrUnparsableOutput = errors.New("could not find contract address and network in deployer output")

// legacyLine is printed by deployer scripts that predate JSON results.
var legacyLine = regexp.MustCompile(`Contract (\S+) deployed to (\S+) on network (\S+)`)

// Result describes one deployed app.
type Result struct {
	ContractType string `json:"contractType" yaml:"contractType"`
	Address      string `json:"address" yaml:"address"`
	Network      string `json:"network" yaml:"network"`
	TxHash       string `json:"txHash,omitempty" yaml:"txHash,omitempty"`
	IsSource     bool   `json:"isSource" yaml:"isSource"`
}

func (r Result) Human() string {
	return fmt.Sprintf(`
✅   Deployment Successful   ✅
-------------------------------
📄 Contract Type: %s
📍 Address: %s
🌍 Network: %s
-------------------------------`, r.ContractType, r.Address, r.Network)
}

// ParseDeployOutput extracts the result from an external deployer's stdout.
// A line holding a JSON object with contractType, address and network wins;
// the legacy human line is accepted otherwise.
func ParseDeployOutput(out []byte) (Result, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var r Result
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			continue
		}
		if r.ContractType != "" && r.Address != "" && r.Network != "" {
			return validated(r)
		}
	}

	if m := legacyLine.FindStringSubmatch(string(out)); m != nil {
		return validated(Result{ContractType: m[1], Address: m[2], Network: m[3]})
	}

	return Result{}, ErrUnparsableOutput
}

func validated(r Result) (Result, error) {
	checksummed, err := addr.Checksum(r.Address)
	if err != nil {
		return Result{}, fmt.Errorf("deployer reported address %q: %w", r.Address, err)
	}
	r.Address = checksummed
	return r, nil
}
