package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/compose-network/ibc-app-orchestrator/internal/infra/filesystem"
	"github.com/compose-network/ibc-app-orchestrator/internal/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Runner executes a forge subcommand in dir and returns its stdout.
type Runner func(ctx context.Context, dir string, args ...string) ([]byte, error)

// Compiler builds the app contracts with forge and writes the compiled
// contracts document consumed by Load.
type Compiler struct {
	contractsRootDir string
	outputPath       string
	writer           filesystem.Writer
	run              Runner
	logger           *slog.Logger
}

func NewCompiler(contractsRootDir, outputPath string, writer filesystem.Writer) *Compiler {
	return &Compiler{
		contractsRootDir: contractsRootDir,
		outputPath:       outputPath,
		writer:           writer,
		run:              RunForge,
		logger:           logger.Named("contracts_compiler"),
	}
}

// WithRunner replaces the forge invocation.
func (c *Compiler) WithRunner(run Runner) *Compiler {
	c.run = run
	return c
}

// Compile compiles the named contracts and persists the output.
func (c *Compiler) Compile(ctx context.Context, contractNames []string) error {
	c.logger.
		With("contracts_dir", c.contractsRootDir, "contracts", contractNames).
		Info("starting contract compilation")

	if _, err := c.run(ctx, c.contractsRootDir, "build"); err != nil {
		return fmt.Errorf("forge build failed: %w", err)
	}

	jsonContracts := make(map[string]map[string]any, len(contractNames))
	for _, name := range contractNames {
		c.logger.With("name", name).Info("inspecting contract")

		abiJSON, bytecodeHex, err := c.compileContractRaw(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to compile %s: %w", name, err)
		}

		jsonContracts[name] = map[string]any{
			"abi":      json.RawMessage(abiJSON),
			"bytecode": bytecodeHex,
		}
	}

	if err := c.writer.WriteJSON(c.outputPath, jsonContracts); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.outputPath, err)
	}

	c.logger.With("path", c.outputPath).Info("contracts compiled successfully")

	return nil
}

// compileContractRaw returns the raw JSON ABI and 0x-prefixed bytecode of a contract.
func (c *Compiler) compileContractRaw(ctx context.Context, contractName string) ([]byte, string, error) {
	abiOutput, err := c.run(ctx, c.contractsRootDir, "inspect", contractName, "abi", "--json")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get ABI for %s: %w", contractName, err)
	}

	if _, err := abi.JSON(strings.NewReader(string(abiOutput))); err != nil {
		return nil, "", fmt.Errorf("failed to parse ABI for %s: %w", contractName, err)
	}

	bytecodeOutput, err := c.run(ctx, c.contractsRootDir, "inspect", contractName, "bytecode")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get bytecode for %s: %w", contractName, err)
	}

	return abiOutput, strings.TrimSpace(string(bytecodeOutput)), nil
}

// RunForge runs forge in dir with stderr passed through.
func RunForge(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "forge", args...)
	cmd.Dir = dir
	cmd.Stderr = os.Stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("forge %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}
