package configs

import (
	"errors"
	"fmt"
	"time"
)

var Values Config

type (
	NetworkName string

	Config struct {
		ConfigPath      string                  `mapstructure:"config-path"`
		Output          string                  `mapstructure:"output"`
		ABISource       string                  `mapstructure:"abi-source"`
		ArtifactsPath   string                  `mapstructure:"artifacts-path"`
		ContractsDir    string                  `mapstructure:"contracts-dir"`
		FeeEstimatorURL string                  `mapstructure:"fee-estimator-url"`
		Registry        Registry                `mapstructure:"registry"`
		Networks        map[NetworkName]Network `mapstructure:"networks"`
		Deploy          Deploy                  `mapstructure:"deploy"`
		Timeouts        Timeouts                `mapstructure:"timeouts"`
		AckPoll         AckPoll                 `mapstructure:"ack-poll"`
		Gas             Gas                     `mapstructure:"gas"`
		Switch          Switch                  `mapstructure:"switch"`
	}

	Registry struct {
		URL  string `mapstructure:"url"`
		File string `mapstructure:"file"`
	}

	Network struct {
		ChainID        uint64 `mapstructure:"chain-id"`
		RPCURL         string `mapstructure:"rpc-url"`
		WSURL          string `mapstructure:"ws-url"`
		ExplorerURL    string `mapstructure:"explorer-url"`
		ExplorerAPIURL string `mapstructure:"explorer-api-url"`
		PrivateKeyEnv  string `mapstructure:"private-key-env"`
		ProofClient    string `mapstructure:"proof-client"`
		PortPrefix     string `mapstructure:"port-prefix"`
	}

	Deploy struct {
		// Arguments holds the constructor arguments appended after the
		// dispatcher or middleware address, keyed by contract type.
		Arguments map[string][]string `mapstructure:"arguments"`
		Command   string              `mapstructure:"command"`
	}

	Timeouts struct {
		ChannelHandshake       time.Duration `mapstructure:"channel-handshake"`
		ChannelHandshakeProofs time.Duration `mapstructure:"channel-handshake-proofs"`
		PacketAck              time.Duration `mapstructure:"packet-ack"`
	}

	AckPoll struct {
		Interval time.Duration `mapstructure:"interval"`
		Attempts int           `mapstructure:"attempts"`
	}

	Gas struct {
		RecvPacketLimit uint64 `mapstructure:"recv-packet-limit"`
		AckPacketLimit  uint64 `mapstructure:"ack-packet-limit"`
	}

	Switch struct {
		Policy SwitchPolicy `mapstructure:"policy"`
	}

	SwitchPolicy string
)

const (
	ABISourceArtifacts = "artifacts"
	ABISourceExplorer  = "explorer"

	OutputHuman = "human"
	OutputJSON  = "json"
	OutputYAML  = "yaml"

	SwitchPolicyAbortOnFailure SwitchPolicy = "abort-on-failure"
	SwitchPolicyFlipAnyway     SwitchPolicy = "flip-anyway"

	DefaultConfigPath  = "config/config.json"
	FallbackConfigPath = "config.json"

	ClientSim = "sim-client"
	ClientOp  = "op-client"
)

// Network returns the settings of a named network.
func (c *Config) Network(name string) (Network, bool) {
	n, ok := c.Networks[NetworkName(name)]
	return n, ok
}

// NetworkNames returns the configured network names.
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, string(name))
	}
	return names
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Output {
	case OutputHuman, OutputJSON, OutputYAML:
	default:
		errs = append(errs, fmt.Errorf("output must be one of '%s', '%s' or '%s'", OutputHuman, OutputJSON, OutputYAML))
	}

	switch c.ABISource {
	case ABISourceArtifacts, ABISourceExplorer:
	default:
		errs = append(errs, fmt.Errorf("abi-source must be either '%s' or '%s'", ABISourceArtifacts, ABISourceExplorer))
	}

	if c.Registry.URL == "" && c.Registry.File == "" {
		errs = append(errs, errors.New("registry.url or registry.file is required"))
	}

	if len(c.Networks) == 0 {
		errs = append(errs, errors.New("at least one entry in networks is required"))
	}
	for name, network := range c.Networks {
		if network.ChainID == 0 {
			errs = append(errs, fmt.Errorf("networks.%s.chain-id is required", name))
		}
		if network.RPCURL == "" {
			errs = append(errs, fmt.Errorf("networks.%s.rpc-url is required", name))
		}
		if network.PrivateKeyEnv == "" {
			errs = append(errs, fmt.Errorf("networks.%s.private-key-env is required", name))
		}
	}

	if c.Timeouts.ChannelHandshake <= 0 {
		errs = append(errs, errors.New("timeouts.channel-handshake must be greater than 0"))
	}
	if c.Timeouts.ChannelHandshakeProofs <= 0 {
		errs = append(errs, errors.New("timeouts.channel-handshake-proofs must be greater than 0"))
	}
	if c.AckPoll.Attempts <= 0 {
		errs = append(errs, errors.New("ack-poll.attempts must be greater than 0"))
	}
	if c.AckPoll.Interval <= 0 {
		errs = append(errs, errors.New("ack-poll.interval must be greater than 0"))
	}

	switch c.Switch.Policy {
	case SwitchPolicyAbortOnFailure, SwitchPolicyFlipAnyway:
	default:
		errs = append(errs, fmt.Errorf("switch.policy must be either '%s' or '%s'", SwitchPolicyAbortOnFailure, SwitchPolicyFlipAnyway))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}
