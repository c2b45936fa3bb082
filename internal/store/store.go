package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"

	"github.com/compose-network/ibc-app-orchestrator/internal/infra/filesystem"
	"github.com/compose-network/ibc-app-orchestrator/internal/logger"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigParse    = errors.New("config file is malformed")
	ErrUnknownNetwork = errors.New("network not present in config")
)

// ResolvePath picks the configuration document path. CONFIG_PATH wins over
// the settings value; when the configured default is absent and the fallback
// exists, the fallback is used.
func ResolvePath(configured, fallback string) string {
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	if _, err := os.Stat(configured); err != nil && fallback != "" {
		if _, ferr := os.Stat(fallback); ferr == nil {
			return fallback
		}
	}
	return configured
}

// Store owns the configuration document for the lifetime of a command.
// Every mutation rewrites the whole file; there is no locking, so two
// processes mutating the same file concurrently race and the last writer wins.
type Store struct {
	path   string
	doc    *Document
	reader filesystem.Reader
	writer filesystem.Writer
	logger *slog.Logger
}

// Open loads the document at path.
func Open(path string, reader filesystem.Reader, writer filesystem.Writer) (*Store, error) {
	s := &Store{
		path:   path,
		reader: reader,
		writer: writer,
		logger: logger.Named("config_store"),
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// New wraps an in-memory document that has not been persisted yet.
func New(path string, doc *Document, reader filesystem.Reader, writer filesystem.Writer) *Store {
	return &Store{
		path:   path,
		doc:    doc,
		reader: reader,
		writer: writer,
		logger: logger.Named("config_store"),
	}
}

func (s *Store) Path() string {
	return s.path
}

// Document returns the in-memory document. Callers must not keep it across
// mutations performed through the store.
func (s *Store) Document() *Document {
	return s.doc
}

// Load (re)reads the document from disk.
func (s *Store) Load() error {
	data, err := s.reader.ReadBytes(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, s.path)
		}
		return fmt.Errorf("failed to read config %s: %w", s.path, err)
	}

	var doc Document
	if err := doc.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigParse, s.path, err)
	}
	s.doc = &doc

	s.logger.With("path", s.path).Debug("config loaded")

	return nil
}

// Save overwrites the file with the current document.
func (s *Store) Save() error {
	if err := s.writer.WriteJSON(s.path, s.doc); err != nil {
		return fmt.Errorf("failed to write config %s: %w", s.path, err)
	}

	s.logger.With("path", s.path).Debug("config saved")

	return nil
}

// UpdateDeployAddress records a freshly deployed application. In custom mode
// the address becomes one end of the pending channel and the network's port;
// in universal mode it becomes the network's universal port bound to
// universalChannelID.
func (s *Store) UpdateDeployAddress(network, address string, isSource bool, universalChannelID string) error {
	doc := s.doc

	if !doc.IsUniversal {
		if isSource {
			doc.CreateChannel.SrcChain = network
			doc.CreateChannel.SrcAddr = address
		} else {
			doc.CreateChannel.DstChain = network
			doc.CreateChannel.DstAddr = address
		}

		if doc.SendPacket == nil {
			doc.SendPacket = make(map[string]PortConfig)
		}
		port := withDefaults(doc.SendPacket[network])
		port.PortAddr = address
		doc.SendPacket[network] = port
	} else {
		if doc.SendUniversalPacket == nil {
			doc.SendUniversalPacket = make(map[string]PortConfig)
		}
		port := withDefaults(doc.SendUniversalPacket[network])
		port.PortAddr = address
		port.ChannelID = universalChannelID
		doc.SendUniversalPacket[network] = port
	}

	return s.Save()
}

// UpdateChannelIDs records both ends of a newly opened custom channel.
func (s *Store) UpdateChannelIDs(network, channel, cpNetwork, cpChannel string) error {
	doc := s.doc
	for _, n := range []string{network, cpNetwork} {
		if _, ok := doc.SendPacket[n]; !ok {
			return fmt.Errorf("%w: sendPacket.%s", ErrUnknownNetwork, n)
		}
	}

	port := doc.SendPacket[network]
	port.ChannelID = channel
	doc.SendPacket[network] = port

	cpPort := doc.SendPacket[cpNetwork]
	cpPort.ChannelID = cpChannel
	doc.SendPacket[cpNetwork] = cpPort

	return s.Save()
}

// SetContract selects the contract type deployed on a network and the routing mode.
func (s *Store) SetContract(network, contractType string, isUniversal bool) error {
	if s.doc.Deploy == nil {
		s.doc.Deploy = make(map[string]string)
	}
	s.doc.Deploy[network] = contractType
	s.doc.IsUniversal = isUniversal

	return s.Save()
}

// SetUniversal selects the routing mode without touching the contract types.
func (s *Store) SetUniversal(isUniversal bool) error {
	s.doc.IsUniversal = isUniversal
	return s.Save()
}

// FlipClientMode toggles proofsEnabled and swaps the active routing maps
// with the backup taken at the previous flip. Two flips with nothing in
// between restore the document.
func (s *Store) FlipClientMode() error {
	s.doc = flip(s.doc)
	return s.Save()
}

func flip(current *Document) *Document {
	prev := current.clone()
	next := current.clone()

	next.ProofsEnabled = !prev.ProofsEnabled

	if !prev.Backup.empty() {
		next.SendPacket = maps.Clone(prev.Backup.SendPacket)
		next.SendUniversalPacket = maps.Clone(prev.Backup.SendUniversalPacket)

		if p, ok := next.SendPacket[prev.CreateChannel.SrcChain]; ok {
			next.CreateChannel.SrcAddr = p.PortAddr
		}
		if p, ok := next.SendPacket[prev.CreateChannel.DstChain]; ok {
			next.CreateChannel.DstAddr = p.PortAddr
		}
	} else {
		// Channels opened under one client do not exist under the other,
		// so the first flip keeps the ports and resets channel ids.
		next.SendPacket = placeholderChannels(prev.SendPacket)
		next.SendUniversalPacket = placeholderChannels(prev.SendUniversalPacket)
	}

	next.Backup = &Backup{
		SendPacket:          prev.SendPacket,
		SendUniversalPacket: prev.SendUniversalPacket,
	}

	return next
}

func placeholderChannels(ports map[string]PortConfig) map[string]PortConfig {
	out := make(map[string]PortConfig, len(ports))
	for network, port := range ports {
		port.ChannelID = PlaceholderChannelID
		out[network] = port
	}
	return out
}

func withDefaults(p PortConfig) PortConfig {
	if p.ChannelID == "" {
		p.ChannelID = PlaceholderChannelID
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultTimeout
	}
	return p
}

// Build returns a fresh document for a pair of networks with placeholder
// ports, ready to be filled in by deploy and channel creation.
func Build(chainA, chainB string) *Document {
	port := PortConfig{
		PortAddr:  PlaceholderPortAddr,
		ChannelID: PlaceholderChannelID,
		Timeout:   DefaultTimeout,
	}

	return &Document{
		ProofsEnabled: false,
		IsUniversal:   true,
		Deploy: map[string]string{
			chainA: "",
			chainB: "",
		},
		CreateChannel: CreateChannel{
			SrcAddr:  PlaceholderPortAddr,
			DstAddr:  PlaceholderPortAddr,
			Version:  "1.0",
			Ordering: 0,
			Fees:     false,
		},
		SendPacket: map[string]PortConfig{
			chainA: port,
			chainB: port,
		},
		SendUniversalPacket: map[string]PortConfig{
			chainA: port,
			chainB: port,
		},
	}
}
