package store

import (
	"os"
	"path/filepath"
	"testing"

	fsjson "github.com/compose-network/ibc-app-orchestrator/internal/infra/filesystem/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDocument = `{
  "proofsEnabled": false,
  "isUniversal": false,
  "deploy": {"optimism": "XCounter", "base": "XCounter"},
  "createChannel": {
    "srcChain": "optimism",
    "srcAddr": "0x1111111111111111111111111111111111111111",
    "dstChain": "base",
    "dstAddr": "0x2222222222222222222222222222222222222222",
    "version": "1.0",
    "ordering": 0,
    "fees": false
  },
  "sendPacket": {
    "optimism": {"portAddr": "0x1111111111111111111111111111111111111111", "channelId": "channel-10", "timeout": 36000},
    "base": {"portAddr": "0x2222222222222222222222222222222222222222", "channelId": "channel-11", "timeout": 36000}
  },
  "sendUniversalPacket": {
    "optimism": {"portAddr": "0x3333333333333333333333333333333333333333", "channelId": "channel-1", "timeout": 36000},
    "base": {"portAddr": "0x4444444444444444444444444444444444444444", "channelId": "channel-2", "timeout": 36000}
  },
  "polymerRegistryTestnetRepoUrl": "https://example.com/registry.json",
  "feeEstimatorApiUrl": "https://fees.example.com",
  "nested": {"keep": [1, 2, 3]}
}`

func writeDocument(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config", "config.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func openStore(t *testing.T, content string) *Store {
	t.Helper()
	s, err := Open(writeDocument(t, content), fsjson.NewReader(), fsjson.NewWriter())
	require.NoError(t, err)
	return s
}

func reopen(t *testing.T, s *Store) *Store {
	t.Helper()
	again, err := Open(s.Path(), fsjson.NewReader(), fsjson.NewWriter())
	require.NoError(t, err)
	return again
}

func TestLoadSaveRoundTripKeepsUnknownKeys(t *testing.T) {
	s := openStore(t, sampleDocument)
	require.NoError(t, s.Save())

	saved, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.JSONEq(t, sampleDocument, string(saved))
	assert.Equal(t, byte('\n'), saved[len(saved)-1])

	assert.Equal(t, "https://fees.example.com", s.Document().ExtraString("feeEstimatorApiUrl"))
	assert.Empty(t, s.Document().ExtraString("missing"))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.json"), fsjson.NewReader(), fsjson.NewWriter())
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestOpenMalformedFile(t *testing.T) {
	path := writeDocument(t, `{"proofsEnabled": tru`)
	_, err := Open(path, fsjson.NewReader(), fsjson.NewWriter())
	assert.ErrorIs(t, err, ErrConfigParse)
}

func TestUpdateDeployAddressCustom(t *testing.T) {
	s := openStore(t, sampleDocument)

	const fresh = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	require.NoError(t, s.UpdateDeployAddress("base", fresh, false, ""))

	doc := reopen(t, s).Document()
	assert.Equal(t, "base", doc.CreateChannel.DstChain)
	assert.Equal(t, fresh, doc.CreateChannel.DstAddr)
	assert.Equal(t, fresh, doc.SendPacket["base"].PortAddr)
	assert.Equal(t, "channel-11", doc.SendPacket["base"].ChannelID)

	// the universal map and the source side are untouched
	assert.Equal(t, "0x4444444444444444444444444444444444444444", doc.SendUniversalPacket["base"].PortAddr)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", doc.CreateChannel.SrcAddr)
	assert.Equal(t, "https://example.com/registry.json", doc.ExtraString("polymerRegistryTestnetRepoUrl"))
}

func TestUpdateDeployAddressUniversal(t *testing.T) {
	s := openStore(t, sampleDocument)
	require.NoError(t, s.SetContract("optimism", "XCounterUC", true))

	const fresh = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	require.NoError(t, s.UpdateDeployAddress("optimism", fresh, true, "channel-42"))

	doc := reopen(t, s).Document()
	assert.True(t, doc.IsUniversal)
	assert.Equal(t, "XCounterUC", doc.Deploy["optimism"])
	assert.Equal(t, PortConfig{PortAddr: fresh, ChannelID: "channel-42", Timeout: 36000}, doc.SendUniversalPacket["optimism"])

	// custom routing stays as it was
	assert.Equal(t, "0x1111111111111111111111111111111111111111", doc.CreateChannel.SrcAddr)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", doc.SendPacket["optimism"].PortAddr)
}

func TestUpdateDeployAddressNewNetworkGetsDefaults(t *testing.T) {
	s := openStore(t, sampleDocument)
	require.NoError(t, s.UpdateDeployAddress("molten", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", false, ""))

	port := s.Document().SendPacket["molten"]
	assert.Equal(t, PlaceholderChannelID, port.ChannelID)
	assert.EqualValues(t, DefaultTimeout, port.Timeout)
}

func TestUpdateChannelIDs(t *testing.T) {
	s := openStore(t, sampleDocument)
	require.NoError(t, s.UpdateChannelIDs("optimism", "channel-100", "base", "channel-200"))

	doc := reopen(t, s).Document()
	assert.Equal(t, "channel-100", doc.SendPacket["optimism"].ChannelID)
	assert.Equal(t, "channel-200", doc.SendPacket["base"].ChannelID)

	err := s.UpdateChannelIDs("optimism", "channel-1", "molten", "channel-2")
	assert.ErrorIs(t, err, ErrUnknownNetwork)
}

func TestFlipClientModeFirstFlipSeedsPlaceholders(t *testing.T) {
	s := openStore(t, sampleDocument)
	before := s.Document().clone()

	require.NoError(t, s.FlipClientMode())
	doc := reopen(t, s).Document()

	assert.True(t, doc.ProofsEnabled)
	for network, port := range doc.SendPacket {
		assert.Equal(t, PlaceholderChannelID, port.ChannelID, network)
		assert.Equal(t, before.SendPacket[network].PortAddr, port.PortAddr, network)
	}
	for network, port := range doc.SendUniversalPacket {
		assert.Equal(t, PlaceholderChannelID, port.ChannelID, network)
	}
	require.NotNil(t, doc.Backup)
	assert.Equal(t, before.SendPacket, doc.Backup.SendPacket)
	assert.Equal(t, before.SendUniversalPacket, doc.Backup.SendUniversalPacket)
}

func TestFlipClientModeTwiceRestores(t *testing.T) {
	s := openStore(t, sampleDocument)
	before := s.Document().clone()

	require.NoError(t, s.FlipClientMode())
	require.NoError(t, s.FlipClientMode())
	doc := reopen(t, s).Document()

	assert.Equal(t, before.ProofsEnabled, doc.ProofsEnabled)
	assert.Equal(t, before.SendPacket, doc.SendPacket)
	assert.Equal(t, before.SendUniversalPacket, doc.SendUniversalPacket)
	assert.Equal(t, before.CreateChannel, doc.CreateChannel)
}

func TestFlipClientModeSwapsWithBackup(t *testing.T) {
	s := openStore(t, sampleDocument)
	require.NoError(t, s.FlipClientMode())

	// channels opened under the proof client
	require.NoError(t, s.UpdateChannelIDs("optimism", "channel-7", "base", "channel-8"))
	proofMode := s.Document().clone()

	require.NoError(t, s.FlipClientMode())
	require.NoError(t, s.FlipClientMode())

	doc := reopen(t, s).Document()
	assert.True(t, doc.ProofsEnabled)
	assert.Equal(t, proofMode.SendPacket, doc.SendPacket)
	assert.Equal(t, proofMode.Backup.SendPacket, doc.Backup.SendPacket)
}

func TestFlipClientModeRecomputesChannelEnds(t *testing.T) {
	s := openStore(t, sampleDocument)
	doc := s.Document()
	doc.Backup = &Backup{
		SendPacket: map[string]PortConfig{
			"optimism": {PortAddr: "0x5555555555555555555555555555555555555555", ChannelID: "channel-3", Timeout: 36000},
			"base":     {PortAddr: "0x6666666666666666666666666666666666666666", ChannelID: "channel-4", Timeout: 36000},
		},
	}

	require.NoError(t, s.FlipClientMode())
	got := s.Document().CreateChannel
	assert.Equal(t, "0x5555555555555555555555555555555555555555", got.SrcAddr)
	assert.Equal(t, "0x6666666666666666666666666666666666666666", got.DstAddr)
}

func TestBuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "config.json")
	s := New(path, Build("optimism", "base"), fsjson.NewReader(), fsjson.NewWriter())
	require.NoError(t, s.Save())

	doc := reopen(t, s).Document()
	assert.True(t, doc.IsUniversal)
	assert.False(t, doc.ProofsEnabled)
	assert.Equal(t, "1.0", doc.CreateChannel.Version)
	assert.Equal(t, map[string]string{"optimism": "", "base": ""}, doc.Deploy)
	for _, network := range []string{"optimism", "base"} {
		port, ok := doc.ActivePort(network)
		require.True(t, ok)
		assert.Equal(t, PortConfig{PortAddr: PlaceholderPortAddr, ChannelID: PlaceholderChannelID, Timeout: DefaultTimeout}, port)
	}
	assert.Nil(t, doc.Backup)
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	fallback := filepath.Join(dir, "config.json")
	configured := filepath.Join(dir, "config", "config.json")

	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, configured, ResolvePath(configured, fallback))

	require.NoError(t, os.WriteFile(fallback, []byte("{}"), 0o644))
	assert.Equal(t, fallback, ResolvePath(configured, fallback))

	t.Setenv("CONFIG_PATH", "/elsewhere/config.json")
	assert.Equal(t, "/elsewhere/config.json", ResolvePath(configured, fallback))
}

func TestCounterparty(t *testing.T) {
	doc := openStore(t, sampleDocument).Document()

	chain, address := doc.Counterparty("optimism")
	assert.Equal(t, "base", chain)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", address)

	chain, _ = doc.Counterparty("base")
	assert.Equal(t, "optimism", chain)
}

func TestSetUniversal(t *testing.T) {
	s := openStore(t, sampleDocument)
	require.NoError(t, s.SetUniversal(true))

	doc := reopen(t, s).Document()
	assert.True(t, doc.IsUniversal)
	assert.Equal(t, "XCounter", doc.Deploy["optimism"])
}
