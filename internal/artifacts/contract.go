package artifacts

import "github.com/ethereum/go-ethereum/accounts/abi"

// Contract is a compiled contract. Bytecode is empty for interface-only
// entries that can be called but not deployed.
type Contract struct {
	Name     string
	ABI      abi.ABI
	RawABI   string
	Bytecode []byte
}

const (
	NameDispatcher              = "Dispatcher"
	NameUniversalChannelHandler = "UniversalChannelHandler"
	// NameIbcApp is the calling surface shared by all deployable apps.
	NameIbcApp = "IbcApp"
)

func (c Contract) Deployable() bool {
	return len(c.Bytecode) > 0
}
