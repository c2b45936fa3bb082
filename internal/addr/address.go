package addr

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidAddress = errors.New("invalid address")

// Parse validates a hex address and returns it in checksummed form.
func Parse(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// Checksum returns the EIP-55 form of s.
func Checksum(s string) (string, error) {
	a, err := Parse(s)
	if err != nil {
		return "", err
	}
	return a.Hex(), nil
}

// Equal reports whether a and b denote the same 20-byte address, ignoring
// case. Both inputs must be valid hex addresses.
func Equal(a, b string) (bool, error) {
	left, err := Parse(a)
	if err != nil {
		return false, err
	}
	right, err := Parse(b)
	if err != nil {
		return false, err
	}
	return left == right, nil
}

// ToPortID joins the port prefix of a network with the address without 0x.
func ToPortID(prefix string, address string) string {
	return prefix + strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")
}

// KeyFromHex parses a hex private key with or without 0x prefix.
func KeyFromHex(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return privateKey, nil
}

// FromPrivateKey derives an Ethereum address from a private key
func FromPrivateKey(privateKey *ecdsa.PrivateKey) (common.Address, error) {
	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to cast public key to ECDSA")
	}

	return crypto.PubkeyToAddress(*publicKeyECDSA), nil
}
