package gateway

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/compose-network/ibc-app-orchestrator/internal/addr"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CoerceArgs converts textual constructor arguments to the Go values the
// ABI encoder expects for each declared input.
func CoerceArgs(inputs abi.Arguments, values []any) ([]any, error) {
	if len(inputs) != len(values) {
		return nil, fmt.Errorf("expected %d constructor arguments, got %d", len(inputs), len(values))
	}

	out := make([]any, len(values))
	for i, input := range inputs {
		v, err := coerce(input.Type, values[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s %s): %w", i, input.Type.String(), input.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

func coerce(t abi.Type, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}

	switch t.T {
	case abi.AddressTy:
		return addr.Parse(s)
	case abi.BoolTy:
		return strconv.ParseBool(s)
	case abi.StringTy:
		return s, nil
	case abi.BytesTy:
		return hexutil.Decode(s)
	case abi.FixedBytesTy:
		raw, err := hexutil.Decode(s)
		if err != nil {
			return nil, err
		}
		if t.Size != 32 || len(raw) != 32 {
			return nil, fmt.Errorf("only bytes32 values are supported")
		}
		var b [32]byte
		copy(b[:], raw)
		return b, nil
	case abi.UintTy:
		return coerceUint(t.Size, s)
	case abi.IntTy:
		return coerceInt(t.Size, s)
	default:
		return nil, fmt.Errorf("unsupported type")
	}
}

func coerceUint(size int, s string) (any, error) {
	if size > 64 {
		n, ok := new(big.Int).SetString(strings.TrimSpace(s), 0)
		if !ok || n.Sign() < 0 {
			return nil, fmt.Errorf("invalid unsigned integer %q", s)
		}
		return n, nil
	}

	n, err := strconv.ParseUint(strings.TrimSpace(s), 0, size)
	if err != nil {
		return nil, err
	}
	switch size {
	case 8:
		return uint8(n), nil
	case 16:
		return uint16(n), nil
	case 32:
		return uint32(n), nil
	case 64:
		return n, nil
	default:
		return new(big.Int).SetUint64(n), nil
	}
}

func coerceInt(size int, s string) (any, error) {
	if size > 64 {
		n, ok := new(big.Int).SetString(strings.TrimSpace(s), 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		return n, nil
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 0, size)
	if err != nil {
		return nil, err
	}
	switch size {
	case 8:
		return int8(n), nil
	case 16:
		return int16(n), nil
	case 32:
		return int32(n), nil
	case 64:
		return n, nil
	default:
		return big.NewInt(n), nil
	}
}
