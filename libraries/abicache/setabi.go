package abicache

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/greymass/go-eosio/pkg/abi"
	goeosio "github.com/greymass/go-eosio/pkg/chain"

	"github.com/greymass/abicached/libraries/chain"
)

var ErrEmptyABI = errors.New("empty ABI")

func IsSetabi(contract, action chain.Name) bool {
	return contract == chain.SystemAccount && action == chain.SetabiAction
}

// ParseSetabi splits setabi action data into the target account and the
// packed abi_def. A zero length ABI (clearing the contract) returns nil raw.
func ParseSetabi(actionData []byte) (account chain.Name, raw []byte, err error) {
	if len(actionData) < 8 {
		return 0, nil, fmt.Errorf("action data too short")
	}
	account = chain.Name(binary.LittleEndian.Uint64(actionData[0:8]))

	offset := 8
	if offset >= len(actionData) {
		return 0, nil, fmt.Errorf("missing ABI length")
	}

	abiLen, bytesRead := readVarUint32(actionData[offset:])
	if bytesRead == 0 {
		return 0, nil, fmt.Errorf("could not read ABI length")
	}
	offset += bytesRead

	if uint64(offset)+uint64(abiLen) > uint64(len(actionData)) {
		return 0, nil, fmt.Errorf("ABI length %d exceeds data", abiLen)
	}

	if abiLen == 0 {
		return account, nil, nil
	}
	return account, actionData[offset : offset+int(abiLen)], nil
}

func readVarUint32(data []byte) (uint32, int) {
	var result uint32
	var shift uint
	bytesRead := 0

	for {
		if bytesRead >= len(data) || shift > 28 {
			return 0, 0
		}

		b := data[bytesRead]
		bytesRead++

		result |= uint32(b&0x7f) << shift
		shift += 7

		if (b & 0x80) == 0 {
			break
		}
	}

	return result, bytesRead
}

// Decode builds an ABI from a packed abi_def set on account. On the eosio
// ABI, DecodeAction of setabi returns the nested abi_def as an *ABI instead of
// opaque bytes.
func Decode(raw []byte, account chain.Name) (*ABI, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyABI
	}
	a, err := UnpackABI(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack ABI for %s: %w", account, err)
	}
	a.system = account == chain.SystemAccount
	return a, nil
}

// CanonicalJSON renders a packed abi_def through go-eosio, giving the JSON
// form other EOSIO tooling produces for the same bytes.
func CanonicalJSON(raw []byte) ([]byte, error) {
	decoder := abi.NewDecoder(bytes.NewReader(raw), func(dec *abi.Decoder, v interface{}) (done bool, err error) {
		return false, nil
	})

	var abiStruct goeosio.Abi
	if err := decoder.Decode(&abiStruct); err != nil {
		return nil, fmt.Errorf("failed to decode binary ABI: %w", err)
	}
	out, err := json.Marshal(abiStruct)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ABI to JSON: %w", err)
	}
	return out, nil
}
