package chain

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/greymass/abicached/libraries/encoding"
)

const StatusExecuted = "executed"

// Uint64 decodes from either a JSON number or a decimal string; nodeos emits
// 64-bit counters both ways depending on version.
type Uint64 uint64

func (u Uint64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(u), 10)), nil
}

func (u *Uint64) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := encoding.JSONiter.Unmarshal(data, &v); err != nil {
		return err
	}
	n, ok := encoding.MaybeGetUint64(v)
	if !ok {
		return fmt.Errorf("invalid uint64 %s", data)
	}
	*u = Uint64(n)
	return nil
}

// Bytes is binary data carried as a hex string in JSON.
type Bytes []byte

func (b Bytes) MarshalJSON() ([]byte, error) {
	return encoding.JSONiter.Marshal(hex.EncodeToString(b))
}

func (b *Bytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := encoding.JSONiter.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("bytes must be a hex string: %w", err)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("bytes must be a hex string: %w", err)
	}
	*b = raw
	return nil
}

type PermissionLevel struct {
	Actor      Name `json:"actor"`
	Permission Name `json:"permission"`
}

type Action struct {
	Account       Name              `json:"account"`
	Name          Name              `json:"name"`
	Authorization []PermissionLevel `json:"authorization,omitempty"`
	Data          Bytes             `json:"data"`
}

type ActionReceipt struct {
	Receiver       Name   `json:"receiver"`
	GlobalSequence Uint64 `json:"global_sequence"`
	RecvSequence   Uint64 `json:"recv_sequence,omitempty"`
	CodeSequence   uint32 `json:"code_sequence,omitempty"`
	AbiSequence    uint32 `json:"abi_sequence"`
}

type ActionTrace struct {
	Receipt      ActionReceipt `json:"receipt"`
	Act          Action        `json:"act"`
	InlineTraces []ActionTrace `json:"inline_traces,omitempty"`
}

type TransactionReceipt struct {
	Status string `json:"status"`
}

type TransactionTrace struct {
	ID           string             `json:"id"`
	BlockNum     uint32             `json:"block_num"`
	Receipt      TransactionReceipt `json:"receipt"`
	ActionTraces []ActionTrace      `json:"action_traces"`
}

func (t *TransactionTrace) Executed() bool {
	return t.Receipt.Status == StatusExecuted
}

// IsSetabi reports whether the action is eosio::setabi delivered to eosio.
func (at *ActionTrace) IsSetabi() bool {
	return at.Receipt.Receiver == SystemAccount &&
		at.Act.Account == SystemAccount &&
		at.Act.Name == SetabiAction
}

// CountActions walks the tree without recursion.
func (t *TransactionTrace) CountActions() int {
	n := 0
	stack := make([]*ActionTrace, 0, len(t.ActionTraces))
	for i := range t.ActionTraces {
		stack = append(stack, &t.ActionTraces[i])
	}
	for len(stack) > 0 {
		at := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n++
		for i := range at.InlineTraces {
			stack = append(stack, &at.InlineTraces[i])
		}
	}
	return n
}
