package abicache

import (
	"bytes"
	"fmt"
	"sync"

	goeosio "github.com/greymass/go-eosio/pkg/chain"

	"github.com/greymass/abicached/libraries/chain"
	"github.com/greymass/abicached/libraries/encoding"
)

type ActionResult struct {
	Name       goeosio.Name `json:"name"`
	ResultType string       `json:"result_type"`
}

// ABI is a contract interface definition. Treat it as read-only once it has
// been handed to a Cache.
type ABI struct {
	goeosio.Abi
	ActionResults []ActionResult `json:"action_results,omitempty"`

	raw    []byte
	system bool
	types  sync.Map
}

// ParseABIJSON parses the standard JSON form of an ABI.
func ParseABIJSON(data []byte) (*ABI, error) {
	a := &ABI{}
	if err := encoding.JSONiter.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("failed to parse ABI JSON: %w", err)
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// UnpackABI decodes a packed abi_def. The action_results section of 1.2 ABIs
// is read when present; anything after it is an error.
func UnpackABI(raw []byte) (a *ABI, err error) {
	defer func() {
		if r := recover(); r != nil {
			a, err = nil, fmt.Errorf("failed to decode binary ABI: %v", r)
		}
	}()

	reader := bytes.NewReader(raw)
	dec := goeosio.NewDecoder(reader)

	a = &ABI{raw: raw}
	if err := dec.Decode(&a.Abi); err != nil {
		return nil, fmt.Errorf("failed to decode binary ABI: %w", err)
	}
	if reader.Len() > 0 {
		if err := dec.Decode(&a.ActionResults); err != nil {
			return nil, fmt.Errorf("failed to decode action_results: %w", err)
		}
	}
	if reader.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after abi_def", reader.Len())
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// MarshalBinary packs the ABI as an abi_def. action_results is written only
// when present so older readers accept the output.
func (a *ABI) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	enc := goeosio.NewEncoder(&buf)
	if err := enc.Encode(a.Abi); err != nil {
		return nil, err
	}
	if len(a.ActionResults) > 0 {
		if err := enc.Encode(a.ActionResults); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Raw returns the packed abi_def the ABI was decoded from, if any.
func (a *ABI) Raw() []byte {
	return a.raw
}

func (a *ABI) validate() error {
	seen := make(map[string]bool, len(a.Structs))
	for _, s := range a.Structs {
		if seen[s.Name] {
			return fmt.Errorf("duplicate struct %q", s.Name)
		}
		seen[s.Name] = true
	}
	for _, t := range a.Types {
		if t.NewTypeName == "" {
			return fmt.Errorf("typedef with empty name for %q", t.Type)
		}
	}
	return nil
}

// ActionType returns the struct type bound to an action name.
func (a *ABI) ActionType(name chain.Name) (string, bool) {
	act := a.GetAction(goeosio.Name(name))
	if act == nil {
		return "", false
	}
	return act.Type, true
}

func (a *ABI) Struct(name string) (*goeosio.AbiStruct, bool) {
	s := a.GetStruct(name)
	return s, s != nil
}
