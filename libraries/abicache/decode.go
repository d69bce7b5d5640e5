package abicache

import (
	"bytes"
	"encoding"
	"errors"
	"fmt"
	"strings"

	goeosio "github.com/greymass/go-eosio/pkg/chain"

	"github.com/greymass/abicached/libraries/chain"
)

// maxTypeDepth bounds how deep a type may nest. Decoding cost is bounded by
// the data size once the type graph is known to be finite and shallow.
const maxTypeDepth = 32

var (
	ErrUnknownType   = errors.New("unknown type")
	ErrUnknownAction = errors.New("unknown action")
	ErrRecursiveType = errors.New("recursive type")
)

var builtinTypes = map[string]bool{
	"bool": true, "string": true, "bytes": true,
	"int8": true, "uint8": true, "int16": true, "uint16": true,
	"int32": true, "uint32": true, "int64": true, "uint64": true,
	"int128": true, "uint128": true, "varint32": true, "varuint32": true,
	"float32": true, "float64": true, "float128": true,
	"time_point": true, "time_point_sec": true, "block_timestamp_type": true,
	"name": true, "symbol": true, "symbol_code": true,
	"asset": true, "extended_asset": true,
	"checksum160": true, "checksum256": true, "checksum512": true,
	"public_key": true, "signature": true,
}

// DecodeAction unpacks action data using the struct bound to name. On the
// eosio ABI the setabi payload is returned with its abi field decoded into a
// nested *ABI.
func (a *ABI) DecodeAction(name chain.Name, data []byte) (interface{}, error) {
	act := a.GetAction(goeosio.Name(name))
	if act == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	v, err := a.decode(act.Type, data)
	if err != nil {
		return nil, err
	}
	if a.system && name == chain.SetabiAction {
		if v, err = nestSetabi(v); err != nil {
			return nil, err
		}
	}
	return plain(v), nil
}

// DecodeType unpacks data as typ. All of data must be consumed.
func (a *ABI) DecodeType(typ string, data []byte) (interface{}, error) {
	v, err := a.decode(typ, data)
	if err != nil {
		return nil, err
	}
	return plain(v), nil
}

func (a *ABI) decode(typ string, data []byte) (v interface{}, err error) {
	if err := a.checkType(typ); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("failed to decode %s: %v", typ, r)
		}
	}()

	reader := bytes.NewReader(data)
	v, err = a.Decode(reader, typ)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", typ, err)
	}
	if reader.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after %s", reader.Len(), typ)
	}
	return v, nil
}

// checkType verifies that every name reachable from typ resolves and that
// the graph is acyclic and shallow. Results are kept per root type.
func (a *ABI) checkType(typ string) error {
	if v, ok := a.types.Load(typ); ok {
		err, _ := v.(error)
		return err
	}
	height, err := a.walkType(typ, map[string]bool{}, map[string]int{})
	if err == nil && height > maxTypeDepth {
		err = fmt.Errorf("type %s nests deeper than %d", typ, maxTypeDepth)
	}
	a.types.Store(typ, err)
	return err
}

func (a *ABI) walkType(typ string, path map[string]bool, heights map[string]int) (int, error) {
	base := strings.TrimSuffix(typ, "?")
	base = strings.TrimSuffix(base, "$")
	base = strings.TrimSuffix(base, "[]")
	if base == "" {
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	if h, ok := heights[base]; ok {
		return h, nil
	}
	if path[base] {
		return 0, fmt.Errorf("%w: %s", ErrRecursiveType, base)
	}
	if len(path) > maxTypeDepth {
		return 0, fmt.Errorf("type %s nests deeper than %d", base, maxTypeDepth)
	}
	path[base] = true
	defer delete(path, base)

	var children []string
	if s := a.GetStruct(base); s != nil {
		if s.Base != "" {
			if a.GetStruct(s.Base) == nil {
				return 0, fmt.Errorf("%w: base %s of %s", ErrUnknownType, s.Base, base)
			}
			children = append(children, s.Base)
		}
		for _, f := range s.Fields {
			children = append(children, f.Type)
		}
	} else if v := a.GetVariant(base); v != nil {
		children = v.Types
	} else if t := a.GetType(base); t != nil {
		children = []string{t.Type}
	} else if !builtinTypes[base] {
		return 0, fmt.Errorf("%w: %s", ErrUnknownType, base)
	}

	height := 0
	for _, child := range children {
		h, err := a.walkType(child, path, heights)
		if err != nil {
			return 0, err
		}
		height = max(height, h+1)
	}
	heights[base] = height
	return height, nil
}

// plain replaces go-eosio values with their text forms so decoded actions
// compare and marshal as ordinary JSON values.
func plain(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		for k, f := range v {
			v[k] = plain(f)
		}
		return v
	case []interface{}:
		for i, e := range v {
			v[i] = plain(e)
		}
		return v
	case goeosio.Signature:
		return v.String()
	case goeosio.ExtendedAsset:
		return map[string]interface{}{"quantity": v.Quantity.String(), "contract": v.Contract.String()}
	case encoding.TextMarshaler:
		text, err := v.MarshalText()
		if err != nil {
			return v
		}
		return string(text)
	}
	return v
}

// nestSetabi replaces the packed abi field of a setabi payload with the ABI
// it carries. A cleared ABI becomes nil.
func nestSetabi(v interface{}) (interface{}, error) {
	fields, ok := v.(map[string]interface{})
	if !ok {
		return v, nil
	}
	raw, ok := fields["abi"].(goeosio.Bytes)
	if !ok {
		return v, nil
	}
	if len(raw) == 0 {
		fields["abi"] = nil
		return fields, nil
	}
	nested, err := UnpackABI(raw)
	if err != nil {
		return nil, fmt.Errorf("setabi.abi: %w", err)
	}
	fields["abi"] = nested
	return fields, nil
}
