package keva

import (
	"fmt"

	"github.com/kevanet/kevachain/pkg/types"
)

// ParseScript decodes an output script's Data into an Operation, if its
// Type is one of the keva script types (pkg/types.ScriptTypeKeva*).
// Unlike a bytecode VM, this repo's scripts are already parsed into a
// {Type, Data} pair by the time they reach consensus; Data carries the
// keva op's length-prefixed arguments. Returns (nil, false) for any
// other script type — "not a keva op" is not an error (§6).
func ParseScript(s types.Script) (*Operation, bool) {
	switch s.Type {
	case types.ScriptTypeKevaNamespace:
		ns, rest, err := readBytesLP(s.Data)
		if err != nil {
			return nil, false
		}
		name, _, err := readBytesLP(s.Data[rest:])
		if err != nil {
			return nil, false
		}
		return &Operation{Op: OpNamespaceRegister, Namespace: ns, DisplayName: name}, true

	case types.ScriptTypeKevaPut:
		ns, n1, err := readBytesLP(s.Data)
		if err != nil {
			return nil, false
		}
		rest := s.Data[n1:]
		key, n2, err := readBytesLP(rest)
		if err != nil {
			return nil, false
		}
		rest = rest[n2:]
		val, _, err := readBytesLP(rest)
		if err != nil {
			return nil, false
		}
		return &Operation{Op: OpPut, Namespace: ns, Key: key, Value: val}, true

	case types.ScriptTypeKevaDelete:
		ns, n1, err := readBytesLP(s.Data)
		if err != nil {
			return nil, false
		}
		rest := s.Data[n1:]
		key, _, err := readBytesLP(rest)
		if err != nil {
			return nil, false
		}
		return &Operation{Op: OpDelete, Namespace: ns, Key: key}, true

	default:
		return nil, false
	}
}

// BuildNamespaceScript encodes a NamespaceRegister op as output script data.
func BuildNamespaceScript(ns NamespaceId, displayName Value) types.Script {
	var data []byte
	data = putBytesLP(data, ns)
	data = putBytesLP(data, displayName)
	return types.Script{Type: types.ScriptTypeKevaNamespace, Data: data}
}

// BuildPutScript encodes a Put op as output script data.
func BuildPutScript(ns NamespaceId, key Key, value Value) types.Script {
	var data []byte
	data = putBytesLP(data, ns)
	data = putBytesLP(data, key)
	data = putBytesLP(data, value)
	return types.Script{Type: types.ScriptTypeKevaPut, Data: data}
}

// BuildDeleteScript encodes a Delete op as output script data.
func BuildDeleteScript(ns NamespaceId, key Key) types.Script {
	var data []byte
	data = putBytesLP(data, ns)
	data = putBytesLP(data, key)
	return types.Script{Type: types.ScriptTypeKevaDelete, Data: data}
}

// IsKevaScriptType reports whether t is one of the keva script types.
func IsKevaScriptType(t types.ScriptType) bool {
	switch t {
	case types.ScriptTypeKevaNamespace, types.ScriptTypeKevaPut, types.ScriptTypeKevaDelete:
		return true
	default:
		return false
	}
}

func kevaOpString(s types.Script) string {
	if op, ok := ParseScript(s); ok {
		return op.Op.String()
	}
	return fmt.Sprintf("non-keva(%s)", s.Type)
}
