package cas

import (
	"bytes"
	"fmt"

	"github.com/quillscript/quill/interp"
	"github.com/quillscript/quill/vm"
)

func recomposeStore(c directStore, hash Hash) (*interp.Store, error) {
	ref, err := getDirect[*StoreRef](c, hash)
	if err != nil {
		return nil, fmt.Errorf("retrieving StoreRef: %w", err)
	}
	s := interp.NewStore()
	for _, v := range ref.Vars {
		entry, err := getDirect[*ValueEntry](c, v.Value)
		if err != nil {
			return nil, fmt.Errorf("retrieving variable %s: %w", v.Name, err)
		}
		val, err := vm.FromWire(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", v.Name, err)
		}
		s.StoreVar(v.Name, val)
		if v.Bound != "" {
			s.Bind(v.Name, vm.Type(v.Bound))
		}
	}
	return s, nil
}

func getDirect[T Hashable](c directStore, hash Hash) (T, error) {
	var zero T
	has, entryBytes, err := c.getValue(hash)
	if err != nil {
		return zero, err
	}
	if !has {
		return zero, fmt.Errorf("hash not found in CAS: %s", hash)
	}
	typedEntry := &TypedEntry{}
	if err := typedEntry.Deserialize(bytes.NewReader(entryBytes)); err != nil {
		return zero, fmt.Errorf("deserializing TypedEntry: %w", err)
	}
	instance, err := createInstance(typedEntry.TypeTag)
	if err != nil {
		return zero, fmt.Errorf("creating instance: %w", err)
	}
	if err := instance.Deserialize(bytes.NewReader(typedEntry.Data)); err != nil {
		return zero, fmt.Errorf("deserializing: %w", err)
	}
	result, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("type mismatch: expected %T, got %T", zero, instance)
	}
	return result, nil
}
