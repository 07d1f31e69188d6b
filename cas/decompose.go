package cas

import (
	"bytes"
	"fmt"

	"github.com/dgryski/go-farm"
	"github.com/quillscript/quill/interp"
	"github.com/quillscript/quill/vm"
)

// decomposeStore stores every variable value on its own and returns the
// hash of the StoreRef tying them together. The caller holds c.mu.
func decomposeStore(c *MemoryCAS, s *interp.Store) (Hash, error) {
	if s == nil {
		return 0, fmt.Errorf("cannot decompose nil Store")
	}
	ref := &StoreRef{Vars: make([]VarRef, 0, len(s.Variables))}
	for _, name := range s.Names() {
		h, err := putDirect(c, &ValueEntry{Value: vm.ToWire(s.Variables[name])})
		if err != nil {
			return 0, fmt.Errorf("decomposing variable %s: %w", name, err)
		}
		ref.Vars = append(ref.Vars, VarRef{Name: name, Bound: string(s.TypeOf(name)), Value: h})
	}
	return putDirect(c, ref)
}

// putDirect stores item under the hash of its serialized form. The caller
// holds c.mu.
func putDirect(c *MemoryCAS, item Hashable) (Hash, error) {
	var buf bytes.Buffer
	if err := item.Serialize(&buf); err != nil {
		return 0, fmt.Errorf("serializing item: %w", err)
	}
	data := buf.Bytes()
	h := Hash(farm.Hash64(data))
	if _, ok := c.data[h]; ok {
		return h, nil
	}

	entry := &TypedEntry{
		TypeTag: getTypeTag(item),
		Data:    data,
	}
	var entryBuf bytes.Buffer
	if err := entry.Serialize(&entryBuf); err != nil {
		return 0, fmt.Errorf("serializing typed entry: %w", err)
	}
	c.data[h] = entryBuf.Bytes()
	return h, nil
}
