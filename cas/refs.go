package cas

import (
	"io"

	"github.com/quillscript/quill/vm"
	"github.com/shamaton/msgpack/v2"
)

// StoreRef is the CAS representation of interp.Store. Variables are sorted
// by name and their values are stored as separate ValueEntry items.
type StoreRef struct {
	Vars []VarRef
}

type VarRef struct {
	Name  string
	Bound string
	Value Hash
}

func (s *StoreRef) Serialize(w io.Writer) error {
	return msgpack.MarshalWrite(w, s)
}

func (s *StoreRef) Deserialize(r io.Reader) error {
	return msgpack.UnmarshalRead(r, s)
}

// ValueEntry holds one variable value.
type ValueEntry struct {
	Value vm.WireValue
}

func (v *ValueEntry) Serialize(w io.Writer) error {
	return msgpack.MarshalWrite(w, v)
}

func (v *ValueEntry) Deserialize(r io.Reader) error {
	return msgpack.UnmarshalRead(r, v)
}

// Blob is opaque data such as captured program output.
type Blob struct {
	Data []byte
}

func (b *Blob) Serialize(w io.Writer) error {
	return msgpack.MarshalWrite(w, b)
}

func (b *Blob) Deserialize(r io.Reader) error {
	return msgpack.UnmarshalRead(r, b)
}
