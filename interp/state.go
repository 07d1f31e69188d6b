package interp

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/quillscript/quill/vm"
	"github.com/shamaton/msgpack/v2"
)

func NewStore() *Store {
	return &Store{
		Variables: make(map[string]vm.Value),
		Types:     make(map[string]vm.Type),
	}
}

func (s *Store) Clone() *Store {
	return &Store{
		Variables: maps.Clone(s.Variables),
		Types:     maps.Clone(s.Types),
	}
}

func (s *Store) Reset() {
	clear(s.Variables)
	clear(s.Types)
}

func (s *Store) Has(key string) bool {
	_, ok := s.Variables[key]
	return ok
}

func (s *Store) Get(key string) (vm.Value, bool) {
	v, ok := s.Variables[key]
	return v, ok
}

func (s *Store) StoreVar(key string, value vm.Value) {
	if s.Variables == nil {
		s.Variables = make(map[string]vm.Value)
	}
	s.Variables[key] = value
}

// TypeOf returns the static type bound to key, or vm.TypeNone.
func (s *Store) TypeOf(key string) vm.Type {
	return s.Types[key]
}

func (s *Store) Bind(key string, t vm.Type) {
	if s.Types == nil {
		s.Types = make(map[string]vm.Type)
	}
	s.Types[key] = t
}

func (s *Store) Unbind(key string) {
	delete(s.Types, key)
}

// Names lists the variables in sorted order.
func (s *Store) Names() []string {
	return slices.Sorted(maps.Keys(s.Variables))
}

type snapshotEntry struct {
	Name  string
	Bound string
	Value vm.WireValue
}

func (s *Store) entries() []snapshotEntry {
	out := make([]snapshotEntry, 0, len(s.Variables))
	for _, k := range s.Names() {
		out = append(out, snapshotEntry{
			Name:  k,
			Bound: string(s.Types[k]),
			Value: vm.ToWire(s.Variables[k]),
		})
	}
	return out
}

// Serialize writes the store contents, sorted by name, with msgpack. Two
// stores holding the same variables serialize to the same bytes.
func (s *Store) Serialize(w io.Writer) error {
	return msgpack.MarshalWrite(w, s.entries())
}

// Deserialize replaces the store contents with a snapshot written by Serialize.
func (s *Store) Deserialize(r io.Reader) error {
	var entries []snapshotEntry
	if err := msgpack.UnmarshalRead(r, &entries); err != nil {
		return fmt.Errorf("decoding store snapshot: %w", err)
	}
	vars := make(map[string]vm.Value, len(entries))
	types := make(map[string]vm.Type)
	for _, e := range entries {
		v, err := vm.FromWire(e.Value)
		if err != nil {
			return fmt.Errorf("variable %s: %w", e.Name, err)
		}
		vars[e.Name] = v
		if e.Bound != "" {
			types[e.Name] = vm.Type(e.Bound)
		}
	}
	s.Variables, s.Types = vars, types
	return nil
}

func (s *Store) Snapshot() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PrettyPrint renders the store one variable per line.
func (s *Store) PrettyPrint() string {
	if len(s.Variables) == 0 {
		return "  (no variables)\n"
	}
	var b strings.Builder
	for _, k := range s.Names() {
		if t := s.Types[k]; t != vm.TypeNone {
			fmt.Fprintf(&b, "  (%s) %s = %s\n", t, k, FormatValue(s.Variables[k]))
			continue
		}
		fmt.Fprintf(&b, "  %s = %s\n", k, FormatValue(s.Variables[k]))
	}
	return b.String()
}
