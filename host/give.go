package host

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/quillscript/quill/vm"
	"github.com/shamaton/msgpack/v2"
)

// Entry is one variable captured by a give statement.
type Entry struct {
	Name  string
	Type  vm.Type
	Value vm.Value
}

// Package is the structure a give statement hands to the embedding host.
type Package struct {
	ID      uuid.UUID
	Target  string
	Line    int
	Entries []Entry
}

func NewPackage(target string, line int) *Package {
	return &Package{
		ID:     uuid.New(),
		Target: target,
		Line:   line,
	}
}

func (p *Package) Add(name string, t vm.Type, v vm.Value) {
	p.Entries = append(p.Entries, Entry{Name: name, Type: t, Value: v})
}

// Get returns the value captured under name.
func (p *Package) Get(name string) (vm.Value, bool) {
	for _, e := range p.Entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return nil, false
}

func (p *Package) String() string {
	parts := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		parts[i] = fmt.Sprintf("%s=%s", e.Name, formatEntryValue(e.Value))
	}
	return fmt.Sprintf("%s{%s}", p.Target, strings.Join(parts, ", "))
}

func formatEntryValue(v vm.Value) string {
	if r, ok := v.(vm.RepeatedValue); ok && r.Len() > vm.MaxStringBytes {
		return r.String()
	}
	if vm.IsStringLike(v) {
		return fmt.Sprintf("%q", vm.Text(v))
	}
	return vm.Text(v)
}

type Encoding int

const (
	EncodingMsgpack Encoding = iota
	EncodingCBOR
)

func (e Encoding) String() string {
	switch e {
	case EncodingMsgpack:
		return "msgpack"
	case EncodingCBOR:
		return "cbor"
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}

// ParseEncoding accepts the names used in run configuration.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(s) {
	case "", "msgpack":
		return EncodingMsgpack, nil
	case "cbor":
		return EncodingCBOR, nil
	}
	return 0, fmt.Errorf("unknown give encoding %q", s)
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("host: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type wirePackage struct {
	ID      string
	Target  string
	Line    int
	Entries []wireEntry
}

type wireEntry struct {
	Name  string
	Type  string
	Value vm.WireValue
}

func (p *Package) wire() wirePackage {
	out := wirePackage{
		ID:      p.ID.String(),
		Target:  p.Target,
		Line:    p.Line,
		Entries: make([]wireEntry, len(p.Entries)),
	}
	for i, e := range p.Entries {
		out.Entries[i] = wireEntry{Name: e.Name, Type: string(e.Type), Value: vm.ToWire(e.Value)}
	}
	return out
}

// Encode serializes the package for delivery outside the process.
func (p *Package) Encode(enc Encoding) ([]byte, error) {
	w := p.wire()
	switch enc {
	case EncodingMsgpack:
		var buf bytes.Buffer
		if err := msgpack.MarshalWrite(&buf, w); err != nil {
			return nil, fmt.Errorf("encoding package: %w", err)
		}
		return buf.Bytes(), nil
	case EncodingCBOR:
		b, err := cborEncMode.Marshal(w)
		if err != nil {
			return nil, fmt.Errorf("encoding package: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown encoding %s", enc)
}

// DecodePackage is the inverse of Encode.
func DecodePackage(data []byte, enc Encoding) (*Package, error) {
	var w wirePackage
	switch enc {
	case EncodingMsgpack:
		if err := msgpack.UnmarshalRead(bytes.NewReader(data), &w); err != nil {
			return nil, fmt.Errorf("decoding package: %w", err)
		}
	case EncodingCBOR:
		if err := cbor.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decoding package: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown encoding %s", enc)
	}
	id, err := uuid.Parse(w.ID)
	if err != nil {
		return nil, fmt.Errorf("decoding package id: %w", err)
	}
	p := &Package{ID: id, Target: w.Target, Line: w.Line}
	for _, e := range w.Entries {
		v, err := vm.FromWire(e.Value)
		if err != nil {
			return nil, fmt.Errorf("decoding entry %s: %w", e.Name, err)
		}
		p.Add(e.Name, vm.Type(e.Type), v)
	}
	return p, nil
}
