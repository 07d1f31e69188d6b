// Package cas is a content-addressed store for run artifacts. Variable
// stores are split into one entry per distinct value so that repeated runs
// share storage, and two runs that end in the same state get the same hash.
package cas

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/quillscript/quill/interp"
)

type CAS interface {
	Put(item Hashable) (Hash, error)
	Has(hash Hash) bool
}

type Serde interface {
	Serialize(w io.Writer) error
	Deserialize(r io.Reader) error
}

type Hashable interface {
	Serde
}

type directStore interface {
	getValue(h Hash) (bool, []byte, error)
}

type Hash uint64

func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

func Retrieve[T Hashable](c CAS, hash Hash) (T, error) {
	var t T
	v, ok := c.(directStore)
	if !ok {
		return t, errors.New("CAS does not support direct retrieval")
	}

	// Stores are kept decomposed and have to be put back together.
	if reflect.TypeOf(t) == reflect.TypeOf((*interp.Store)(nil)) {
		s, err := recomposeStore(v, hash)
		if err != nil {
			return t, fmt.Errorf("recomposing Store: %w", err)
		}
		return any(s).(T), nil
	}

	return getDirect[T](v, hash)
}
