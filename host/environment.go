package host

import (
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/quillscript/quill/vm"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned by a Loader that does not provide the requested class.
var ErrNotFound = errors.New("class not found")

// Loader resolves classes that are not registered up front, e.g. plugins
// found on a search path.
type Loader interface {
	Load(name string) (*Class, error)
}

// ExternalProgram receives do()(program)(args) statements.
type ExternalProgram interface {
	Run(ctx context.Context, program string, args []vm.Value) (vm.Value, error)
}

// Receiver receives the packages built by give statements.
type Receiver interface {
	Receive(ctx context.Context, pkg *Package) error
}

type ReceiverFunc func(ctx context.Context, pkg *Package) error

func (f ReceiverFunc) Receive(ctx context.Context, pkg *Package) error {
	return f(ctx, pkg)
}

// Environment is the registry a machine is created with. It is safe to share
// one Environment between machines running concurrently: registered classes
// are read-only and classes produced by loaders are cached under a lock.
type Environment struct {
	Out      io.Writer
	External ExternalProgram
	Receiver Receiver

	mu      sync.Mutex
	classes map[string]*Class
	loaders []Loader
}

type EnvOption func(*Environment)

func WithOutput(w io.Writer) EnvOption {
	return func(e *Environment) {
		e.Out = w
	}
}

func WithLoader(l Loader) EnvOption {
	return func(e *Environment) {
		e.loaders = append(e.loaders, l)
	}
}

func WithExternal(x ExternalProgram) EnvOption {
	return func(e *Environment) {
		e.External = x
	}
}

func WithReceiver(r Receiver) EnvOption {
	return func(e *Environment) {
		e.Receiver = r
	}
}

func WithClass(c *Class) EnvOption {
	return func(e *Environment) {
		e.classes[c.Name] = c
	}
}

// NewEnvironment builds an environment holding the built-in classes plus
// whatever the options add.
func NewEnvironment(opts ...EnvOption) *Environment {
	e := &Environment{
		Out:     os.Stdout,
		classes: make(map[string]*Class),
	}
	for _, c := range Builtins() {
		e.classes[c.Name] = c
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Environment) Register(c *Class) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.classes[c.Name] = c
}

func (e *Environment) AddLoader(l Loader) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaders = append(e.loaders, l)
}

// Builtin returns a class that scripts may use without importing it.
func (e *Environment) Builtin(name string) (*Class, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.classes[name]
	if !ok || !c.Builtin {
		return nil, false
	}
	return c, true
}

// LookupClass returns a registered or previously loaded class without
// consulting loaders.
func (e *Environment) LookupClass(name string) (*Class, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.classes[name]
	return c, ok
}

// Import resolves name through the registered classes and then the loaders.
// A name nobody provides is reported as "library not found".
func (e *Environment) Import(name string) (*Class, error) {
	if c, ok := e.LookupClass(name); ok {
		return c, nil
	}
	e.mu.Lock()
	loaders := append([]Loader(nil), e.loaders...)
	e.mu.Unlock()
	for _, l := range loaders {
		c, err := l.Load(name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, vm.Wrap(err, 0, "loading library "+name)
		}
		log.Debug().Str("class", c.Name).Str("import", name).Msg("library loaded")
		e.Register(c)
		return c, nil
	}
	return nil, vm.Errorf(vm.UnresolvedReferenceError, 0, "library not found: %s", name)
}

// ClassNames lists all registered classes in sorted order.
func (e *Environment) ClassNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.classes))
	for k := range e.classes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
