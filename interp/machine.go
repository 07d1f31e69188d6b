package interp

import (
	"context"

	"github.com/quillscript/quill/host"
	"github.com/quillscript/quill/vm"
	"github.com/rs/zerolog/log"
)

// Machine executes one compiled program at a time. It owns its store, loop
// stack and class field overlays; the Environment it is created with may be
// shared with other machines.
type Machine struct {
	Env    *host.Environment
	Store  *Store
	Policy TypePolicy
	// OnBackEdge, when set, runs every time a loop jumps back to its body.
	// Returning an error stops the program.
	OnBackEdge func(pc int) error

	ctx      context.Context
	prog     *vm.Program
	pc       int
	next     int
	loops    []LoopContext
	imported map[string]*host.Class
	fields   map[string]map[string]vm.Value
	last     vm.Value
	given    []*host.Package
	warnings []string
}

type Option func(*Machine)

func WithTypePolicy(p TypePolicy) Option {
	return func(m *Machine) {
		m.Policy = p
	}
}

func WithBackEdgeHook(fn func(pc int) error) Option {
	return func(m *Machine) {
		m.OnBackEdge = fn
	}
}

func New(env *host.Environment, opts ...Option) *Machine {
	if env == nil {
		env = host.NewEnvironment()
	}
	m := &Machine{
		Env:   env,
		Store: NewStore(),
		ctx:   context.Background(),
	}
	for _, o := range opts {
		o(m)
	}
	m.Reset()
	return m
}

// Reset clears everything a previous run left behind. The loaded program is
// kept and execution restarts from its first instruction.
func (m *Machine) Reset() {
	m.Store.Reset()
	m.pc = 0
	m.loops = nil
	m.imported = make(map[string]*host.Class)
	m.fields = make(map[string]map[string]vm.Value)
	m.last = vm.Null
	m.given = nil
	m.warnings = nil
}

// Load resets the machine and prepares it to run prog.
func (m *Machine) Load(prog *vm.Program) {
	m.Reset()
	m.prog = prog
}

func (m *Machine) Program() *vm.Program { return m.prog }
func (m *Machine) PC() int              { return m.pc }
func (m *Machine) Loops() []LoopContext { return m.loops }

// LastResult is the value produced by the most recent call statement.
func (m *Machine) LastResult() vm.Value { return m.last }

// Given returns the packages built by give statements, in order.
func (m *Machine) Given() []*host.Package { return m.given }

func (m *Machine) Warnings() []string { return m.warnings }

func (m *Machine) warn(line int, msg string) {
	log.Warn().Int("line", line).Msg(msg)
	m.warnings = append(m.warnings, msg)
}

// Lookup reads a variable for the evaluator.
func (m *Machine) Lookup(name string) (vm.Value, error) {
	v, ok := m.Store.Get(name)
	if !ok {
		return nil, vm.Errorf(vm.UnresolvedReferenceError, 0, "unknown variable %q", name)
	}
	if _, uninit := v.(vm.UninitValue); uninit {
		return nil, vm.Errorf(vm.UnresolvedReferenceError, 0, "use of uninitialized variable %q", name)
	}
	return v, nil
}

// classFor returns a class the script may use: a built-in one or one named
// by an earlier import.
func (m *Machine) classFor(name string, line int) (*host.Class, error) {
	if c, ok := m.imported[name]; ok {
		return c, nil
	}
	if c, ok := m.Env.Builtin(name); ok {
		return c, nil
	}
	if _, ok := m.Env.LookupClass(name); ok {
		return nil, vm.Errorf(vm.UnresolvedReferenceError, line, "class %s is not imported", name)
	}
	return nil, vm.Errorf(vm.UnresolvedReferenceError, line, "unknown class %s", name)
}

// CallHost resolves and invokes a host method.
func (m *Machine) CallHost(class, method string, args []vm.Value, line int) (vm.Value, error) {
	c, err := m.classFor(class, line)
	if err != nil {
		return nil, err
	}
	resolve := host.Resolve
	if m.Policy == WideningTypes {
		resolve = host.ResolveWidening
	}
	sig, converted, err := resolve(c, method, args)
	if err != nil {
		return nil, vm.Wrap(err, line, "")
	}
	call := &host.Call{
		Context: m.ctx,
		Env:     m.Env,
		Class:   c,
		Method:  method,
		Line:    line,
		Out:     m.Env.Out,
	}
	return host.Invoke(call, sig, converted)
}

// Field reads a class field, preferring values written by this machine.
func (m *Machine) Field(class, name string, line int) (vm.Value, error) {
	c, err := m.classFor(class, line)
	if err != nil {
		return nil, err
	}
	if v, ok := m.fields[c.Name][name]; ok {
		return v, nil
	}
	if v, ok := c.Fields[name]; ok {
		return v, nil
	}
	return nil, vm.Errorf(vm.UnresolvedReferenceError, line, "unknown field %s.%s", c.Name, name)
}

func (m *Machine) hasField(c *host.Class, name string) bool {
	if _, ok := m.fields[c.Name][name]; ok {
		return true
	}
	_, ok := c.Fields[name]
	return ok
}

func (m *Machine) setField(c *host.Class, name string, v vm.Value) {
	if m.fields[c.Name] == nil {
		m.fields[c.Name] = make(map[string]vm.Value)
	}
	m.fields[c.Name][name] = v
}

func (m *Machine) evaluate(expr string, line int) (vm.Value, error) {
	return Evaluate(expr, line, m)
}
