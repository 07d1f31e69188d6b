package host

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/quillscript/quill/vm"
)

// Invoker implements one host-exposed method signature.
type Invoker func(call *Call, args []vm.Value) (vm.Value, error)

// Call carries the context of a single host invocation.
type Call struct {
	Context context.Context
	Env     *Environment
	Class   *Class
	Method  string
	Line    int
	Out     io.Writer
}

// Signature is one invokable overload. For a variadic signature the last
// entry of Params is the element type of the repeated parameter.
type Signature struct {
	Name     string
	Params   []vm.Type
	Variadic bool
	Fn       Invoker
}

func (s *Signature) String() string {
	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		parts[i] = string(p)
	}
	if s.Variadic && len(parts) > 0 {
		parts[len(parts)-1] += "..."
	}
	return fmt.Sprintf("%s(%s)", s.Name, strings.Join(parts, ", "))
}

// Class is a statically built table of methods and named slots exposed to
// scripts. A Class is not modified after it is registered; field writes made
// by a script live in the executing machine.
type Class struct {
	Name    string
	Builtin bool
	Methods map[string][]*Signature
	Fields  map[string]vm.Value
}

func NewClass(name string) *Class {
	return &Class{
		Name:    name,
		Methods: make(map[string][]*Signature),
		Fields:  make(map[string]vm.Value),
	}
}

// Def adds a fixed-arity overload.
func (c *Class) Def(name string, params []vm.Type, fn Invoker) *Class {
	c.Methods[name] = append(c.Methods[name], &Signature{Name: name, Params: params, Fn: fn})
	return c
}

// DefVariadic adds an overload whose last parameter repeats.
func (c *Class) DefVariadic(name string, params []vm.Type, fn Invoker) *Class {
	c.Methods[name] = append(c.Methods[name], &Signature{Name: name, Params: params, Variadic: true, Fn: fn})
	return c
}

func (c *Class) Field(name string, v vm.Value) *Class {
	c.Fields[name] = v
	return c
}

// SignaturesFor returns the overloads registered under method, in
// registration order.
func (c *Class) SignaturesFor(method string) []*Signature {
	return c.Methods[method]
}

// MethodNames lists the class's methods in sorted order.
func (c *Class) MethodNames() []string {
	out := make([]string, 0, len(c.Methods))
	for k := range c.Methods {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Params is shorthand for building parameter lists.
func Params(ts ...vm.Type) []vm.Type {
	return ts
}
