package host

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quillscript/quill/vm"
	"github.com/rs/zerolog/log"
	"go.starlark.net/starlark"
)

// StarlarkLoader provides host classes written in Starlark. Importing Foo
// loads Foo.star from the first search path containing it. Every public
// top-level function becomes a method and every public top-level scalar
// becomes a field.
//
// A module may declare parameter types with a dict global:
//
//	signatures = {"add": ["int", "int"], "join": ["string..."]}
//
// A trailing "..." marks the last parameter as variadic. Functions without
// an entry take object parameters matching their Starlark arity.
type StarlarkLoader struct {
	Paths []string
}

const signaturesGlobal = "signatures"

func (l *StarlarkLoader) Load(name string) (*Class, error) {
	if !vm.IsIdentifier(name) {
		return nil, ErrNotFound
	}
	for _, dir := range l.Paths {
		path := filepath.Join(dir, name+".star")
		src, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return LoadStarlarkClass(name, path, src)
	}
	return nil, ErrNotFound
}

// LoadStarlarkClass executes src and builds a class from its globals.
func LoadStarlarkClass(name, filename string, src []byte) (*Class, error) {
	thread := &starlark.Thread{Name: "load " + name}
	globals, err := starlark.ExecFile(thread, filename, src, nil)
	if err != nil {
		return nil, fmt.Errorf("executing %s: %w", filename, err)
	}
	globals.Freeze()

	declared, err := declaredSignatures(globals)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	c := NewClass(name)
	names := make([]string, 0, len(globals))
	for k := range globals {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if strings.HasPrefix(k, "_") || k == signaturesGlobal {
			continue
		}
		switch g := globals[k].(type) {
		case *starlark.Function:
			params, variadic := declared[k], false
			if params != nil {
				variadic = isVariadicDecl(params)
			} else {
				params, variadic = inferParams(g)
			}
			types, err := parseParamTypes(params)
			if err != nil {
				return nil, fmt.Errorf("%s: signature of %s: %w", filename, k, err)
			}
			sig := &Signature{Name: k, Params: types, Variadic: variadic, Fn: starlarkInvoker(g)}
			c.Methods[k] = append(c.Methods[k], sig)
		default:
			v, err := fromStarlark(g)
			if err != nil {
				log.Debug().Str("class", name).Str("global", k).Msg("skipping unsupported global")
				continue
			}
			c.Field(k, v)
		}
	}
	log.Debug().Str("class", name).Strs("methods", c.MethodNames()).Msg("starlark class built")
	return c, nil
}

func declaredSignatures(globals starlark.StringDict) (map[string][]string, error) {
	raw, ok := globals[signaturesGlobal]
	if !ok {
		return nil, nil
	}
	d, ok := raw.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("%s must be a dict, got %s", signaturesGlobal, raw.Type())
	}
	out := make(map[string][]string)
	for _, item := range d.Items() {
		key, ok := starlark.AsString(item[0])
		if !ok {
			return nil, fmt.Errorf("%s keys must be strings", signaturesGlobal)
		}
		list, ok := item[1].(*starlark.List)
		if !ok {
			return nil, fmt.Errorf("%s[%q] must be a list", signaturesGlobal, key)
		}
		params := []string{}
		for i := 0; i < list.Len(); i++ {
			s, ok := starlark.AsString(list.Index(i))
			if !ok {
				return nil, fmt.Errorf("%s[%q] must list type names", signaturesGlobal, key)
			}
			params = append(params, s)
		}
		out[key] = params
	}
	return out, nil
}

func isVariadicDecl(params []string) bool {
	return len(params) > 0 && strings.HasSuffix(params[len(params)-1], "...")
}

func inferParams(fn *starlark.Function) ([]string, bool) {
	params := make([]string, 0, fn.NumParams())
	fixed := fn.NumParams()
	if fn.HasVarargs() {
		fixed--
	}
	if fn.HasKwargs() {
		fixed--
	}
	for i := 0; i < fixed; i++ {
		params = append(params, string(vm.TypeObject))
	}
	if fn.HasVarargs() {
		params = append(params, string(vm.TypeObject))
		return params, true
	}
	return params, false
}

func parseParamTypes(params []string) ([]vm.Type, error) {
	out := make([]vm.Type, len(params))
	for i, p := range params {
		t, ok := vm.NormalizeTypeName(strings.TrimSuffix(p, "..."))
		if !ok || t == vm.TypeNull {
			return nil, fmt.Errorf("unknown parameter type %q", p)
		}
		out[i] = t
	}
	return out, nil
}

func starlarkInvoker(fn *starlark.Function) Invoker {
	return func(call *Call, args []vm.Value) (vm.Value, error) {
		thread := &starlark.Thread{
			Name: call.Class.Name + "." + call.Method,
			Print: func(_ *starlark.Thread, msg string) {
				if call.Out != nil {
					fmt.Fprintln(call.Out, msg)
				}
			},
		}
		if call.Context != nil {
			stop := cancelOnDone(call, thread)
			defer stop()
		}
		tuple := make(starlark.Tuple, len(args))
		for i, a := range args {
			tuple[i] = toStarlark(a)
		}
		res, err := starlark.Call(thread, fn, tuple, nil)
		if err != nil {
			return nil, err
		}
		return fromStarlark(res)
	}
}

// cancelOnDone cancels thread once the call context is done.
func cancelOnDone(call *Call, thread *starlark.Thread) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-call.Context.Done():
			thread.Cancel(call.Context.Err().Error())
		case <-done:
		}
	}()
	return func() { close(done) }
}

func toStarlark(v vm.Value) starlark.Value {
	switch n := v.(type) {
	case vm.IntValue:
		return starlark.MakeInt64(int64(n))
	case vm.LongValue:
		return starlark.MakeInt64(int64(n))
	case vm.DoubleValue:
		return starlark.Float(n)
	case vm.BoolValue:
		return starlark.Bool(n)
	case vm.StrValue:
		return starlark.String(n)
	case vm.RepeatedValue:
		return starlark.String(n.String())
	}
	return starlark.None
}

func fromStarlark(v starlark.Value) (vm.Value, error) {
	switch n := v.(type) {
	case starlark.NoneType:
		return vm.Null, nil
	case starlark.Bool:
		return vm.BoolValue(n), nil
	case starlark.Int:
		i, ok := n.Int64()
		if !ok {
			return nil, vm.Errorf(vm.MathError, 0, "%s overflows long", n)
		}
		return vm.IntOrLong(i), nil
	case starlark.Float:
		return vm.DoubleValue(n), nil
	case starlark.String:
		return vm.StrValue(n), nil
	}
	return nil, vm.Errorf(vm.ParameterError, 0, "unsupported starlark value of type %s", v.Type())
}
