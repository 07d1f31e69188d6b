package interp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/quillscript/quill/host"
	"github.com/quillscript/quill/vm"
	"github.com/stretchr/testify/require"
)

func script(lines ...string) string {
	return strings.Join(lines, "\n")
}

func runScript(t *testing.T, code string, opts ...Option) (*Machine, string, error) {
	t.Helper()
	var out bytes.Buffer
	env := host.NewEnvironment(host.WithOutput(&out))
	m, err := RunLiteral(context.Background(), env, code, opts...)
	return m, out.String(), err
}

func requireVar(t *testing.T, m *Machine, name string, want vm.Value) {
	t.Helper()
	v, ok := m.Store.Get(name)
	require.True(t, ok, "variable %s not set", name)
	require.Equal(t, want, v)
}

func TestLoopCounts(t *testing.T) {
	for _, n := range []string{"0", "1", "2", "5", "-3", "false", "2.7"} {
		t.Run(n, func(t *testing.T) {
			m, _, err := runScript(t, script(
				"var c = 0",
				"loop("+n+")",
				"  c = c + 1",
				"var after = c",
			))
			require.NoError(t, err)
			want := map[string]int32{"0": 0, "1": 1, "2": 2, "5": 5, "-3": 0, "false": 0, "2.7": 2}[n]
			requireVar(t, m, "c", vm.IntValue(want))
			requireVar(t, m, "after", vm.IntValue(want))
			require.Empty(t, m.Loops())
		})
	}
}

func TestInfiniteLoopNeedsExternalBound(t *testing.T) {
	edges := 0
	limit := vm.Errorf(vm.ResourceExhaustedError, 0, "too many iterations")
	m, _, err := runScript(t, script(
		"var c = 0",
		"loop(true)",
		"  c = c + 1",
	), WithBackEdgeHook(func(pc int) error {
		edges++
		if edges > 100 {
			return limit
		}
		return nil
	}))
	require.True(t, errors.Is(err, vm.ErrResourceExhausted))
	requireVar(t, m, "c", vm.IntValue(101))

	var e *vm.Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, 3, e.Line)
}

func TestNestedLoops(t *testing.T) {
	m, _, err := runScript(t, script(
		"var c = 0",
		"var d = 0",
		"loop(3)",
		"  d = d + 1",
		"  loop(4)",
		"    c = c + 1",
		"var done = true",
	))
	require.NoError(t, err)
	requireVar(t, m, "c", vm.IntValue(12))
	requireVar(t, m, "d", vm.IntValue(3))
	requireVar(t, m, "done", vm.BoolTrue)
}

func TestLoopCountFromVariable(t *testing.T) {
	m, out, err := runScript(t, script(
		"var n = 3",
		"var i = 0",
		"loop(n)",
		"  i = i + 1",
		"  Console.print(i)",
	))
	require.NoError(t, err)
	require.Equal(t, "123", out)
	requireVar(t, m, "i", vm.IntValue(3))
}

func TestConsoleOutput(t *testing.T) {
	_, out, err := runScript(t, script(
		"var s = \"ab\" * 2 * 3",
		"Console.println(s)",
		"Console.println(\"x\", 1, 2.5, true)",
		"Console.println(3.0)",
	))
	require.NoError(t, err)
	require.Equal(t, "abababababab\nx 1 2.5 true\n3.0\n", out)
}

func TestStaticTypes(t *testing.T) {
	_, _, err := runScript(t, script(
		"(int) x = 5",
		"x = \"hi\"",
	))
	require.True(t, errors.Is(err, vm.ErrTypeMismatch), "got %v", err)
	var e *vm.Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, 2, e.Line)

	m, _, err := runScript(t, script(
		"var x = 5",
		"x = \"hi\"",
	))
	require.NoError(t, err)
	requireVar(t, m, "x", vm.StrValue("hi"))

	_, _, err = runScript(t, "var (string) s = 1")
	require.True(t, errors.Is(err, vm.ErrTypeMismatch))
}

func TestTypePolicy(t *testing.T) {
	code := script(
		"(double) d = 1",
		"(long) l = 2",
	)
	_, _, err := runScript(t, code)
	require.True(t, errors.Is(err, vm.ErrTypeMismatch))

	m, _, err := runScript(t, code, WithTypePolicy(WideningTypes))
	require.NoError(t, err)
	requireVar(t, m, "d", vm.DoubleValue(1))
	requireVar(t, m, "l", vm.LongValue(2))

	_, _, err = runScript(t, "(int) i = 2.5", WithTypePolicy(WideningTypes))
	require.True(t, errors.Is(err, vm.ErrTypeMismatch))
}

func TestUninitializedRead(t *testing.T) {
	m, _, err := runScript(t, script(
		"var x",
		"var y = x + 1",
	))
	require.True(t, errors.Is(err, vm.ErrUnresolved), "got %v", err)
	require.Contains(t, err.Error(), "uninitialized")
	requireVar(t, m, "x", vm.Uninit)
	require.False(t, m.Store.Has("y"))
}

func TestAssignResult(t *testing.T) {
	m, _, err := runScript(t, script(
		"var a = 2",
		"b = (a + 1) * 2",
		"c = Math.max(a, 10)",
		"Text.upper(\"q\")",
	))
	require.NoError(t, err)
	requireVar(t, m, "b", vm.IntValue(6))
	requireVar(t, m, "c", vm.IntValue(10))
	require.Equal(t, vm.StrValue("Q"), m.LastResult())
}

func TestGive(t *testing.T) {
	_, _, err := runScript(t, "give(Target)(1, 2)")
	require.True(t, errors.Is(err, vm.ErrParameter), "got %v", err)

	_, _, err = runScript(t, script(
		"var a = 1",
		"give(Target)(a + 1)",
	))
	require.True(t, errors.Is(err, vm.ErrParameter), "got %v", err)

	var received []*host.Package
	env := host.NewEnvironment(
		host.WithOutput(nil),
		host.WithReceiver(host.ReceiverFunc(func(_ context.Context, p *host.Package) error {
			received = append(received, p)
			return nil
		})),
	)
	m, err := RunLiteral(context.Background(), env, script(
		"var a = 1",
		"(string) b = \"two\"",
		"give(Target)(a, b, var c = a + 2)",
	))
	require.NoError(t, err)
	require.Len(t, received, 1)
	require.Equal(t, m.Given(), received)

	pkg := received[0]
	require.Equal(t, "Target", pkg.Target)
	require.Equal(t, 3, pkg.Line)
	require.Len(t, pkg.Entries, 3)
	require.Equal(t, host.Entry{Name: "a", Type: vm.TypeInt, Value: vm.IntValue(1)}, pkg.Entries[0])
	require.Equal(t, host.Entry{Name: "b", Type: vm.TypeString, Value: vm.StrValue("two")}, pkg.Entries[1])
	v, ok := pkg.Get("c")
	require.True(t, ok)
	require.Equal(t, vm.IntValue(3), v)
	requireVar(t, m, "c", vm.IntValue(3))
}

func TestGiveReceiverError(t *testing.T) {
	env := host.NewEnvironment(
		host.WithOutput(nil),
		host.WithReceiver(host.ReceiverFunc(func(context.Context, *host.Package) error {
			return errors.New("sink closed")
		})),
	)
	_, err := RunLiteral(context.Background(), env, script("var a = 1", "give(T)(a)"))
	require.True(t, errors.Is(err, vm.ErrUnknownHost))
	require.Contains(t, err.Error(), "sink closed")
}

func overloadedClass() *host.Class {
	c := host.NewClass("Calc")
	c.Def("f", host.Params(vm.TypeInt), func(*host.Call, []vm.Value) (vm.Value, error) {
		return vm.StrValue("int"), nil
	})
	c.Def("f", host.Params(vm.TypeDouble), func(*host.Call, []vm.Value) (vm.Value, error) {
		return vm.StrValue("double"), nil
	})
	c.Field("count", vm.IntValue(1))
	return c
}

func TestHostOverloadAndImport(t *testing.T) {
	env := host.NewEnvironment(host.WithOutput(nil), host.WithClass(overloadedClass()))

	_, err := RunLiteral(context.Background(), env, "r = Calc.f(3)")
	require.True(t, errors.Is(err, vm.ErrUnresolved))
	require.Contains(t, err.Error(), "not imported")

	m, err := RunLiteral(context.Background(), env, script(
		"imp Calc",
		"a = Calc.f(3)",
		"b = Calc.f(3.5)",
	))
	require.NoError(t, err)
	requireVar(t, m, "a", vm.StrValue("int"))
	requireVar(t, m, "b", vm.StrValue("double"))

	_, err = RunLiteral(context.Background(), env, "imp Nowhere")
	require.True(t, errors.Is(err, vm.ErrUnresolved))
	require.Contains(t, err.Error(), "library not found")
}

func TestDoStatements(t *testing.T) {
	var calls []string
	env := host.NewEnvironment(
		host.WithOutput(nil),
		host.WithClass(overloadedClass()),
		host.WithExternal(host.ExternalFunc(func(_ context.Context, program string, args []vm.Value) (vm.Value, error) {
			calls = append(calls, fmt.Sprintf("%s %v", program, args))
			return vm.StrValue("ok"), nil
		})),
	)
	m, err := RunLiteral(context.Background(), env, script(
		"imp Calc",
		"do(Math)(abs)(-3)",
		"var abs = 0",
		"do(Calc)()(count)",
		"do(Calc)()(count = 5)",
		"var now = Calc.count",
		"do(Calc)()(var count = 9)",
		"var kept = Calc.count",
		"var decorated = Calc.count_1",
		"do(Calc)()(var fresh = 2)",
		"var f = Calc.fresh",
		"do()(echo)(1, \"a\")",
	))
	require.NoError(t, err)
	requireVar(t, m, "now", vm.IntValue(5))
	requireVar(t, m, "kept", vm.IntValue(5))
	requireVar(t, m, "decorated", vm.IntValue(9))
	requireVar(t, m, "f", vm.IntValue(2))
	require.Equal(t, []string{"echo [1 a]"}, calls)
	require.Equal(t, vm.StrValue("ok"), m.LastResult())

	// field writes stay on the machine that made them
	other, err := RunLiteral(context.Background(), env, script(
		"imp Calc",
		"var c = Calc.count",
	))
	require.NoError(t, err)
	requireVar(t, other, "c", vm.IntValue(1))
}

func TestDoFieldReadResult(t *testing.T) {
	m, _, err := runScript(t, "do(Math)()(PI)")
	require.NoError(t, err)
	require.Equal(t, vm.DoubleValue(math.Pi), m.LastResult())
}

func TestDoExternalMissing(t *testing.T) {
	_, _, err := runScript(t, "do()(ls)()")
	require.True(t, errors.Is(err, vm.ErrUnresolved))
}

func TestChange(t *testing.T) {
	m, _, err := runScript(t, script(
		"var s = \"42\"",
		"change n::long = s",
		"change d = s::double",
		"var letter = \"A\"",
		"change code = letter::int",
		"change flag::boolean = \"true\"",
		"change s::null = s",
	))
	require.NoError(t, err)
	requireVar(t, m, "n", vm.LongValue(42))
	require.Equal(t, vm.TypeLong, m.Store.TypeOf("n"))
	requireVar(t, m, "d", vm.DoubleValue(42))
	require.Equal(t, vm.TypeDouble, m.Store.TypeOf("d"))
	requireVar(t, m, "code", vm.IntValue(65))
	requireVar(t, m, "flag", vm.BoolTrue)
	requireVar(t, m, "s", vm.Null)
	require.Equal(t, vm.TypeNone, m.Store.TypeOf("s"))
	require.Empty(t, m.Warnings())

	_, _, err = runScript(t, script(
		"var s = \"abc\"",
		"change x::double = s",
	))
	require.True(t, errors.Is(err, vm.ErrMath), "got %v", err)
}

func TestChangeWithoutTypeWarns(t *testing.T) {
	m, _, err := runScript(t, script(
		"var a = 1",
		"change a = a",
	))
	require.NoError(t, err)
	require.Len(t, m.Warnings(), 1)
	requireVar(t, m, "a", vm.IntValue(1))
}

func TestOversizedRepetition(t *testing.T) {
	const huge = "var x = \"ab\" * 4611686018427387904"
	env := host.NewEnvironment(
		host.WithOutput(nil),
		host.WithClass(overloadedClass()),
		host.WithExternal(host.ExternalFunc(func(context.Context, string, []vm.Value) (vm.Value, error) {
			return vm.Null, nil
		})),
	)

	tests := []struct {
		name string
		stmt string
		line int
	}{
		{"change", "change y::string = x", 2},
		{"change source", "change y = x::long", 2},
		{"loop", "loop(x)\n  var z = 1", 2},
		{"host call", "Text.length(x)", 2},
		{"do field", "imp Calc\ndo(Calc)()((string) big = x)", 3},
		{"compare", "var same = x == x", 2},
		{"external", "do()(echo)(x)", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RunLiteral(context.Background(), env, script(huge, tt.stmt))
			require.True(t, errors.Is(err, vm.ErrResourceExhausted), "got %v", err)
			var e *vm.Error
			require.True(t, errors.As(err, &e))
			require.Equal(t, tt.line, e.Line)
		})
	}
}

func TestGiveOversizedRepetition(t *testing.T) {
	var received []*host.Package
	env := host.NewEnvironment(
		host.WithOutput(nil),
		host.WithReceiver(host.ReceiverFunc(func(_ context.Context, p *host.Package) error {
			received = append(received, p)
			return nil
		})),
	)
	_, err := RunLiteral(context.Background(), env, script(
		"var x = \"ab\" * 4611686018427387904",
		"give(Sink)(x)",
	))
	require.NoError(t, err)
	require.Len(t, received, 1)
	v, ok := received[0].Get("x")
	require.True(t, ok)
	require.Equal(t, vm.RepeatedValue{Base: "ab", Count: 4611686018427387904}, v)
	require.Equal(t, `Sink{x="ab" * 4611686018427387904}`, received[0].String())
}

func TestHostCallWidening(t *testing.T) {
	_, _, err := runScript(t, "var m = Math.max(1, 2.5)")
	require.True(t, errors.Is(err, vm.ErrParameter), "got %v", err)

	m, _, err := runScript(t, "var m = Math.max(1, 2.5)", WithTypePolicy(WideningTypes))
	require.NoError(t, err)
	requireVar(t, m, "m", vm.DoubleValue(2.5))
}

func TestRoundTrip(t *testing.T) {
	code := script(
		"var total = 0",
		"var label = \"n\"",
		"loop(4)",
		"  total = total + 2",
		"  label = label + \"!\"",
		"  Console.println(label, total)",
		"change t::double = total",
	)
	prog, err := vm.CompileLiteral(code)
	require.NoError(t, err)

	var out bytes.Buffer
	m := New(host.NewEnvironment(host.WithOutput(&out)))
	require.NoError(t, m.Execute(context.Background(), prog))
	first := out.String()
	snap1, err := m.Store.Snapshot()
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, m.Execute(context.Background(), prog))
	snap2, err := m.Store.Snapshot()
	require.NoError(t, err)

	require.Equal(t, first, out.String())
	require.Equal(t, snap1, snap2)
	require.Equal(t, "  label = \"n!!!!\"\n  (double) t = 8.0\n  total = 8\n", m.Store.PrettyPrint())
}

func TestStepping(t *testing.T) {
	prog, err := vm.CompileLiteral(script(
		"var a = 1",
		"loop(2)",
		"  a = a + 1",
	))
	require.NoError(t, err)
	m := New(host.NewEnvironment(host.WithOutput(nil)))
	m.Load(prog)

	var pcs []int
	for {
		pcs = append(pcs, m.PC())
		res, err := m.Step()
		require.NoError(t, err)
		if res == EndStep {
			break
		}
	}
	// decl, loop, body, end, body, end, end of code
	require.Equal(t, []int{0, 1, 2, 3, 2, 3, 4}, pcs)
	requireVar(t, m, "a", vm.IntValue(3))
}
