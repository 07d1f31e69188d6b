package runner

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quillscript/quill/host"
	"github.com/quillscript/quill/vm"
	"github.com/stretchr/testify/require"
)

func loadExecutor(t *testing.T, path string) *Executor {
	t.Helper()
	s, err := Load(path)
	require.NoError(t, err)
	e, err := s.BuildExecutor()
	require.NoError(t, err)
	return e
}

func literalExecutor(t *testing.T, code string) *Executor {
	t.Helper()
	p, err := vm.CompileLiteral(code)
	require.NoError(t, err)
	return &Executor{Program: p, Spec: &Spec{}}
}

func TestRun(t *testing.T) {
	e := loadExecutor(t, "../testdata/specs/hello.toml")
	var out bytes.Buffer
	e.Out = &out
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Success(), "%v", res.Err)
	require.Equal(t, "hello quill 3\n", out.String())
	require.Equal(t, int64(2), res.Iterations)
	require.NotEqual(t, uuid.Nil, res.RunID)
	v, ok := res.Store.Get("count")
	require.True(t, ok)
	require.Equal(t, vm.IntValue(3), v)
}

func TestRunWithRules(t *testing.T) {
	e := loadExecutor(t, "../testdata/specs/swap.toml")
	var out bytes.Buffer
	e.Out = &out
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.Err)
	require.Equal(t, "8 1\n", out.String())
}

func TestIterationBudget(t *testing.T) {
	e := loadExecutor(t, "../testdata/specs/spin.toml")
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.True(t, errors.Is(res.Err, vm.ErrResourceExhausted), "got %v", res.Err)
	require.Contains(t, res.Err.Error(), "loop iteration budget of 50 exceeded")
	require.Equal(t, int64(51), res.Iterations)
	v, _ := res.Store.Get("n")
	require.Equal(t, vm.IntValue(51), v)
}

func TestTimeout(t *testing.T) {
	e := loadExecutor(t, "../testdata/specs/spin.toml")
	e.Spec.Limits.MaxIterations = 0
	e.Spec.Limits.Timeout = 20 * time.Millisecond
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.True(t, errors.Is(res.Err, vm.ErrResourceExhausted), "got %v", res.Err)
	require.Contains(t, res.Err.Error(), "run timed out")
}

func TestCancelled(t *testing.T) {
	e := literalExecutor(t, "loop(true)\n  var x = 1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Run(ctx)
	require.NoError(t, err)
	require.True(t, errors.Is(res.Err, vm.ErrResourceExhausted))
	require.Contains(t, res.Err.Error(), "run cancelled")
}

func TestTypePolicy(t *testing.T) {
	e := loadExecutor(t, "../testdata/specs/widen.toml")
	require.True(t, e.Spec.Types.Widening)
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.Err)
	v, _ := res.Store.Get("big")
	require.Equal(t, vm.LongValue(7), v)
	v, _ = res.Store.Get("ratio")
	require.Equal(t, vm.DoubleValue(2), v)

	e.Spec.Types.Widening = false
	res, err = e.Run(context.Background())
	require.NoError(t, err)
	require.True(t, errors.Is(res.Err, vm.ErrTypeMismatch), "got %v", res.Err)
}

func TestRunWithoutProgram(t *testing.T) {
	_, err := (&Executor{Spec: &Spec{}}).Run(context.Background())
	require.Error(t, err)
}

func TestMemorySink(t *testing.T) {
	e := loadExecutor(t, "../testdata/specs/report.toml")
	sink := NewMemorySink()
	e.Sinks = []Sink{sink}
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.Err)
	require.Len(t, res.Given, 2)

	pkgs := sink.Packages(res.RunID)
	require.Len(t, pkgs, 2)
	require.Same(t, res.Given[0], pkgs[0])
	v, ok := pkgs[0].Get("total")
	require.True(t, ok)
	require.Equal(t, vm.IntValue(20), v)
	v, ok = pkgs[0].Get("label")
	require.True(t, ok)
	require.Equal(t, vm.StrValue("sum"), v)
	require.Empty(t, sink.Packages(uuid.New()))
	require.NoError(t, sink.Close())
}

func TestSQLiteSink(t *testing.T) {
	e := loadExecutor(t, "../testdata/specs/report.toml")
	e.Spec.Give.Database = filepath.Join(t.TempDir(), "gives.db")
	sinks, err := e.Spec.OpenSinks()
	require.NoError(t, err)
	require.Len(t, sinks, 1)
	e.Sinks = sinks
	defer sinks[0].Close()

	first, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.Err)
	second, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, second.Err)

	db := sinks[0].(*SQLiteSink)
	pkgs, err := db.Packages(context.Background(), first.RunID)
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	require.Equal(t, first.Given[0], pkgs[0])
	require.Equal(t, first.Given[1], pkgs[1])

	pkgs, err = db.Packages(context.Background(), second.RunID)
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	require.Equal(t, second.Given[0].ID, pkgs[0].ID)
}

func TestOpenSinksNone(t *testing.T) {
	sinks, err := (&Spec{}).OpenSinks()
	require.NoError(t, err)
	require.Empty(t, sinks)
}

type failingSink struct{}

func (failingSink) Write(context.Context, uuid.UUID, *host.Package) error {
	return errors.New("sink offline")
}

func (failingSink) Close() error { return nil }

func TestSinkFailure(t *testing.T) {
	e := loadExecutor(t, "../testdata/specs/report.toml")
	e.Sinks = []Sink{failingSink{}}
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.True(t, errors.Is(res.Err, vm.ErrUnknownHost), "got %v", res.Err)
	require.Contains(t, res.Err.Error(), "sink offline")
	require.Len(t, res.Given, 1)
}

func TestVerify(t *testing.T) {
	e := loadExecutor(t, "../testdata/specs/hello.toml")
	var out bytes.Buffer
	e.Out = &out
	v, err := e.Verify(context.Background())
	require.NoError(t, err)
	require.True(t, v.Deterministic())
	require.Empty(t, v.Diff)
	require.NotEqual(t, v.First.RunID, v.Second.RunID)
	require.Equal(t, "hello quill 3\nhello quill 3\n", out.String())
	require.Same(t, &out, e.Out)
}

func TestVerifyDetectsDrift(t *testing.T) {
	ticks := 0
	clock := host.NewClass("Clock").Def("tick", nil, func(*host.Call, []vm.Value) (vm.Value, error) {
		ticks++
		return vm.IntValue(ticks), nil
	})
	e := literalExecutor(t, "imp Clock\nvar stable = 1\nvar t = Clock.tick()")
	e.Classes = []*host.Class{clock}
	v, err := e.Verify(context.Background())
	require.NoError(t, err)
	require.False(t, v.Deterministic())
	require.NotEqual(t, v.StoreHashes[0], v.StoreHashes[1])
	require.Equal(t, v.OutputHashes[0], v.OutputHashes[1])
	require.Equal(t, []string{"t"}, v.Diff)
}
