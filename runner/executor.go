package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/quillscript/quill/cas"
	"github.com/quillscript/quill/host"
	"github.com/quillscript/quill/interp"
	"github.com/quillscript/quill/rules"
	"github.com/quillscript/quill/vm"
	"github.com/rs/zerolog/log"
)

// An Executor runs one compiled script according to its Spec.
type Executor struct {
	Program *vm.Program
	Spec    *Spec
	Rules   *rules.Set
	// Out receives the script's console output. Nil discards it.
	Out io.Writer
	// Sinks receive every give package of every run.
	Sinks    []Sink
	Reporter Reporter
	// Classes are registered in every environment the executor builds.
	Classes []*host.Class
}

// Result describes one finished run. Err is the runtime error that stopped
// the script, if any; the remaining fields reflect the state at that point.
type Result struct {
	RunID      uuid.UUID
	Program    *vm.Program
	Store      *interp.Store
	Given      []*host.Package
	Warnings   []string
	Iterations int64
	Duration   time.Duration
	Err        error
}

func (r *Result) Success() bool {
	return r.Err == nil
}

func (e *Executor) reporter() Reporter {
	if e.Reporter == nil {
		return &SilentReporter{}
	}
	return e.Reporter
}

// Environment builds the host environment for a run writing to out.
func (e *Executor) Environment(runID uuid.UUID, out io.Writer) *host.Environment {
	opts := []host.EnvOption{
		host.WithOutput(out),
		host.WithReceiver(host.ReceiverFunc(func(ctx context.Context, pkg *host.Package) error {
			for _, s := range e.Sinks {
				if err := s.Write(ctx, runID, pkg); err != nil {
					return err
				}
			}
			return nil
		})),
	}
	if len(e.Spec.Plugins.Paths) > 0 {
		opts = append(opts, host.WithLoader(&host.StarlarkLoader{Paths: e.Spec.Plugins.Paths}))
	}
	if e.Spec.External.AllowExec {
		opts = append(opts, host.WithExternal(&host.ExecProgram{Allow: e.Spec.External.Allow}))
	}
	for _, c := range e.Classes {
		opts = append(opts, host.WithClass(c))
	}
	return host.NewEnvironment(opts...)
}

// budget stops a run once it exceeds the iteration limit or its deadline.
type budget struct {
	ctx        context.Context
	max        int64
	iterations int64
}

func (b *budget) backEdge(pc int) error {
	b.iterations++
	if b.max > 0 && b.iterations > b.max {
		return vm.Errorf(vm.ResourceExhaustedError, 0, "loop iteration budget of %d exceeded", b.max)
	}
	if err := b.ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return vm.Errorf(vm.ResourceExhaustedError, 0, "run timed out")
		}
		return vm.Errorf(vm.ResourceExhaustedError, 0, "run cancelled")
	}
	return nil
}

// Run executes the program once on a fresh machine. The returned error is
// only set for failures outside the script itself; script errors are
// reported in Result.Err.
func (e *Executor) Run(ctx context.Context) (*Result, error) {
	if e.Program == nil {
		return nil, errors.New("executor has no program")
	}
	if e.Spec.Limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Spec.Limits.Timeout)
		defer cancel()
	}
	out := e.Out
	if out == nil {
		out = io.Discard
	}
	runID := uuid.New()
	b := &budget{ctx: ctx, max: e.Spec.Limits.MaxIterations}
	policy := interp.StrictTypes
	if e.Spec.Types.Widening {
		policy = interp.WideningTypes
	}
	m := interp.New(e.Environment(runID, out),
		interp.WithTypePolicy(policy),
		interp.WithBackEdgeHook(b.backEdge),
	)

	e.reporter().Printf("Running %s (run %s)\n", e.Program.Name, runID)
	start := time.Now()
	err := m.Execute(ctx, e.Program)
	res := &Result{
		RunID:      runID,
		Program:    e.Program,
		Store:      m.Store,
		Given:      m.Given(),
		Warnings:   m.Warnings(),
		Iterations: b.iterations,
		Duration:   time.Since(start),
		Err:        err,
	}
	log.Debug().
		Str("run", runID.String()).
		Int64("iterations", b.iterations).
		Dur("duration", res.Duration).
		Err(err).
		Msg("run finished")
	return res, nil
}

// Verification compares two runs of the same program.
type Verification struct {
	First, Second             *Result
	StoreHashes, OutputHashes [2]cas.Hash
	CacheStats                cas.CacheStats
	// Diff names the variables whose final value or type differs.
	Diff []string
}

// Deterministic reports whether both runs ended in the same state with the
// same output.
func (v *Verification) Deterministic() bool {
	return v.StoreHashes[0] == v.StoreHashes[1] && v.OutputHashes[0] == v.OutputHashes[1]
}

// Verify runs the program twice on fresh machines and compares the final
// variable stores and console output through a content-addressed store.
// Output still goes to e.Out, once per run.
func (e *Executor) Verify(ctx context.Context) (*Verification, error) {
	store := cas.NewLRUCache(cas.NewMemoryCAS(), 0)
	v := &Verification{}
	orig := e.Out
	defer func() { e.Out = orig }()
	for i := range 2 {
		var buf bytes.Buffer
		if orig != nil {
			e.Out = io.MultiWriter(orig, &buf)
		} else {
			e.Out = &buf
		}
		res, err := e.Run(ctx)
		if err != nil {
			return nil, err
		}
		if v.StoreHashes[i], err = store.Put(res.Store); err != nil {
			return nil, err
		}
		if v.OutputHashes[i], err = store.Put(&cas.Blob{Data: buf.Bytes()}); err != nil {
			return nil, err
		}
		if i == 0 {
			v.First = res
		} else {
			v.Second = res
		}
	}
	if v.StoreHashes[0] != v.StoreHashes[1] {
		diff, err := diffStores(store, v.StoreHashes)
		if err != nil {
			return nil, err
		}
		v.Diff = diff
	}
	v.CacheStats = store.Stats()
	e.reporter().Printf("Verified %s: store %s / %s\n", e.Program.Name, v.StoreHashes[0], v.StoreHashes[1])
	return v, nil
}

func diffStores(c cas.CAS, hashes [2]cas.Hash) ([]string, error) {
	a, err := cas.Retrieve[*interp.Store](c, hashes[0])
	if err != nil {
		return nil, err
	}
	b, err := cas.Retrieve[*interp.Store](c, hashes[1])
	if err != nil {
		return nil, err
	}
	var out []string
	seen := make(map[string]bool)
	for _, name := range append(a.Names(), b.Names()...) {
		if seen[name] {
			continue
		}
		seen[name] = true
		av, aok := a.Get(name)
		bv, bok := b.Get(name)
		if aok != bok || av != bv || a.TypeOf(name) != b.TypeOf(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}
