package interp

import (
	"context"

	"github.com/quillscript/quill/host"
	"github.com/quillscript/quill/vm"
	"github.com/rs/zerolog/log"
)

// Execute resets the machine, loads prog and runs it to completion or to
// the first error. ctx is handed to host calls; the loop itself does not
// watch it, so limits on running time belong in OnBackEdge.
func (m *Machine) Execute(ctx context.Context, prog *vm.Program) error {
	m.Load(prog)
	return m.Run(ctx)
}

// Run continues the loaded program from the current program counter.
func (m *Machine) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m.ctx = ctx
	steps := 0
	for {
		steps++
		res, err := m.Step()
		if err != nil {
			log.Trace().Int("step", steps).Err(err).Msg("Run: step error")
			return err
		}
		if res == EndStep {
			log.Trace().Int("steps", steps).Msg("Run: program finished")
			return nil
		}
	}
}

// RunLiteral compiles code and executes it on a fresh machine. The machine
// is returned even when execution fails so its state can be inspected.
func RunLiteral(ctx context.Context, env *host.Environment, code string, opts ...Option) (*Machine, error) {
	prog, err := vm.CompileLiteral(code)
	if err != nil {
		return nil, err
	}
	m := New(env, opts...)
	return m, m.Execute(ctx, prog)
}
