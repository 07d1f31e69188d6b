package host

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"

	"github.com/quillscript/quill/vm"
	"github.com/rs/zerolog/log"
)

type ExternalFunc func(ctx context.Context, program string, args []vm.Value) (vm.Value, error)

func (f ExternalFunc) Run(ctx context.Context, program string, args []vm.Value) (vm.Value, error) {
	return f(ctx, program, args)
}

// ExecProgram runs do()(program)(args) as a child process. The arguments
// are passed in their textual form and the trimmed standard output becomes
// the statement's result. When Allow is non-empty only the listed programs
// may run.
type ExecProgram struct {
	Allow []string
	Dir   string
}

func (x *ExecProgram) Run(ctx context.Context, program string, args []vm.Value) (vm.Value, error) {
	if program == "" {
		return nil, vm.Errorf(vm.ParameterError, 0, "external program name is empty")
	}
	if len(x.Allow) > 0 && !slices.Contains(x.Allow, program) {
		return nil, vm.Errorf(vm.ParameterError, 0, "external program %q is not allowed", program)
	}
	argv := make([]string, len(args))
	for i, a := range args {
		argv[i] = vm.Text(a)
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, program, argv...)
	cmd.Dir = x.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	log.Debug().Str("program", program).Strs("args", argv).Msg("running external program")
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", program, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", program, err)
	}
	return vm.StrValue(strings.TrimRight(stdout.String(), "\r\n")), nil
}
