package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/gookit/color"
	"github.com/quillscript/quill/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	debugFlag  bool
	verifyFlag bool
	watchFlag  bool
	quietFlag  bool
)

var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "Run a script, or the script named by a spec file",
	Args:  cobra.ExactArgs(1),
	Run:   runCommand,
}

func init() {
	runCmd.Flags().BoolVar(&debugFlag, "debug", false, "Print the compiled program before running it")
	runCmd.Flags().BoolVar(&verifyFlag, "verify", false, "Run twice and check that both runs end in the same state")
	runCmd.Flags().BoolVar(&watchFlag, "watch", false, "Re-run whenever the script or its rules change")
	runCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Only print the script's own output")
}

func runCommand(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	spec, err := runner.Load(args[0])
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't load spec")
	}
	sinks, err := spec.OpenSinks()
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't open give sinks")
	}
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				log.Warn().Err(err).Msg("closing sink")
			}
		}
	}()

	ok := runOnce(ctx, spec, sinks)
	if !watchFlag {
		if !ok {
			stop()
			os.Exit(1)
		}
		return
	}

	fmt.Fprintln(os.Stderr, color.Cyan.Sprint("Watching for changes, press Ctrl-C to stop"))
	err = runner.Watch(ctx, spec.WatchedFiles(), func() {
		fmt.Fprintln(os.Stderr, color.Cyan.Sprint("\nChange detected, re-running..."))
		reloaded, err := runner.Load(args[0])
		if err != nil {
			log.Error().Err(err).Msg("Couldn't reload spec")
			return
		}
		runOnce(ctx, reloaded, sinks)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't watch files")
	}
}

// runOnce compiles and runs the spec's script, printing the outcome. It
// reports whether the script completed without error.
func runOnce(ctx context.Context, spec *runner.Spec, sinks []runner.Sink) bool {
	exec, err := spec.BuildExecutor()
	if err != nil {
		fmt.Fprint(os.Stderr, runner.FormatError(err, nil))
		return false
	}
	exec.Out = os.Stdout
	exec.Sinks = sinks
	if !quietFlag {
		exec.Reporter = &runner.ColorReporter{Writer: os.Stderr}
	}
	if debugFlag {
		exec.Program.Disassemble(os.Stderr)
		fmt.Fprintln(os.Stderr)
	}

	if verifyFlag {
		v, err := exec.Verify(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Verification failed")
			return false
		}
		report(v.Second)
		fmt.Fprint(os.Stderr, runner.FormatVerification(v))
		return v.Second.Success() && v.Deterministic()
	}

	res, err := exec.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Run failed")
		return false
	}
	report(res)
	return res.Success()
}

func report(res *runner.Result) {
	if quietFlag {
		if res.Err != nil {
			fmt.Fprint(os.Stderr, runner.FormatError(res.Err, res.Program))
		}
		return
	}
	fmt.Fprint(os.Stderr, runner.FormatResult(res))
	if res.Success() {
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, color.Green.Sprint("✓ Script completed successfully"))
	}
}
