package main

import (
	"fmt"
	"os"

	"github.com/gookit/color"
	"github.com/quillscript/quill/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var listing bool

var checkCmd = &cobra.Command{
	Use:   "check FILE...",
	Short: "Compile scripts or spec files without running them",
	Args:  cobra.MinimumNArgs(1),
	Run:   checkCommand,
}

func init() {
	checkCmd.Flags().BoolVar(&listing, "listing", false, "Print the compiled instructions")
}

func checkCommand(cmd *cobra.Command, args []string) {
	failed := false
	for _, path := range args {
		spec, err := runner.Load(path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Couldn't load spec")
			failed = true
			continue
		}
		exec, err := spec.BuildExecutor()
		if err != nil {
			fmt.Fprint(os.Stderr, runner.FormatError(err, nil))
			failed = true
			continue
		}
		if listing {
			exec.Program.Disassemble(os.Stdout)
		}
		fmt.Fprintln(os.Stderr, color.Green.Sprintf("✓ %s: %d instructions", path, exec.Program.Len()))
	}
	if failed {
		os.Exit(1)
	}
}
