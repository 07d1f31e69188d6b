package main

import (
	"fmt"
	"os"

	"github.com/gookit/color"
	"github.com/quillscript/quill/host"
	"github.com/quillscript/quill/interp"
	"github.com/quillscript/quill/rules"
	"github.com/quillscript/quill/vm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	rulesFile string
	maxSteps  int
	widening  bool
)

var rootCmd = &cobra.Command{
	Use:   "trace FILE",
	Short: "Step through a quill script one instruction at a time",
	Args:  cobra.ExactArgs(1),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	},
	Run: func(cmd *cobra.Command, args []string) {
		var opts []vm.CompileOption
		if rulesFile != "" {
			set, err := rules.Load(rulesFile)
			if err != nil {
				log.Fatal().Err(err).Msg("couldn't load rules")
			}
			opts = append(opts, vm.WithExpander(set))
		}
		prog, err := vm.CompilePath(args[0], opts...)
		if err != nil {
			fmt.Fprintln(os.Stderr, vm.FormatError(err, nil))
			os.Exit(1)
		}
		if !trace(prog) {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVar(&rulesFile, "rules", "", "YAML file of custom statement rules")
	rootCmd.Flags().IntVar(&maxSteps, "max-steps", 10000, "Stop after this many steps")
	rootCmd.Flags().BoolVar(&widening, "widening", false, "Allow widening assignments to typed variables")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func trace(prog *vm.Program) bool {
	policy := interp.StrictTypes
	if widening {
		policy = interp.WideningTypes
	}
	m := interp.New(host.NewEnvironment(host.WithOutput(os.Stdout)), interp.WithTypePolicy(policy))
	m.Load(prog)
	for step := 1; step <= maxSteps; step++ {
		fmt.Println(color.Gray.Sprint("*******"))
		prettyPrint(m)
		res, err := m.Step()
		if err != nil {
			fmt.Println(vm.FormatError(err, prog.Source))
			return false
		}
		if res == interp.EndStep {
			fmt.Println(color.Green.Sprint("Finished"))
			return true
		}
	}
	fmt.Println(color.Yellow.Sprintf("Stopped after %d steps", maxSteps))
	return true
}

func prettyPrint(m *interp.Machine) {
	fmt.Printf("Loops: %v\n", m.Loops())
	fmt.Printf("Variables:\n%s", m.Store.PrettyPrint())
	inst, err := m.Program().GetInstruction(m.PC())
	if err != nil {
		fmt.Println("End of instructions")
		return
	}
	fmt.Printf("NextOp: %4d %s\n", m.PC(), inst)
}
