package runner

import (
	"fmt"
	"strings"

	"github.com/gookit/color"
	"github.com/quillscript/quill/vm"
)

const (
	heavyRule = "================================================================================"
	lightRule = "--------------------------------------------------------------------------------"
)

func section(b *strings.Builder, title string) {
	b.WriteString(color.Gray.Sprint(lightRule))
	b.WriteString("\n")
	b.WriteString(color.Cyan.Sprint(title))
	b.WriteString("\n")
	b.WriteString(color.Gray.Sprint(lightRule))
	b.WriteString("\n")
}

// FormatError renders a script failure with the surrounding source lines.
func FormatError(err error, prog *vm.Program) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(color.Gray.Sprint(heavyRule))
	b.WriteString("\n")
	kind, ok := vm.KindOf(err)
	if ok {
		b.WriteString(color.Red.Sprint(kind.String()))
	} else {
		b.WriteString(color.Red.Sprint("ERROR"))
	}
	b.WriteString("\n")
	b.WriteString(color.Gray.Sprint(heavyRule))
	b.WriteString("\n")
	var source []string
	if prog != nil {
		source = prog.Source
		b.WriteString(color.Bold.Sprint("Script:   "))
		b.WriteString(color.Yellow.Sprintf("%s\n", prog.Name))
	}
	b.WriteString(vm.FormatError(err, source))
	if !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

// FormatResult renders what a run left behind: give packages, warnings,
// the final variables and, for a failed run, the error.
func FormatResult(r *Result) string {
	var b strings.Builder
	if len(r.Given) > 0 {
		section(&b, "Given:")
		for _, p := range r.Given {
			fmt.Fprintf(&b, "  line %d: %s\n", p.Line, p)
		}
	}
	if len(r.Warnings) > 0 {
		section(&b, "Warnings:")
		for _, w := range r.Warnings {
			b.WriteString(color.Yellow.Sprintf("  %s\n", w))
		}
	}
	section(&b, "Variables:")
	b.WriteString(r.Store.PrettyPrint())
	if r.Err != nil {
		b.WriteString(FormatError(r.Err, r.Program))
	}
	b.WriteString(FormatStatistics(r))
	return b.String()
}

func FormatStatistics(r *Result) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(color.Bold.Sprint("Run:        "))
	b.WriteString(r.RunID.String())
	b.WriteString("\n")
	b.WriteString(color.Bold.Sprint("Iterations: "))
	fmt.Fprintf(&b, "%d\n", r.Iterations)
	b.WriteString(color.Bold.Sprint("Duration:   "))
	fmt.Fprintf(&b, "%s\n", r.Duration)
	return b.String()
}

func FormatVerification(v *Verification) string {
	var b strings.Builder
	section(&b, "Determinism check:")
	fmt.Fprintf(&b, "  store:  %s / %s\n", v.StoreHashes[0], v.StoreHashes[1])
	fmt.Fprintf(&b, "  output: %s / %s\n", v.OutputHashes[0], v.OutputHashes[1])
	if v.Deterministic() {
		b.WriteString(color.Green.Sprint("  ✓ both runs produced the same state and output"))
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString(color.Red.Sprint("  ✗ runs differ"))
	b.WriteString("\n")
	if len(v.Diff) > 0 {
		fmt.Fprintf(&b, "  variables: %s\n", strings.Join(v.Diff, ", "))
	}
	return b.String()
}
