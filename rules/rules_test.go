package rules

import (
	"bytes"
	"context"
	"testing"

	"github.com/quillscript/quill/host"
	"github.com/quillscript/quill/interp"
	"github.com/quillscript/quill/vm"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	s, err := Load("../testdata/rules.yaml")
	require.NoError(t, err)
	require.Equal(t, []string{"twice", "swap", "say"}, s.Keywords())

	lines, ok := s.ExpandIfCustom("swap x, y")
	require.True(t, ok)
	require.Equal(t, []string{"var _swap = x", "x = y", "y = _swap"}, lines)

	lines, ok = s.ExpandIfCustom("twice n = n + 1")
	require.True(t, ok)
	require.Equal(t, []string{"loop(2)", "  n = n + 1"}, lines)

	_, ok = s.ExpandIfCustom("swap x")
	require.False(t, ok)
	_, ok = s.ExpandIfCustom("swapx = 1")
	require.False(t, ok)
	_, ok = (*Set)(nil).ExpandIfCustom("swap a, b")
	require.False(t, ok)
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"bad yaml":        "rules: [",
		"reserved":        "rules:\n  - keyword: true\n    expand: [x]\n",
		"statement":       "rules:\n  - keyword: loop\n    expand: [x]\n",
		"empty":           "rules:\n  - keyword: k\n",
		"duplicate":       "rules:\n  - keyword: k\n    expand: [x]\n  - keyword: k\n    expand: [y]\n",
		"unknown":         "rules:\n  - keyword: k\n    params: [a]\n    expand: [\"{b}\"]\n",
		"index too large": "rules:\n  - keyword: k\n    params: [a]\n    expand: [\"{1}\"]\n",
		"bad param":       "rules:\n  - keyword: k\n    params: [args]\n    expand: [x]\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src), "rules.yaml")
			require.Error(t, err)
		})
	}
}

func TestPositionalArgs(t *testing.T) {
	s, err := Parse([]byte("rules:\n  - keyword: pick\n    expand: [\"var first = {0}\", \"var third = {2}\"]\n"), "inline")
	require.NoError(t, err)
	lines, ok := s.ExpandIfCustom(`pick "a, b", 2`)
	require.True(t, ok)
	require.Equal(t, []string{`var first = "a, b"`, "var third = "}, lines)
}

func TestCompileWithRules(t *testing.T) {
	s, err := Load("../testdata/rules.yaml")
	require.NoError(t, err)
	src := "var x = 1\nvar y = 2\nswap x, y\nloop(3)\n  twice x = x * 2\nsay x, y\n"
	prog, err := vm.CompileLiteral(src, vm.WithExpander(s))
	require.NoError(t, err)

	var out bytes.Buffer
	m := interp.New(host.NewEnvironment(host.WithOutput(&out)))
	require.NoError(t, m.Execute(context.Background(), prog))
	require.Equal(t, "128 1\n", out.String())
}
