package runner

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadSpecDefaults(t *testing.T) {
	s, err := LoadSpecFromFile("../testdata/specs/hello.toml")
	require.NoError(t, err)
	require.Equal(t, filepath.Clean("../testdata/specs/hello.quill"), s.Script.File)
	require.Equal(t, 5*time.Second, s.Limits.Timeout)
	require.Equal(t, int64(100), s.Limits.MaxIterations)
	require.False(t, s.Types.Widening)
	require.Empty(t, s.Plugins.Paths)
	require.Equal(t, []string{s.Script.File, "../testdata/specs/hello.toml"}, s.WatchedFiles())
}

func TestLoadSpecPaths(t *testing.T) {
	s, err := LoadSpecFromFile("../testdata/specs/swap.toml")
	require.NoError(t, err)
	require.Equal(t, filepath.Clean("../testdata/specs/swap.quill"), s.Script.File)
	require.Equal(t, filepath.Clean("../testdata/rules.yaml"), s.Script.Rules)
	require.Len(t, s.WatchedFiles(), 3)

	s, err = LoadSpecFromFile("../testdata/specs/report.toml")
	require.NoError(t, err)
	require.Equal(t, "cbor", s.Give.Encoding)
}

func TestLoadScriptWithoutSpec(t *testing.T) {
	s, err := Load("../testdata/small/hello.quill")
	require.NoError(t, err)
	require.Equal(t, filepath.Clean("../testdata/small/hello.quill"), s.Script.File)
	require.Equal(t, []string{filepath.Clean("../testdata/small")}, s.Plugins.Paths)
	require.Equal(t, []string{s.Script.File}, s.WatchedFiles())
}

func TestSpecValidate(t *testing.T) {
	_, err := LoadSpecFromFile("../testdata/specs/bad_external.toml")
	require.Error(t, err)
	require.Contains(t, err.Error(), "allow_exec")

	_, err = LoadSpecFromFile("../testdata/specs/missing.toml")
	require.Error(t, err)

	tests := map[string]string{
		"encoding":   "[give]\nencoding = \"json\"\n",
		"iterations": "[limits]\nmax_iterations = -1\n",
		"timeout":    "[limits]\ntimeout = \"-1s\"\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := parseSpec(strings.NewReader(src))
			require.NoError(t, err)
			require.Error(t, s.Validate())
		})
	}

	_, err = parseSpec(strings.NewReader("[limits\n"))
	require.Error(t, err)
}

func TestBuildExecutor(t *testing.T) {
	s, err := LoadSpecFromFile("../testdata/specs/swap.toml")
	require.NoError(t, err)
	e, err := s.BuildExecutor()
	require.NoError(t, err)
	require.NotNil(t, e.Rules)
	require.Equal(t, []string{"twice", "swap", "say"}, e.Rules.Keywords())
	require.NotZero(t, e.Program.Len())

	s = SpecForScript("../testdata/bad/unclosed.quill")
	_, err = s.BuildExecutor()
	require.Error(t, err)
}
