package runner

import (
	"context"
	"testing"

	"github.com/gookit/color"
	"github.com/stretchr/testify/require"
)

func TestFormatResult(t *testing.T) {
	color.Disable()
	e := loadExecutor(t, "../testdata/specs/report.toml")
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	out := FormatResult(res)
	require.Contains(t, out, "Given:")
	require.Contains(t, out, `line 4: Report{total=20, label="sum"}`)
	require.Contains(t, out, "Variables:")
	require.Contains(t, out, "total = 20")
	require.Contains(t, out, "Run:        "+res.RunID.String())
	require.NotContains(t, out, "Warnings:")
}

func TestFormatFailure(t *testing.T) {
	color.Disable()
	e := loadExecutor(t, "../testdata/specs/spin.toml")
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	out := FormatResult(res)
	require.Contains(t, out, "ResourceExhaustedError")
	require.Contains(t, out, "loop iteration budget of 50 exceeded")
	require.Contains(t, out, "spin.quill")
	require.Contains(t, out, "Iterations: 51")
}

func TestFormatVerification(t *testing.T) {
	color.Disable()
	e := loadExecutor(t, "../testdata/specs/hello.toml")
	v, err := e.Verify(context.Background())
	require.NoError(t, err)
	out := FormatVerification(v)
	require.Contains(t, out, "Determinism check:")
	require.Contains(t, out, "both runs produced the same state and output")

	v.StoreHashes[1]++
	v.Diff = []string{"count"}
	out = FormatVerification(v)
	require.Contains(t, out, "runs differ")
	require.Contains(t, out, "variables: count")
}
