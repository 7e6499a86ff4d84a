package version

import (
	"bytes"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// TestVersionStrings ensures Short and Full return non-empty consistent information.
func TestVersionStrings(t *testing.T) {
	t.Parallel()

	require.NotEmpty(t, Short())
	require.Contains(t, Full(), Short())
	require.Contains(t, Full(), runtime.Version())
}

// TestAttachCobraVersionCommand runs the subcommand with and without --short.
func TestAttachCobraVersionCommand(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{{"version"}, {"version", "--short"}} {
		root := &cobra.Command{Use: "camwatch"}
		AttachCobraVersionCommand(root)

		var out bytes.Buffer

		root.SetOut(&out)
		root.SetArgs(args)

		require.NoError(t, root.Execute())

		if len(args) == 2 {
			require.Equal(t, Short(), strings.TrimSpace(out.String()))
		} else {
			require.Equal(t, Full(), strings.TrimSpace(out.String()))
		}
	}
}
