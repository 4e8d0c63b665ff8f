// Package cli implements the aedetect command tree.
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

type app struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string
}

// NewRootCmd builds the aedetect command writing to stdout and stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "aedetect",
		Short: "Autoencoder anomaly detection for univariate time series",
		Long: `aedetect trains an autoencoder on a single numeric series, optionally
rolled into overlapping windows, and reports the samples with the largest
reconstruction error.

Configuration is read from --config (YAML), AEDETECT_* environment variables
and flags, in increasing priority.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	pf.String("log-level", "warn", "log level: debug, info, warn, error")
	pf.String("log-format", "console", "log format: console or json")

	root.AddCommand(
		newDetectCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)

	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCmd(os.Stdout, os.Stderr).Execute()
}
