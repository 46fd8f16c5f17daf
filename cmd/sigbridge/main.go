// Package main implements the sigbridge daemon, which intercepts termination
// signals, runs configured cleanup, and re-raises the signal so the process
// exits the way the OS would have ended it.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"tools.zach/dev/sigbridge/internal/paths"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags (-X main.version=...). Bare go
// builds fall back to the VCS info embedded by the toolchain.
var version = "dev"

// resolveVersion returns the ldflags version, or "dev+<hash>" built from the
// embedded VCS revision.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Commands
// ///////////////////////////////////////////////

// globalFlags are shared by every subcommand.
type globalFlags struct {
	dataDir string
}

func (f *globalFlags) paths() paths.DataDir {
	return paths.DataDir{Root: f.dataDir}
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   paths.BinaryName,
		Short: "Relay termination signals to cleanup, then re-raise them",
		Long: "sigbridge intercepts termination signals, runs bounded cleanup on an\n" +
			"ordinary goroutine, then re-raises the signal with its default action.",
		Example: `  # Write the default config, then start the daemon
  $ sigbridge init-config
  $ sigbridge run

  # Check whether a daemon is running and how the last one ended
  $ sigbridge status`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", paths.Default().Root, "directory holding config, log and PID files")

	cmd.AddCommand(runCmd(flags))
	cmd.AddCommand(initConfigCmd(flags))
	cmd.AddCommand(statusCmd(flags))
	cmd.AddCommand(logsCmd(flags))
	cmd.AddCommand(versionCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(c.OutOrStdout(), "sigbridge %s\n", resolveVersion())
			return err
		},
	}
}

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "sigbridge: %v\n", err)
		os.Exit(1)
	}
}
