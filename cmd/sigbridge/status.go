package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tools.zach/dev/sigbridge/internal/config"
	"tools.zach/dev/sigbridge/internal/logger"
	"tools.zach/dev/sigbridge/internal/pidfile"
	"tools.zach/dev/sigbridge/internal/shutdown"
)

func initConfigCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Write the default config file if none exists",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			dd := flags.paths()
			wrote, err := config.WriteDefault(dd.Config())
			if err != nil {
				return err
			}
			if !wrote {
				_, err = fmt.Fprintf(c.OutOrStdout(), "config already exists: %s\n", dd.Config())
				return err
			}
			_, err = fmt.Fprintf(c.OutOrStdout(), "wrote %s\n", dd.Config())
			return err
		},
	}
}

func statusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether a daemon is running and how the last one ended",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			dd := flags.paths()
			out := c.OutOrStdout()

			if alive, pid := pidfile.Running(dd.PID()); alive {
				fmt.Fprintf(out, "running (PID %d)\n", pid)
			} else {
				fmt.Fprintln(out, "not running")
			}

			rec, err := shutdown.ReadLastSignal(dd.LastSignal())
			switch {
			case errors.Is(err, os.ErrNotExist):
				fmt.Fprintln(out, "last signal: none recorded")
			case err != nil:
				return err
			default:
				fmt.Fprintf(out, "last signal: %s (%d) to PID %d at %s\n",
					rec.Signal, rec.Number, rec.PID, rec.At.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func logsCmd(flags *globalFlags) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the end of the daemon log",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			tail, err := logger.ReadTail(flags.paths().Log(), lines)
			if err != nil {
				return fmt.Errorf("read log: %w", err)
			}
			if tail == "" {
				return nil
			}
			_, err = fmt.Fprintln(c.OutOrStdout(), tail)
			return err
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines to show")
	return cmd
}
