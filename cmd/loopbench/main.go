// Command loopbench drives loopthread controllers with a synthetic workload,
// reporting iteration throughput and failures.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "loopbench",
		Short:        "Benchmark on-demand loop iterations on dedicated goroutines",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(
		runCmd(),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "loopbench %s\n", version)
		},
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := Load(path)
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config:\n%w", err)
			}

			level, _ := parseLevel(cfg.LogLevel)
			logger := newLogger(cmd.ErrOrStderr(), level)

			report, err := Run(cmd.Context(), cfg, logger)
			if report != nil {
				if _, werr := report.WriteTo(cmd.OutOrStdout()); werr != nil && err == nil {
					err = werr
				}
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "path to a TOML config file")
	flags.Int("controllers", 0, "number of concurrent controllers")
	flags.Int("iterations", 0, "iterations per controller")
	flags.String("mode", "", `how iterations are requested, "run" or "restart"`)
	flags.Duration("work", 0, "simulated duration of each iteration")
	flags.Int("fail-every", 0, "every Nth iteration fails (0 = never)")
	flags.Bool("fail-fast", false, "abort on the first failed iteration")
	flags.Bool("lock-os-thread", false, "lock each loop goroutine to an OS thread")
	flags.String("log-level", "", "log level, e.g. info or debug")
	flags.Int("progress-rate", 0, "progress logs per controller per second (0 = unlimited)")

	return cmd
}

// applyFlags overrides cfg with any flags explicitly set.
func applyFlags(cmd *cobra.Command, cfg *Config) error {
	flags := cmd.Flags()
	var err error
	set := func(name string, fn func() error) {
		if err == nil && flags.Changed(name) {
			err = fn()
		}
	}
	set("controllers", func() (e error) { cfg.Controllers, e = flags.GetInt("controllers"); return })
	set("iterations", func() (e error) { cfg.Iterations, e = flags.GetInt("iterations"); return })
	set("mode", func() (e error) { cfg.Mode, e = flags.GetString("mode"); return })
	set("work", func() (e error) { cfg.Work, e = flags.GetDuration("work"); return })
	set("fail-every", func() (e error) { cfg.FailEvery, e = flags.GetInt("fail-every"); return })
	set("fail-fast", func() (e error) { cfg.FailFast, e = flags.GetBool("fail-fast"); return })
	set("lock-os-thread", func() (e error) { cfg.LockOSThread, e = flags.GetBool("lock-os-thread"); return })
	set("log-level", func() (e error) { cfg.LogLevel, e = flags.GetString("log-level"); return })
	set("progress-rate", func() (e error) { cfg.ProgressRate, e = flags.GetInt("progress-rate"); return })
	return err
}

// newLogger writes JSON lines to w, which may be shared by all controllers.
func newLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&syncWriter{w: w})),
		stumpy.L.WithLevel(level),
	).Logger()
}

// syncWriter serializes writes, each of which is a complete log event
type syncWriter struct {
	w  io.Writer
	mu sync.Mutex
}

func (x *syncWriter) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.w.Write(p)
}
