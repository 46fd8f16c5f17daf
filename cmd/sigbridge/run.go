package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"tools.zach/dev/sigbridge/internal/bridge"
	"tools.zach/dev/sigbridge/internal/config"
	"tools.zach/dev/sigbridge/internal/logger"
	"tools.zach/dev/sigbridge/internal/paths"
	"tools.zach/dev/sigbridge/internal/pidfile"
	"tools.zach/dev/sigbridge/internal/shutdown"
)

func runCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runDaemon(c.Context(), flags.paths())
		},
	}
}

// signalWatcher is the part of the bridge the daemon drives after startup.
type signalWatcher interface {
	Watch(os.Signal) (bridge.Disposition, error)
	Unwatch(os.Signal) error
	Watched() []os.Signal
}

// ///////////////////////////////////////////////
// Daemon
// ///////////////////////////////////////////////

func runDaemon(ctx context.Context, dd paths.DataDir) error {
	if err := dd.Ensure(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	wroteDefault, err := config.WriteDefault(dd.Config())
	if err != nil {
		return err
	}
	cfg, err := config.Load(dd.Root)
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	level.Set(logger.ParseLevel(cfg.Log.Level))
	log, closer, err := logger.NewLogger(logger.Options{
		Path:      dd.Log(),
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Level:     level,
		Console:   os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(log)

	log.Info("sigbridge starting", "version", resolveVersion(), "pid", os.Getpid(), "dataDir", dd.Root)
	if wroteDefault {
		log.Info("wrote default config", "path", dd.Config())
	}
	reportLastSignal(log, dd.LastSignal())

	pid, err := pidfile.Acquire(dd.PID())
	if err != nil {
		logger.Fail(log, "cannot start", "error", err)
		return err
	}
	defer pid.Release()

	seq := buildSequence(cfg, dd, log, pid.Release)
	b, err := bridge.Install(
		bridge.WithLogger(log),
		bridge.WithShutdown(seq.Run),
		bridge.WithTimeout(cfg.Timeout()),
		bridge.WithSharedTrigger(cfg.Signals.SharedTrigger),
		bridge.WithRespectIgnored(cfg.Signals.RespectIgnored),
	)
	if err != nil {
		return err
	}
	defer b.Close()

	sigs, err := cfg.WatchedSignals()
	if err != nil {
		return err
	}
	n, err := watchSignals(b, sigs, log)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("no signals watched: every configured signal is ignored")
	}

	var g run.Group
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			<-ctx.Done()
			return nil
		}, func(error) {
			cancel()
		})
	}
	{
		interrupts := b.Events().On(bridge.TopicInterrupt)
		g.Add(func() error {
			for e := range interrupts {
				sig, _ := bridge.SignalOf(e)
				log.Warn("interrupted, running cleanup", "signal", sig, "steps", seq.Len(), "timeout", cfg.Timeout())
			}
			return nil
		}, func(error) {
			b.Events().Off(bridge.TopicInterrupt, interrupts)
		})
	}
	{
		watcher, err := config.NewWatcher(dd.Config(), log)
		if err != nil {
			return err
		}
		stop := make(chan struct{})
		g.Add(func() error {
			for {
				select {
				case <-stop:
					return nil
				case <-watcher.Events():
					reload(b, level, cfg, dd.Config(), log)
				}
			}
		}, func(error) {
			close(stop)
			_ = watcher.Close()
		})
	}
	{
		if cfg.Metrics.Listen != "" {
			m := &metricServer{}
			g.Add(func() error {
				log.Info("serving metrics", "listen", cfg.Metrics.Listen)
				return m.ListenAndServe(cfg.Metrics.Listen)
			}, func(error) {
				_ = m.Shutdown(context.Background())
			})
		}
	}

	return g.Run()
}

// buildSequence assembles the cleanup run between the interrupt event and
// the re-raise. release frees the PID file, since deferred calls never run
// once the signal kills the process.
func buildSequence(cfg *config.Config, dd paths.DataDir, log *slog.Logger, release func() error) *shutdown.Sequence {
	seq := shutdown.New(log)
	if d := cfg.CleanupDelay(); d > 0 {
		seq.Add(shutdown.Delay(d))
	}
	if cfg.Shutdown.RecordLastSignal {
		seq.Add(shutdown.RecordSignal(dd.LastSignal()))
	}
	if len(cfg.Shutdown.Remove) > 0 {
		seq.Add(shutdown.RemoveGlobs(dd.Root, cfg.Shutdown.Remove))
	}
	if cfg.Shutdown.WebhookURL != "" {
		seq.Add(shutdown.Webhook(cfg.Shutdown.WebhookURL, nil))
	}
	if release != nil {
		seq.Add(shutdown.Func("release-pid", func(context.Context) error {
			return release()
		}))
	}
	return seq
}

// watchSignals watches each of sigs and returns how many are now watched.
// Signals refused because they are ignored are skipped.
func watchSignals(w signalWatcher, sigs []os.Signal, log *slog.Logger) (int, error) {
	n := 0
	for _, sig := range sigs {
		prev, err := w.Watch(sig)
		switch {
		case errors.Is(err, bridge.ErrIgnored):
			continue
		case err != nil:
			return n, err
		}
		if prev == bridge.Ignored {
			log.Warn("signal was ignored at startup and is now intercepted", "signal", sig)
		}
		n++
	}
	return n, nil
}

// reload applies a changed config file: the log level and the watched
// signal set. Other settings need a restart.
func reload(w signalWatcher, level *slog.LevelVar, running *config.Config, path string, log *slog.Logger) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		log.Warn("config reload failed, keeping current settings", "error", err)
		return
	}
	sigs, err := cfg.WatchedSignals()
	if err != nil {
		log.Warn("config reload failed, keeping current settings", "error", err)
		return
	}

	level.Set(logger.ParseLevel(cfg.Log.Level))

	want := make(map[os.Signal]bool, len(sigs))
	for _, sig := range sigs {
		want[sig] = true
	}
	for _, sig := range w.Watched() {
		if want[sig] {
			continue
		}
		if err := w.Unwatch(sig); err != nil {
			log.Warn("unwatch failed", "signal", sig, "error", err)
		}
	}
	if _, err := watchSignals(w, sigs, log); err != nil {
		log.Warn("watch failed", "error", err)
	}

	if cfg.Metrics.Listen != running.Metrics.Listen || cfg.Shutdown.TimeoutSeconds != running.Shutdown.TimeoutSeconds {
		log.Info("metrics and shutdown changes apply after restart")
	}
	log.Info("config reloaded", "level", cfg.Log.Level, "signals", len(sigs))
}

func reportLastSignal(log *slog.Logger, path string) {
	rec, err := shutdown.ReadLastSignal(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Debug("no previous signal recorded")
	case err != nil:
		log.Warn("cannot read last signal", "path", path, "error", err)
	default:
		log.Info("previous run ended by signal", "signal", rec.Signal, "pid", rec.PID, "at", rec.At)
	}
}
