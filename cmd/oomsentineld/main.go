// Command oomsentineld is a privileged Linux daemon that watches free
// memory and free swap and kills the least-essential process before the
// kernel's own OOM killer engages.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/quietmem/oomsentinel/pkg/config"
	"github.com/quietmem/oomsentinel/pkg/daemon"
	"github.com/quietmem/oomsentinel/pkg/hooks"
	"github.com/quietmem/oomsentinel/pkg/killer"
	"github.com/quietmem/oomsentinel/pkg/logging"
	"github.com/quietmem/oomsentinel/pkg/notify"
	"github.com/quietmem/oomsentinel/pkg/selfguard"
	"github.com/quietmem/oomsentinel/pkg/telemetry"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "oomsentineld",
	Short:   "Kill memory-hungry processes before the kernel OOM killer does",
	Version: version,
	// Configuration is layered by pkg/config.Load itself (environment then
	// flags); cobra here supplies only the process entry point, --help, and
	// --version, so DisableFlagParsing hands the raw args straight through.
	DisableFlagParsing: true,
	RunE:               run,
}

func main() {
	if _, err := maxprocs.Set(); err != nil {
		fmt.Fprintf(os.Stderr, "oomsentineld: automaxprocs: %v\n", err)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "oomsentineld: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	for _, a := range args {
		if a == "-h" || a == "--help" {
			return cmd.Help()
		}
		if a == "--version" {
			fmt.Println(version)
			return nil
		}
	}

	cfg, err := config.Load(os.Environ(), args)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := logging.New(logging.Config{Debug: cfg.Debug, Format: cfg.LogFormat, Output: os.Stderr})

	if err := selfguard.Apply(cfg.Priority); err != nil {
		logger.Warn("self-protection degraded", map[string]any{"error": err.Error()})
	}
	if err := selfguard.SetGoMemLimit(); err != nil {
		logger.Warn("go memory limit not applied", map[string]any{"error": err.Error()})
	}

	tel := telemetry.New()
	k := &killer.Killer{ProcRoot: "/proc", KillProcessGroup: cfg.KillProcessGroup, DryRun: cfg.DryRun, Logger: logger}
	h := &hooks.Runner{Logger: logger}
	n := &notify.Notifier{Enabled: cfg.Notify, Logger: logger}

	sup := daemon.New(cfg, logger, tel, k, h, n)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("oomsentineld starting", map[string]any{"version": version, "dry_run": cfg.DryRun})
	sup.Run(ctx)
	logger.Info("oomsentineld exiting", nil)
	return nil
}
