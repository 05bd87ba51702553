// Command vire-queue runs and administers the content/growth/underwriting
// job queue.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/domainpress/pipeline/internal/app"
	"github.com/domainpress/pipeline/internal/common"
)

var (
	configPath string
	instance   *app.App
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vire-queue",
		Short: "Run and administer the content/growth/underwriting job queue",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.NewApp(configPath)
			if err != nil {
				return fmt.Errorf("failed to initialize app: %w", err)
			}
			instance = a
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if instance != nil {
				instance.Close()
				instance = nil
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to pipeline.toml (defaults to PIPELINE_CONFIG or config/pipeline.toml)")

	root.AddCommand(newWorkerCmd(), newRetryCmd(), newCancelCmd(), newStatsCmd(), newHealthCmd(), newRestartIfDeadCmd(), newCredentialsCmd())
	return root
}

func newWorkerCmd() *cobra.Command {
	worker := &cobra.Command{
		Use:   "worker",
		Short: "Run the worker loop",
	}
	worker.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Start the worker, content scheduler, and maintenance scheduler, and block until a shutdown signal arrives",
		RunE: func(cmd *cobra.Command, args []string) error {
			common.PrintBanner(instance.Config, instance.Logger)
			if err := instance.Start(cmd.Context()); err != nil {
				return fmt.Errorf("start worker: %w", err)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			<-sigCh

			instance.Logger.Info().Msg("shutdown signal received")
			instance.Supervisor.RequestStop()
			instance.Supervisor.WaitForStop()
			return nil
		},
	})
	worker.AddCommand(&cobra.Command{
		Use:   "once",
		Short: "Acquire and process one batch of ready jobs, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := instance.Manager.RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("run once: %w", err)
			}
			fmt.Printf("processed %d job(s)\n", n)
			return nil
		},
	})
	return worker
}

func newRetryCmd() *cobra.Command {
	var mode string
	var limit int
	var minFailedAgeMinutes int
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Reset failed jobs back to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := instance.Manager.RetryFailedJobs(cmd.Context(), limit, mode, time.Duration(minFailedAgeMinutes)*time.Minute)
			if err != nil {
				return fmt.Errorf("retry failed jobs: %w", err)
			}
			fmt.Printf("retried %d job(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "all", `"all" resets attempts to 0; "transient" preserves attempts and only matches transient-error patterns`)
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum jobs to retry")
	cmd.Flags().IntVar(&minFailedAgeMinutes, "min-failed-age-minutes", 0, "only retry jobs that failed at least this long ago")
	return cmd
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending job (no-op on a job that is no longer pending)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := instance.Manager.CancelJob(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("cancel job %s: %w", args[0], err)
			}
			fmt.Printf("cancelled %s\n", args[0])
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print queue statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := instance.Manager.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}
			return printJSON(stats)
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print worker supervisor health as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(instance.Manager.GetWorkerHealth())
		},
	}
}

func newRestartIfDeadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart-if-dead",
		Short: "Probe the worker supervisor and relaunch it if it previously gave up after repeated crashes",
		RunE: func(cmd *cobra.Command, args []string) error {
			restarted := instance.Supervisor.RestartWorkerIfDead(cmd.Context())
			fmt.Printf("restarted=%v\n", restarted)
			return nil
		},
	}
}

func newCredentialsCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "credentials",
		Short: "Administer growth channel credentials",
	}

	var domainID, channel string
	set := &cobra.Command{
		Use:   "set",
		Short: "Hash and store a channel credential secret, read from VIRE_CHANNEL_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("VIRE_CHANNEL_SECRET")
			if secret == "" {
				return fmt.Errorf("VIRE_CHANNEL_SECRET is not set")
			}
			if channel == "" {
				return fmt.Errorf("--channel is required")
			}
			if err := instance.Storage.CredentialStore().SetSecret(cmd.Context(), domainID, channel, secret); err != nil {
				return fmt.Errorf("set channel credential: %w", err)
			}
			fmt.Printf("stored credential for domain=%q channel=%q\n", domainID, channel)
			return nil
		},
	}
	set.Flags().StringVar(&domainID, "domain-id", "", "domain research ID the credential belongs to (empty for an environment-wide credential)")
	set.Flags().StringVar(&channel, "channel", "", "growth channel name: youtube_shorts or pinterest")
	root.AddCommand(set)
	return root
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
