package scan

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"authfuzz/internal/app"
	"authfuzz/internal/config"
	"authfuzz/pkg/hooks"
	"authfuzz/pkg/logger"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Options holds the scan command flags
type Options struct {
	Target      string
	BaseURL     string
	ScanID      string
	Strategies  string
	CapturePath string
	Verbose     bool
}

// NewScanCommand creates the scan command
func NewScanCommand() *cobra.Command {
	opts := &Options{}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run an attack scan against a target",
		Long: `Generate traffic for the target through the capture proxy, normalize the capture
log and run every attack strategy over it. The report is written to the reports
directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, app.Options{
				Verbose:     opts.Verbose,
				Strategies:  splitCSV(opts.Strategies),
				CapturePath: opts.CapturePath,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case sig := <-sigChan:
					a.Logger.WithFields(logger.Fields{
						"signal": sig.String(),
					}).Info("Received shutdown signal")
					cancel()
				case <-ctx.Done():
				}
			}()

			scanID := opts.ScanID
			if scanID == "" {
				scanID = uuid.New().String()
			}

			rep, err := a.Engine.Run(ctx, scanID, opts.Target, opts.BaseURL)
			if err != nil {
				a.Logger.WithScan(scanID).WithError(err).Error("Scan failed")
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Scan %s finished: %d finding(s)\n", scanID, rep.Total)
			fmt.Fprintf(cmd.OutOrStdout(), "Report: %s\n", filepath.Join(cfg.ReportsDir, scanID+".json"))
			return nil
		},
	}

	scanCmd.Flags().StringVarP(&opts.Target, "target", "t", "", "Target id with a registered traffic generator (required)")
	scanCmd.Flags().StringVarP(&opts.BaseURL, "base-url", "u", "", "Base URL of the target (required)")
	scanCmd.Flags().StringVar(&opts.ScanID, "scan-id", "", "Scan id (defaults to a random UUID)")
	scanCmd.Flags().StringVarP(&opts.Strategies, "strategies", "s", "", "Comma separated strategies to run (default all)")
	scanCmd.Flags().StringVar(&opts.CapturePath, "capture", "", "Capture log path (overrides config)")
	scanCmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable verbose logging")

	_ = scanCmd.MarkFlagRequired("target")
	_ = scanCmd.MarkFlagRequired("base-url")

	return scanCmd
}

// NewListTargetsCommand creates the list-targets command
func NewListTargetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-targets",
		Short: "List targets with a traffic generator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, app.Options{NoDatabase: true})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			targets := a.Configs.Targets()
			if len(targets) == 0 {
				fmt.Fprintf(out, "No targets found in %s\n", cfg.TargetsDir)
				return nil
			}

			fmt.Fprintln(out, "Available Targets:")
			fmt.Fprintln(out, "==================")
			for _, t := range targets {
				fmt.Fprintf(out, "\n• %s\n", t.Name)
				if t.File != "" {
					fmt.Fprintf(out, "  File: %s (%d steps)\n", t.File, t.Steps)
				}
			}
			fmt.Fprintf(out, "\nStrategies: %s\n", strings.Join(a.Configs.Strategies(), ", "))
			return nil
		},
	}
}

// NewListHooksCommand creates the list-hooks command
func NewListHooksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-hooks",
		Short: "List available post-scan hooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available Hooks:")
			fmt.Fprintln(out, "===============")
			for _, name := range hooks.Registered() {
				fmt.Fprintf(out, "\n• %s\n", name)
			}
			return nil
		},
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
