package spray

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"authfuzz/internal/app"
	"authfuzz/internal/config"
	"authfuzz/internal/services"
	"authfuzz/pkg/report"

	"github.com/spf13/cobra"
)

type Options struct {
	Mode          string
	BaseURL       string
	LoginPath     string
	Username      string
	CheckPath     string
	Limit         int
	Attempts      int
	SessionCookie string
	Verbose       bool
}

// NewSprayCommand creates the spray command
func NewSprayCommand() *cobra.Command {
	opts := &Options{}

	sprayCmd := &cobra.Command{
		Use:   "spray",
		Short: "Run a credential spray against a login form",
		Long: `Spray passwords, JWT variants or a fixed session id against the target. Every
attempt is appended to the results file used by the metrics command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, app.Options{Verbose: opts.Verbose, NoDatabase: true})
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sum, err := a.Spray.Run(ctx, services.SprayRequest{
				Mode:          opts.Mode,
				BaseURL:       opts.BaseURL,
				LoginPath:     opts.LoginPath,
				Username:      opts.Username,
				CheckPath:     opts.CheckPath,
				Limit:         opts.Limit,
				Attempts:      opts.Attempts,
				SessionCookie: firstNonEmpty(opts.SessionCookie, cfg.Spray.SessionCookie),
			})
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d attempts, %d successful, %d errors (results: %s)\n",
				sum.Mode, sum.Attempts, sum.Successful, sum.Errors, cfg.ResultsFile)
			return err
		},
	}

	sprayCmd.Flags().StringVarP(&opts.Mode, "mode", "m", "password", "Spray mode: password, jwt or fixation")
	sprayCmd.Flags().StringVarP(&opts.BaseURL, "base-url", "u", "", "Base URL of the target (required)")
	sprayCmd.Flags().StringVar(&opts.LoginPath, "login-path", "", "Login form path (overrides config)")
	sprayCmd.Flags().StringVar(&opts.Username, "username", "", "Username to spray (overrides config)")
	sprayCmd.Flags().StringVar(&opts.CheckPath, "check-path", "", "Authenticated page checked by jwt and fixation modes")
	sprayCmd.Flags().IntVarP(&opts.Limit, "limit", "l", 200, "Maximum payloads to try")
	sprayCmd.Flags().IntVar(&opts.Attempts, "attempts", 5, "Fixation attempts")
	sprayCmd.Flags().StringVar(&opts.SessionCookie, "session-cookie", "", "Planted session cookie as NAME=value")
	sprayCmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable verbose logging")
	_ = sprayCmd.MarkFlagRequired("base-url")

	return sprayCmd
}

// NewMetricsCommand creates the metrics command
func NewMetricsCommand() *cobra.Command {
	var results string

	metricsCmd := &cobra.Command{
		Use:   "metrics",
		Short: "Compute success-rate metrics from a results file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			if results == "" {
				cfg, err := config.LoadConfig()
				if err != nil {
					return err
				}
				results = cfg.ResultsFile
			}

			attempts, err := report.LoadAttempts(results)
			if err != nil {
				return err
			}
			m := report.ComputeMetrics(attempts)
			if len(attempts) == 0 {
				m.Notes = "no attempts in " + results
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		},
	}

	metricsCmd.Flags().StringVarP(&results, "results", "r", "", "Results file (defaults to the configured results_file)")
	return metricsCmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
