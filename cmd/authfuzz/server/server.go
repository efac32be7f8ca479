package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"authfuzz/api/routes"
	"authfuzz/internal/app"
	"authfuzz/internal/config"
	"authfuzz/pkg/logger"

	"github.com/spf13/cobra"
)

type ServerOpts struct {
	Port    int
	Ip      string
	Verbose bool
}

func NewServerCommand() *cobra.Command {
	serverConfig := &ServerOpts{}

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the authfuzz API server",
		Long:  `Start the authfuzz server to run scans and sprays over a REST API`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, app.Options{Verbose: serverConfig.Verbose})
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			router := routes.InitRouter(routes.Services{
				Scans:   a.Scans,
				Configs: a.Configs,
				Spray:   a.Spray,
				Metrics: a.Metrics,
			})

			srv := &http.Server{
				Addr:              fmt.Sprintf("%s:%d", serverConfig.Ip, serverConfig.Port),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errChan := make(chan error, 1)
			go func() {
				a.Logger.WithFields(logger.Fields{"addr": srv.Addr}).Info("API server listening")
				errChan <- srv.ListenAndServe()
			}()

			select {
			case err := <-errChan:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
				a.Logger.Info("Shutting down API server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	serverCmd.Flags().IntVarP(&serverConfig.Port, "port", "p", 8080, "Port to run the server on")
	serverCmd.Flags().StringVarP(&serverConfig.Ip, "ip", "i", "localhost", "IP address to bind the server to")
	serverCmd.Flags().BoolVarP(&serverConfig.Verbose, "verbose", "v", false, "Enable verbose logging")

	return serverCmd
}
