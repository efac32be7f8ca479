package main

import (
	"context"

	"authfuzz/cmd/authfuzz/scan"
	"authfuzz/cmd/authfuzz/server"
	"authfuzz/cmd/authfuzz/spray"

	"github.com/spf13/cobra"
)

func Execute() error {
	var rootCmd = &cobra.Command{
		Use:   "authfuzz",
		Short: "Authentication attack scanner for lab web applications",
		Long: `authfuzz replays captured authenticated traffic against a target and probes it
for JWT replay, JWT role escalation and session fixation weaknesses.`,
	}

	rootCmd.AddCommand(scan.NewScanCommand())
	rootCmd.AddCommand(scan.NewListTargetsCommand())
	rootCmd.AddCommand(scan.NewListHooksCommand())
	rootCmd.AddCommand(spray.NewSprayCommand())
	rootCmd.AddCommand(spray.NewMetricsCommand())
	rootCmd.AddCommand(server.NewServerCommand())
	return rootCmd.ExecuteContext(context.Background())
}
