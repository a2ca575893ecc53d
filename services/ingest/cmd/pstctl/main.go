package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"vericase/internal/util"
)

func main() {
	var logLevel string
	rootCmd := &cobra.Command{
		Use:           "pstctl",
		Short:         "Operate the PST ingestion worker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.InitLogger(logLevel, "pstctl")
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newInspectCmd(), newEnqueueCmd(), newStatusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
