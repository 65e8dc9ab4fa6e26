// Package main provides the pact-compat command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/form3tech-oss/pact-compat/internal/app/configuration"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0-dev"
	configPath string
	matrixFile string
	config     configuration.Config
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pact-compat",
		Short:         "Detect breaking API contract changes and verify providers against recorded interactions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			config, err = configuration.Load(configPath)
			if err != nil {
				return err
			}
			if matrixFile != "" {
				config.MatrixFile = matrixFile
			}
			return configuration.ConfigureLogging(config)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&matrixFile, "matrix-file", "", "Compatibility matrix file (overrides MATRIX_FILE)")

	rootCmd.AddCommand(
		newCompareCmd(),
		newVerifyCmd(),
		newMatrixCmd(),
		newServeCmd(),
	)

	return rootCmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
