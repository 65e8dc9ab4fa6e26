package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/form3tech-oss/pact-compat/internal/app/matrix"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var errNoMatrixFile = errors.New("no matrix file configured, use --matrix-file or MATRIX_FILE")

// recordTarget says where compare and verify results go in the matrix.
type recordTarget struct {
	consumerVersion string
	providerVersion string
	environment     string
}

// consumer returns c with the consumer version overridden, when one was given.
func (t recordTarget) consumer(c *contract.Contract) *contract.Contract {
	if t.consumerVersion == "" {
		return c
	}
	cp := *c
	cp.ConsumerVersion = t.consumerVersion
	return &cp
}

// withMatrix loads the configured matrix file and hands it to fn.
func withMatrix(fn func(m *matrix.Matrix, store *matrix.FileStore) error) error {
	if config.MatrixFile == "" {
		return errNoMatrixFile
	}
	store := matrix.NewFileStore(config.MatrixFile)
	m := matrix.New(nil)
	if _, err := store.Load(m); err != nil {
		return err
	}
	return fn(m, store)
}

func newMatrixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Inspect and maintain the compatibility matrix file",
	}
	cmd.AddCommand(
		newMatrixListCmd(),
		newMatrixStaleCmd(),
		newMatrixPruneCmd(),
		newMatrixExportCmd(),
		newMatrixImportCmd(),
	)
	return cmd
}

func newMatrixListCmd() *cobra.Command {
	var f matrix.Filter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List matrix entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMatrix(func(m *matrix.Matrix, _ *matrix.FileStore) error {
				displayEntries(cmd, m.Query(f))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&f.Consumer, "consumer", "", "Consumer name")
	cmd.Flags().StringVar(&f.Provider, "provider", "", "Provider name")
	cmd.Flags().StringVar(&f.Environment, "environment", "", "Environment")
	cmd.Flags().IntVar(&f.MinScore, "min-score", 0, "Minimum compatibility score")
	cmd.Flags().BoolVar(&f.IncludePreRelease, "include-prerelease", false, "Include pre-release versions")

	return cmd
}

func newMatrixStaleCmd() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List entries not tested recently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMatrix(func(m *matrix.Matrix, _ *matrix.FileStore) error {
				displayEntries(cmd, m.GetStaleEntries(staleAge(cmd, maxAge)))
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", matrix.DefaultStaleAge, "Age after which an entry is stale")
	return cmd
}

func newMatrixPruneCmd() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete entries not tested recently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMatrix(func(m *matrix.Matrix, store *matrix.FileStore) error {
				n := m.PruneStale(staleAge(cmd, maxAge))
				if err := store.Save(m); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries\n", n)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", matrix.DefaultStaleAge, "Age after which an entry is stale")
	return cmd
}

func newMatrixExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the matrix document to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMatrix(func(m *matrix.Matrix, _ *matrix.FileStore) error {
				data, err := m.Export()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}
}

func newMatrixImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge an exported matrix document into the matrix file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "read matrix document")
			}
			return withMatrix(func(m *matrix.Matrix, store *matrix.FileStore) error {
				n, err := m.Import(data)
				if err != nil {
					return err
				}
				if err := store.Save(m); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries\n", n)
				return nil
			})
		},
	}
}

// staleAge prefers --max-age, then MATRIX_STALE_AFTER.
func staleAge(cmd *cobra.Command, maxAge time.Duration) time.Duration {
	if cmd.Flags().Changed("max-age") || config.StaleAfter <= 0 {
		return maxAge
	}
	return config.StaleAfter
}

func displayEntries(cmd *cobra.Command, entries []contract.MatrixEntry) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONSUMER\tPROVIDER\tENV\tCOMPATIBLE\tSCORE\tLAST TESTED")
	for _, e := range entries {
		env := e.Environment
		if env == "" {
			env = contract.DefaultEnvironment
		}
		fmt.Fprintf(w, "%s@%s\t%s@%s\t%s\t%t\t%d\t%s\n",
			e.ConsumerName, e.ConsumerVersion, e.ProviderName, e.ProviderVersion,
			env, e.IsCompatible, e.CompatibilityScore, e.LastTested.Format(time.RFC3339))
	}
	w.Flush()
}
