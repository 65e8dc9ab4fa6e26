package main

import (
	"fmt"
	"io"

	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/form3tech-oss/pact-compat/internal/app/detector"
	"github.com/form3tech-oss/pact-compat/internal/app/matrix"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var errIncompatible = errors.New("new contract is not compatible")

func newCompareCmd() *cobra.Command {
	var (
		checkLevel string
		disabled   []string
		target     recordTarget
		output     string
	)

	cmd := &cobra.Command{
		Use:   "compare <old> <new>",
		Short: "Compare two versions of a contract",
		Long: "Compares two Pact or OpenAPI contract versions, classifies every change and " +
			"exits non-zero when the new version breaks existing consumers.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			detectOpts := config.DetectOptions()
			flags := cmd.Flags()
			if flags.Changed("check-level") {
				detectOpts.CheckLevel = detector.CheckLevel(checkLevel)
			}
			if flags.Changed("disable") {
				detectOpts.DisabledRules = disabled
			}
			for name, value := range map[string]*bool{
				"strict":            &detectOpts.StrictMode,
				"ignore-optional":   &detectOpts.IgnoreOptionalFields,
				"check-headers":     &detectOpts.CheckResponseHeaders,
				"validate-examples": &detectOpts.ValidateExamples,
				"validate-security": &detectOpts.ValidateSecurity,
			} {
				if flags.Changed(name) {
					*value, _ = flags.GetBool(name)
				}
			}
			return runCompare(cmd, args[0], args[1], detectOpts, target, output)
		},
	}

	cmd.Flags().StringVar(&checkLevel, "check-level", string(detector.LevelModerate), "Scoring level: strict, moderate or lenient")
	cmd.Flags().StringSliceVar(&disabled, "disable", nil, "Rule ids to skip")
	cmd.Flags().Bool("strict", false, "Report response headers the old contract did not have")
	cmd.Flags().Bool("ignore-optional", false, "Ignore optional fields")
	cmd.Flags().Bool("check-headers", false, "Compare response headers")
	cmd.Flags().Bool("validate-examples", false, "Report changed example values")
	cmd.Flags().Bool("validate-security", false, "Compare security requirements")
	cmd.Flags().StringVar(&target.providerVersion, "provider-version", "", "Record the result in the matrix for this provider version")
	cmd.Flags().StringVar(&target.consumerVersion, "consumer-version", "", "Consumer version to record, overriding the one in the old contract")
	cmd.Flags().StringVar(&target.environment, "environment", "", "Matrix environment")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text or json")

	return cmd
}

func runCompare(cmd *cobra.Command, oldPath, newPath string, opts detector.Options, target recordTarget, output string) error {
	old, err := contract.LoadFile(oldPath)
	if err != nil {
		return err
	}
	updated, err := contract.LoadFile(newPath)
	if err != nil {
		return err
	}

	report, err := detector.New(nil).Detect(old, updated, opts)
	if err != nil {
		return err
	}

	if target.providerVersion != "" {
		err := withMatrix(func(m *matrix.Matrix, store *matrix.FileStore) error {
			if _, err := m.RecordResult(target.consumer(old), target.providerVersion, target.environment, report.CompatibilityResult); err != nil {
				return err
			}
			return store.Save(m)
		})
		if err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	if output == "json" {
		if err := printJSON(w, report); err != nil {
			return err
		}
	} else {
		displayReport(w, report)
	}

	if !report.IsCompatible {
		return errIncompatible
	}
	return nil
}

func displayReport(w io.Writer, r *detector.Report) {
	status := "compatible"
	if !r.IsCompatible {
		status = "NOT compatible"
	}
	fmt.Fprintf(w, "%s (score %d, %s risk)\n", status, r.CompatibilityScore, r.Impact.RiskLevel)
	fmt.Fprintf(w, "recommended bump: %s", r.VersionBump)
	if r.NextVersion != "" {
		fmt.Fprintf(w, " (%s)", r.NextVersion)
	}
	fmt.Fprintln(w)

	if len(r.BreakingChanges) > 0 {
		fmt.Fprintf(w, "\nbreaking changes:\n")
		for _, c := range r.BreakingChanges {
			fmt.Fprintf(w, "  [%s] %s\n", c.Severity, c.Description)
		}
		fmt.Fprintf(w, "\nestimated migration: %s\n", r.Impact.EstimatedTime)
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintf(w, "\nwarnings:\n")
		for _, c := range r.Warnings {
			fmt.Fprintf(w, "  [%s] %s\n", c.Severity, c.Description)
		}
	}
}
