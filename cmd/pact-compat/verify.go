package main

import (
	"fmt"
	"io"
	"time"

	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/form3tech-oss/pact-compat/internal/app/matrix"
	"github.com/form3tech-oss/pact-compat/internal/app/verifier"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var errVerificationFailed = errors.New("provider verification failed")

type verifyFlags struct {
	baseURL         string
	timeout         time.Duration
	retries         int
	retryDelay      time.Duration
	parallelism     int
	failFast        bool
	stateSetupURL   string
	stateCleanupURL string
	headers         map[string]string
	rate            float64
	target          recordTarget
	record          bool
	output          string
}

func newVerifyCmd() *cobra.Command {
	var f verifyFlags

	cmd := &cobra.Command{
		Use:   "verify <contract>...",
		Short: "Replay recorded interactions against a running provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, args, f)
		},
	}

	cmd.Flags().StringVarP(&f.baseURL, "base-url", "u", "", "Provider base URL (overrides PROVIDER_BASE_URL)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", verifier.DefaultTimeout, "Timeout per request attempt")
	cmd.Flags().IntVar(&f.retries, "retries", verifier.DefaultRetries, "Attempts per interaction")
	cmd.Flags().DurationVar(&f.retryDelay, "retry-delay", verifier.DefaultRetryDelay, "Wait between attempts")
	cmd.Flags().IntVarP(&f.parallelism, "parallelism", "p", 1, "Interactions replayed at once")
	cmd.Flags().BoolVar(&f.failFast, "fail-fast", false, "Stop after the first failed contract")
	cmd.Flags().StringVar(&f.stateSetupURL, "state-setup-url", "", "URL receiving provider state setup calls")
	cmd.Flags().StringVar(&f.stateCleanupURL, "state-cleanup-url", "", "URL receiving provider state cleanup calls")
	cmd.Flags().StringToStringVarP(&f.headers, "header", "H", nil, "Extra request header, e.g. -H Authorization='Bearer x'")
	cmd.Flags().Float64Var(&f.rate, "rate", 0, "Maximum requests per second, 0 for unlimited")
	cmd.Flags().StringVar(&f.target.providerVersion, "provider-version", "", "Provider version under test")
	cmd.Flags().StringVar(&f.target.consumerVersion, "consumer-version", "", "Consumer version to record, overriding the one in each contract")
	cmd.Flags().StringVar(&f.target.environment, "environment", "", "Matrix environment")
	cmd.Flags().BoolVar(&f.record, "record", false, "Record the results in the matrix file")
	cmd.Flags().StringVarP(&f.output, "output", "o", "text", "Output format: text or json")

	return cmd
}

func (f verifyFlags) apply(cmd *cobra.Command, opts verifier.Options) verifier.Options {
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		opts.ProviderBaseURL = f.baseURL
	}
	if flags.Changed("timeout") {
		opts.Timeout = f.timeout
	}
	if flags.Changed("retries") {
		opts.Retries = f.retries
	}
	if flags.Changed("retry-delay") {
		opts.RetryDelay = f.retryDelay
	}
	if flags.Changed("parallelism") {
		opts.Parallelism = f.parallelism
	}
	if flags.Changed("fail-fast") {
		opts.FailFast = f.failFast
	}
	if flags.Changed("state-setup-url") {
		opts.StateSetupURL = f.stateSetupURL
	}
	if flags.Changed("state-cleanup-url") {
		opts.StateCleanupURL = f.stateCleanupURL
	}
	if flags.Changed("rate") {
		opts.RatePerSecond = f.rate
	}
	if len(f.headers) > 0 {
		merged := make(map[string]string, len(opts.Headers)+len(f.headers))
		for k, v := range opts.Headers {
			merged[k] = v
		}
		for k, v := range f.headers {
			merged[k] = v
		}
		opts.Headers = merged
	}
	return opts
}

func runVerify(cmd *cobra.Command, paths []string, f verifyFlags) error {
	if f.record && f.target.providerVersion == "" {
		return errors.New("--record requires --provider-version")
	}

	contracts := make([]*contract.Contract, 0, len(paths))
	for _, p := range paths {
		c, err := contract.LoadFile(p)
		if err != nil {
			return err
		}
		if f.record {
			c = f.target.consumer(c)
			if c.ConsumerName == "" || c.ConsumerVersion == "" {
				return errors.Errorf("%s: --record needs a consumer name and version, set --consumer-version", p)
			}
		}
		contracts = append(contracts, c)
	}

	opts := f.apply(cmd, config.VerifyOptions())
	results, err := verifier.New(nil).Verify(cmd.Context(), contracts, opts)
	if err != nil {
		return err
	}

	if f.record {
		err := withMatrix(func(m *matrix.Matrix, store *matrix.FileStore) error {
			for i, r := range results {
				if _, err := m.RecordVerification(contracts[i], f.target.providerVersion, f.target.environment, r); err != nil {
					return err
				}
			}
			return store.Save(m)
		})
		if err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	if f.output == "json" {
		if err := printJSON(w, results); err != nil {
			return err
		}
	} else {
		displayResults(w, results)
	}

	for _, r := range results {
		if r.Status != contract.StatusPassed {
			return errVerificationFailed
		}
	}
	if len(results) < len(contracts) {
		return errVerificationFailed
	}
	return nil
}

func displayResults(w io.Writer, results []contract.ContractTestResult) {
	for _, r := range results {
		fmt.Fprintf(w, "%s: %s (%d/%d passed, %d skipped)\n",
			r.ContractID, r.Status, r.Summary.Passed, r.Summary.Total, r.Summary.Skipped)
		for _, i := range r.Interactions {
			if i.Status == contract.StatusPassed {
				continue
			}
			fmt.Fprintf(w, "  %s %s", i.Status, i.Description)
			if i.Error != "" {
				fmt.Fprintf(w, ": %s", i.Error)
			}
			fmt.Fprintln(w)
		}
		for _, e := range r.Errors {
			if e.Interaction == "" {
				fmt.Fprintf(w, "  %s error: %s\n", e.Type, e.Message)
			}
		}
	}
}
