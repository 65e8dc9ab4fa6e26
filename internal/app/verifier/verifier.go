// Package verifier replays recorded interactions against a running provider and reports,
// per contract, which interactions the provider still satisfies.
//
// Interactions that share a provider state name may run at the same time when
// Parallelism is above one. Isolating them is up to the provider under test.
package verifier

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/form3tech-oss/pact-compat/internal/app/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	ErrInvalidBaseURL      = errors.New("invalid provider base url")
	ErrProviderUnreachable = errors.New("provider unreachable")
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultRetries    = 3
	DefaultRetryDelay = time.Second
)

// Hook runs around every interaction. A BeforeEach error fails the interaction, an
// AfterEach error is only logged.
type Hook func(ctx context.Context, i contract.Interaction) error

type Options struct {
	ProviderBaseURL string
	// Timeout applies to each request on its own, including state setup and cleanup.
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	// Parallelism is the size of the batches of interactions run concurrently.
	Parallelism     int
	FailFast        bool
	StateHandlers   map[string]StateHandler
	StateSetupURL   string
	StateCleanupURL string
	BeforeEach      Hook
	AfterEach       Hook
	// RatePerSecond limits provider requests across the run. Zero means no limit.
	RatePerSecond float64
	// Headers are added to every request, replacing those recorded in the interaction.
	Headers map[string]string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retries <= 0 {
		o.Retries = 1
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.Parallelism < 1 {
		o.Parallelism = 1
	}
	return o
}

type Verifier struct {
	client  *http.Client
	timer   retry.Timer
	metrics *metrics.Metrics
}

type Option func(*Verifier)

func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) {
		v.client = c
	}
}

// WithTimer replaces the clock used to wait between retries.
func WithTimer(t retry.Timer) Option {
	return func(v *Verifier) {
		v.timer = t
	}
}

// New returns a Verifier. m may be nil.
func New(m *metrics.Metrics, opts ...Option) *Verifier {
	v := &Verifier{
		client:  &http.Client{},
		timer:   realTimer{},
		metrics: m,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type run struct {
	id      string
	client  *http.Client
	timer   retry.Timer
	metrics *metrics.Metrics
	opts    Options
	base    *url.URL
	limiter *rate.Limiter
}

// Verify replays every contract in order. Problems with a contract or an interaction are
// reported in the results; an error is only returned when the provider base URL is
// invalid or nothing is listening on it.
func (v *Verifier) Verify(ctx context.Context, contracts []*contract.Contract, opts Options) ([]contract.ContractTestResult, error) {
	opts = opts.withDefaults()

	base, err := parseBaseURL(opts.ProviderBaseURL)
	if err != nil {
		return nil, err
	}
	if err := ping(ctx, base, opts.Timeout); err != nil {
		return nil, err
	}

	r := &run{
		id:      uuid.NewString(),
		client:  v.client,
		timer:   v.timer,
		metrics: v.metrics,
		opts:    opts,
		base:    base,
	}
	if opts.RatePerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}

	logger := log.WithFields(log.Fields{"run": r.id, "provider": base.String()})
	logger.Infof("verifying %d contract(s)", len(contracts))

	results := make([]contract.ContractTestResult, 0, len(contracts))
	for _, c := range contracts {
		result := r.verifyContract(ctx, c)
		results = append(results, result)
		if opts.FailFast && result.Status == contract.StatusFailed {
			logger.WithFields(log.Fields{"contract": result.ContractID}).Warn("stopping verification after failed contract")
			break
		}
	}
	return results, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidBaseURL, "%q: %v", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Wrapf(ErrInvalidBaseURL, "%q", raw)
	}
	return u, nil
}

func ping(ctx context.Context, base *url.URL, timeout time.Duration) error {
	host := base.Host
	if base.Port() == "" {
		port := "80"
		if base.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(base.Hostname(), port)
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return errors.Wrapf(ErrProviderUnreachable, "%s: %v", host, err)
	}
	return conn.Close()
}

func (r *run) verifyContract(ctx context.Context, c *contract.Contract) contract.ContractTestResult {
	result := contract.ContractTestResult{
		RunID:        r.id,
		Status:       contract.StatusPending,
		Interactions: []contract.InteractionTestResult{},
		Errors:       []contract.ContractError{},
	}
	if c != nil {
		result.ContractID = c.ID()
	}
	logger := log.WithFields(log.Fields{"run": r.id, "contract": result.ContractID})

	err := contract.Validate(ctx, c)
	if err == nil && c.Format() == contract.FormatOpenAPI {
		err = errors.New("openapi contracts have no recorded interactions to replay")
	}
	if err != nil {
		logger.WithError(err).Warn("skipping invalid contract")
		result.Status = contract.StatusFailed
		if c != nil {
			for _, i := range c.Interactions {
				result.Interactions = append(result.Interactions, contract.InteractionTestResult{
					Description:      i.Description,
					Status:           contract.StatusSkipped,
					Request:          i.Request,
					ExpectedResponse: i.Response,
				})
			}
		}
		result.Errors = append(result.Errors, contract.ContractError{Type: contract.ErrorValidation, Message: err.Error()})
		result.Summarize()
		r.metrics.ContractVerified(string(result.Status))
		return result
	}

	interactions, types := r.verifyInteractions(ctx, c.Interactions)
	result.Interactions = interactions
	result.Status = contract.StatusPassed
	for n, i := range interactions {
		if i.Status != contract.StatusFailed {
			continue
		}
		result.Status = contract.StatusFailed
		result.Errors = append(result.Errors, contract.ContractError{
			Type:        types[n],
			Message:     i.Error,
			Interaction: i.Description,
		})
	}
	result.Summarize()

	r.metrics.ContractVerified(string(result.Status))
	logger.Infof("contract %s: %d/%d interactions passed", result.Status, result.Summary.Passed, result.Summary.Total)
	return result
}

// verifyInteractions runs the interactions in batches of Parallelism. A batch starts
// once the previous one has finished. Results keep the order of the interactions.
func (r *run) verifyInteractions(ctx context.Context, interactions []contract.Interaction) ([]contract.InteractionTestResult, []contract.ErrorType) {
	results := make([]contract.InteractionTestResult, len(interactions))
	types := make([]contract.ErrorType, len(interactions))

	for start := 0; start < len(interactions); start += r.opts.Parallelism {
		end := min(start+r.opts.Parallelism, len(interactions))

		var g errgroup.Group
		for n := start; n < end; n++ {
			n := n
			g.Go(func() error {
				results[n], types[n] = r.verifyInteraction(ctx, interactions[n])
				return nil
			})
		}
		_ = g.Wait()
	}
	return results, types
}

func (r *run) verifyInteraction(ctx context.Context, i contract.Interaction) (result contract.InteractionTestResult, errType contract.ErrorType) {
	start := time.Now()
	result = contract.InteractionTestResult{
		Description:      i.Description,
		Status:           contract.StatusPending,
		Request:          i.Request,
		ExpectedResponse: i.Response,
	}
	logger := log.WithFields(log.Fields{"run": r.id, "interaction": i.Description})

	defer func() {
		elapsed := time.Since(start)
		result.Duration = elapsed.Milliseconds()
		r.metrics.InteractionVerified(string(result.Status), elapsed)
		logger.Debugf("interaction %s in %s", result.Status, elapsed)
	}()

	fail := func(t contract.ErrorType, msg string) (contract.InteractionTestResult, contract.ErrorType) {
		result.Status = contract.StatusFailed
		result.Error = msg
		return result, t
	}

	states, err := r.setupStates(ctx, i.ProviderStates)
	defer r.cleanupStates(ctx, states)
	if err != nil {
		return fail(classify(err), "state setup failed: "+err.Error())
	}

	if r.opts.BeforeEach != nil {
		if err := r.opts.BeforeEach(ctx, i); err != nil {
			return fail(classify(err), "before hook failed: "+err.Error())
		}
	}

	actual, err := r.retryFor(ctx, func(ctx context.Context) (*contract.ActualResponse, error) {
		return r.send(ctx, i)
	})
	if err != nil {
		return fail(classify(err), err.Error())
	}
	result.ActualResponse = actual

	if problems := matchResponse(i.Response, actual); len(problems) > 0 {
		result.Status = contract.StatusFailed
		result.Error = strings.Join(problems, "; ")
		errType = contract.ErrorSchema
	} else {
		result.Status = contract.StatusPassed
	}

	if r.opts.AfterEach != nil {
		if err := r.opts.AfterEach(ctx, i); err != nil {
			logger.WithError(err).Warn("after hook failed")
		}
	}
	return result, errType
}

func classify(err error) contract.ErrorType {
	if errors.Is(err, context.DeadlineExceeded) {
		return contract.ErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return contract.ErrorTimeout
	}
	return contract.ErrorNetwork
}
