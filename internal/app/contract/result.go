package contract

import (
	"strings"
	"time"
)

// CompatibilityResult is the outcome of comparing two contract versions.
// IsCompatible is true exactly when BreakingChanges is empty.
type CompatibilityResult struct {
	IsCompatible       bool     `json:"isCompatible"`
	BreakingChanges    []Change `json:"breakingChanges"`
	Warnings           []Change `json:"warnings"`
	CompatibilityScore int      `json:"compatibilityScore"`
}

type TestStatus string

const (
	StatusPassed  TestStatus = "passed"
	StatusFailed  TestStatus = "failed"
	StatusPending TestStatus = "pending"
	StatusSkipped TestStatus = "skipped"
)

type ErrorType string

const (
	ErrorValidation ErrorType = "validation"
	ErrorNetwork    ErrorType = "network"
	ErrorTimeout    ErrorType = "timeout"
	ErrorSchema     ErrorType = "schema"
)

type ContractError struct {
	Type        ErrorType `json:"type"`
	Message     string    `json:"message"`
	Interaction string    `json:"interaction,omitempty"`
}

type TestSummary struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Skipped  int     `json:"skipped"`
	PassRate float64 `json:"passRate"`
}

// ActualResponse is what the provider returned for a replayed request.
type ActualResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    interface{}       `json:"body,omitempty"`
}

type InteractionTestResult struct {
	Description      string          `json:"description"`
	Status           TestStatus      `json:"status"`
	Request          Request         `json:"request"`
	ExpectedResponse Response        `json:"expectedResponse"`
	ActualResponse   *ActualResponse `json:"actualResponse,omitempty"`
	Error            string          `json:"error,omitempty"`
	// Duration in milliseconds.
	Duration int64 `json:"duration"`
}

// ContractTestResult is produced once per contract per verification run.
type ContractTestResult struct {
	ContractID   string                  `json:"contractId"`
	RunID        string                  `json:"runId,omitempty"`
	Status       TestStatus              `json:"status"`
	Interactions []InteractionTestResult `json:"interactions"`
	Errors       []ContractError         `json:"errors"`
	Summary      TestSummary             `json:"summary"`
}

// Summarize recomputes Summary from Interactions.
func (r *ContractTestResult) Summarize() {
	s := TestSummary{Total: len(r.Interactions)}
	for _, i := range r.Interactions {
		switch i.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	if s.Total > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Total) * 100
	}
	r.Summary = s
}

const DefaultEnvironment = "default"

// MatrixEntry records the latest known compatibility between a consumer version and a provider version.
type MatrixEntry struct {
	ConsumerName       string    `json:"consumerName"`
	ConsumerVersion    string    `json:"consumerVersion"`
	ProviderName       string    `json:"providerName"`
	ProviderVersion    string    `json:"providerVersion"`
	IsCompatible       bool      `json:"isCompatible"`
	CompatibilityScore int       `json:"compatibilityScore"`
	LastTested         time.Time `json:"lastTested"`
	Environment        string    `json:"environment,omitempty"`
}

// Key is consumer@cVersion:provider@pVersion:env, env defaulting to "default".
func (e MatrixEntry) Key() string {
	return MatrixKey(e.ConsumerName, e.ConsumerVersion, e.ProviderName, e.ProviderVersion, e.Environment)
}

func MatrixKey(consumer, consumerVersion, provider, providerVersion, env string) string {
	if env == "" {
		env = DefaultEnvironment
	}
	return strings.Join([]string{
		consumer + "@" + consumerVersion,
		provider + "@" + providerVersion,
		env,
	}, ":")
}
