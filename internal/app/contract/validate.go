package contract

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var supportedPactVersions = map[string]bool{
	"2.0.0": true,
	"3.0.0": true,
	"4.0.0": true,
}

var validMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
	http.MethodConnect: true,
}

// ValidationError lists every structural problem found in a contract.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid contract: " + strings.Join(e.Problems, "; ")
}

// Validate checks a contract is structurally usable. It returns a *ValidationError
// or nil.
func Validate(ctx context.Context, c *Contract) error {
	if c == nil {
		return &ValidationError{Problems: []string{"contract is nil"}}
	}

	if c.OpenAPI != nil {
		if err := c.OpenAPI.Validate(ctx); err != nil {
			return &ValidationError{Problems: []string{err.Error()}}
		}
		return nil
	}

	var problems []string
	if c.ConsumerName == "" {
		problems = append(problems, "consumer name is required")
	}
	if c.ProviderName == "" {
		problems = append(problems, "provider name is required")
	}
	if c.SpecVersion != "" && !supportedPactVersions[c.SpecVersion] {
		problems = append(problems, fmt.Sprintf("unsupported pact specification version %q", c.SpecVersion))
	}
	if len(c.Interactions) == 0 {
		problems = append(problems, "contract has no interactions")
	}

	seen := map[string]bool{}
	for n, i := range c.Interactions {
		name := i.Description
		if name == "" {
			name = fmt.Sprintf("#%d", n)
			problems = append(problems, fmt.Sprintf("interaction %s has no description", name))
		} else if key := uniqueKey(i); seen[key] {
			problems = append(problems, fmt.Sprintf("duplicate interaction description %q", name))
		} else {
			seen[key] = true
		}

		if !validMethods[i.Request.Method] {
			problems = append(problems, fmt.Sprintf("interaction %q has invalid method %q", name, i.Request.Method))
		}
		if !strings.HasPrefix(i.Request.Path, "/") {
			problems = append(problems, fmt.Sprintf("interaction %q path %q must start with /", name, i.Request.Path))
		}
		if i.Response.Status < 100 || i.Response.Status > 599 {
			problems = append(problems, fmt.Sprintf("interaction %q has invalid response status %d", name, i.Response.Status))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// uniqueKey identifies an interaction within a pact: the same description may be
// recorded once per set of provider states.
func uniqueKey(i Interaction) string {
	states := make([]string, 0, len(i.ProviderStates))
	for _, s := range i.ProviderStates {
		states = append(states, s.Name)
	}
	sort.Strings(states)
	return i.Description + "\x00" + strings.Join(states, "\x00")
}
