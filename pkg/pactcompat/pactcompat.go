// Package pactcompat is a client for the pact-compat admin API.
package pactcompat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type PactCompat struct {
	client http.Client
	url    string
}

func New(url string) *PactCompat {
	return &PactCompat{
		client: http.Client{
			Timeout: 30 * time.Second,
		},
		url: strings.TrimSuffix(url, "/"),
	}
}

// APIError is returned for every non-2xx answer from the admin API.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return e.Message
}

func (p *PactCompat) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		content, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
		reader = bytes.NewReader(content)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.url+path, reader)
	if err != nil {
		return err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	responseBody, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: res.StatusCode}
		if json.Unmarshal(responseBody, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(responseBody))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw = responseBody
		return nil
	}
	return errors.Wrap(json.Unmarshal(responseBody, out), "failed to parse response")
}

// Compare detects the changes between two contract documents, which may be Pact JSON
// or OpenAPI JSON or YAML.
func (p *PactCompat) Compare(ctx context.Context, old, new []byte, opts *DetectOptions) (*Report, error) {
	return p.CompareWithRequest(ctx, CompareRequest{
		Old:     document(old),
		New:     document(new),
		Options: opts,
	})
}

func (p *PactCompat) CompareWithRequest(ctx context.Context, req CompareRequest) (*Report, error) {
	var report Report
	if err := p.do(ctx, http.MethodPost, "/compare", req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Verify replays the contracts against the provider and returns one result per
// contract verified.
func (p *PactCompat) Verify(ctx context.Context, req VerifyRequest) ([]ContractTestResult, error) {
	var results []ContractTestResult
	if err := p.do(ctx, http.MethodPost, "/verify", req, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PactCompat) RecordEntry(ctx context.Context, entry MatrixEntry) (MatrixEntry, error) {
	var recorded MatrixEntry
	err := p.do(ctx, http.MethodPost, "/matrix", entry, &recorded)
	return recorded, err
}

// Export returns the matrix as a document Import accepts.
func (p *PactCompat) Export(ctx context.Context) ([]byte, error) {
	var data []byte
	if err := p.do(ctx, http.MethodGet, "/matrix/export", nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (p *PactCompat) Import(ctx context.Context, data []byte) (int, error) {
	var res struct {
		Imported int `json:"imported"`
	}
	err := p.do(ctx, http.MethodPost, "/matrix/import", data, &res)
	return res.Imported, err
}

// Reset removes every matrix entry.
func (p *PactCompat) Reset(ctx context.Context) error {
	return p.do(ctx, http.MethodDelete, "/matrix", nil, nil)
}

// document keeps JSON documents as they are and sends anything else, such as YAML,
// as a JSON string.
func document(data []byte) json.RawMessage {
	if json.Valid(data) {
		return data
	}
	quoted, _ := json.Marshal(string(data))
	return quoted
}
