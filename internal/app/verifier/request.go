package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/pkg/errors"
)

const contentTypeJSON = "application/json"

func newRequest(ctx context.Context, base *url.URL, r contract.Request, extra map[string]string) (*http.Request, error) {
	target := *base
	target.Path = strings.TrimSuffix(base.Path, "/") + r.Path
	target.RawPath = ""
	if len(r.Query) > 0 {
		target.RawQuery = url.Values(r.Query).Encode()
	}

	body, contentType, err := encodeBody(r)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(r.Method), target.String(), body)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create provider request")
	}

	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
	return req, nil
}

func encodeBody(r contract.Request) (io.Reader, string, error) {
	switch b := r.Body.(type) {
	case nil:
		return nil, "", nil
	case string:
		if !isJSON(r.Headers) {
			return strings.NewReader(b), "", nil
		}
	}

	data, err := json.Marshal(r.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "unable to encode request body")
	}
	return bytes.NewReader(data), contentTypeJSON, nil
}

func isJSON(headers map[string]string) bool {
	for k, v := range headers {
		if strings.EqualFold(k, "Content-Type") {
			return strings.Contains(strings.ToLower(v), "json")
		}
	}
	return false
}

func (r *run) send(ctx context.Context, i contract.Interaction) (*contract.ActualResponse, error) {
	req, err := newRequest(ctx, r.base, i.Request, r.opts.Headers)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read provider response")
	}

	return &contract.ActualResponse{
		Status:  resp.StatusCode,
		Headers: flattenHeaders(resp.Header),
		Body:    decodeBody(data),
	}, nil
}

func flattenHeaders(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for k, v := range h {
		headers[k] = strings.Join(v, ", ")
	}
	return headers
}

// decodeBody returns the parsed JSON document, the raw text when the body is not
// JSON, or nil for an empty body.
func decodeBody(data []byte) interface{} {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var body interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return string(data)
	}
	return body
}
