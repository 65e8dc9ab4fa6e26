package verifier

import (
	"testing"

	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/stretchr/testify/assert"
)

func TestMatchBody(t *testing.T) {
	tests := []struct {
		name     string
		expected interface{}
		actual   string
		rules    map[string]interface{}
		problems []string
	}{
		{
			name:     "extra properties are allowed",
			expected: map[string]interface{}{"id": 1, "name": "a"},
			actual:   `{"id": 1, "name": "a", "extra": true}`,
		},
		{
			name:     "missing property",
			expected: map[string]interface{}{"id": 1, "name": "a"},
			actual:   `{"id": 1}`,
			problems: []string{"name: property missing"},
		},
		{
			name:     "type mismatch",
			expected: map[string]interface{}{"id": 1},
			actual:   `{"id": "1"}`,
			problems: []string{"id: expected number, got string"},
		},
		{
			name:     "nested value mismatch",
			expected: map[string]interface{}{"customer": map[string]interface{}{"name": "a"}},
			actual:   `{"customer": {"name": "b", "age": 3}}`,
			problems: []string{`customer.name: expected "a", got "b"`},
		},
		{
			name:     "array length must match",
			expected: map[string]interface{}{"items": []interface{}{1, 2}},
			actual:   `{"items": [1]}`,
			problems: []string{"items: expected 2 items, got 1"},
		},
		{
			name:     "array elements are matched in order",
			expected: map[string]interface{}{"items": []interface{}{map[string]interface{}{"id": 1}, map[string]interface{}{"id": 2}}},
			actual:   `{"items": [{"id": 1, "sku": "x"}, {"id": 3}]}`,
			problems: []string{"items[1].id: expected 2, got 3"},
		},
		{
			name:     "body of the wrong type",
			expected: map[string]interface{}{"id": 1},
			actual:   `"ok"`,
			problems: []string{"body: expected object, got string"},
		},
		{
			name:     "text body",
			expected: "pong",
			actual:   `pong`,
		},
		{
			name:     "type matcher accepts other values",
			expected: map[string]interface{}{"id": 1, "name": "a"},
			actual:   `{"id": 42, "name": "a"}`,
			rules:    map[string]interface{}{"$.body.id": map[string]interface{}{"match": "type"}},
		},
		{
			name:     "type matcher rejects other types",
			expected: map[string]interface{}{"id": 1},
			actual:   `{"id": "42"}`,
			rules:    map[string]interface{}{"$.body.id": map[string]interface{}{"match": "type"}},
			problems: []string{"id: expected number, got string"},
		},
		{
			name:     "type matcher on a missing property",
			expected: map[string]interface{}{"id": 1},
			actual:   `{}`,
			rules:    map[string]interface{}{"$.body.id": map[string]interface{}{"match": "type"}},
			problems: []string{"id: property missing"},
		},
		{
			name:     "regex matcher",
			expected: map[string]interface{}{"ref": "ORD-1"},
			actual:   `{"ref": "ORD-981"}`,
			rules: map[string]interface{}{
				"body": map[string]interface{}{
					"$.ref": map[string]interface{}{"matchers": []interface{}{map[string]interface{}{"match": "regex", "regex": "^ORD-[0-9]+$"}}},
				},
			},
		},
		{
			name:     "regex matcher mismatch",
			expected: map[string]interface{}{"ref": "ORD-1"},
			actual:   `{"ref": "X"}`,
			rules:    map[string]interface{}{"$.body.ref": map[string]interface{}{"regex": "^ORD-[0-9]+$"}},
			problems: []string{`ref: "X" does not match "^ORD-[0-9]+$"`},
		},
		{
			name:     "wildcard type matcher",
			expected: map[string]interface{}{"items": []interface{}{map[string]interface{}{"id": 1}}},
			actual:   `{"items": [{"id": 7}]}`,
			rules:    map[string]interface{}{"$.body.items[*].id": map[string]interface{}{"match": "type"}},
		},
		{
			name:     "regex matcher on a missing property",
			expected: map[string]interface{}{"id": 1, "ref": "ORD-1"},
			actual:   `{"id": 1}`,
			rules: map[string]interface{}{
				"body": map[string]interface{}{
					"$.ref": map[string]interface{}{"matchers": []interface{}{map[string]interface{}{"match": "regex", "regex": "^ORD-[0-9]+$"}}},
				},
			},
			problems: []string{"ref: property missing"},
		},
		{
			name:     "wildcard type matcher on a missing property",
			expected: map[string]interface{}{"items": []interface{}{map[string]interface{}{"id": 1}}},
			actual:   `{"items": [{"sku": "x"}]}`,
			rules:    map[string]interface{}{"$.body.items[*].id": map[string]interface{}{"match": "type"}},
			problems: []string{"items[0].id: property missing"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			expected := contract.Response{Status: 200, Body: tt.expected, MatchingRules: tt.rules}
			actual := &contract.ActualResponse{Status: 200, Body: decodeBody([]byte(tt.actual))}

			assert.Equal(t, tt.problems, matchResponse(expected, actual))
		})
	}
}

func TestMatchStatusAndHeaders(t *testing.T) {
	tests := []struct {
		name     string
		expected contract.Response
		actual   contract.ActualResponse
		problems []string
	}{
		{
			name:     "status must match exactly",
			expected: contract.Response{Status: 200},
			actual:   contract.ActualResponse{Status: 201},
			problems: []string{"status: expected 200, got 201"},
		},
		{
			name:     "header names are case insensitive",
			expected: contract.Response{Status: 200, Headers: map[string]string{"x-request-id": "abc"}},
			actual:   contract.ActualResponse{Status: 200, Headers: map[string]string{"X-Request-Id": "abc"}},
		},
		{
			name:     "header values are normalized",
			expected: contract.Response{Status: 200, Headers: map[string]string{"Cache-Control": "no-cache,no-store"}},
			actual:   contract.ActualResponse{Status: 200, Headers: map[string]string{"Cache-Control": "no-cache, no-store"}},
		},
		{
			name:     "bare media type accepts a charset",
			expected: contract.Response{Status: 200, Headers: map[string]string{"Content-Type": "application/json"}},
			actual:   contract.ActualResponse{Status: 200, Headers: map[string]string{"Content-Type": "application/json; charset=UTF-8"}},
		},
		{
			name:     "missing header",
			expected: contract.Response{Status: 200, Headers: map[string]string{"X-Trace": "1"}},
			actual:   contract.ActualResponse{Status: 200},
			problems: []string{"header X-Trace: missing"},
		},
		{
			name:     "header value mismatch",
			expected: contract.Response{Status: 200, Headers: map[string]string{"Content-Type": "application/json; charset=utf-8"}},
			actual:   contract.ActualResponse{Status: 200, Headers: map[string]string{"Content-Type": "text/plain"}},
			problems: []string{`header Content-Type: expected "application/json; charset=utf-8", got "text/plain"`},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			actual := tt.actual
			assert.Equal(t, tt.problems, matchResponse(tt.expected, &actual))
		})
	}
}
