package configuration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/form3tech-oss/pact-compat/internal/app/detector"
	"github.com/form3tech-oss/pact-compat/internal/app/matrix"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ordersPactV1 = `{
  "consumer": {"name": "web", "version": "1.0.0"},
  "provider": {"name": "orders", "version": "1.4.0"},
  "interactions": [
    {
      "description": "list orders",
      "request": {"method": "GET", "path": "/orders"},
      "response": {"status": 200, "body": {"orders": [{"id": 1}]}}
    },
    {
      "description": "get an order",
      "request": {"method": "GET", "path": "/orders/1"},
      "response": {"status": 200, "body": {"id": 1, "status": "open"}}
    }
  ],
  "metadata": {"pactSpecification": {"version": "3.0.0"}}
}`

const ordersPactV2 = `{
  "consumer": {"name": "web", "version": "1.0.0"},
  "provider": {"name": "orders"},
  "interactions": [
    {
      "description": "get an order",
      "request": {"method": "GET", "path": "/orders/1"},
      "response": {"status": 200, "body": {"id": 1, "status": "open"}}
    }
  ],
  "metadata": {"pactSpecification": {"version": "3.0.0"}}
}`

func newTestAPI(t *testing.T, config Config) (*API, *echo.Echo) {
	if config.StaleAfter == 0 {
		config.StaleAfter = matrix.DefaultStaleAge
	}
	if config.CheckLevel == "" {
		config.CheckLevel = string(detector.LevelModerate)
	}
	api, err := NewAPI(config, prometheus.NewRegistry())
	require.NoError(t, err)

	e := echo.New()
	api.SetupRoutes(e)
	return api, e
}

func serve(e *echo.Echo, method, target string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestCompareHandler(t *testing.T) {
	api, e := newTestAPI(t, Config{})

	rec := serve(e, http.MethodPost, "/compare", CompareRequest{
		Old:             json.RawMessage(ordersPactV1),
		New:             json.RawMessage(ordersPactV2),
		ProviderVersion: "2.0.0",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report detector.Report
	decode(t, rec, &report)
	assert.False(t, report.IsCompatible)
	require.Len(t, report.BreakingChanges, 1)
	assert.Equal(t, "Endpoint removed: GET /orders", report.BreakingChanges[0].Description)
	assert.Equal(t, "major", string(report.VersionBump))
	assert.Equal(t, "2.0.0", report.NextVersion)

	entry, ok := api.matrix.Get("web", "1.0.0", "orders", "2.0.0", "")
	require.True(t, ok)
	assert.False(t, entry.IsCompatible)
	assert.Equal(t, report.CompatibilityScore, entry.CompatibilityScore)
}

func TestCompareHandler_Options(t *testing.T) {
	_, e := newTestAPI(t, Config{})

	rec := serve(e, http.MethodPost, "/compare", CompareRequest{
		Old:     json.RawMessage(ordersPactV1),
		New:     json.RawMessage(ordersPactV2),
		Options: &detector.Options{DisabledRules: []string{"endpoint-removal"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report detector.Report
	decode(t, rec, &report)
	assert.True(t, report.IsCompatible)
}

func TestCompareHandler_Errors(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{name: "not json", body: "{"},
		{name: "missing new contract", body: CompareRequest{Old: json.RawMessage(ordersPactV1)}},
		{name: "unknown format", body: CompareRequest{Old: json.RawMessage(ordersPactV1), New: json.RawMessage(`{"name": "x"}`)}},
		{name: "different formats", body: CompareRequest{
			Old: json.RawMessage(ordersPactV1),
			New: json.RawMessage(`"openapi: 3.0.3\ninfo: {title: orders, version: 1.0.0}\npaths: {}\n"`),
		}},
		{name: "record without consumer", body: CompareRequest{
			Old:             json.RawMessage(`"openapi: 3.0.3\ninfo: {title: orders, version: 1.0.0}\npaths: {}\n"`),
			New:             json.RawMessage(`"openapi: 3.0.3\ninfo: {title: orders, version: 1.1.0}\npaths: {}\n"`),
			ProviderVersion: "1.1.0",
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, e := newTestAPI(t, Config{})

			rec := serve(e, http.MethodPost, "/compare", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			decode(t, rec, &body)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestVerifyHandler(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": 1, "status": "open", "total": 10}`)
	}))
	defer provider.Close()

	api, e := newTestAPI(t, Config{Timeout: 5 * time.Second, Retries: 1})

	rec := serve(e, http.MethodPost, "/verify", VerifyRequest{
		Contracts:       []json.RawMessage{json.RawMessage(ordersPactV2)},
		ProviderBaseURL: provider.URL,
		ProviderVersion: "1.5.0",
		Environment:     "staging",
		RecordMatrix:    true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var results []contract.ContractTestResult
	decode(t, rec, &results)
	require.Len(t, results, 1)
	assert.Equal(t, contract.StatusPassed, results[0].Status)

	entry, ok := api.matrix.Get("web", "1.0.0", "orders", "1.5.0", "staging")
	require.True(t, ok)
	assert.True(t, entry.IsCompatible)
	assert.Equal(t, 100, entry.CompatibilityScore)
}

func TestVerifyHandler_Errors(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()

	tests := []struct {
		name   string
		body   VerifyRequest
		status int
	}{
		{
			name:   "unreachable provider",
			body:   VerifyRequest{Contracts: []json.RawMessage{json.RawMessage(ordersPactV2)}, ProviderBaseURL: closed.URL},
			status: http.StatusBadGateway,
		},
		{
			name:   "invalid provider url",
			body:   VerifyRequest{Contracts: []json.RawMessage{json.RawMessage(ordersPactV2)}, ProviderBaseURL: "orders"},
			status: http.StatusBadRequest,
		},
		{
			name:   "record without provider version",
			body:   VerifyRequest{Contracts: []json.RawMessage{json.RawMessage(ordersPactV2)}, ProviderBaseURL: closed.URL, RecordMatrix: true},
			status: http.StatusBadRequest,
		},
		{
			name: "record for a consumer without a version",
			body: VerifyRequest{
				Contracts:       []json.RawMessage{json.RawMessage(strings.Replace(ordersPactV2, `, "version": "1.0.0"`, "", 1))},
				ProviderBaseURL: closed.URL,
				ProviderVersion: "2.0.0",
				RecordMatrix:    true,
			},
			status: http.StatusBadRequest,
		},
		{
			name:   "unloadable contract",
			body:   VerifyRequest{Contracts: []json.RawMessage{json.RawMessage(`{"interactions": 1}`)}, ProviderBaseURL: closed.URL},
			status: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, e := newTestAPI(t, Config{Timeout: time.Second})
			rec := serve(e, http.MethodPost, "/verify", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func matrixEntry(consumerVersion, providerVersion string, compatible bool) contract.MatrixEntry {
	return contract.MatrixEntry{
		ConsumerName:       "web",
		ConsumerVersion:    consumerVersion,
		ProviderName:       "orders",
		ProviderVersion:    providerVersion,
		IsCompatible:       compatible,
		CompatibilityScore: 100,
	}
}

func TestMatrixHandlers(t *testing.T) {
	_, e := newTestAPI(t, Config{})

	for _, entry := range []contract.MatrixEntry{
		matrixEntry("1.0.0", "1.0.0", true),
		matrixEntry("1.0.0", "1.1.0", true),
		matrixEntry("1.0.0", "2.0.0", false),
	} {
		rec := serve(e, http.MethodPost, "/matrix", entry)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := serve(e, http.MethodPost, "/matrix", contract.MatrixEntry{ConsumerName: "web"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var found []contract.MatrixEntry
	rec = serve(e, http.MethodGet, "/matrix?consumer=web&minScore=50", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &found)
	assert.Len(t, found, 3)

	rec = serve(e, http.MethodGet, "/matrix?minScore=lots", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(e, http.MethodGet, "/matrix/compatible?consumer=web&consumerVersion=1.0.0&provider=orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &found)
	require.Len(t, found, 2)
	assert.Equal(t, "1.1.0", found[0].ProviderVersion)

	var path matrix.UpgradePath
	rec = serve(e, http.MethodGet, "/matrix/upgrade-path?consumer=web&consumerVersion=1.0.0&provider=orders&from=1.0.0&to=2.0.0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &path)
	assert.Equal(t, []string{"1.0.0", "1.1.0"}, path.Path)
	assert.False(t, path.IsViable)

	rec = serve(e, http.MethodGet, "/matrix/upgrade-path?consumer=web", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var graph matrix.Graph
	rec = serve(e, http.MethodGet, "/matrix/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &graph)
	assert.Len(t, graph.Nodes, 4)
	assert.Len(t, graph.Edges, 3)

	rec = serve(e, http.MethodGet, "/matrix/stale", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &found)
	assert.Empty(t, found)

	rec = serve(e, http.MethodGet, "/matrix/stale?maxAge=soon", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(e, http.MethodGet, "/matrix/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	exported := rec.Body.String()

	rec = serve(e, http.MethodDelete, "/matrix", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(e, http.MethodGet, "/matrix", nil)
	decode(t, rec, &found)
	assert.Empty(t, found)

	var imported map[string]int
	rec = serve(e, http.MethodPost, "/matrix/import", exported)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &imported)
	assert.Equal(t, 3, imported["imported"])

	rec = serve(e, http.MethodPost, "/matrix/import", "[")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatrixPersistence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "matrix.json")

	_, e := newTestAPI(t, Config{MatrixFile: file})
	rec := serve(e, http.MethodPost, "/matrix", matrixEntry("1.0.0", "1.0.0", true))
	require.Equal(t, http.StatusCreated, rec.Code)

	api, _ := newTestAPI(t, Config{MatrixFile: file})
	_, ok := api.matrix.Get("web", "1.0.0", "orders", "1.0.0", "")
	assert.True(t, ok)
}

func TestReadinessAndMetrics(t *testing.T) {
	_, e := newTestAPI(t, Config{})

	rec := serve(e, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	serve(e, http.MethodPost, "/matrix", matrixEntry("1.0.0", "1.0.0", true))

	rec = serve(e, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "pactcompat_matrix_entries 1"), rec.Body.String())
}
