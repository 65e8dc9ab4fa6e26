package configuration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/form3tech-oss/pact-compat/internal/app/compare"
	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/form3tech-oss/pact-compat/internal/app/detector"
	"github.com/form3tech-oss/pact-compat/internal/app/httpresponse"
	"github.com/form3tech-oss/pact-compat/internal/app/matrix"
	"github.com/form3tech-oss/pact-compat/internal/app/metrics"
	"github.com/form3tech-oss/pact-compat/internal/app/verifier"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// API serves the detector, the verifier and the matrix over HTTP.
type API struct {
	config   Config
	detector *detector.Detector
	verifier *verifier.Verifier
	matrix   *matrix.Matrix
	store    *matrix.FileStore
	gatherer prometheus.Gatherer
}

// NewAPI registers its metrics on reg and, when config names a matrix file, loads the
// matrix from it.
func NewAPI(config Config, reg *prometheus.Registry) (*API, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := metrics.New(reg)

	a := &API{
		config:   config,
		detector: detector.New(m),
		verifier: verifier.New(m),
		matrix:   matrix.New(m),
		gatherer: reg,
	}

	if config.MatrixFile != "" {
		a.store = matrix.NewFileStore(config.MatrixFile)
		n, err := a.store.Load(a.matrix)
		if err != nil {
			return nil, err
		}
		log.Infof("loaded %d matrix entries from %s", n, config.MatrixFile)
	}
	return a, nil
}

func (a *API) SetupRoutes(e *echo.Echo) {
	e.GET("/ready", a.readinessHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))

	e.POST("/compare", a.compareHandler)
	e.POST("/verify", a.verifyHandler)

	e.GET("/matrix", a.queryMatrixHandler)
	e.POST("/matrix", a.addMatrixEntryHandler)
	e.DELETE("/matrix", a.clearMatrixHandler)
	e.GET("/matrix/export", a.exportMatrixHandler)
	e.POST("/matrix/import", a.importMatrixHandler)
	e.GET("/matrix/stale", a.staleEntriesHandler)
	e.GET("/matrix/compatible", a.compatibleVersionsHandler)
	e.GET("/matrix/upgrade-path", a.upgradePathHandler)
	e.GET("/matrix/graph", a.dependencyGraphHandler)
}

func (a *API) persist() {
	if a.store == nil {
		return
	}
	if err := a.store.Save(a.matrix); err != nil {
		log.WithError(err).Error("unable to save matrix")
	}
}

func (a *API) readinessHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// loadDocument accepts a contract either as a JSON document or as a JSON string
// holding a YAML or JSON document.
func loadDocument(raw json.RawMessage) (*contract.Contract, error) {
	if len(raw) == 0 {
		return nil, errors.New("document is missing")
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
		return contract.Load([]byte(text))
	}
	return contract.Load(raw)
}

type CompareRequest struct {
	Old     json.RawMessage   `json:"old"`
	New     json.RawMessage   `json:"new"`
	Options *detector.Options `json:"options,omitempty"`
	// When ProviderVersion is set the result is recorded in the matrix for the old
	// contract's consumer, or for Consumer and ConsumerVersion when given.
	ProviderVersion string `json:"providerVersion,omitempty"`
	Consumer        string `json:"consumer,omitempty"`
	ConsumerVersion string `json:"consumerVersion,omitempty"`
	Environment     string `json:"environment,omitempty"`
}

func (a *API) compareHandler(c echo.Context) error {
	var req CompareRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to parse compare request. %s", err.Error()))
	}

	old, err := loadDocument(req.Old)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to load old contract. %s", err.Error()))
	}
	new, err := loadDocument(req.New)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to load new contract. %s", err.Error()))
	}

	opts := a.config.DetectOptions()
	if req.Options != nil {
		opts = *req.Options
	}

	report, err := a.detector.Detect(old, new, opts)
	if errors.Is(err, compare.ErrFormatMismatch) {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to compare contracts. %s", err.Error()))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("unable to compare contracts. %s", err.Error()))
	}

	if req.ProviderVersion != "" {
		consumer := *old
		if req.Consumer != "" {
			consumer.ConsumerName = req.Consumer
		}
		if req.ConsumerVersion != "" {
			consumer.ConsumerVersion = req.ConsumerVersion
		}
		if consumer.ConsumerName == "" || consumer.ConsumerVersion == "" {
			return c.JSON(http.StatusBadRequest, httpresponse.Errorf("consumer and consumerVersion are required to record a result"))
		}
		if _, err := a.matrix.RecordResult(&consumer, req.ProviderVersion, req.Environment, report.CompatibilityResult); err != nil {
			return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to record result. %s", err.Error()))
		}
		a.persist()
	}

	return c.JSON(http.StatusOK, report)
}

type VerifyRequest struct {
	Contracts []json.RawMessage `json:"contracts"`
	// ProviderBaseURL replaces the configured provider for this run.
	ProviderBaseURL string `json:"providerBaseUrl,omitempty"`
	ProviderVersion string `json:"providerVersion,omitempty"`
	Environment     string `json:"environment,omitempty"`
	RecordMatrix    bool   `json:"recordMatrix,omitempty"`
}

func (a *API) verifyHandler(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to parse verify request. %s", err.Error()))
	}
	if req.RecordMatrix && req.ProviderVersion == "" {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("providerVersion is required to record results"))
	}

	contracts := make([]*contract.Contract, 0, len(req.Contracts))
	for n, raw := range req.Contracts {
		ct, err := loadDocument(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to load contract %d. %s", n, err.Error()))
		}
		if req.RecordMatrix && (ct.ConsumerName == "" || ct.ConsumerVersion == "") {
			return c.JSON(http.StatusBadRequest, httpresponse.Errorf("contract %d needs a consumer name and version to record results", n))
		}
		contracts = append(contracts, ct)
	}

	opts := a.config.VerifyOptions()
	if req.ProviderBaseURL != "" {
		opts.ProviderBaseURL = req.ProviderBaseURL
	}

	results, err := a.verifier.Verify(c.Request().Context(), contracts, opts)
	switch {
	case errors.Is(err, verifier.ErrInvalidBaseURL):
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to verify contracts. %s", err.Error()))
	case errors.Is(err, verifier.ErrProviderUnreachable):
		return c.JSON(http.StatusBadGateway, httpresponse.Errorf("unable to verify contracts. %s", err.Error()))
	case err != nil:
		return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("unable to verify contracts. %s", err.Error()))
	}

	if req.RecordMatrix {
		for n, result := range results {
			if _, err := a.matrix.RecordVerification(contracts[n], req.ProviderVersion, req.Environment, result); err != nil {
				return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("unable to record result. %s", err.Error()))
			}
		}
		a.persist()
	}

	return c.JSON(http.StatusOK, results)
}

func entries(e []contract.MatrixEntry) []contract.MatrixEntry {
	if e == nil {
		return []contract.MatrixEntry{}
	}
	return e
}

func (a *API) queryMatrixHandler(c echo.Context) error {
	var f matrix.Filter
	err := echo.QueryParamsBinder(c).
		String("consumer", &f.Consumer).
		String("provider", &f.Provider).
		String("environment", &f.Environment).
		Int("minScore", &f.MinScore).
		Time("from", &f.From, time.RFC3339).
		Time("to", &f.To, time.RFC3339).
		Bool("includePreRelease", &f.IncludePreRelease).
		BindError()
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("invalid matrix query. %s", err.Error()))
	}
	return c.JSON(http.StatusOK, entries(a.matrix.Query(f)))
}

func (a *API) addMatrixEntryHandler(c echo.Context) error {
	var entry contract.MatrixEntry
	if err := c.Bind(&entry); err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to parse matrix entry. %s", err.Error()))
	}

	entry, err := a.matrix.Add(entry)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to add matrix entry. %s", err.Error()))
	}
	a.persist()
	return c.JSON(http.StatusCreated, entry)
}

func (a *API) clearMatrixHandler(c echo.Context) error {
	log.Infof("clearing compatibility matrix")
	a.matrix.Clear()
	a.persist()
	return c.NoContent(http.StatusNoContent)
}

func (a *API) exportMatrixHandler(c echo.Context) error {
	data, err := a.matrix.Export()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("unable to export matrix. %s", err.Error()))
	}
	return c.JSONBlob(http.StatusOK, data)
}

func (a *API) importMatrixHandler(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to read matrix document. %s", err.Error()))
	}

	n, err := a.matrix.Import(data)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to import matrix. %s", err.Error()))
	}
	a.persist()
	return c.JSON(http.StatusOK, map[string]int{"imported": n})
}

func (a *API) staleEntriesHandler(c echo.Context) error {
	maxAge := a.config.StaleAfter
	if err := echo.QueryParamsBinder(c).Duration("maxAge", &maxAge).BindError(); err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("invalid maxAge. %s", err.Error()))
	}
	return c.JSON(http.StatusOK, entries(a.matrix.GetStaleEntries(maxAge)))
}

func (a *API) compatibleVersionsHandler(c echo.Context) error {
	var consumer, consumerVersion, provider, env string
	err := echo.QueryParamsBinder(c).
		MustString("consumer", &consumer).
		MustString("consumerVersion", &consumerVersion).
		MustString("provider", &provider).
		String("environment", &env).
		BindError()
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("invalid compatible versions query. %s", err.Error()))
	}
	return c.JSON(http.StatusOK, entries(a.matrix.FindCompatibleProviderVersions(consumer, consumerVersion, provider, env)))
}

func (a *API) upgradePathHandler(c echo.Context) error {
	var consumer, consumerVersion, provider, from, to, env string
	err := echo.QueryParamsBinder(c).
		MustString("consumer", &consumer).
		MustString("consumerVersion", &consumerVersion).
		MustString("provider", &provider).
		MustString("from", &from).
		MustString("to", &to).
		String("environment", &env).
		BindError()
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("invalid upgrade path query. %s", err.Error()))
	}
	return c.JSON(http.StatusOK, a.matrix.GetUpgradePaths(consumer, consumerVersion, provider, from, to, env))
}

func (a *API) dependencyGraphHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, a.matrix.GetDependencyGraph(c.QueryParam("environment")))
}

// ServeAdminAPI starts the admin API on the configured port.
func ServeAdminAPI(config Config, api *API) (*http.Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.SetupRoutes(e)

	scheme := "http"
	if config.TLSCertFile != "" {
		scheme = "https"
	}
	return StartServer(fmt.Sprintf("%s://:%d", scheme, config.AdminPort), e, config)
}
