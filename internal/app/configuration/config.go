package configuration

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/form3tech-oss/pact-compat/internal/app/compare"
	"github.com/form3tech-oss/pact-compat/internal/app/detector"
	"github.com/form3tech-oss/pact-compat/internal/app/verifier"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AdminPort   int    `env:"ADMIN_PORT,default=8080" yaml:"adminPort"`
	TLSCertFile string `env:"TLS_CERT_FILE" yaml:"tlsCertFile"`
	TLSKeyFile  string `env:"TLS_KEY_FILE" yaml:"tlsKeyFile"`
	TLSCAFile   string `env:"TLS_CA_FILE" yaml:"tlsCaFile"` // Require client certificates signed by this CA

	ProviderBaseURL string            `env:"PROVIDER_BASE_URL" yaml:"providerBaseUrl"`
	Timeout         time.Duration     `env:"VERIFY_TIMEOUT,default=30s" yaml:"timeout"`
	Retries         int               `env:"VERIFY_RETRIES,default=3" yaml:"retries"`
	RetryDelay      time.Duration     `env:"VERIFY_RETRY_DELAY,default=1s" yaml:"retryDelay"`
	Parallelism     int               `env:"VERIFY_PARALLELISM,default=1" yaml:"parallelism"`
	FailFast        bool              `env:"VERIFY_FAIL_FAST" yaml:"failFast"`
	StateSetupURL   string            `env:"STATE_SETUP_URL" yaml:"stateSetupUrl"`
	StateCleanupURL string            `env:"STATE_CLEANUP_URL" yaml:"stateCleanupUrl"`
	RatePerSecond   float64           `env:"VERIFY_RATE_PER_SECOND" yaml:"ratePerSecond"`
	Headers         map[string]string `env:"VERIFY_HEADERS" yaml:"headers"` // e.g. Authorization:Bearer x,X-Tenant:acme

	CheckLevel           string   `env:"CHECK_LEVEL,default=moderate" yaml:"checkLevel"`
	StrictMode           bool     `env:"STRICT_MODE" yaml:"strictMode"`
	IgnoreOptionalFields bool     `env:"IGNORE_OPTIONAL_FIELDS" yaml:"ignoreOptionalFields"`
	CheckResponseHeaders bool     `env:"CHECK_RESPONSE_HEADERS" yaml:"checkResponseHeaders"`
	ValidateExamples     bool     `env:"VALIDATE_EXAMPLES" yaml:"validateExamples"`
	ValidateSecurity     bool     `env:"VALIDATE_SECURITY" yaml:"validateSecurity"`
	DisabledRules        []string `env:"DISABLED_RULES" yaml:"disabledRules"`

	MatrixFile string        `env:"MATRIX_FILE" yaml:"matrixFile"` // Empty keeps the matrix in memory only
	StaleAfter time.Duration `env:"MATRIX_STALE_AFTER,default=168h" yaml:"staleAfter"`

	LogLevel  string `env:"LOG_LEVEL,default=info" yaml:"logLevel"`
	LogFormat string `env:"LOG_FORMAT,default=text" yaml:"logFormat"`
}

func NewFromEnv() (Config, error) {
	return Load("")
}

// Load reads the YAML file at path, when there is one, and fills every field it left
// unset from the environment or the defaults.
func Load(path string) (Config, error) {
	var config Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return config, errors.Wrapf(err, "parse config file %s", path)
		}
	}

	if err := envconfig.Process(context.Background(), &config); err != nil {
		return config, errors.Wrap(err, "process env config")
	}
	return config, nil
}

func (c Config) VerifyOptions() verifier.Options {
	return verifier.Options{
		ProviderBaseURL: c.ProviderBaseURL,
		Timeout:         c.Timeout,
		Retries:         c.Retries,
		RetryDelay:      c.RetryDelay,
		Parallelism:     c.Parallelism,
		FailFast:        c.FailFast,
		StateSetupURL:   c.StateSetupURL,
		StateCleanupURL: c.StateCleanupURL,
		RatePerSecond:   c.RatePerSecond,
		Headers:         c.Headers,
	}
}

func (c Config) DetectOptions() detector.Options {
	return detector.Options{
		Options: compare.Options{
			StrictMode:           c.StrictMode,
			IgnoreOptionalFields: c.IgnoreOptionalFields,
			CheckResponseHeaders: c.CheckResponseHeaders,
			ValidateExamples:     c.ValidateExamples,
			ValidateSecurity:     c.ValidateSecurity,
		},
		CheckLevel:    detector.CheckLevel(c.CheckLevel),
		DisabledRules: c.DisabledRules,
	}
}

func ConfigureLogging(c Config) error {
	if c.LogLevel != "" {
		level, err := log.ParseLevel(c.LogLevel)
		if err != nil {
			return errors.Wrap(err, "parse log level")
		}
		log.SetLevel(level)
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return errors.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}
