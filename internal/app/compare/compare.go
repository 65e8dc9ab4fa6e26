// Package compare finds structural differences between two versions of a contract.
// It does not judge severity; that is the detector's job.
package compare

import (
	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/pkg/errors"
)

// maxDepth bounds recursion into bodies and schemas. Contract documents are not
// expected to be cyclic, so there is no cycle detection beyond this guard.
const maxDepth = 32

type Kind string

const (
	EndpointRemoved       Kind = "endpoint-removed"
	EndpointAdded         Kind = "endpoint-added"
	MethodRemoved         Kind = "method-removed"
	MethodAdded           Kind = "method-added"
	StatusChanged         Kind = "status-changed"
	RequestFieldAdded     Kind = "request-field-added"
	RequestFieldRemoved   Kind = "request-field-removed"
	ResponseFieldAdded    Kind = "response-field-added"
	ResponseFieldRemoved  Kind = "response-field-removed"
	ResponseHeaderAdded   Kind = "response-header-added"
	ResponseHeaderRemoved Kind = "response-header-removed"
	ResponseHeaderChanged Kind = "response-header-changed"
	TypeChanged           Kind = "type-changed"
	PropertyAdded         Kind = "property-added"
	PropertyRemoved       Kind = "property-removed"
	EnumValueAdded        Kind = "enum-value-added"
	EnumValueRemoved      Kind = "enum-value-removed"
	SecurityAdded         Kind = "security-added"
	SecurityRemoved       Kind = "security-removed"
	ExampleChanged        Kind = "example-changed"
)

// Difference is a single raw structural difference.
type Difference struct {
	Kind Kind
	// Location is the part of the contract the difference lives in.
	Location contract.ChangeType
	// Endpoint is "METHOD PATH", empty for component schema differences.
	Endpoint string
	// Path is a dotted locator, e.g. "GET /orders.response.status".
	Path     string
	Name     string
	OldValue interface{}
	NewValue interface{}
	// Required is set for added fields and parameters that the new version requires.
	Required bool
}

type Options struct {
	StrictMode           bool `json:"strictMode" yaml:"strictMode"`
	IgnoreOptionalFields bool `json:"ignoreOptionalFields" yaml:"ignoreOptionalFields"`
	CheckResponseHeaders bool `json:"checkResponseHeaders" yaml:"checkResponseHeaders"`
	ValidateExamples     bool `json:"validateExamples" yaml:"validateExamples"`
	ValidateSecurity     bool `json:"validateSecurity" yaml:"validateSecurity"`
}

var ErrFormatMismatch = errors.New("contracts are in different formats")

// Compare returns every structural difference between old and new. Both contracts
// must be in the same format.
func Compare(old, new *contract.Contract, opts Options) ([]Difference, error) {
	if old == nil || new == nil {
		return nil, errors.New("both contracts are required")
	}
	if old.Format() != new.Format() {
		return nil, errors.Wrapf(ErrFormatMismatch, "%s vs %s", old.Format(), new.Format())
	}

	if old.Format() == contract.FormatOpenAPI {
		return compareOpenAPI(old.OpenAPI, new.OpenAPI, opts), nil
	}
	return comparePact(old, new, opts), nil
}

type differences []Difference

func (d *differences) add(diff Difference) {
	*d = append(*d, diff)
}
