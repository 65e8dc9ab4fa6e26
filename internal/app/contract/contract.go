package contract

import (
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

type Format string

const (
	FormatPact    Format = "pact"
	FormatOpenAPI Format = "openapi"
)

// Contract is a loaded, read-only API contract. Pact contracts carry Interactions,
// OpenAPI contracts carry the parsed document in OpenAPI.
type Contract struct {
	ConsumerName    string        `json:"consumerName"`
	ConsumerVersion string        `json:"consumerVersion,omitempty"`
	ProviderName    string        `json:"providerName"`
	ProviderVersion string        `json:"providerVersion,omitempty"`
	Interactions    []Interaction `json:"interactions,omitempty"`
	SpecVersion     string        `json:"pactSpecification,omitempty"`
	OpenAPI         *openapi3.T   `json:"-"`
}

func (c *Contract) Format() Format {
	if c.OpenAPI != nil {
		return FormatOpenAPI
	}
	return FormatPact
}

// ID identifies the contract by its parties and, when known, the consumer version.
func (c *Contract) ID() string {
	parts := []string{c.ConsumerName, c.ProviderName}
	if c.ConsumerVersion != "" {
		parts = append(parts, c.ConsumerVersion)
	}
	return strings.Join(parts, "-")
}
