package detector

import (
	"fmt"

	"github.com/form3tech-oss/pact-compat/internal/app/compare"
	"github.com/form3tech-oss/pact-compat/internal/app/contract"
)

// Context is shared read-only by every rule of one detection call.
type Context struct {
	Differences []compare.Difference
	Options     Options
}

// DetectFunc inspects two contract versions. Changes it returns without a severity
// take the rule's severity.
type DetectFunc func(old, new *contract.Contract, ctx *Context) ([]contract.Change, error)

type Rule struct {
	ID       string
	Name     string
	Severity contract.Severity
	Category contract.ChangeType
	Detect   DetectFunc
}

// differenceRule builds a rule that turns every difference matched by match into one change.
// The change type is where the difference was found, falling back to the rule category.
func differenceRule(id, name string, severity contract.Severity, category contract.ChangeType,
	match func(compare.Difference) bool, describe func(compare.Difference) (string, string)) Rule {
	return Rule{
		ID:       id,
		Name:     name,
		Severity: severity,
		Category: category,
		Detect: func(_, _ *contract.Contract, ctx *Context) ([]contract.Change, error) {
			var changes []contract.Change
			for _, d := range ctx.Differences {
				if !match(d) {
					continue
				}
				description, recommendation := describe(d)
				changeType := d.Location
				if changeType == "" {
					changeType = category
				}
				changes = append(changes, contract.Change{
					Type:           changeType,
					Description:    description,
					Path:           d.Path,
					OldValue:       d.OldValue,
					NewValue:       d.NewValue,
					Recommendation: recommendation,
				})
			}
			return changes, nil
		},
	}
}

func kindIs(kinds ...compare.Kind) func(compare.Difference) bool {
	return func(d compare.Difference) bool {
		for _, k := range kinds {
			if d.Kind == k {
				return true
			}
		}
		return false
	}
}

func field(d compare.Difference) string {
	if d.Name != "" {
		return d.Name
	}
	return d.Path
}

// DefaultRules returns a fresh copy of the built-in rule set in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		differenceRule("endpoint-removal", "Endpoint removal", contract.SeverityMajor, contract.ChangeEndpoint,
			kindIs(compare.EndpointRemoved),
			func(d compare.Difference) (string, string) {
				return "Endpoint removed: " + d.Endpoint,
					"Keep the endpoint until every consumer has stopped calling it, or release a new major version"
			}),
		differenceRule("method-removal", "HTTP method removal", contract.SeverityMajor, contract.ChangeEndpoint,
			kindIs(compare.MethodRemoved),
			func(d compare.Difference) (string, string) {
				return "Method removed: " + d.Endpoint,
					"Restore the method or deprecate it before removal"
			}),
		differenceRule("required-field-addition", "Required request field addition", contract.SeverityMajor, contract.ChangeRequest,
			func(d compare.Difference) bool { return d.Kind == compare.RequestFieldAdded && d.Required },
			func(d compare.Difference) (string, string) {
				return fmt.Sprintf("Required request field added: %s (%s)", field(d), d.Endpoint),
					"Make the field optional or give it a default"
			}),
		differenceRule("optional-field-addition", "Optional request field addition", contract.SeverityInfo, contract.ChangeRequest,
			func(d compare.Difference) bool { return d.Kind == compare.RequestFieldAdded && !d.Required },
			func(d compare.Difference) (string, string) {
				return fmt.Sprintf("Optional request field added: %s (%s)", field(d), d.Endpoint), ""
			}),
		differenceRule("request-field-removal", "Request field removal", contract.SeverityInfo, contract.ChangeRequest,
			kindIs(compare.RequestFieldRemoved),
			func(d compare.Difference) (string, string) {
				return fmt.Sprintf("Request field no longer used: %s (%s)", field(d), d.Endpoint),
					"Consumers may keep sending the field, make sure it is ignored"
			}),
		differenceRule("response-field-removal", "Response field removal", contract.SeverityMinor, contract.ChangeResponse,
			kindIs(compare.ResponseFieldRemoved),
			func(d compare.Difference) (string, string) {
				return fmt.Sprintf("Response field removed: %s (%s)", field(d), d.Endpoint),
					"Deprecate the field before removing it"
			}),
		differenceRule("response-field-addition", "Response field addition", contract.SeverityInfo, contract.ChangeResponse,
			kindIs(compare.ResponseFieldAdded),
			func(d compare.Difference) (string, string) {
				return fmt.Sprintf("Response field added: %s (%s)", field(d), d.Endpoint), ""
			}),
		differenceRule("status-code-change", "Status code change", contract.SeverityMajor, contract.ChangeResponse,
			kindIs(compare.StatusChanged),
			func(d compare.Difference) (string, string) {
				return fmt.Sprintf("Status code changed: %s %v -> %v", d.Endpoint, d.OldValue, d.NewValue),
					"Keep returning the previous status code"
			}),
		differenceRule("data-type-change", "Data type change", contract.SeverityMajor, contract.ChangeSchema,
			kindIs(compare.TypeChanged),
			func(d compare.Difference) (string, string) {
				return fmt.Sprintf("Type changed at %s: %v -> %v", d.Path, d.OldValue, d.NewValue),
					"Introduce a new field with the new type instead of changing the existing one"
			}),
		differenceRule("schema-property-removal", "Schema property removal", contract.SeverityMajor, contract.ChangeSchema,
			kindIs(compare.PropertyRemoved),
			func(d compare.Difference) (string, string) {
				return "Schema property removed: " + d.Path,
					"Deprecate the property before removing it"
			}),
		differenceRule("schema-property-addition", "Schema property addition", contract.SeverityInfo, contract.ChangeSchema,
			kindIs(compare.PropertyAdded),
			func(d compare.Difference) (string, string) {
				return "Schema property added: " + d.Path, ""
			}),
		differenceRule("enum-value-removal", "Enum value removal", contract.SeverityMajor, contract.ChangeSchema,
			kindIs(compare.EnumValueRemoved),
			func(d compare.Difference) (string, string) {
				return fmt.Sprintf("Enum value removed at %s: %v", d.Path, d.OldValue),
					"Keep accepting and returning the value"
			}),
		differenceRule("enum-value-addition", "Enum value addition", contract.SeverityInfo, contract.ChangeSchema,
			kindIs(compare.EnumValueAdded),
			func(d compare.Difference) (string, string) {
				return fmt.Sprintf("Enum value added at %s: %v", d.Path, d.NewValue),
					"Consumers with exhaustive matching may need to handle the new value"
			}),
		differenceRule("security-requirement-addition", "Security requirement addition", contract.SeverityMajor, contract.ChangeRequest,
			kindIs(compare.SecurityAdded),
			func(d compare.Difference) (string, string) {
				return fmt.Sprintf("Security requirement added: %s (%s)", d.Name, d.Endpoint),
					"Roll out credentials to consumers before enforcing the requirement"
			}),
		differenceRule("security-requirement-removal", "Security requirement removal", contract.SeverityInfo, contract.ChangeRequest,
			kindIs(compare.SecurityRemoved),
			func(d compare.Difference) (string, string) {
				return fmt.Sprintf("Security requirement removed: %s (%s)", d.Name, d.Endpoint), ""
			}),
		differenceRule("endpoint-addition", "Endpoint addition", contract.SeverityInfo, contract.ChangeEndpoint,
			kindIs(compare.EndpointAdded, compare.MethodAdded),
			func(d compare.Difference) (string, string) {
				return "Endpoint added: " + d.Endpoint, ""
			}),
		differenceRule("response-header-removal", "Response header removal", contract.SeverityMinor, contract.ChangeResponse,
			kindIs(compare.ResponseHeaderRemoved, compare.ResponseHeaderChanged),
			func(d compare.Difference) (string, string) {
				if d.Kind == compare.ResponseHeaderChanged {
					return fmt.Sprintf("Response header changed: %s (%s) %v -> %v", d.Name, d.Endpoint, d.OldValue, d.NewValue),
						"Keep the previous header value"
				}
				return fmt.Sprintf("Response header removed: %s (%s)", d.Name, d.Endpoint),
					"Keep sending the header"
			}),
		differenceRule("additional-response-header", "Additional response header", contract.SeverityPatch, contract.ChangeResponse,
			kindIs(compare.ResponseHeaderAdded),
			func(d compare.Difference) (string, string) {
				return fmt.Sprintf("Response header added: %s (%s)", d.Name, d.Endpoint), ""
			}),
		differenceRule("example-change", "Example value change", contract.SeverityInfo, contract.ChangeResponse,
			kindIs(compare.ExampleChanged),
			func(d compare.Difference) (string, string) {
				return fmt.Sprintf("Example value changed at %s: %v -> %v", d.Path, d.OldValue, d.NewValue), ""
			}),
	}
}
