package contract

type ChangeType string

const (
	ChangeEndpoint ChangeType = "endpoint"
	ChangeRequest  ChangeType = "request"
	ChangeResponse ChangeType = "response"
	ChangeSchema   ChangeType = "schema"
)

type Severity string

const (
	SeverityMajor Severity = "major"
	SeverityMinor Severity = "minor"
	SeverityPatch Severity = "patch"
	SeverityInfo  Severity = "info"
)

// IsBreaking reports whether a change of this severity is classified as breaking.
func (s Severity) IsBreaking() bool {
	return s == SeverityMajor || s == SeverityMinor
}

// Change is a classified difference between two contract versions. Path is a dotted
// locator into the compared documents, e.g. "GET /orders.response.status".
type Change struct {
	Type           ChangeType  `json:"type"`
	Severity       Severity    `json:"severity"`
	Description    string      `json:"description"`
	Path           string      `json:"path"`
	OldValue       interface{} `json:"oldValue,omitempty"`
	NewValue       interface{} `json:"newValue,omitempty"`
	Recommendation string      `json:"recommendation,omitempty"`
}
