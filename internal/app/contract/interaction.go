package contract

import (
	"strings"
)

type ProviderState struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}

type Request struct {
	Method  string              `json:"method"`
	Path    string              `json:"path"`
	Headers map[string]string   `json:"headers,omitempty"`
	Query   map[string][]string `json:"query,omitempty"`
	Body    interface{}         `json:"body,omitempty"`
}

type Response struct {
	Status        int                    `json:"status"`
	Headers       map[string]string      `json:"headers,omitempty"`
	Body          interface{}            `json:"body,omitempty"`
	MatchingRules map[string]interface{} `json:"matchingRules,omitempty"`
}

// Interaction is one consumer expectation: a request and the response it expects back.
type Interaction struct {
	Description    string          `json:"description"`
	ProviderStates []ProviderState `json:"providerStates,omitempty"`
	Request        Request         `json:"request"`
	Response       Response        `json:"response"`
}

// Key is the "METHOD PATH" index used when comparing interaction sets.
func (i Interaction) Key() string {
	return strings.ToUpper(i.Request.Method) + " " + i.Request.Path
}
