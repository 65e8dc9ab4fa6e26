package contract

import (
	"strings"
)

const (
	MatchType  = "type"
	MatchRegex = "regex"
)

// Matcher is a single Pact matching rule applied to a response body path.
type Matcher struct {
	Match string
	Regex string
}

// BodyMatchers flattens the response matching rules into "$.body..." paths.
// It understands both v2 style matching rules ( "$.body.data.id": { "match": "type" } )
// and v3 style matching rules ( "body": { "$.data.id": { "matchers": [...] } } ).
func (r Response) BodyMatchers() map[string]Matcher {
	results := map[string]Matcher{}
	for k, v := range r.MatchingRules {
		if strings.HasPrefix(k, "$.body") {
			if m, ok := toMatcher(v); ok {
				results[k] = m
			}
		} else if k == "body" {
			properties, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			for propertyname, rule := range properties {
				path := strings.TrimPrefix(strings.TrimPrefix(propertyname, "$"), ".")
				if path == "" {
					path = "$.body"
				} else if strings.HasPrefix(path, "[") {
					path = "$.body" + path
				} else {
					path = "$.body." + path
				}
				if m, ok := toMatcher(rule); ok {
					results[path] = m
				}
			}
		}
	}
	return results
}

func toMatcher(rule interface{}) (Matcher, bool) {
	val, ok := rule.(map[string]interface{})
	if !ok {
		return Matcher{}, false
	}

	if matchers, ok := val["matchers"].([]interface{}); ok {
		// v3: the first matcher we understand wins
		for _, raw := range matchers {
			if m, ok := toMatcher(raw); ok {
				return m, true
			}
		}
		return Matcher{}, false
	}

	if regex, ok := val["regex"].(string); ok {
		return Matcher{Match: MatchRegex, Regex: regex}, true
	}
	if match, ok := val["match"].(string); ok && match == MatchType {
		return Matcher{Match: MatchType}, true
	}
	return Matcher{}, false
}
