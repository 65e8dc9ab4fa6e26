package verifier

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/form3tech-oss/pact-compat/internal/app/contract"
)

// matchResponse returns one message per difference between the expected and the actual
// response. An empty result means the response satisfies the interaction.
func matchResponse(expected contract.Response, actual *contract.ActualResponse) []string {
	var problems []string
	if expected.Status != actual.Status {
		problems = append(problems, fmt.Sprintf("status: expected %d, got %d", expected.Status, actual.Status))
	}
	problems = append(problems, matchHeaders(expected.Headers, actual.Headers)...)
	if expected.Body != nil {
		problems = append(problems, newBodyMatcher(expected.BodyMatchers()).matchBody(expected.Body, actual.Body)...)
	}
	return problems
}

func matchHeaders(expected, actual map[string]string) []string {
	lowered := make(map[string]string, len(actual))
	for k, v := range actual {
		lowered[strings.ToLower(k)] = v
	}

	var problems []string
	for _, name := range contract.SortedKeys(expected) {
		key := strings.ToLower(name)
		got, ok := lowered[key]
		if !ok {
			problems = append(problems, fmt.Sprintf("header %s: missing", name))
			continue
		}
		if !headerValuesMatch(key, expected[name], got) {
			problems = append(problems, fmt.Sprintf("header %s: expected %q, got %q", name, expected[name], got))
		}
	}
	return problems
}

func headerValuesMatch(name, expected, actual string) bool {
	e, a := normalizeHeader(expected), normalizeHeader(actual)
	if name != "content-type" {
		return e == a
	}
	if strings.EqualFold(e, a) {
		return true
	}
	// a bare media type accepts any parameters, e.g. a charset
	return !strings.Contains(e, ";") && strings.EqualFold(e, strings.SplitN(a, ";", 2)[0])
}

func normalizeHeader(v string) string {
	values := strings.Split(v, ",")
	for n, value := range values {
		params := strings.Split(value, ";")
		for m := range params {
			params[m] = strings.TrimSpace(params[m])
		}
		values[n] = strings.Join(params, ";")
	}
	return strings.Join(values, ",")
}

type bodyMatcher struct {
	rules    map[string]contract.Matcher
	covered  []*regexp.Regexp
	problems []string
}

func newBodyMatcher(rules map[string]contract.Matcher) *bodyMatcher {
	m := &bodyMatcher{rules: rules}
	for _, path := range contract.SortedKeys(rules) {
		m.covered = append(m.covered, rulePattern(path))
	}
	return m
}

// rulePattern turns a matching rule path into a pattern over the concrete paths built
// while walking a body, so $.body.items[*].id covers $.body.items[3].id.
func rulePattern(path string) *regexp.Regexp {
	p := regexp.QuoteMeta(path)
	p = strings.ReplaceAll(p, `\[\*\]`, `\[\d+\]`)
	p = strings.ReplaceAll(p, `\.\*`, `\.[^.\[]+`)
	return regexp.MustCompile("^" + p + "$")
}

func (m *bodyMatcher) isCovered(rulePath string) bool {
	for _, re := range m.covered {
		if re.MatchString(rulePath) {
			return true
		}
	}
	return false
}

func (m *bodyMatcher) fail(path, format string, args ...interface{}) {
	if path == "" {
		path = "body"
	}
	m.problems = append(m.problems, path+": "+fmt.Sprintf(format, args...))
}

func (m *bodyMatcher) matchBody(expected, actual interface{}) []string {
	m.match("", "$.body", expected, actual)
	m.matchRules(expected, actual)
	return m.problems
}

// match checks that actual contains expected. Objects may carry extra properties,
// arrays must have the same length and matching elements.
func (m *bodyMatcher) match(path, rulePath string, expected, actual interface{}) {
	if m.isCovered(rulePath) {
		return
	}

	switch e := expected.(type) {
	case map[string]interface{}:
		a, ok := actual.(map[string]interface{})
		if !ok {
			m.fail(path, "expected object, got %s", kindOf(actual))
			return
		}
		for _, k := range contract.SortedKeys(e) {
			child := k
			if path != "" {
				child = path + "." + k
			}
			v, ok := a[k]
			if !ok {
				// matchRules reports properties that have their own rule
				if _, ok := m.rules[rulePath+"."+k]; !ok {
					m.fail(child, "property missing")
				}
				continue
			}
			m.match(child, rulePath+"."+k, e[k], v)
		}
	case []interface{}:
		a, ok := actual.([]interface{})
		if !ok {
			m.fail(path, "expected array, got %s", kindOf(actual))
			return
		}
		if len(a) != len(e) {
			m.fail(path, "expected %d items, got %d", len(e), len(a))
			return
		}
		for n := range e {
			m.match(fmt.Sprintf("%s[%d]", path, n), fmt.Sprintf("%s[%d]", rulePath, n), e[n], a[n])
		}
	default:
		if kindOf(expected) != kindOf(actual) {
			m.fail(path, "expected %s, got %s", kindOf(expected), kindOf(actual))
			return
		}
		if !equalValues(expected, actual) {
			m.fail(path, "expected %s, got %s", format(expected), format(actual))
		}
	}
}

func (m *bodyMatcher) matchRules(expected, actual interface{}) {
	expectedDoc := map[string]interface{}{"body": expected}
	actualDoc := map[string]interface{}{"body": actual}

	for _, path := range contract.SortedKeys(m.rules) {
		rule := m.rules[path]
		display := strings.TrimPrefix(strings.TrimPrefix(path, "$.body"), ".")

		got, err := jsonpath.Get(path, actualDoc)
		if err != nil {
			m.fail(display, "property missing")
			continue
		}
		want, _ := jsonpath.Get(path, expectedDoc)

		values := []interface{}{got}
		if isWildcard(path) {
			values, _ = got.([]interface{})
			if list, ok := want.([]interface{}); ok && len(list) > 0 {
				want = list[0]
			} else {
				want = nil
			}
		}

		for _, v := range values {
			switch rule.Match {
			case contract.MatchType:
				if want != nil && kindOf(want) != kindOf(v) {
					m.fail(display, "expected %s, got %s", kindOf(want), kindOf(v))
				}
			case contract.MatchRegex:
				re, err := regexp.Compile(rule.Regex)
				if err != nil {
					m.fail(display, "invalid regex %q", rule.Regex)
					break
				}
				s, ok := v.(string)
				if !ok {
					s = format(v)
				}
				if !re.MatchString(s) {
					m.fail(display, "%q does not match %q", s, rule.Regex)
				}
			}
		}
	}
}

func isWildcard(path string) bool {
	return strings.Contains(path, "*") || strings.Contains(path, "..")
}

func kindOf(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	}
	if _, ok := toNumber(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func equalValues(expected, actual interface{}) bool {
	if e, ok := toNumber(expected); ok {
		a, ok := toNumber(actual)
		return ok && e == a
	}
	return expected == actual
}

func format(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
