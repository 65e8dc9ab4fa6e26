package contract

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

var ErrUnknownFormat = errors.New("unknown contract format")

// synchronousHTTP is the only v4 interaction type that can be replayed over HTTP.
const synchronousHTTP = "Synchronous/HTTP"

// LoadFile reads a Pact or OpenAPI document from disk.
func LoadFile(path string) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read contract %s", path)
	}
	return Load(data)
}

// Load detects the document format and parses it. JSON documents with an "openapi"
// key and any non-JSON input are treated as OpenAPI, JSON documents with
// "interactions" as Pact.
func Load(data []byte) (*Contract, error) {
	if !gjson.ValidBytes(data) {
		return LoadOpenAPI(data)
	}

	doc := gjson.ParseBytes(data)
	switch {
	case doc.Get("openapi").Exists():
		return LoadOpenAPI(data)
	case doc.Get("interactions").Exists():
		return LoadPact(data)
	}
	return nil, ErrUnknownFormat
}

// LoadOpenAPI parses an OpenAPI 3.x document (JSON or YAML). Provider name and
// version come from info.title and info.version.
func LoadOpenAPI(data []byte) (*Contract, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse openapi document")
	}

	c := &Contract{OpenAPI: doc}
	if doc.Info != nil {
		c.ProviderName = doc.Info.Title
		c.ProviderVersion = doc.Info.Version
	}
	return c, nil
}

// LoadPact parses a Pact file of specification version 2, 3 or 4.
func LoadPact(data []byte) (*Contract, error) {
	definition := make(map[string]interface{})
	if err := json.Unmarshal(data, &definition); err != nil {
		return nil, errors.Wrap(err, "unable to parse pact definition")
	}

	c := &Contract{
		ConsumerName:    gjson.GetBytes(data, "consumer.name").String(),
		ConsumerVersion: gjson.GetBytes(data, "consumer.version").String(),
		ProviderName:    gjson.GetBytes(data, "provider.name").String(),
		ProviderVersion: gjson.GetBytes(data, "provider.version").String(),
		SpecVersion:     pactSpecificationVersion(data),
	}

	rawInteractions, ok := definition["interactions"].([]interface{})
	if !ok {
		return nil, errors.New("unable to parse pact definition, interactions is not a list")
	}

	v4 := strings.HasPrefix(c.SpecVersion, "4.")
	for n, raw := range rawInteractions {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("unable to parse interaction %d, not an object", n)
		}
		if kind, _ := m["type"].(string); kind != "" && kind != synchronousHTTP {
			log.WithFields(log.Fields{"interaction": m["description"], "type": kind}).Warn("skipping non-HTTP interaction")
			continue
		}
		interaction, err := loadInteraction(m, v4 || c.SpecVersion == "")
		if err != nil {
			return nil, errors.Wrapf(err, "unable to parse interaction %d", n)
		}
		c.Interactions = append(c.Interactions, interaction)
	}

	return c, nil
}

func pactSpecificationVersion(data []byte) string {
	for _, path := range []string{
		"metadata.pactSpecification.version",
		"metadata.pact-specification.version",
		"metadata.pactSpecificationVersion",
	} {
		if v := gjson.GetBytes(data, path); v.Exists() {
			return v.String()
		}
	}
	return ""
}

// loadInteraction reads one interaction. wrappedBodies allows v4 bodies of the form
// {"content": ..., "contentType": ..., "encoded": ...}.
func loadInteraction(definition map[string]interface{}, wrappedBodies bool) (Interaction, error) {
	var interaction Interaction

	description, _ := definition["description"].(string)
	interaction.Description = description

	interaction.ProviderStates = loadProviderStates(definition)

	request, ok := definition["request"].(map[string]interface{})
	if !ok {
		return interaction, errors.New("no request defined")
	}
	response, ok := definition["response"].(map[string]interface{})
	if !ok {
		return interaction, errors.New("no response defined")
	}

	method, _ := request["method"].(string)
	path, _ := request["path"].(string)
	query, err := loadQuery(request["query"])
	if err != nil {
		return interaction, err
	}

	requestBody, err := loadBody(request["body"], wrappedBodies)
	if err != nil {
		return interaction, errors.Wrap(err, "request body")
	}
	interaction.Request = Request{
		Method:  strings.ToUpper(method),
		Path:    path,
		Headers: loadHeaders(request["headers"]),
		Query:   query,
		Body:    requestBody,
	}

	responseBody, err := loadBody(response["body"], wrappedBodies)
	if err != nil {
		return interaction, errors.Wrap(err, "response body")
	}
	status, _ := response["status"].(float64)
	rules, _ := response["matchingRules"].(map[string]interface{})
	interaction.Response = Response{
		Status:        int(status),
		Headers:       loadHeaders(response["headers"]),
		Body:          responseBody,
		MatchingRules: rules,
	}

	return interaction, nil
}

// loadBody unwraps v4 bodies. encoded is false, "base64" (or true) for base64 content,
// or "json" for JSON held in a string.
func loadBody(raw interface{}, wrapped bool) (interface{}, error) {
	body, ok := raw.(map[string]interface{})
	if !wrapped || !ok {
		return raw, nil
	}
	content, hasContent := body["content"]
	_, hasType := body["contentType"]
	encoded, hasEncoded := body["encoded"]
	if !hasContent || !(hasType || hasEncoded) {
		return raw, nil
	}

	contentType, _ := body["contentType"].(string)
	var data []byte
	switch enc := encoded.(type) {
	case nil:
		return content, nil
	case bool:
		if !enc {
			return content, nil
		}
		decoded, err := decodeBase64(content)
		if err != nil {
			return nil, err
		}
		data = decoded
	case string:
		switch strings.ToLower(enc) {
		case "base64":
			decoded, err := decodeBase64(content)
			if err != nil {
				return nil, err
			}
			data = decoded
		case "json":
			s, _ := content.(string)
			data = []byte(s)
			contentType = "application/json"
		default:
			return nil, errors.Errorf("unsupported body encoding %q", enc)
		}
	default:
		return nil, errors.Errorf("unsupported body encoding %v", enc)
	}

	if len(data) == 0 {
		return nil, nil
	}
	if strings.Contains(strings.ToLower(contentType), "json") {
		var v interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, errors.Wrap(err, "unable to parse json body")
		}
		return v, nil
	}
	return string(data), nil
}

func decodeBase64(content interface{}) ([]byte, error) {
	s, ok := content.(string)
	if !ok {
		return nil, errors.New("encoded body content is not a string")
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode base64 body")
	}
	return data, nil
}

// v2 uses a single "providerState" string, v3 and later a "providerStates" list.
func loadProviderStates(definition map[string]interface{}) []ProviderState {
	if name, ok := definition["providerState"].(string); ok && name != "" {
		return []ProviderState{{Name: name}}
	}

	raw, ok := definition["providerStates"].([]interface{})
	if !ok {
		return nil
	}

	states := make([]ProviderState, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		params, _ := m["params"].(map[string]interface{})
		states = append(states, ProviderState{Name: name, Params: params})
	}
	return states
}

// header values may be a string or, in v4, a list of strings
func loadHeaders(raw interface{}) map[string]string {
	m, ok := raw.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil
	}

	headers := make(map[string]string, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			headers[k] = val
		case []interface{}:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprintf("%v", p))
			}
			headers[k] = strings.Join(parts, ", ")
		default:
			headers[k] = fmt.Sprintf("%v", val)
		}
	}
	return headers
}

// v2 encodes the query as a string, v3 as a map of lists
func loadQuery(raw interface{}) (map[string][]string, error) {
	switch q := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if q == "" {
			return nil, nil
		}
		values, err := url.ParseQuery(q)
		if err != nil {
			return nil, errors.Wrap(err, "unable to parse query")
		}
		return values, nil
	case map[string]interface{}:
		values := make(map[string][]string, len(q))
		for k, v := range q {
			switch val := v.(type) {
			case []interface{}:
				for _, item := range val {
					values[k] = append(values[k], fmt.Sprintf("%v", item))
				}
			default:
				values[k] = []string{fmt.Sprintf("%v", val)}
			}
		}
		return values, nil
	}

	log.Warnf("ignoring query of unsupported type %T", raw)
	return nil, nil
}

// SortedKeys is a helper used wherever deterministic iteration over a map is needed.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
