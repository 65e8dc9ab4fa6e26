package compare

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/form3tech-oss/pact-compat/internal/app/contract"
)

func indexInteractions(interactions []contract.Interaction) (map[string][]contract.Interaction, []string) {
	index := make(map[string][]contract.Interaction)
	var keys []string
	for _, i := range interactions {
		key := i.Key()
		if _, ok := index[key]; !ok {
			keys = append(keys, key)
		}
		index[key] = append(index[key], i)
	}
	sort.Strings(keys)
	return index, keys
}

func comparePact(old, new *contract.Contract, opts Options) []Difference {
	var diffs differences

	oldIndex, oldKeys := indexInteractions(old.Interactions)
	newIndex, newKeys := indexInteractions(new.Interactions)

	for _, key := range oldKeys {
		candidates, ok := newIndex[key]
		if !ok {
			diffs.add(Difference{
				Kind:     EndpointRemoved,
				Location: contract.ChangeEndpoint,
				Endpoint: key,
				Path:     key,
			})
			continue
		}

		for _, o := range oldIndex[key] {
			compareInteraction(&diffs, key, o, counterpart(o, candidates), opts)
		}
	}

	for _, key := range newKeys {
		if _, ok := oldIndex[key]; !ok {
			diffs.add(Difference{
				Kind:     EndpointAdded,
				Location: contract.ChangeEndpoint,
				Endpoint: key,
				Path:     key,
			})
		}
	}

	return diffs
}

// counterpart prefers the new interaction with the same description, falling
// back to the first one sharing the METHOD PATH key.
func counterpart(old contract.Interaction, candidates []contract.Interaction) contract.Interaction {
	for _, c := range candidates {
		if c.Description == old.Description {
			return c
		}
	}
	return candidates[0]
}

func compareInteraction(diffs *differences, key string, old, new contract.Interaction, opts Options) {
	if old.Response.Status != new.Response.Status {
		diffs.add(Difference{
			Kind:     StatusChanged,
			Location: contract.ChangeResponse,
			Endpoint: key,
			Path:     key + ".response.status",
			OldValue: old.Response.Status,
			NewValue: new.Response.Status,
		})
	}

	compareRequestHeaders(diffs, key, old.Request.Headers, new.Request.Headers)
	compareQuery(diffs, key, old.Request.Query, new.Request.Query)

	w := bodyWalker{diffs: diffs, endpoint: key, opts: opts}
	w.walk(key+".request.body", contract.ChangeRequest, old.Request.Body, new.Request.Body, 0)
	w.walk(key+".response.body", contract.ChangeResponse, old.Response.Body, new.Response.Body, 0)

	if opts.CheckResponseHeaders || opts.StrictMode {
		compareResponseHeaders(diffs, key, old.Response.Headers, new.Response.Headers, opts.StrictMode)
	}
}

func lowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

func compareRequestHeaders(diffs *differences, key string, old, new map[string]string) {
	oldHeaders := lowerKeys(old)
	newHeaders := lowerKeys(new)

	for _, name := range contract.SortedKeys(newHeaders) {
		if _, ok := oldHeaders[name]; !ok {
			diffs.add(Difference{
				Kind:     RequestFieldAdded,
				Location: contract.ChangeRequest,
				Endpoint: key,
				Path:     key + ".request.headers." + name,
				Name:     name,
				NewValue: newHeaders[name],
				Required: true,
			})
		}
	}
	for _, name := range contract.SortedKeys(oldHeaders) {
		if _, ok := newHeaders[name]; !ok {
			diffs.add(Difference{
				Kind:     RequestFieldRemoved,
				Location: contract.ChangeRequest,
				Endpoint: key,
				Path:     key + ".request.headers." + name,
				Name:     name,
				OldValue: oldHeaders[name],
			})
		}
	}
}

func compareQuery(diffs *differences, key string, old, new map[string][]string) {
	for _, name := range contract.SortedKeys(new) {
		if _, ok := old[name]; !ok {
			diffs.add(Difference{
				Kind:     RequestFieldAdded,
				Location: contract.ChangeRequest,
				Endpoint: key,
				Path:     key + ".request.query." + name,
				Name:     name,
				NewValue: new[name],
				Required: true,
			})
		}
	}
	for _, name := range contract.SortedKeys(old) {
		if _, ok := new[name]; !ok {
			diffs.add(Difference{
				Kind:     RequestFieldRemoved,
				Location: contract.ChangeRequest,
				Endpoint: key,
				Path:     key + ".request.query." + name,
				Name:     name,
				OldValue: old[name],
			})
		}
	}
}

func compareResponseHeaders(diffs *differences, key string, old, new map[string]string, strict bool) {
	oldHeaders := lowerKeys(old)
	newHeaders := lowerKeys(new)

	for _, name := range contract.SortedKeys(oldHeaders) {
		newValue, ok := newHeaders[name]
		switch {
		case !ok:
			diffs.add(Difference{
				Kind:     ResponseHeaderRemoved,
				Location: contract.ChangeResponse,
				Endpoint: key,
				Path:     key + ".response.headers." + name,
				Name:     name,
				OldValue: oldHeaders[name],
			})
		case newValue != oldHeaders[name]:
			diffs.add(Difference{
				Kind:     ResponseHeaderChanged,
				Location: contract.ChangeResponse,
				Endpoint: key,
				Path:     key + ".response.headers." + name,
				Name:     name,
				OldValue: oldHeaders[name],
				NewValue: newValue,
			})
		}
	}

	if !strict {
		return
	}
	for _, name := range contract.SortedKeys(newHeaders) {
		if _, ok := oldHeaders[name]; !ok {
			diffs.add(Difference{
				Kind:     ResponseHeaderAdded,
				Location: contract.ChangeResponse,
				Endpoint: key,
				Path:     key + ".response.headers." + name,
				Name:     name,
				NewValue: newHeaders[name],
			})
		}
	}
}

// bodyWalker compares example JSON bodies recorded in Pact interactions. Pact has no
// notion of optional fields, so every recorded field counts as required.
type bodyWalker struct {
	diffs    *differences
	endpoint string
	opts     Options
}

func (w bodyWalker) walk(path string, location contract.ChangeType, old, new interface{}, depth int) {
	if depth > maxDepth || (old == nil && new == nil) {
		return
	}

	oldType, newType := jsonType(old), jsonType(new)
	if old != nil && new != nil && oldType != newType {
		w.diffs.add(Difference{
			Kind:     TypeChanged,
			Location: location,
			Endpoint: w.endpoint,
			Path:     path,
			OldValue: oldType,
			NewValue: newType,
		})
		return
	}

	switch o := old.(type) {
	case map[string]interface{}:
		n, _ := new.(map[string]interface{})
		w.walkObject(path, location, o, n, depth)
	case []interface{}:
		n, _ := new.([]interface{})
		// recorded arrays are examples, so the first element stands for the item shape
		if len(o) > 0 && len(n) > 0 {
			w.walk(path+"[]", location, o[0], n[0], depth+1)
		}
	default:
		if w.opts.ValidateExamples && old != nil && new != nil && !reflect.DeepEqual(old, new) {
			w.diffs.add(Difference{
				Kind:     ExampleChanged,
				Location: location,
				Endpoint: w.endpoint,
				Path:     path,
				OldValue: old,
				NewValue: new,
			})
		}
	}
}

func (w bodyWalker) walkObject(path string, location contract.ChangeType, old, new map[string]interface{}, depth int) {
	removed, added := ResponseFieldRemoved, ResponseFieldAdded
	if location == contract.ChangeRequest {
		removed, added = RequestFieldRemoved, RequestFieldAdded
	}

	for _, name := range contract.SortedKeys(old) {
		newValue, ok := new[name]
		if !ok {
			w.diffs.add(Difference{
				Kind:     removed,
				Location: location,
				Endpoint: w.endpoint,
				Path:     path + "." + name,
				Name:     name,
				OldValue: old[name],
			})
			continue
		}
		w.walk(path+"."+name, location, old[name], newValue, depth+1)
	}

	for _, name := range contract.SortedKeys(new) {
		if _, ok := old[name]; !ok {
			w.diffs.add(Difference{
				Kind:     added,
				Location: location,
				Endpoint: w.endpoint,
				Path:     path + "." + name,
				Name:     name,
				NewValue: new[name],
				Required: true,
			})
		}
	}
}

func jsonType(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case float64, float32, int, int64, int32:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}
