package compare

import (
	"fmt"
	"sort"
	"strings"

	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/getkin/kin-openapi/openapi3"
)

func compareOpenAPI(old, new *openapi3.T, opts Options) []Difference {
	var diffs differences

	c := operationComparer{
		diffs:       &diffs,
		opts:        opts,
		oldSecurity: old.Security,
		newSecurity: new.Security,
	}
	c.comparePaths(old.Paths, new.Paths)
	compareComponents(&diffs, old.Components, new.Components, opts)

	return diffs
}

func sortedPaths(paths *openapi3.Paths) []string {
	if paths == nil {
		return nil
	}
	return contract.SortedKeys(paths.Map())
}

func findPath(paths *openapi3.Paths, template string) *openapi3.PathItem {
	if paths == nil {
		return nil
	}
	// Find also matches templates whose parameter names differ, e.g. /orders/{id} and /orders/{orderId}
	return paths.Find(template)
}

// operationComparer carries the document level defaults operations inherit.
type operationComparer struct {
	diffs       *differences
	opts        Options
	oldSecurity openapi3.SecurityRequirements
	newSecurity openapi3.SecurityRequirements
}

func (c operationComparer) comparePaths(old, new *openapi3.Paths) {
	diffs := c.diffs
	for _, template := range sortedPaths(old) {
		oldItem := old.Value(template)
		newItem := findPath(new, template)

		if newItem == nil {
			for _, method := range sortedMethods(oldItem) {
				endpoint := method + " " + template
				diffs.add(Difference{
					Kind:     EndpointRemoved,
					Location: contract.ChangeEndpoint,
					Endpoint: endpoint,
					Path:     endpoint,
				})
			}
			continue
		}

		for _, method := range sortedMethods(oldItem) {
			endpoint := method + " " + template
			newOp := newItem.GetOperation(method)
			if newOp == nil {
				diffs.add(Difference{
					Kind:     MethodRemoved,
					Location: contract.ChangeEndpoint,
					Endpoint: endpoint,
					Path:     endpoint,
					Name:     method,
				})
				continue
			}
			c.compareOperation(endpoint, oldItem.GetOperation(method), newOp)
		}

		for _, method := range sortedMethods(newItem) {
			if oldItem.GetOperation(method) == nil {
				endpoint := method + " " + template
				diffs.add(Difference{
					Kind:     MethodAdded,
					Location: contract.ChangeEndpoint,
					Endpoint: endpoint,
					Path:     endpoint,
					Name:     method,
				})
			}
		}
	}

	for _, template := range sortedPaths(new) {
		if findPath(old, template) != nil {
			continue
		}
		for _, method := range sortedMethods(new.Value(template)) {
			endpoint := method + " " + template
			diffs.add(Difference{
				Kind:     EndpointAdded,
				Location: contract.ChangeEndpoint,
				Endpoint: endpoint,
				Path:     endpoint,
			})
		}
	}
}

func sortedMethods(item *openapi3.PathItem) []string {
	if item == nil {
		return nil
	}
	return contract.SortedKeys(item.Operations())
}

func (c operationComparer) compareOperation(endpoint string, old, new *openapi3.Operation) {
	compareParameters(c.diffs, endpoint, old.Parameters, new.Parameters, c.opts)
	compareRequestBody(c.diffs, endpoint, old.RequestBody, new.RequestBody, c.opts)
	compareResponses(c.diffs, endpoint, old.Responses, new.Responses, c.opts)

	if c.opts.ValidateSecurity {
		compareSecurity(c.diffs, endpoint, effectiveSecurity(old.Security, c.oldSecurity), effectiveSecurity(new.Security, c.newSecurity))
	}
}

func parameterMap(params openapi3.Parameters) map[string]*openapi3.Parameter {
	m := make(map[string]*openapi3.Parameter)
	for _, p := range params {
		if p != nil && p.Value != nil {
			m[p.Value.In+"."+p.Value.Name] = p.Value
		}
	}
	return m
}

func compareParameters(diffs *differences, endpoint string, old, new openapi3.Parameters, opts Options) {
	oldParams := parameterMap(old)
	newParams := parameterMap(new)

	for _, key := range contract.SortedKeys(oldParams) {
		o := oldParams[key]
		path := endpoint + ".request.parameters." + key
		n, ok := newParams[key]
		if !ok {
			if opts.IgnoreOptionalFields && !o.Required {
				continue
			}
			diffs.add(Difference{
				Kind:     RequestFieldRemoved,
				Location: contract.ChangeRequest,
				Endpoint: endpoint,
				Path:     path,
				Name:     o.Name,
				Required: o.Required,
			})
			continue
		}

		if !o.Required && n.Required {
			diffs.add(Difference{
				Kind:     RequestFieldAdded,
				Location: contract.ChangeRequest,
				Endpoint: endpoint,
				Path:     path,
				Name:     n.Name,
				OldValue: "optional",
				NewValue: "required",
				Required: true,
			})
		}

		if o.Schema != nil && n.Schema != nil && o.Schema.Value != nil && n.Schema.Value != nil {
			compareScalar(diffs, endpoint, path, contract.ChangeRequest, o.Schema.Value, n.Schema.Value)
		}
	}

	for _, key := range contract.SortedKeys(newParams) {
		if _, ok := oldParams[key]; ok {
			continue
		}
		n := newParams[key]
		if opts.IgnoreOptionalFields && !n.Required {
			continue
		}
		diffs.add(Difference{
			Kind:     RequestFieldAdded,
			Location: contract.ChangeRequest,
			Endpoint: endpoint,
			Path:     endpoint + ".request.parameters." + key,
			Name:     n.Name,
			Required: n.Required,
		})
	}
}

// jsonSchema picks the JSON media type when present, otherwise the first one by name.
func jsonSchema(content openapi3.Content) *openapi3.SchemaRef {
	if len(content) == 0 {
		return nil
	}
	if mt := content.Get("application/json"); mt != nil && mt.Schema != nil {
		return mt.Schema
	}
	for _, mime := range contract.SortedKeys(content) {
		if mt := content[mime]; mt != nil && mt.Schema != nil {
			return mt.Schema
		}
	}
	return nil
}

func compareRequestBody(diffs *differences, endpoint string, old, new *openapi3.RequestBodyRef, opts Options) {
	var oldSchema, newSchema *openapi3.SchemaRef
	oldRequired, newRequired := false, false
	if old != nil && old.Value != nil {
		oldSchema = jsonSchema(old.Value.Content)
		oldRequired = old.Value.Required
	}
	if new != nil && new.Value != nil {
		newSchema = jsonSchema(new.Value.Content)
		newRequired = new.Value.Required
	}

	path := endpoint + ".request.body"
	if oldSchema == nil && newSchema != nil {
		diffs.add(Difference{
			Kind:     RequestFieldAdded,
			Location: contract.ChangeRequest,
			Endpoint: endpoint,
			Path:     path,
			Name:     "body",
			Required: newRequired,
		})
		return
	}
	if oldSchema == nil || newSchema == nil {
		if oldSchema != nil {
			diffs.add(Difference{
				Kind:     RequestFieldRemoved,
				Location: contract.ChangeRequest,
				Endpoint: endpoint,
				Path:     path,
				Name:     "body",
				Required: oldRequired,
			})
		}
		return
	}

	w := schemaWalker{diffs: diffs, endpoint: endpoint, location: contract.ChangeRequest, opts: opts, skipSharedRefs: true}
	w.walk(path, oldSchema, newSchema, 0)
}

func compareResponses(diffs *differences, endpoint string, old, new *openapi3.Responses, opts Options) {
	if old == nil {
		return
	}

	for _, code := range contract.SortedKeys(old.Map()) {
		oldResp := old.Value(code)
		var newResp *openapi3.ResponseRef
		if new != nil {
			newResp = new.Value(code)
		}

		path := endpoint + ".response." + code
		if newResp == nil {
			var codes []string
			if new != nil {
				codes = contract.SortedKeys(new.Map())
			}
			diffs.add(Difference{
				Kind:     StatusChanged,
				Location: contract.ChangeResponse,
				Endpoint: endpoint,
				Path:     endpoint + ".response.status",
				OldValue: code,
				NewValue: strings.Join(codes, ","),
			})
			continue
		}
		if oldResp == nil || oldResp.Value == nil || newResp.Value == nil {
			continue
		}

		oldSchema, newSchema := jsonSchema(oldResp.Value.Content), jsonSchema(newResp.Value.Content)
		if oldSchema != nil && newSchema != nil {
			w := schemaWalker{diffs: diffs, endpoint: endpoint, location: contract.ChangeResponse, opts: opts, skipSharedRefs: true}
			w.walk(path+".body", oldSchema, newSchema, 0)
		} else if oldSchema != nil {
			diffs.add(Difference{
				Kind:     ResponseFieldRemoved,
				Location: contract.ChangeResponse,
				Endpoint: endpoint,
				Path:     path + ".body",
				Name:     "body",
			})
		}

		if opts.CheckResponseHeaders || opts.StrictMode {
			compareHeaderDefinitions(diffs, endpoint, path, oldResp.Value.Headers, newResp.Value.Headers, opts.StrictMode)
		}
	}
}

func compareHeaderDefinitions(diffs *differences, endpoint, path string, old, new openapi3.Headers, strict bool) {
	oldHeaders := make(map[string]*openapi3.HeaderRef, len(old))
	for name, h := range old {
		oldHeaders[strings.ToLower(name)] = h
	}
	newHeaders := make(map[string]*openapi3.HeaderRef, len(new))
	for name, h := range new {
		newHeaders[strings.ToLower(name)] = h
	}

	for _, name := range contract.SortedKeys(oldHeaders) {
		n, ok := newHeaders[name]
		if !ok {
			diffs.add(Difference{
				Kind:     ResponseHeaderRemoved,
				Location: contract.ChangeResponse,
				Endpoint: endpoint,
				Path:     path + ".headers." + name,
				Name:     name,
			})
			continue
		}

		oldType, newType := headerType(oldHeaders[name]), headerType(n)
		if oldType != newType {
			diffs.add(Difference{
				Kind:     ResponseHeaderChanged,
				Location: contract.ChangeResponse,
				Endpoint: endpoint,
				Path:     path + ".headers." + name,
				Name:     name,
				OldValue: oldType,
				NewValue: newType,
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
				Endpoint: endpoint,
				Path:     path + ".headers." + name,
				Name:     name,
			})
		}
	}
}

func headerType(h *openapi3.HeaderRef) string {
	if h == nil || h.Value == nil || h.Value.Schema == nil || h.Value.Schema.Value == nil {
		return ""
	}
	return schemaType(h.Value.Schema.Value)
}

// effectiveSecurity applies the document default unless the operation overrides it.
func effectiveSecurity(op *openapi3.SecurityRequirements, doc openapi3.SecurityRequirements) openapi3.SecurityRequirements {
	if op == nil {
		return doc
	}
	return *op
}

// securitySchemes flattens alternative requirements into "scheme" and "scheme:scope" names.
func securitySchemes(reqs openapi3.SecurityRequirements) map[string]bool {
	names := make(map[string]bool)
	for _, req := range reqs {
		for scheme, scopes := range req {
			names[scheme] = true
			for _, scope := range scopes {
				names[scheme+":"+scope] = true
			}
		}
	}
	return names
}

func compareSecurity(diffs *differences, endpoint string, old, new openapi3.SecurityRequirements) {
	oldNames, newNames := securitySchemes(old), securitySchemes(new)
	prefix := endpoint + ".security."

	for _, name := range contract.SortedKeys(newNames) {
		if !oldNames[name] {
			diffs.add(Difference{
				Kind:     SecurityAdded,
				Location: contract.ChangeRequest,
				Endpoint: endpoint,
				Path:     prefix + name,
				Name:     name,
			})
		}
	}
	for _, name := range contract.SortedKeys(oldNames) {
		if !newNames[name] {
			diffs.add(Difference{
				Kind:     SecurityRemoved,
				Location: contract.ChangeRequest,
				Endpoint: endpoint,
				Path:     prefix + name,
				Name:     name,
			})
		}
	}
}

func compareComponents(diffs *differences, old, new *openapi3.Components, opts Options) {
	if old == nil || len(old.Schemas) == 0 {
		return
	}

	var newSchemas openapi3.Schemas
	if new != nil {
		newSchemas = new.Schemas
	}

	for _, name := range contract.SortedKeys(old.Schemas) {
		path := "components.schemas." + name
		n, ok := newSchemas[name]
		if !ok {
			diffs.add(Difference{
				Kind:     PropertyRemoved,
				Location: contract.ChangeSchema,
				Path:     path,
				Name:     name,
			})
			continue
		}

		w := schemaWalker{diffs: diffs, location: contract.ChangeSchema, opts: opts}
		w.walk(path, old.Schemas[name], n, 0)
	}

	for _, name := range contract.SortedKeys(newSchemas) {
		if _, ok := old.Schemas[name]; !ok {
			diffs.add(Difference{
				Kind:     PropertyAdded,
				Location: contract.ChangeSchema,
				Path:     "components.schemas." + name,
				Name:     name,
			})
		}
	}
}

// compareScalar reports type and enum differences of two non-object schemas.
func compareScalar(diffs *differences, endpoint, path string, location contract.ChangeType, old, new *openapi3.Schema) bool {
	oldType, newType := schemaType(old), schemaType(new)
	if oldType != newType {
		diffs.add(Difference{
			Kind:     TypeChanged,
			Location: location,
			Endpoint: endpoint,
			Path:     path,
			OldValue: oldType,
			NewValue: newType,
		})
		return false
	}

	// an unconstrained side accepts any value, so only enum to enum changes count
	if len(old.Enum) == 0 || len(new.Enum) == 0 {
		return true
	}

	oldEnum, newEnum := enumSet(old.Enum), enumSet(new.Enum)
	for _, v := range old.Enum {
		if !newEnum[fmt.Sprint(v)] {
			diffs.add(Difference{
				Kind:     EnumValueRemoved,
				Location: location,
				Endpoint: endpoint,
				Path:     path,
				OldValue: v,
			})
		}
	}
	for _, v := range new.Enum {
		if !oldEnum[fmt.Sprint(v)] {
			diffs.add(Difference{
				Kind:     EnumValueAdded,
				Location: location,
				Endpoint: endpoint,
				Path:     path,
				NewValue: v,
			})
		}
	}
	return true
}

func enumSet(values []any) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[fmt.Sprint(v)] = true
	}
	return set
}

func schemaType(s *openapi3.Schema) string {
	types := append([]string(nil), s.Type.Slice()...)
	sort.Strings(types)
	return strings.Join(types, ",")
}
