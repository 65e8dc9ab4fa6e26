package compare

import (
	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/getkin/kin-openapi/openapi3"
)

// schemaWalker is a path-accumulating visitor over two versions of an OpenAPI schema.
type schemaWalker struct {
	diffs    *differences
	endpoint string
	location contract.ChangeType
	opts     Options
	// skipSharedRefs skips subtrees that reference the same component in both
	// versions; those are reported once by the components walk.
	skipSharedRefs bool
}

func (w schemaWalker) kinds() (removed, added Kind) {
	switch w.location {
	case contract.ChangeRequest:
		return RequestFieldRemoved, RequestFieldAdded
	case contract.ChangeResponse:
		return ResponseFieldRemoved, ResponseFieldAdded
	}
	return PropertyRemoved, PropertyAdded
}

func (w schemaWalker) walk(path string, old, new *openapi3.SchemaRef, depth int) {
	if depth > maxDepth || old == nil || new == nil || old.Value == nil || new.Value == nil {
		return
	}
	if w.skipSharedRefs && old.Ref != "" && old.Ref == new.Ref {
		return
	}

	if !compareScalar(w.diffs, w.endpoint, path, w.location, old.Value, new.Value) {
		return
	}

	if old.Value.Items != nil && new.Value.Items != nil {
		w.walk(path+"[]", old.Value.Items, new.Value.Items, depth+1)
	}

	w.walkProperties(path, old.Value, new.Value, depth)
}

func (w schemaWalker) walkProperties(path string, old, new *openapi3.Schema, depth int) {
	removed, added := w.kinds()

	oldRequired := stringSet(old.Required)
	newRequired := stringSet(new.Required)

	for _, name := range contract.SortedKeys(old.Properties) {
		if w.opts.IgnoreOptionalFields && !oldRequired[name] {
			continue
		}

		n, ok := new.Properties[name]
		if !ok {
			w.diffs.add(Difference{
				Kind:     removed,
				Location: w.location,
				Endpoint: w.endpoint,
				Path:     path + "." + name,
				Name:     name,
				Required: oldRequired[name],
			})
			continue
		}

		// an existing request field becoming mandatory breaks callers that omit it
		if w.location == contract.ChangeRequest && !oldRequired[name] && newRequired[name] {
			w.diffs.add(Difference{
				Kind:     added,
				Location: w.location,
				Endpoint: w.endpoint,
				Path:     path + "." + name,
				Name:     name,
				OldValue: "optional",
				NewValue: "required",
				Required: true,
			})
		}

		w.walk(path+"."+name, old.Properties[name], n, depth+1)
	}

	for _, name := range contract.SortedKeys(new.Properties) {
		if _, ok := old.Properties[name]; ok {
			continue
		}
		if w.opts.IgnoreOptionalFields && !newRequired[name] {
			continue
		}
		w.diffs.add(Difference{
			Kind:     added,
			Location: w.location,
			Endpoint: w.endpoint,
			Path:     path + "." + name,
			Name:     name,
			Required: newRequired[name],
		})
	}
}

func stringSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
