package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"
)

// boundCall is a tool invocation whose arguments have been validated and
// decoded into the tool's typed record.
type boundCall func(ctx context.Context) Result

type validator interface {
	Validate() error
}

type toolSpec struct {
	name        string
	action      string
	description string
	schema      *jsonschema.Schema
	resolved    *jsonschema.Resolved
	bind        func(data []byte) (boundCall, error)
}

// Registry is the immutable tool catalog. It is populated once at startup and
// only read afterwards.
type Registry struct {
	tools map[string]*toolSpec
	order []string
}

func newRegistry() *Registry {
	return &Registry{tools: make(map[string]*toolSpec)}
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

func (r *Registry) lookup(name string) (*toolSpec, bool) {
	spec, ok := r.tools[name]
	return spec, ok
}

func (r *Registry) specs() []*toolSpec {
	out := make([]*toolSpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// toolOptions declares per-tool schema refinements on top of what
// jsonschema.For infers from the input record.
type toolOptions struct {
	defaults map[string]any
	minItems map[string]int
}

// register derives the input schema from In, applies defaults and item
// bounds, and adds the tool. Registration errors are programming errors and
// panic at startup.
func register[In any](r *Registry, name, action, description string, opts toolOptions, handler func(context.Context, In) Result) {
	if _, dup := r.tools[name]; dup {
		panic(fmt.Sprintf("mcp: duplicate tool %q", name))
	}
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		panic(fmt.Sprintf("mcp: derive schema for %s: %v", name, err))
	}
	if schema.Type != "object" {
		panic(fmt.Sprintf("mcp: schema for %s must be an object, got %q", name, schema.Type))
	}
	requireNonNull(schema)
	schema.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}
	for prop, value := range opts.defaults {
		ps := schema.Properties[prop]
		if ps == nil {
			panic(fmt.Sprintf("mcp: default for unknown property %s.%s", name, prop))
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			panic(fmt.Sprintf("mcp: encode default %s.%s: %v", name, prop, err))
		}
		ps.Default = encoded
	}
	for prop, n := range opts.minItems {
		ps := schema.Properties[prop]
		if ps == nil {
			panic(fmt.Sprintf("mcp: minItems for unknown property %s.%s", name, prop))
		}
		bound := n
		ps.MinItems = &bound
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("mcp: resolve schema for %s: %v", name, err))
	}

	r.tools[name] = &toolSpec{
		name:        name,
		action:      action,
		description: description,
		schema:      schema,
		resolved:    resolved,
		bind: func(data []byte) (boundCall, error) {
			var in In
			if err := json.Unmarshal(data, &in); err != nil {
				return nil, err
			}
			if v, ok := any(in).(validator); ok {
				if err := v.Validate(); err != nil {
					return nil, err
				}
			}
			return func(ctx context.Context) Result {
				return handler(ctx, in)
			}, nil
		},
	}
	r.order = append(r.order, name)
}

// requireNonNull drops "null" from the allowed types of required properties,
// which jsonschema.For permits for slices and pointers.
func requireNonNull(schema *jsonschema.Schema) {
	for _, name := range schema.Required {
		ps := schema.Properties[name]
		if ps == nil || len(ps.Types) == 0 {
			continue
		}
		types := slices.DeleteFunc(slices.Clone(ps.Types), func(t string) bool { return t == "null" })
		if len(types) == 1 {
			ps.Type = types[0]
			ps.Types = nil
		} else {
			ps.Types = types
		}
	}
	for _, ps := range schema.Properties {
		if ps != nil && ps.Type == "object" && len(ps.Properties) > 0 {
			requireNonNull(ps)
		}
		if ps != nil && ps.Items != nil && ps.Items.Type == "object" {
			requireNonNull(ps.Items)
		}
	}
}

// prepare turns raw tool arguments into a bound call: decode, apply schema
// defaults, validate, then decode into the typed record. Validation runs on a
// generic decoding, but the record is bound from the caller's own bytes so
// integers beyond float64 precision reach Crater unchanged.
func (t *toolSpec) prepare(raw json.RawMessage) (boundCall, error) {
	args := map[string]any{}
	original := map[string]json.RawMessage{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &args); err != nil {
			return nil, &ValidationError{Tool: t.name, Err: fmt.Errorf("arguments must be a JSON object")}
		}
		if err := json.Unmarshal(trimmed, &original); err != nil {
			return nil, &ValidationError{Tool: t.name, Err: fmt.Errorf("arguments must be a JSON object")}
		}
		if args == nil {
			args = map[string]any{}
		}
		if original == nil {
			original = map[string]json.RawMessage{}
		}
	}
	if err := t.resolved.ApplyDefaults(&args); err != nil {
		return nil, &ValidationError{Tool: t.name, Err: err}
	}
	if err := t.resolved.Validate(args); err != nil {
		return nil, &ValidationError{Tool: t.name, Err: err}
	}
	for name, value := range args {
		if _, present := original[name]; present {
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, &ValidationError{Tool: t.name, Err: fmt.Errorf("default for %s: %w", name, err)}
		}
		original[name] = encoded
	}
	data, err := json.Marshal(original)
	if err != nil {
		return nil, &ValidationError{Tool: t.name, Err: err}
	}
	call, err := t.bind(data)
	if err != nil {
		return nil, &ValidationError{Tool: t.name, Err: err}
	}
	return call, nil
}
