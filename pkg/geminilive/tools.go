package geminilive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"
)

// ToolHandler executes a function call and returns the response payload.
type ToolHandler func(ctx context.Context, call *genai.FunctionCall) (map[string]any, error)

// Tool is a function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Handler     ToolHandler
}

// Declaration converts the tool into a genai function declaration.
func (t *Tool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  convSchema(t.Parameters),
	}
}

// FuncToolOption configures NewFuncTool.
type FuncToolOption func(*funcToolConfig)

type funcToolConfig struct {
	typeSchemas map[reflect.Type]*jsonschema.Schema
}

// WithTypeSchema overrides the schema inferred for type T.
func WithTypeSchema[T any](s *jsonschema.Schema) FuncToolOption {
	return func(c *funcToolConfig) {
		c.typeSchemas[reflect.TypeFor[T]()] = s
	}
}

// NewFuncTool creates a tool whose parameter schema is derived from ArgType.
// The call arguments are decoded into ArgType before fn runs.
func NewFuncTool[ArgType any](name, description string, fn func(ctx context.Context, arg ArgType) (any, error), opts ...FuncToolOption) (*Tool, error) {
	if fn == nil {
		return nil, fmt.Errorf("geminilive: tool %s: nil function", name)
	}
	cfg := &funcToolConfig{typeSchemas: make(map[reflect.Type]*jsonschema.Schema)}
	for _, opt := range opts {
		opt(cfg)
	}
	schema, err := jsonschema.For[ArgType](&jsonschema.ForOptions{
		TypeSchemas: cfg.typeSchemas,
	})
	if err != nil {
		return nil, fmt.Errorf("geminilive: tool %s: %w", name, err)
	}
	return &Tool{
		Name:        name,
		Description: description,
		Parameters:  schema,
		Handler: func(ctx context.Context, call *genai.FunctionCall) (map[string]any, error) {
			var arg ArgType
			if len(call.Args) > 0 {
				data, err := json.Marshal(call.Args)
				if err != nil {
					return nil, fmt.Errorf("marshal args: %w", err)
				}
				if err := unmarshalJSON(data, &arg); err != nil {
					return nil, fmt.Errorf("unmarshal %s error: %w", data, err)
				}
			}
			out, err := fn(ctx, arg)
			if err != nil {
				return nil, err
			}
			return toResponseMap(out), nil
		},
	}, nil
}

// MustNewFuncTool is like NewFuncTool but panics on error.
func MustNewFuncTool[ArgType any](name, description string, fn func(ctx context.Context, arg ArgType) (any, error), opts ...FuncToolOption) *Tool {
	tool, err := NewFuncTool(name, description, fn, opts...)
	if err != nil {
		panic(err)
	}
	return tool
}

// ToolRegistry holds the tools of a session. It is safe for concurrent use.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	order []string
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*Tool)}
}

// Register adds a tool. A name that is already registered yields a
// DuplicateToolError and leaves the existing tool in place.
func (r *ToolRegistry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return errors.New("geminilive: tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("geminilive: tool %s: handler is required", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; ok {
		return &DuplicateToolError{Name: t.Name}
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Lookup returns the tool with exactly the given name.
func (r *ToolRegistry) Lookup(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Declarations returns the registered tools in registration order, grouped
// into one genai.Tool. It returns nil when the registry is empty.
func (r *ToolRegistry) Declarations() []*genai.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		decls = append(decls, r.tools[name].Declaration())
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// Invoke runs the tool matching call.Name. It always returns a response to
// send back to the model; when the call fails the response carries
// {"error": message} and the returned error is a *ToolInvocationError.
func (r *ToolRegistry) Invoke(ctx context.Context, call *genai.FunctionCall) (*genai.FunctionResponse, error) {
	resp := &genai.FunctionResponse{ID: call.ID, Name: call.Name}

	tool, ok := r.Lookup(call.Name)
	if !ok {
		err := &ToolInvocationError{Name: call.Name, CallID: call.ID, Err: errors.New("unknown tool")}
		resp.Response = map[string]any{"error": err.Error()}
		return resp, err
	}

	out, err := callHandler(ctx, tool.Handler, call)
	if err != nil {
		ierr := &ToolInvocationError{Name: call.Name, CallID: call.ID, Err: err}
		resp.Response = map[string]any{"error": err.Error()}
		return resp, ierr
	}
	if out == nil {
		out = map[string]any{}
	}
	resp.Response = out
	return resp, nil
}

func callHandler(ctx context.Context, h ToolHandler, call *genai.FunctionCall) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, call)
}
