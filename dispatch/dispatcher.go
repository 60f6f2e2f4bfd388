package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/searchgate/metrics"
)

// Handler runs one named operation. A returned error becomes an error
// response; handlers may also return an error response themselves.
type Handler func(ctx context.Context, args map[string]any) (Response, error)

// ToolInfo describes a registered operation.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

type registration struct {
	info    ToolInfo
	handler Handler
}

// Dispatcher routes invocations to registered handlers.
type Dispatcher struct {
	mu     sync.RWMutex
	tools  map[string]registration
	logger *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher) error

// WithLogger sets the logger used to record invocations.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		d.logger = logger.With("component", "dispatcher")
		return nil
	}
}

// New creates an empty dispatcher.
func New(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		tools:  make(map[string]registration),
		logger: slog.Default().With("component", "dispatcher"),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Register adds a handler under name.
func (d *Dispatcher) Register(name string, handler Handler) error {
	return d.RegisterTool(ToolInfo{Name: name}, handler)
}

// RegisterTool adds a handler along with its description and input schema.
func (d *Dispatcher) RegisterTool(info ToolInfo, handler Handler) error {
	info.Name = strings.TrimSpace(info.Name)
	if info.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTool)
	}
	if handler == nil {
		return fmt.Errorf("%w: handler for %q is nil", ErrInvalidTool, info.Name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.tools[info.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, info.Name)
	}
	d.tools[info.Name] = registration{info: info, handler: handler}
	return nil
}

// Tools lists registered operations sorted by name.
func (d *Dispatcher) Tools() []ToolInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	infos := make([]ToolInfo, 0, len(d.tools))
	for _, r := range d.tools {
		infos = append(infos, r.info)
	}
	slices.SortFunc(infos, func(a, b ToolInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return infos
}

// Invoke runs the operation registered under name. It never returns a Go
// error: every failure is reported in the response envelope.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]any) Response {
	start := time.Now()

	d.mu.RLock()
	reg, ok := d.tools[name]
	d.mu.RUnlock()
	if !ok {
		d.logger.Warn("unknown operation", "tool", name)
		metrics.RecordToolCall(name, "unknown", time.Since(start).Seconds())
		return ErrorResponse(ErrorKindUnknownOperation, fmt.Sprintf("%s: %s", ErrUnknownOperation, name))
	}

	if args == nil {
		args = map[string]any{}
	}

	resp := d.run(ctx, reg, args)
	elapsed := time.Since(start)

	status := "success"
	if resp.IsError {
		status = string(resp.Kind)
		d.logger.Warn("tool call failed", "tool", name, "kind", resp.Kind, "error", resp.Text(), "duration", elapsed)
	} else {
		d.logger.Debug("tool call completed", "tool", name, "duration", elapsed)
	}
	metrics.RecordToolCall(name, status, elapsed.Seconds())
	return resp
}

// InvokeJSON decodes an invocation of the form {"name":..., "arguments":{...}}
// and runs it.
func (d *Dispatcher) InvokeJSON(ctx context.Context, payload []byte) Response {
	var inv Invocation
	if err := json.Unmarshal(payload, &inv); err != nil {
		return ErrorResponse(ErrorKindInvalidArguments, fmt.Sprintf("%s: %v", ErrInvalidArguments, err))
	}
	return d.Invoke(ctx, inv.Name, inv.Arguments)
}

func (d *Dispatcher) run(ctx context.Context, reg registration, args map[string]any) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool handler panicked", "tool", reg.info.Name, "panic", r)
			resp = ErrorResponse(ErrorKindHandlerPanic, fmt.Sprintf("internal error while running %s", reg.info.Name))
		}
	}()

	out, err := reg.handler(ctx, args)
	if err != nil {
		kind := ErrorKindHandlerError
		if errors.Is(err, ErrInvalidArguments) {
			kind = ErrorKindInvalidArguments
		}
		return ErrorResponse(kind, err.Error())
	}
	if out.IsError && out.Kind == ErrorKindNone {
		out.Kind = ErrorKindHandlerError
	}
	if out.Content == nil {
		out.Content = []Content{}
	}
	return out
}
