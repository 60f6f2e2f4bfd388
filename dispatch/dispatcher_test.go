package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(_ context.Context, args map[string]any) (Response, error) {
	return TextResponse(fmt.Sprint(args["text"])), nil
}

func newDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d, err := New()
	require.NoError(t, err)
	return d
}

func TestRegister_Validation(t *testing.T) {
	d := newDispatcher(t)

	err := d.Register("", echoHandler)
	assert.ErrorIs(t, err, ErrInvalidTool)

	err = d.Register("echo", nil)
	assert.ErrorIs(t, err, ErrInvalidTool)

	require.NoError(t, d.Register("echo", echoHandler))
	err = d.Register("echo", echoHandler)
	assert.ErrorIs(t, err, ErrDuplicateTool)
}

func TestTools_Sorted(t *testing.T) {
	d := newDispatcher(t)
	require.NoError(t, d.Register("zeta", echoHandler))
	require.NoError(t, d.RegisterTool(ToolInfo{Name: "alpha", Description: "first"}, echoHandler))
	require.NoError(t, d.Register("mid", echoHandler))

	tools := d.Tools()
	require.Len(t, tools, 3)
	assert.Equal(t, "alpha", tools[0].Name)
	assert.Equal(t, "first", tools[0].Description)
	assert.Equal(t, "mid", tools[1].Name)
	assert.Equal(t, "zeta", tools[2].Name)
}

func TestInvoke_Success(t *testing.T) {
	d := newDispatcher(t)
	require.NoError(t, d.Register("echo", echoHandler))

	resp := d.Invoke(context.Background(), "echo", map[string]any{"text": "hello"})
	assert.False(t, resp.IsError)
	assert.Equal(t, ErrorKindNone, resp.Kind)
	assert.Equal(t, "hello", resp.Text())
}

func TestInvoke_UnknownOperation(t *testing.T) {
	d := newDispatcher(t)

	resp := d.Invoke(context.Background(), "missing", nil)
	assert.True(t, resp.IsError)
	assert.Equal(t, ErrorKindUnknownOperation, resp.Kind)
	assert.Contains(t, resp.Text(), "missing")
}

func TestInvoke_HandlerError(t *testing.T) {
	d := newDispatcher(t)
	require.NoError(t, d.Register("fails", func(context.Context, map[string]any) (Response, error) {
		return Response{}, errors.New("backend exploded")
	}))

	resp := d.Invoke(context.Background(), "fails", nil)
	assert.True(t, resp.IsError)
	assert.Equal(t, ErrorKindHandlerError, resp.Kind)
	assert.Equal(t, "backend exploded", resp.Text())
}

func TestInvoke_InvalidArguments(t *testing.T) {
	d := newDispatcher(t)
	require.NoError(t, d.Register("strict", func(context.Context, map[string]any) (Response, error) {
		return Response{}, fmt.Errorf("%w: query is required", ErrInvalidArguments)
	}))

	resp := d.Invoke(context.Background(), "strict", map[string]any{})
	assert.True(t, resp.IsError)
	assert.Equal(t, ErrorKindInvalidArguments, resp.Kind)
	assert.Contains(t, resp.Text(), "query is required")
}

func TestInvoke_PanicIsContained(t *testing.T) {
	d := newDispatcher(t)
	require.NoError(t, d.Register("boom", func(context.Context, map[string]any) (Response, error) {
		panic("nil map write")
	}))
	require.NoError(t, d.Register("echo", echoHandler))

	resp := d.Invoke(context.Background(), "boom", nil)
	assert.True(t, resp.IsError)
	assert.Equal(t, ErrorKindHandlerPanic, resp.Kind)
	assert.NotContains(t, resp.Text(), "nil map write")

	// the dispatcher keeps serving after a panic
	resp = d.Invoke(context.Background(), "echo", map[string]any{"text": "still here"})
	assert.False(t, resp.IsError)
	assert.Equal(t, "still here", resp.Text())
}

func TestInvoke_HandlerReportedError(t *testing.T) {
	d := newDispatcher(t)
	require.NoError(t, d.Register("soft", func(context.Context, map[string]any) (Response, error) {
		return Response{Content: []Content{{Type: "text", Text: "not allowed"}}, IsError: true}, nil
	}))

	resp := d.Invoke(context.Background(), "soft", nil)
	assert.True(t, resp.IsError)
	assert.Equal(t, ErrorKindHandlerError, resp.Kind)
}

func TestInvokeJSON(t *testing.T) {
	d := newDispatcher(t)
	require.NoError(t, d.Register("echo", echoHandler))

	resp := d.InvokeJSON(context.Background(), []byte(`{"name":"echo","arguments":{"text":"hi"}}`))
	assert.False(t, resp.IsError)
	assert.Equal(t, "hi", resp.Text())

	resp = d.InvokeJSON(context.Background(), []byte(`{not json`))
	assert.True(t, resp.IsError)
	assert.Equal(t, ErrorKindInvalidArguments, resp.Kind)
}

func TestResponse_EnvelopeShape(t *testing.T) {
	b, err := json.Marshal(ErrorResponse(ErrorKindHandlerError, "bad"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"bad"}],"isError":true}`, string(b))

	b, err = json.Marshal(TextResponse("ok"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"ok"}]}`, string(b))
}

func TestInvoke_Concurrent(t *testing.T) {
	d := newDispatcher(t)
	require.NoError(t, d.Register("echo", echoHandler))

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := d.Invoke(context.Background(), "echo", map[string]any{"text": i})
			assert.Equal(t, fmt.Sprint(i), resp.Text())
		}(i)
	}
	wg.Wait()
}
