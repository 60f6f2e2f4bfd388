package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Content is one item of a response.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Response is the uniform envelope every invocation returns.
type Response struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
	Kind    ErrorKind `json:"-"`
}

// Invocation is a request to run a named operation.
type Invocation struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// TextResponse wraps text in a successful response.
func TextResponse(text string) Response {
	return Response{Content: []Content{{Type: "text", Text: text}}}
}

// JSONResponse encodes v as the text of a successful response.
func JSONResponse(v any) (Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode response: %w", err)
	}
	return TextResponse(string(b)), nil
}

// ErrorResponse builds a failed response carrying a diagnostic.
func ErrorResponse(kind ErrorKind, text string) Response {
	if kind == ErrorKindNone {
		kind = ErrorKindHandlerError
	}
	return Response{
		Content: []Content{{Type: "text", Text: text}},
		IsError: true,
		Kind:    kind,
	}
}

// Text joins the text of every content item.
func (r Response) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}
