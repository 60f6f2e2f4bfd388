package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/poiesic/searchgate/dispatch"
)

// arguments gives typed, validated access to a tool's argument object.
type arguments struct {
	root gjson.Result
}

func parseArguments(args map[string]any) (arguments, error) {
	if args == nil {
		return arguments{root: gjson.Parse("{}")}, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return arguments{}, fmt.Errorf("%w: %v", dispatch.ErrInvalidArguments, err)
	}
	return arguments{root: gjson.ParseBytes(raw)}, nil
}

func (a arguments) requiredString(name string) (string, error) {
	s, err := a.optionalString(name)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%w: %s is required", dispatch.ErrInvalidArguments, name)
	}
	return s, nil
}

func (a arguments) optionalString(name string) (string, error) {
	v := a.root.Get(name)
	if !v.Exists() || v.Type == gjson.Null {
		return "", nil
	}
	if v.Type != gjson.String {
		return "", fmt.Errorf("%w: %s must be a string", dispatch.ErrInvalidArguments, name)
	}
	return strings.TrimSpace(v.String()), nil
}

// optionalInt returns def when name is absent. Values must be whole numbers
// within [lo, hi].
func (a arguments) optionalInt(name string, def, lo, hi int) (int, error) {
	v := a.root.Get(name)
	if !v.Exists() || v.Type == gjson.Null {
		return def, nil
	}
	if v.Type != gjson.Number || v.Float() != float64(v.Int()) {
		return 0, fmt.Errorf("%w: %s must be an integer", dispatch.ErrInvalidArguments, name)
	}
	n := int(v.Int())
	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %s must be between %d and %d", dispatch.ErrInvalidArguments, name, lo, hi)
	}
	return n, nil
}

func (a arguments) optionalBool(name string, def bool) (bool, error) {
	v := a.root.Get(name)
	if !v.Exists() || v.Type == gjson.Null {
		return def, nil
	}
	if v.Type != gjson.True && v.Type != gjson.False {
		return false, fmt.Errorf("%w: %s must be a boolean", dispatch.ErrInvalidArguments, name)
	}
	return v.Bool(), nil
}
