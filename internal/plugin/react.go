package plugin

import (
	"fmt"
	"strings"
)

// ReactName is the registry name of the React transform plugin.
const ReactName = "react"

const (
	jsxRuntimeAutomatic = "automatic"
	jsxRuntimeClassic   = "classic"
)

// React configures the JSX transform and fast refresh for React sources.
type React struct {
	JSXRuntime      string
	JSXImportSource string
	FastRefresh     bool
}

// NewReact is the Factory for the react plugin. Option types and unknown keys
// are rejected here; the runtime and import source values are checked in Setup.
func NewReact(options map[string]any) (Plugin, error) {
	p := &React{
		JSXRuntime:      jsxRuntimeAutomatic,
		JSXImportSource: "react",
		FastRefresh:     true,
	}
	if err := p.apply(options); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *React) apply(options map[string]any) error {
	for key, raw := range options {
		switch key {
		case "jsxRuntime":
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("[plugin:react] jsxRuntime must be a string, got %T", raw)
			}
			p.JSXRuntime = strings.TrimSpace(s)
		case "jsxImportSource":
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("[plugin:react] jsxImportSource must be a string, got %T", raw)
			}
			p.JSXImportSource = strings.TrimSpace(s)
		case "fastRefresh":
			b, ok := raw.(bool)
			if !ok {
				return fmt.Errorf("[plugin:react] fastRefresh must be a boolean, got %T", raw)
			}
			p.FastRefresh = b
		default:
			return fmt.Errorf("[plugin:react] unknown option %q", key)
		}
	}
	return nil
}

// Name implements Plugin.
func (p *React) Name() string {
	return ReactName
}

// Setup implements Plugin.
func (p *React) Setup(_ string) error {
	switch p.JSXRuntime {
	case jsxRuntimeAutomatic, jsxRuntimeClassic:
	default:
		return fmt.Errorf("[plugin:react] jsxRuntime must be %q or %q, got %q", jsxRuntimeAutomatic, jsxRuntimeClassic, p.JSXRuntime)
	}
	if p.JSXRuntime == jsxRuntimeAutomatic && p.JSXImportSource == "" {
		return fmt.Errorf("[plugin:react] jsxImportSource cannot be empty with the automatic runtime")
	}
	return nil
}
