package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"
)

// YAML returns a kong.Resolver reading flag values from a YAML document.
// Keys are flag names; underscores may stand in for dashes, and nested
// mappings are joined with dashes so
//
//	postgres:
//	  conn-string: postgres://...
//
// sets --postgres-conn-string.
func YAML(r io.Reader) (kong.Resolver, error) {
	var doc map[string]any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	values := map[string]any{}
	flatten("", doc, values)

	var f kong.ResolverFunc = func(context *kong.Context, parent *kong.Path, flag *kong.Flag) (any, error) {
		raw, ok := values[flag.Name]
		if !ok {
			return nil, nil
		}
		return resolved(raw), nil
	}

	return f, nil
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for key, value := range in {
		name := strings.ReplaceAll(key, "_", "-")
		if prefix != "" {
			name = prefix + "-" + name
		}
		if nested, ok := value.(map[string]any); ok {
			flatten(name, nested, out)
			continue
		}
		out[name] = value
	}
}

// resolved renders YAML scalars in the text form kong's mappers parse, so
// durations, enums and numbers behave as they would on the command line.
func resolved(v any) any {
	switch v := v.(type) {
	case nil:
		return nil
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}
