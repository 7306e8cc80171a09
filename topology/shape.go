package topology

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/mcdb/status"
)

// shape detects one accepted element form in untyped configuration (decoded
// YAML, JSON or viper values) and builds the matching Entry.
type shape struct {
	name  string
	match func(any) bool
	build func(any) (Entry, error)
}

// shapes are tried in order; the first match wins.
var shapes = []shape{
	{name: "positional", match: isSequence, build: buildPositional},
	{name: "record", match: isMapping, build: buildRecord},
	{name: "url", match: isString, build: func(v any) (Entry, error) { return URL(v.(string)), nil }},
}

// FromAny converts an untyped server list into entries. A string is treated as
// a comma-separated List; a sequence is resolved element by element; nil yields
// no entries (callers fall back to the default topology).
func FromAny(v any) ([]Entry, error) {
	switch vv := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []Entry{List(vv)}, nil
	case []string:
		out := make([]Entry, len(vv))
		for i, s := range vv {
			out[i] = URL(s)
		}
		return out, nil
	case []any:
		out := make([]Entry, 0, len(vv))
		for i, el := range vv {
			e, err := entryFromAny(el)
			if err != nil {
				return nil, fmt.Errorf("server %d: %w", i, err)
			}
			out = append(out, e)
		}
		return out, nil
	default:
		return nil, status.Configf("servers", "invalid server specification %T; must be a list or string", v)
	}
}

func entryFromAny(v any) (Entry, error) {
	for _, sh := range shapes {
		if sh.match(v) {
			return sh.build(v)
		}
	}
	return nil, status.Configf("servers", "invalid server specification %T; must be a list, record or string", v)
}

func isSequence(v any) bool {
	switch v.(type) {
	case []any, []string:
		return true
	}
	return false
}

func isMapping(v any) bool {
	switch v.(type) {
	case map[string]any, map[any]any:
		return true
	}
	return false
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func buildPositional(v any) (Entry, error) {
	items, err := cast.ToSliceE(v)
	if err != nil {
		return nil, &status.ConfigError{Field: "servers", Reason: "invalid positional server", Err: err}
	}
	p := make(Positional, len(items))
	for i, it := range items {
		s, err := cast.ToStringE(it)
		if err != nil {
			return nil, &status.ConfigError{Field: "servers", Reason: "invalid positional server", Err: err}
		}
		p[i] = s
	}
	return p, nil
}

func buildRecord(v any) (Entry, error) {
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, &status.ConfigError{Field: "servers", Reason: "invalid server record", Err: err}
	}
	var r Record
	for k, val := range m {
		switch strings.ToLower(k) {
		case "host":
			r.Host, err = cast.ToStringE(val)
		case "port":
			r.Port, err = cast.ToIntE(val)
		case "weight":
			var w int
			if w, err = cast.ToIntE(val); err == nil {
				r.Weight = &w
			}
		case "type", "role":
			r.Type, err = cast.ToStringE(val)
		}
		if err != nil {
			return nil, &status.ConfigError{Field: "servers", Reason: "invalid server record field " + k, Err: err}
		}
	}
	return r, nil
}

// Servers is a server list that can be decoded from YAML in any accepted shape.
type Servers []Entry

func (s *Servers) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return &status.ConfigError{Field: "servers", Reason: "undecodable server list", Err: err}
	}
	entries, err := FromAny(raw)
	if err != nil {
		return err
	}
	*s = entries
	return nil
}
