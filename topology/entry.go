package topology

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/unkn0wn-root/mcdb/status"
)

const defaultScheme = "tcp://"

// Entry is one element of a raw server list. The set of shapes is closed:
// Positional, Record, URL and List.
type Entry interface {
	resolve(defaultPort int) ([]ServerSpec, error)
}

// Positional is the [host, port?, weight?, type?] form.
// Missing or empty trailing elements take the defaults.
type Positional []string

// Record is the keyed {host, port?, weight?, type?} form.
// A zero Port means the protocol default; a nil Weight means DefaultWeight.
type Record struct {
	Host   string
	Port   int
	Weight *int
	Type   string
}

// URL is the "host[:port][?weight=W&type=T]" form. A scheme is optional.
type URL string

// List is a comma-separated sequence of URL forms.
type List string

func (p Positional) resolve(defaultPort int) ([]ServerSpec, error) {
	if len(p) == 0 || strings.TrimSpace(p[0]) == "" {
		return nil, status.Configf("servers", "invalid list of servers given")
	}
	s := ServerSpec{Host: strings.TrimSpace(p[0]), Port: defaultPort, Weight: DefaultWeight}
	var err error
	if len(p) > 1 && p[1] != "" {
		if s.Port, err = atoi("port", p[1]); err != nil {
			return nil, err
		}
	}
	if len(p) > 2 && p[2] != "" {
		if s.Weight, err = atoi("weight", p[2]); err != nil {
			return nil, err
		}
	}
	if len(p) > 3 {
		if s.Role, err = ParseRole(p[3]); err != nil {
			return nil, err
		}
	}
	return []ServerSpec{s}, nil
}

func (r Record) resolve(defaultPort int) ([]ServerSpec, error) {
	if strings.TrimSpace(r.Host) == "" {
		return nil, status.Configf("servers", "invalid list of servers given")
	}
	s := ServerSpec{Host: strings.TrimSpace(r.Host), Port: defaultPort, Weight: DefaultWeight}
	if r.Port != 0 {
		s.Port = r.Port
	}
	if r.Weight != nil {
		s.Weight = *r.Weight
	}
	role, err := ParseRole(r.Type)
	if err != nil {
		return nil, err
	}
	s.Role = role
	return []ServerSpec{s}, nil
}

func (u URL) resolve(defaultPort int) ([]ServerSpec, error) {
	raw := strings.TrimSpace(string(u))
	if raw == "" {
		return nil, status.Configf("servers", "invalid list of servers given")
	}
	if !strings.Contains(raw, "://") {
		raw = defaultScheme + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, &status.ConfigError{Field: "servers", Reason: "invalid list of servers given", Err: err}
	}

	s := ServerSpec{Host: parsed.Hostname(), Port: defaultPort, Weight: DefaultWeight}
	if s.Host == "" {
		return nil, status.Configf("servers", "the list of servers must contain a host value")
	}
	if p := parsed.Port(); p != "" {
		if s.Port, err = atoi("port", p); err != nil {
			return nil, err
		}
	}
	q := parsed.Query()
	if w := q.Get("weight"); w != "" {
		if s.Weight, err = atoi("weight", w); err != nil {
			return nil, err
		}
	}
	if q.Has("type") {
		if s.Role, err = ParseRole(q.Get("type")); err != nil {
			return nil, err
		}
	}
	return []ServerSpec{s}, nil
}

func (l List) resolve(defaultPort int) ([]ServerSpec, error) {
	var out []ServerSpec
	for _, part := range strings.Split(string(l), ",") {
		specs, err := URL(part).resolve(defaultPort)
		if err != nil {
			return nil, err
		}
		out = append(out, specs...)
	}
	return out, nil
}

func atoi(field, v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, &status.ConfigError{Field: "servers", Reason: "invalid " + field + " " + strconv.Quote(v), Err: err}
	}
	return n, nil
}
