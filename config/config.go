// Package config loads adapter settings from a YAML file.
//
//	namespace: "app:"
//	protocol: memcache          # memcache | ssdb | bigcache
//	servers:
//	  - "cache1:11211?weight=2&type=master"
//	  - [cache2, 11211, 1, slave]
//	  - {host: cache3, type: slave}
//	lib_options:
//	  connect_timeout: 500ms
//	  compression: true
//	ttl: 10m                    # or a number of seconds
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/mcdb"
	"github.com/unkn0wn-root/mcdb/provider"
	"github.com/unkn0wn-root/mcdb/provider/bigcache"
	"github.com/unkn0wn-root/mcdb/provider/memcache"
	"github.com/unkn0wn-root/mcdb/provider/ssdb"
	"github.com/unkn0wn-root/mcdb/status"
	"github.com/unkn0wn-root/mcdb/topology"
)

const DefaultProtocol = "memcache"

type Config struct {
	Namespace  string           `yaml:"namespace"`
	Protocol   string           `yaml:"protocol"`
	Servers    topology.Servers `yaml:"servers"`
	LibOptions map[string]any   `yaml:"lib_options"`
	TTL        TTL              `yaml:"ttl"`
}

// TTL accepts a duration string ("90s") or a whole number of seconds.
type TTL time.Duration

func (t *TTL) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	var (
		d   time.Duration
		err error
	)
	switch v := raw.(type) {
	case string:
		d, err = cast.ToDurationE(v)
	default:
		var n int64
		n, err = cast.ToInt64E(v)
		d = time.Duration(n) * time.Second
	}
	if err != nil {
		return &status.ConfigError{Field: "ttl", Reason: "not a duration", Err: err}
	}
	*t = TTL(d)
	return nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mcdb: read config: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		if status.IsConfig(err) {
			return nil, err
		}
		return nil, &status.ConfigError{Field: "yaml", Reason: "malformed document", Err: err}
	}
	c.Protocol = strings.ToLower(strings.TrimSpace(c.Protocol))
	if c.Protocol == "" {
		c.Protocol = DefaultProtocol
	}
	d, err := NewDialer(c.Protocol)
	if err != nil {
		return nil, err
	}
	if c.Servers != nil {
		if _, err := topology.Parse(d.DefaultPort(), c.Servers...); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// NewDialer returns the dialer registered for protocol.
func NewDialer(protocol string) (provider.Dialer, error) {
	switch protocol {
	case "memcache", "memcached":
		return memcache.NewDialer(memcache.Config{}), nil
	case "ssdb":
		return ssdb.NewDialer(ssdb.Config{}), nil
	case "bigcache", "memory":
		return bigcache.NewDialer(bigcache.Config{}), nil
	default:
		return nil, status.Configf("protocol", "unknown protocol %q", protocol)
	}
}

// Options builds adapter options from c. Servers stay nil when the file has
// no servers key (or a null one), so the adapter falls back to its default
// topology. An empty list is passed on and fails for lack of a master.
func Options[V any](c *Config) (mcdb.Options[V], error) {
	d, err := NewDialer(c.Protocol)
	if err != nil {
		return mcdb.Options[V]{}, err
	}
	opts := mcdb.Options[V]{
		Dialer:     d,
		Namespace:  c.Namespace,
		LibOptions: c.LibOptions,
		TTL:        time.Duration(c.TTL),
	}
	if c.Servers != nil {
		opts.Servers = []topology.Entry(c.Servers)
	}
	return opts, nil
}
