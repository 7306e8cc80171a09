package provider

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/unkn0wn-root/mcdb/status"
)

// LibOption is a backend tuning knob. Providers apply the options they
// understand and ignore the rest.
type LibOption int

const (
	OptCompression LibOption = iota + 1
	OptConnectTimeout
	OptSendTimeout
	OptRecvTimeout
	OptPollTimeout
	OptMaxIdleConns
	OptPoolSize
	OptMinIdleConns
	OptMaxRetries
	OptPassword
	OptDB
	OptVersionTTL
)

type optionKind int

const (
	kindBool optionKind = iota
	kindDuration
	kindInt
	kindString
)

type optionDef struct {
	name string
	kind optionKind
}

var optionTable = map[LibOption]optionDef{
	OptCompression:    {"COMPRESSION", kindBool},
	OptConnectTimeout: {"CONNECT_TIMEOUT", kindDuration},
	OptSendTimeout:    {"SEND_TIMEOUT", kindDuration},
	OptRecvTimeout:    {"RECV_TIMEOUT", kindDuration},
	OptPollTimeout:    {"POLL_TIMEOUT", kindDuration},
	OptMaxIdleConns:   {"MAX_IDLE_CONNS", kindInt},
	OptPoolSize:       {"POOL_SIZE", kindInt},
	OptMinIdleConns:   {"MIN_IDLE_CONNS", kindInt},
	OptMaxRetries:     {"MAX_RETRIES", kindInt},
	OptPassword:       {"PASSWORD", kindString},
	OptDB:             {"DB", kindInt},
	OptVersionTTL:     {"VERSION_TTL", kindDuration},
}

var optionByName = func() map[string]LibOption {
	m := make(map[string]LibOption, len(optionTable))
	for opt, def := range optionTable {
		m[def.name] = opt
	}
	return m
}()

func (o LibOption) String() string {
	if def, ok := optionTable[o]; ok {
		return def.name
	}
	return "UNKNOWN"
}

// ParseOption normalizes an option name ("connect-timeout", "Connect Timeout",
// "OPT_CONNECT_TIMEOUT") into its symbol.
func ParseOption(name string) (LibOption, error) {
	norm := strings.ToUpper(strings.TrimSpace(name))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	norm = strings.TrimPrefix(norm, "OPT_")
	opt, ok := optionByName[norm]
	if !ok {
		return 0, status.Configf("lib_options", "unknown option '%s' (OPT_%s)", name, norm)
	}
	return opt, nil
}

// LibOptions holds normalized options. Values keep the caller's type and are
// coerced on read.
type LibOptions map[LibOption]any

// Check verifies that value can be coerced into the option's type.
func Check(opt LibOption, value any) error {
	def, ok := optionTable[opt]
	if !ok {
		return status.Configf("lib_options", "unknown option %d", int(opt))
	}
	var err error
	switch def.kind {
	case kindBool:
		_, err = cast.ToBoolE(value)
	case kindDuration:
		_, err = toDuration(value)
	case kindInt:
		_, err = cast.ToIntE(value)
	case kindString:
		_, err = cast.ToStringE(value)
	}
	if err != nil {
		return &status.ConfigError{Field: "lib_options", Reason: "invalid value for " + def.name, Err: err}
	}
	return nil
}

// Merge returns a copy of o overlaid with other.
func (o LibOptions) Merge(other LibOptions) LibOptions {
	out := make(LibOptions, len(o)+len(other))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

func (o LibOptions) Has(opt LibOption) bool {
	_, ok := o[opt]
	return ok
}

func (o LibOptions) Bool(opt LibOption, def bool) bool {
	v, ok := o[opt]
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

func (o LibOptions) Int(opt LibOption, def int) int {
	v, ok := o[opt]
	if !ok {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

func (o LibOptions) String(opt LibOption, def string) string {
	v, ok := o[opt]
	if !ok {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return s
}

// Duration reads a duration option. Plain numbers, quoted or not, are
// milliseconds.
func (o LibOptions) Duration(opt LibOption, def time.Duration) time.Duration {
	v, ok := o[opt]
	if !ok {
		return def
	}
	d, err := toDuration(v)
	if err != nil {
		return def
	}
	return d
}

func toDuration(v any) (time.Duration, error) {
	switch vv := v.(type) {
	case time.Duration:
		return vv, nil
	case string:
		vv = strings.TrimSpace(vv)
		if ms, err := strconv.ParseInt(vv, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond, nil
		}
		return cast.ToDurationE(vv)
	default:
		ms, err := cast.ToInt64E(v)
		if err != nil {
			return 0, err
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
}
