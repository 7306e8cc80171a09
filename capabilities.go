package mcdb

import "time"

// Capabilities describes what the adapter supports. It is computed once per
// adapter and does not depend on the connected backend.
type Capabilities struct {
	// SupportedTypes names the Go kinds the default codec round-trips.
	SupportedTypes    []string
	SupportedMetadata []string
	MaxKeyLength      int
	NamespaceIsPrefix bool
	MinTTL            time.Duration
	MaxTTL            time.Duration // 0 = unbounded
	TTLPrecision      time.Duration
	StaticTTL         bool
	UseRequestTime    bool
	ExpiredRead       bool
}

func newCapabilities() Capabilities {
	return Capabilities{
		SupportedTypes: []string{
			"nil", "bool", "int", "float", "string", "slice", "map", "struct",
		},
		SupportedMetadata: []string{},
		MaxKeyLength:      MaxKeyLength,
		NamespaceIsPrefix: true,
		MinTTL:            minTTL,
		TTLPrecision:      time.Second,
		StaticTTL:         true,
	}
}
