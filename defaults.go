package mcdb

import "time"

const (
	// MaxNamespaceLength bounds Options.Namespace and SetNamespace.
	MaxNamespaceLength = 128
	// MaxKeyLength is the longest namespaced key the adapter accepts.
	MaxKeyLength = 255
	minTTL       = time.Second
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
