// Package keys applies the adapter namespace to cache keys.
package keys

// Prefix returns the backend key for key under ns.
func Prefix(ns, key string) string {
	if ns == "" {
		return key
	}
	return ns + key
}

// PrefixAll prefixes keys and returns the reverse mapping from backend key
// to caller key. Duplicate caller keys collapse into one backend key.
func PrefixAll(ns string, keys []string) ([]string, map[string]string) {
	out := make([]string, 0, len(keys))
	back := make(map[string]string, len(keys))
	for _, k := range keys {
		pk := Prefix(ns, k)
		if _, dup := back[pk]; dup {
			continue
		}
		back[pk] = k
		out = append(out, pk)
	}
	return out, back
}
