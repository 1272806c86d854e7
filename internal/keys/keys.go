// Package keys derives object storage keys for project documents.
//
// Every project has exactly one canonical key. Keys written under earlier
// naming conventions are described by a fixed, versioned table of legacy
// schemes so that reads and deletes can still find them.
package keys

import "strings"

const (
	// DefaultNamespace is the folder that holds project documents when none
	// is configured.
	DefaultNamespace = "ar-projects-data"

	canonicalPattern = "{namespace}/project_{id}.json"
)

// Scheme is a retired key naming convention. Pattern may use the {namespace}
// and {id} placeholders.
type Scheme struct {
	Version int
	Pattern string
}

// DefaultLegacySchemes lists retired naming conventions, most recently
// deprecated first. Add new entries at the top.
var DefaultLegacySchemes = []Scheme{
	{Version: 3, Pattern: "{namespace}/{namespace}/project_{id}.json"},
	{Version: 2, Pattern: "{namespace}/old_{id}.json"},
	{Version: 1, Pattern: "{namespace}/{id}.json"},
}

// Resolver maps project ids to storage keys. It is immutable and safe for
// concurrent use.
type Resolver struct {
	namespace string
	legacy    []Scheme
}

// NewResolver returns a resolver for namespace. When no schemes are given,
// DefaultLegacySchemes is used; pass an explicit empty slice via
// NewResolverWithSchemes to disable legacy lookups.
func NewResolver(namespace string, legacy ...Scheme) *Resolver {
	if len(legacy) == 0 {
		legacy = DefaultLegacySchemes
	}
	return NewResolverWithSchemes(namespace, legacy)
}

// NewResolverWithSchemes returns a resolver using exactly the given legacy
// schemes.
func NewResolverWithSchemes(namespace string, legacy []Scheme) *Resolver {
	ns := strings.Trim(strings.TrimSpace(namespace), "/")
	if ns == "" {
		ns = DefaultNamespace
	}
	schemes := make([]Scheme, len(legacy))
	copy(schemes, legacy)
	return &Resolver{namespace: ns, legacy: schemes}
}

// Namespace returns the folder documents live in.
func (r *Resolver) Namespace() string { return r.namespace }

// Prefix is the listing prefix covering every key the resolver can produce.
func (r *Resolver) Prefix() string { return r.namespace + "/" }

// CanonicalKey returns the current key for id.
func (r *Resolver) CanonicalKey(id string) string {
	return r.expand(canonicalPattern, id)
}

// LegacyKeyCandidates returns the keys id may have been stored under by
// retired schemes, in lookup order. The canonical key is never included.
func (r *Resolver) LegacyKeyCandidates(id string) []string {
	canonical := r.CanonicalKey(id)
	out := make([]string, 0, len(r.legacy))
	seen := map[string]struct{}{canonical: {}}
	for _, s := range r.legacy {
		k := r.expand(s.Pattern, id)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// IsCanonical reports whether key is the canonical key of id.
func (r *Resolver) IsCanonical(key, id string) bool {
	return key == r.CanonicalKey(id)
}

// Owns reports whether key is the canonical key or a legacy key of id.
func (r *Resolver) Owns(key, id string) bool {
	if r.IsCanonical(key, id) {
		return true
	}
	for _, k := range r.LegacyKeyCandidates(id) {
		if k == key {
			return true
		}
	}
	return false
}

func (r *Resolver) expand(pattern, id string) string {
	return strings.NewReplacer("{namespace}", r.namespace, "{id}", id).Replace(pattern)
}

// ValidID reports whether id can be embedded in a key without escaping the
// namespace.
func ValidID(id string) bool {
	if strings.TrimSpace(id) != id || id == "" {
		return false
	}
	if strings.Contains(id, "..") {
		return false
	}
	return !strings.ContainsAny(id, "/\\ \t\r\n{}")
}
