package domain

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Filter narrows a cached entity list. Query is a case-insensitive substring
// match on name; Fields are case-insensitive exact matches. All conditions are
// AND-combined.
type Filter struct {
	Query  string            `json:"query,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Normalize trims every value and drops the empty ones, so an empty value and
// an absent value mean the same thing.
func (f Filter) Normalize() Filter {
	out := Filter{Query: strings.TrimSpace(f.Query)}
	for k, v := range f.Fields {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		if out.Fields == nil {
			out.Fields = make(map[string]string)
		}
		out.Fields[k] = v
	}
	return out
}

// Validate rejects fields the domain cannot filter on.
func (f Filter) Validate(d Domain) error {
	allowed := d.FilterFields()
	for k := range f.Fields {
		if !slices.Contains(allowed, k) {
			return fmt.Errorf("%w: %s cannot be filtered by %q", ErrInvalidInput, d, k)
		}
	}
	return nil
}

// Key is a canonical string for the normalized filter.
func (f Filter) Key() string {
	n := f.Normalize()
	keys := make([]string, 0, len(n.Fields))
	for k := range n.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("q=")
	b.WriteString(strings.ToLower(n.Query))
	for _, k := range keys {
		b.WriteString("&")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(strings.ToLower(n.Fields[k]))
	}
	return b.String()
}

// IsEmpty reports whether the filter constrains nothing.
func (f Filter) IsEmpty() bool {
	n := f.Normalize()
	return n.Query == "" && len(n.Fields) == 0
}
