// Package trace derives eager-loading directives from serialization
// descriptors. Every source path of a descriptor is resolved against the
// schema into a Trail, each trail is classified into a join (select) key
// and a separate-query (prefetch) key, and the keys of all trails are
// collected into a DirectiveSet together with a column projection.
package trace

import (
	"strings"

	"github.com/conduit-lang/autorelated/internal/orm/schema"
)

// Separator joins the segments of directive keys
const Separator = "__"

// Trail is the resolved chain of attributes for one source path. Every
// element except possibly the last is a relation.
type Trail []schema.AttributeDescriptor

// Names returns the attribute names of the trail
func (t Trail) Names() []string {
	names := make([]string, len(t))
	for i, attr := range t {
		names[i] = attr.Name
	}
	return names
}

// Path joins the attribute names with sep
func (t Trail) Path(sep string) string {
	return strings.Join(t.Names(), sep)
}

// HasReverse reports whether the trail crosses a back-reference
func (t Trail) HasReverse() bool {
	for _, attr := range t {
		if attr.Kind.IsReverse() {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer
func (t Trail) String() string {
	parts := make([]string, len(t))
	for i, attr := range t {
		parts[i] = attr.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// SelectAndPrefetch classifies a trail. Leading select-eligible relations
// form the select key. The first to-many relation switches the trail to
// prefetch: the prefetch key is then made of every relation of the trail,
// including the select-eligible prefix, because a prefetch is evaluated
// independently from the root records. A scalar ends the scan. Either key
// may be empty.
func SelectAndPrefetch(trail Trail) (selectKey, prefetchKey string) {
	var selects []string
	for _, attr := range trail {
		if attr.Kind.SelectEligible() {
			selects = append(selects, attr.Name)
			continue
		}
		if !attr.IsRelation() {
			break
		}
		prefetch := make([]string, 0, len(trail))
		for _, a := range trail {
			if a.IsRelation() {
				prefetch = append(prefetch, a.Name)
			}
		}
		prefetchKey = strings.Join(prefetch, Separator)
		break
	}
	return strings.Join(selects, Separator), prefetchKey
}
