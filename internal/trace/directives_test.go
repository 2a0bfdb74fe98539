package trace

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathSet(t *testing.T) {
	s := NewPathSet("b", "a", "b", "")

	assert.Equal(t, []string{"b", "a"}, s.Slice())
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Add("c"))
	assert.False(t, s.Add("a"))
	assert.False(t, s.Add(""))
	assert.True(t, s.Contains("c"))
	assert.False(t, s.Contains(""))

	out := s.Slice()
	out[0] = "changed"
	assert.Equal(t, "b", s.Slice()[0])

	var nilSet *PathSet
	assert.Equal(t, 0, nilSet.Len())
	assert.Equal(t, []string{}, nilSet.Slice())
}

func TestDirectiveSet_JSON(t *testing.T) {
	set := NewDirectiveSet()
	set.Select.Add("child")
	set.Prefetch.Add("child__parent_set")
	set.Diagnostics = append(set.Diagnostics, Diagnostic{
		Kind:    DiagnosticUnresolvableAttribute,
		Path:    "chld",
		Segment: "chld",
		Message: "no such attribute",
	})

	data, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"select": ["child"],
		"prefetch": ["child__parent_set"],
		"projection": [],
		"diagnostics": [{"kind": "unresolvable_attribute", "path": "chld", "segment": "chld", "message": "no such attribute"}]
	}`, string(data))
}

func TestDiagnostic_String(t *testing.T) {
	d := Diagnostic{Kind: DiagnosticUnintrospectableDescriptor, Path: "child", Message: "opaque"}
	assert.Equal(t, `unintrospectable_descriptor: opaque (at "child")`, d.String())

	d = Diagnostic{Kind: DiagnosticUnresolvableAttribute, Path: "a.b", Segment: "b", Message: "missing"}
	assert.Equal(t, `unresolvable_attribute: missing (segment "b" of "a.b")`, d.String())
}
