package schema

import (
	"sort"
	"strings"
)

// FieldSet is a sorted, deduplicated set of field names, the representation
// used for @key/@requires/@provides selections (spec.md §9, "dynamic field
// sets"). Union and subset checks are linear in field count.
type FieldSet struct {
	fields []string
}

// NewFieldSet builds a FieldSet from raw field names (as parsed out of a
// `fields: "a b c"` directive argument), sorting and deduplicating them.
func NewFieldSet(names ...string) FieldSet {
	fs := FieldSet{fields: append([]string(nil), names...)}
	sort.Strings(fs.fields)
	fs.fields = dedupSorted(fs.fields)
	return fs
}

// ParseFieldSet splits a directive's whitespace-separated `fields` argument.
// Nested selection syntax ("{ ... }") is not supported by this iteration; the
// gateway only needs flat key/requires/provides field sets.
func ParseFieldSet(raw string) FieldSet {
	return NewFieldSet(strings.Fields(raw)...)
}

func dedupSorted(sorted []string) []string {
	if len(sorted) < 2 {
		return sorted
	}
	out := sorted[:1]
	for _, s := range sorted[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

// Fields returns the sorted, deduplicated field names.
func (fs FieldSet) Fields() []string { return fs.fields }

// Len returns the number of fields in the set.
func (fs FieldSet) Len() int { return len(fs.fields) }

// Empty reports whether the field set has no fields.
func (fs FieldSet) Empty() bool { return len(fs.fields) == 0 }

// Contains reports whether name is a member of the set.
func (fs FieldSet) Contains(name string) bool {
	i := sort.SearchStrings(fs.fields, name)
	return i < len(fs.fields) && fs.fields[i] == name
}

// IsSubsetOf reports whether every field in fs is also in other.
func (fs FieldSet) IsSubsetOf(other FieldSet) bool {
	for _, f := range fs.fields {
		if !other.Contains(f) {
			return false
		}
	}
	return true
}

// Union returns the sorted, deduplicated union of fs and other.
func (fs FieldSet) Union(other FieldSet) FieldSet {
	merged := make([]string, 0, len(fs.fields)+len(other.fields))
	merged = append(merged, fs.fields...)
	merged = append(merged, other.fields...)
	return NewFieldSet(merged...)
}

// String renders the field set the way it appears in a @key/@requires
// directive argument ("id name").
func (fs FieldSet) String() string {
	return strings.Join(fs.fields, " ")
}
