// SPDX-License-Identifier: MIT

package hls

import "strings"

// Attr is a single NAME=VALUE attribute of an M3U8 tag. Quoted records
// whether the value was surrounded by double quotes in the source so that
// re-emission preserves the original style. HasValue distinguishes a
// name-only entry from NAME= with an empty value.
type Attr struct {
	Name     string
	Value    string
	Quoted   bool
	HasValue bool
}

// AttrList is an insertion-ordered attribute mapping with case-insensitive
// name lookup. Playlists are round-tripped visually, so order and quoting
// must survive a parse/emit cycle.
type AttrList []Attr

// ParseAttrs parses a comma-separated attribute list, honoring double-quoted
// values that may contain commas. Entries without '=' are kept verbatim as
// name-only attributes so unknown syntax still round-trips.
func ParseAttrs(s string) AttrList {
	var attrs AttrList
	for _, part := range splitQuoted(s) {
		name, value, found := strings.Cut(part, "=")
		if !found {
			attrs = append(attrs, Attr{Name: part})
			continue
		}
		quoted := len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"'
		if quoted {
			value = value[1 : len(value)-1]
		}
		attrs = append(attrs, Attr{Name: name, Value: value, Quoted: quoted, HasValue: true})
	}
	return attrs
}

// splitQuoted splits on commas that are outside double quotes.
func splitQuoted(s string) []string {
	if s == "" {
		return nil
	}
	var parts []string
	start := 0
	inQuotes := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// Get returns the value of the named attribute, comparing names
// case-insensitively.
func (a AttrList) Get(name string) (string, bool) {
	for _, attr := range a {
		if strings.EqualFold(attr.Name, name) {
			return attr.Value, true
		}
	}
	return "", false
}

// Set replaces the value of the named attribute in place, preserving its
// position and quoting style. If absent, the attribute is appended with the
// given quoting.
func (a AttrList) Set(name, value string, quoted bool) AttrList {
	for i, attr := range a {
		if strings.EqualFold(attr.Name, name) {
			a[i].Value = value
			a[i].HasValue = true
			return a
		}
	}
	return append(a, Attr{Name: name, Value: value, Quoted: quoted, HasValue: true})
}

// Clone returns a copy so rules can mutate without aliasing parser state.
func (a AttrList) Clone() AttrList {
	out := make(AttrList, len(a))
	copy(out, a)
	return out
}

// String reserialises the attributes in original order with original quoting.
func (a AttrList) String() string {
	var b strings.Builder
	for i, attr := range a {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(attr.Name)
		if !attr.HasValue {
			continue
		}
		b.WriteByte('=')
		if attr.Quoted {
			b.WriteByte('"')
			b.WriteString(attr.Value)
			b.WriteByte('"')
		} else {
			b.WriteString(attr.Value)
		}
	}
	return b.String()
}
