package rvalue

import (
	"fmt"
	"strings"
)

// Object is the decoded form of one VALUE: a summary line plus labeled
// sub-fields. Objects are projections of the inspected memory at the time
// of the Inspect call and are never updated afterwards.
type Object struct {
	Word    uint64  // the VALUE that was inspected
	Variant Variant // how Word classified
	Header  *Header // nil for immediates and unreadable objects

	// Summary is the first output line, e.g. "T_ARRAY: len=3 (embed)".
	Summary string
	// Short is the one-line form used when this object is nested in another.
	// Empty means a generic form built from Header.
	Short string
	// Bits holds the page bitmap letters, if requested and readable.
	Bits string
	// Block is rendered in braces after Summary (the source of a Regexp).
	Block  *Object
	Fields []Field
	// Err is set when the object's own header could not be read.
	Err error
}

// Field is one labeled sub-value of an Object.
// Exactly one of Text, Value or Err is meaningful; Key is set for hash entries.
type Field struct {
	Name  string
	Key   *Object
	Text  string
	Value *Object
	Err   error
}

// Inline returns the one-line form of o.
func (o *Object) Inline() string {
	switch {
	case o == nil:
		return "<nil>"
	case o.Err != nil:
		return unreadable(o.Err)
	case o.Short != "":
		return o.Short
	case o.Header != nil:
		return fmt.Sprintf("%v 0x%x", o.Header.Tag(), o.Header.Addr)
	case o.Variant != nil:
		return o.Variant.String()
	}
	return o.Summary
}

// Field returns the first field named name, or nil.
func (o *Object) Field(name string) *Field {
	for i := range o.Fields {
		if o.Fields[i].Name == name {
			return &o.Fields[i]
		}
	}
	return nil
}

func (f *Field) text() string {
	switch {
	case f.Err != nil:
		return unreadable(f.Err)
	case f.Value != nil:
		return f.Value.Inline()
	}
	return f.Text
}

func unreadable(err error) string {
	return "<unreadable: " + err.Error() + ">"
}

func (o *Object) addText(name, format string, args ...interface{}) {
	o.Fields = append(o.Fields, Field{Name: name, Text: fmt.Sprintf(format, args...)})
}

func (o *Object) addErr(name string, err error) {
	o.Fields = append(o.Fields, Field{Name: name, Err: err})
}

func (o *Object) addValue(name string, v *Object) {
	o.Fields = append(o.Fields, Field{Name: name, Value: v})
}

// summaryf sets the summary line, prefixed by the type name and flag info.
func (o *Object) summaryf(format string, args ...interface{}) {
	var b strings.Builder
	b.WriteString(o.Header.Tag().String())
	b.WriteString(": ")
	b.WriteString(o.Header.flagInfo())
	fmt.Fprintf(&b, format, args...)
	o.Summary = strings.TrimRight(b.String(), " ")
}
