package rvalue

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Render writes obj in its multi-line display form. Rendering does no
// reads of its own; it only serializes what Inspect decoded.
func Render(w io.Writer, obj *Object) error {
	r := &renderer{w: w}
	r.object(obj)
	return r.err
}

// RenderString returns the display form of obj.
func RenderString(obj *Object) string {
	var buf bytes.Buffer
	Render(&buf, obj)
	return buf.String()
}

// renderer stops writing after the first error.
type renderer struct {
	w   io.Writer
	err error
}

func (r *renderer) printf(format string, args ...interface{}) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, format, args...)
}

func (r *renderer) object(obj *Object) {
	if obj.Bits != "" {
		r.printf("bits: %s\n", obj.Bits)
	}
	summary := obj.Summary
	if summary == "" {
		summary = obj.Inline()
	}
	r.printf("%s\n", summary)
	if obj.Block != nil {
		block := obj.Block.Summary
		if block == "" {
			block = obj.Block.Inline()
		}
		r.printf("%s\n}\n", block)
	}
	for i := range obj.Fields {
		r.field(&obj.Fields[i], "  ")
	}
}

func (r *renderer) field(f *Field, indent string) {
	switch {
	case f.Key != nil:
		r.printf("%s%s => %s\n", indent, f.Key.Inline(), f.text())
	case f.Value == nil && f.Err == nil && f.Text == "":
		r.printf("%s%s\n", indent, f.Name)
	default:
		r.printf("%s%s: %s\n", indent, f.Name, oneLine(f.text()))
	}
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", `\n`)
}
