/*
Package rvalue decodes CRuby object representations from raw memory.

A VALUE is a machine word. Small integers, a subset of doubles, static
symbols and the special constants are encoded directly in the word; every
other value is a pointer to a heap cell that begins with an RBasic header
holding a flags word and a class pointer. Classify decodes the word alone.
An Inspector follows heap pointers through a Memory, reading the header and
the type-specific payload, and produces an Object tree that Render prints.

Sketch of typical usage:

	prog, err := corefile.OpenProgram("core.1234", "/usr/bin/ruby")
	if err != nil {
		...
	}
	in, err := rvalue.NewInspector(prog, rvalue.Config{
		Layout:  rvalue.Ruby34(),
		Source:  prog, // refine offsets from DWARF
		Symbols: prog,
	})
	if err != nil {
		...
	}
	obj, err := in.Inspect(0x7f0012345678)
	if err != nil {
		...
	}
	rvalue.Render(os.Stdout, obj)

All offsets and flag bits come from a Layout. Two layouts are built in
(Ruby34 and Ruby33); others can be loaded from TOML with LoadLayoutFile.
Nothing read from the inspected memory is cached: every Inspect call
re-reads the target, so the same Inspector can be used while the target
is stopped at different points.

The inspector never writes to the inspected memory.
*/
package rvalue
