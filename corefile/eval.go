package corefile

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Env is what an address expression can refer to.
// If Env also has a method Register(name string) (uint64, bool),
// expressions may name registers as $reg.
type Env interface {
	ReadMemory(addr uint64, buf []byte) error
	LookupSymbol(name string) (uint64, bool)
}

type registers interface {
	Register(name string) (uint64, bool)
}

// EvalError reports a malformed or unresolvable address expression.
type EvalError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("bad expression %q at offset %d: %s", e.Expr, e.Pos, e.Msg)
}

// Eval evaluates a textual address expression. The grammar is
//
//	expr := term { ("+" | "-") term }
//	term := number | "$" register | symbol | "*" term | "(" expr ")"
//
// Numbers are decimal, 0x hex, 0o octal or 0b binary. *term loads the
// little-endian 64-bit word at term. Arithmetic wraps.
func Eval(expr string, env Env) (uint64, error) {
	e := &evaluator{src: expr, env: env}
	v, err := e.expr()
	if err != nil {
		return 0, err
	}
	e.skipSpace()
	if e.pos != len(e.src) {
		return 0, e.errorf("unexpected %q", e.src[e.pos:])
	}
	return v, nil
}

type evaluator struct {
	src string
	pos int
	env Env
}

func (e *evaluator) errorf(format string, args ...interface{}) error {
	return &EvalError{Expr: e.src, Pos: e.pos, Msg: fmt.Sprintf(format, args...)}
}

func (e *evaluator) skipSpace() {
	for e.pos < len(e.src) && (e.src[e.pos] == ' ' || e.src[e.pos] == '\t') {
		e.pos++
	}
}

func (e *evaluator) peek() byte {
	e.skipSpace()
	if e.pos == len(e.src) {
		return 0
	}
	return e.src[e.pos]
}

func (e *evaluator) expr() (uint64, error) {
	v, err := e.term()
	if err != nil {
		return 0, err
	}
	for {
		switch e.peek() {
		case '+':
			e.pos++
			w, err := e.term()
			if err != nil {
				return 0, err
			}
			v += w
		case '-':
			e.pos++
			w, err := e.term()
			if err != nil {
				return 0, err
			}
			v -= w
		default:
			return v, nil
		}
	}
}

func (e *evaluator) term() (uint64, error) {
	switch c := e.peek(); {
	case c == 0:
		return 0, e.errorf("unexpected end of expression")
	case c == '*':
		e.pos++
		start := e.pos
		addr, err := e.term()
		if err != nil {
			return 0, err
		}
		var buf [8]byte
		if err := e.env.ReadMemory(addr, buf[:]); err != nil {
			e.pos = start
			return 0, e.errorf("cannot load *0x%x: %v", addr, err)
		}
		return binary.LittleEndian.Uint64(buf[:]), nil
	case c == '(':
		e.pos++
		v, err := e.expr()
		if err != nil {
			return 0, err
		}
		if e.peek() != ')' {
			return 0, e.errorf("missing )")
		}
		e.pos++
		return v, nil
	case c == '$':
		e.pos++
		start := e.pos
		name := e.ident()
		if name == "" {
			return 0, e.errorf("missing register name")
		}
		regs, ok := e.env.(registers)
		if !ok {
			e.pos = start
			return 0, e.errorf("no registers available")
		}
		v, ok := regs.Register(strings.ToLower(name))
		if !ok {
			e.pos = start
			return 0, e.errorf("unknown register $%s", name)
		}
		return v, nil
	case c >= '0' && c <= '9':
		start := e.pos
		tok := e.ident()
		v, err := strconv.ParseUint(strings.ReplaceAll(tok, "_", ""), 0, 64)
		if err != nil {
			e.pos = start
			return 0, e.errorf("bad number %q", tok)
		}
		return v, nil
	case isIdentByte(c):
		start := e.pos
		name := e.ident()
		v, ok := e.env.LookupSymbol(name)
		if !ok {
			e.pos = start
			return 0, e.errorf("unknown symbol %s", name)
		}
		return v, nil
	default:
		return 0, e.errorf("unexpected %q", c)
	}
}

func (e *evaluator) ident() string {
	start := e.pos
	for e.pos < len(e.src) && isIdentByte(e.src[e.pos]) {
		e.pos++
	}
	return e.src[start:e.pos]
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '.' || c == '@' ||
		'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9'
}
