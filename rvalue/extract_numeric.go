package rvalue

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// maxBignumDigits bounds how many BDIGITs are read to print a value.
const maxBignumDigits = 1024

func (x *inspection) extractFloat(obj *Object) {
	bits, ok := x.word(obj, "float_value", x.l.Fields.FloatValue)
	if !ok {
		obj.summaryf("")
		return
	}
	f := strconv.FormatFloat(math.Float64frombits(bits), 'g', -1, 64)
	obj.summaryf("%s", f)
	obj.Short = f
}

func (x *inspection) extractBignum(obj *Object) {
	h := obj.Header
	bl := &x.l.Bignum
	sign := "-"
	if h.User(bl.SignBit) {
		sign = "+"
	}
	var n, digits uint64
	embed := ""
	if h.User(bl.EmbedBit) {
		n = h.userField(bl.EmbedLenLo, bl.EmbedLenHi)
		digits = h.Addr + bl.EmbedOffset
		embed = " (embed)"
	} else {
		var ok bool
		if n, ok = x.word(obj, "len", bl.LenOffset); !ok {
			obj.summaryf("sign=%s", sign)
			return
		}
		if digits, ok = x.word(obj, "digits", bl.DigitsOffset); !ok {
			obj.summaryf("sign=%s len=%d", sign, n)
			return
		}
	}
	obj.summaryf("sign=%s len=%d%s", sign, n, embed)
	obj.addText("digits", "0x%x", digits)

	if n > maxBignumDigits || bl.DigitSize == 0 || bl.DigitSize > 8 {
		obj.addText("value", "(too large)")
		return
	}
	buf := make([]byte, n*bl.DigitSize)
	if err := readBytes(x.in.mem, digits, buf); err != nil {
		obj.addErr("value", err)
		return
	}
	v := new(big.Int).SetBytes(reverse(buf))
	if sign == "-" {
		v.Neg(v)
	}
	obj.addText("value", "%s", v.String())
	obj.Short = v.String()
}

// reverse converts little-endian digit bytes to the big-endian order
// big.Int.SetBytes expects.
func reverse(b []byte) []byte {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b
}

func (x *inspection) extractRational(obj *Object, depth int) {
	fl := &x.l.Fields
	num := x.value(obj, "num", fl.RationalNum, depth)
	den := x.value(obj, "den", fl.RationalDen, depth)
	s := "(Rational) " + componentText(obj, num, "num") + "/" + componentText(obj, den, "den")
	obj.Summary = s
	obj.Short = s
}

func (x *inspection) extractComplex(obj *Object, depth int) {
	fl := &x.l.Fields
	re := componentText(obj, x.value(obj, "real", fl.ComplexReal, depth), "real")
	im := componentText(obj, x.value(obj, "imag", fl.ComplexImag, depth), "imag")
	if !strings.HasPrefix(im, "-") {
		im = "+" + im
	}
	s := "(Complex) " + re + im + "i"
	obj.Summary = s
	obj.Short = s
}

// componentText is the inline text of a numeric component, or the error
// recorded for it when it could not be read.
func componentText(obj *Object, c *Object, name string) string {
	if c != nil {
		return c.Inline()
	}
	if f := obj.Field(name); f != nil {
		return f.text()
	}
	return "<unreadable>"
}
