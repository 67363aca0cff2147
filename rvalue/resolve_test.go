package rvalue

import (
	"errors"
	"fmt"
	"testing"
)

// fakeSource is a LayoutSource backed by maps.
type fakeSource struct {
	offsets map[string]uint64 // "struct.field"
	sizes   map[string]uint64
	enums   map[string]int64
}

var errUnknown = errors.New("unknown")

func (s *fakeSource) StructFieldOffset(structName, field string) (uint64, error) {
	if off, ok := s.offsets[structName+"."+field]; ok {
		return off, nil
	}
	return 0, fmt.Errorf("%s.%s: %w", structName, field, errUnknown)
}

func (s *fakeSource) StructSize(structName string) (uint64, error) {
	if n, ok := s.sizes[structName]; ok {
		return n, nil
	}
	return 0, fmt.Errorf("%s: %w", structName, errUnknown)
}

func (s *fakeSource) Enumerator(name string) (int64, error) {
	if v, ok := s.enums[name]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("%s: %w", name, errUnknown)
}

func TestRefineLayout(t *testing.T) {
	src := &fakeSource{
		offsets: map[string]uint64{
			"RString.len":           8 * 3,
			"RArray.as.heap.ptr":    40,
			"RTypedData.typed_flag": 24,
			"heap_page.mark_bits":   300,
		},
		sizes: map[string]uint64{
			"RBasic": 16,
			"RHash":  32,
		},
		enums: map[string]int64{
			"RUBY_Qnil":              0x08,
			"RARRAY_EMBED_LEN_SHIFT": 12 + 3,
			"RARRAY_EMBED_LEN_MASK":  0xff << 15,
			"imemo_env":              1,
			"imemo_cref":             0,
		},
	}
	l := Ruby34()
	if err := refineLayout(l, src); err != nil {
		t.Fatalf("refineLayout failed: %v", err)
	}
	tests := []struct {
		name      string
		got, want uint64
	}{
		{"String.LenOffset", l.String.LenOffset, 24},
		{"Array.PtrOffset", l.Array.PtrOffset, 40},
		{"Array.LenOffset (default)", l.Array.LenOffset, 16},
		{"Array.EmbedLenLo", uint64(l.Array.EmbedLenLo), 3},
		{"Array.EmbedLenHi", uint64(l.Array.EmbedLenHi), 10},
		{"Hash.TableOffset", l.Hash.TableOffset, 32},
		{"Data.TypedFlagOffset", l.Data.TypedFlagOffset, 24},
		{"Page.Mark", l.Page.Mark, 300},
		{"Imm.Qnil", l.Imm.Qnil, 8},
	}
	for _, test := range tests {
		if test.got != test.want {
			t.Errorf("%s=%d, want %d", test.name, test.got, test.want)
		}
	}
	if l.Data.Scheme != DataSchemeTypedFlag {
		t.Errorf("Data.Scheme=%q, want %q", l.Data.Scheme, DataSchemeTypedFlag)
	}
	if got := l.Imemo.Names; len(got) != 2 || got[0] != "cref" || got[1] != "env" {
		t.Errorf("Imemo.Names=%q, want [cref env]", got)
	}
	if len(l.Node.Names) != len(nodeTypeNames) {
		t.Errorf("Node.Names was replaced without any known enumerators")
	}
}

func TestRefineLayoutNotRuby(t *testing.T) {
	_, err := NewInspector(nil, Config{Layout: Ruby34(), Source: &fakeSource{}})
	var le *LayoutError
	if !errors.As(err, &le) || le.Name != "struct RBasic" {
		t.Fatalf("NewInspector err=%v, want *LayoutError for struct RBasic", err)
	}
}
