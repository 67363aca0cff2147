package main

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/tombergan/rubycore/rvalue"
	"github.com/tombergan/rubycore/session"
	"github.com/tombergan/rubycore/snapshot"
)

// newTestServer serves a snapshot holding the array ["hello", 1], with the
// symbol my_array pointing at a word that holds the array.
func newTestServer(t *testing.T) (*httptest.Server, uint64, uint64) {
	b := snapshot.NewBuilder()
	l := rvalue.Ruby34()
	user := func(lo, v uint) uint64 { return uint64(v) << (l.Flags.UserShift + lo) }

	str := b.Alloc(l.Page.BaseSlotSize)
	b.PutUint64(str, uint64(rvalue.TString)|user(l.String.EncodingLo, 1))
	b.PutUint64(str+l.String.LenOffset, 5)
	b.Write(str+l.String.EmbedOffset, []byte("hello"))

	arr := b.Alloc(l.Page.BaseSlotSize)
	b.PutUint64(arr, uint64(rvalue.TArray)|l.Flags.User(l.Array.EmbedBit)|user(l.Array.EmbedLenLo, 2))
	one, _ := rvalue.EncodeFixnum(1)
	b.PutUint64(arr+l.Array.EmbedOffset, str)
	b.PutUint64(arr+l.Array.EmbedOffset+8, one)

	ptr := b.Alloc(8)
	b.PutUint64(ptr, arr)
	b.Symbol("my_array", ptr)

	s, err := session.OpenSnapshot(b.Snapshot(), "test snapshot", session.Config{})
	if err != nil {
		t.Fatalf("OpenSnapshot failed: %v", err)
	}
	ts := httptest.NewServer(newServer(s))
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return ts, arr, str
}

func get(t *testing.T, ts *httptest.Server, path string) (int, string) {
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp.StatusCode, string(body)
}

func TestPages(t *testing.T) {
	ts, arr, str := newTestServer(t)
	tests := []struct {
		path   string
		status int
		want   []string
	}{
		{"/", 200, []string{"test snapshot", "ruby-3.4-x86_64-linux"}},
		{"/obj?addr=" + url.QueryEscape("*my_array"), 200, []string{
			fmt.Sprintf("= 0x%x", arr),
			"T_ARRAY: len=2 (embed)",
			fmt.Sprintf(`href="obj?addr=0x%x"`, str),
			fmt.Sprintf(`href="raw?addr=0x%x"`, arr),
			"RARRAY_EMBED_FLAG",
		}},
		{fmt.Sprintf("/obj?addr=0x%x", str), 200, []string{"hello"}},
		{"/obj?addr=7", 200, []string{"<b>3</b>"}},
		{"/obj?addr=0x10", 200, []string{"unreadable"}},
		{"/raw?addr=my_array", 200, []string{fmt.Sprintf("0x%016x", arr)}},
		{"/obj?addr=no_such_symbol", 400, nil},
		{"/obj", 400, nil},
		{"/missing", 404, nil},
	}
	for _, test := range tests {
		status, body := get(t, ts, test.path)
		if status != test.status {
			t.Errorf("GET %s: status %d, want %d\n%s", test.path, status, test.status, body)
			continue
		}
		for _, want := range test.want {
			if !strings.Contains(body, want) {
				t.Errorf("GET %s: body does not contain %q\n%s", test.path, want, body)
			}
		}
	}
}
