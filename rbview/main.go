// rbview serves a browsable view of the objects of a Ruby process read
// from a core file or a recorded snapshot.
package main

import (
	"flag"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/tombergan/rubycore/rvalue"
	"github.com/tombergan/rubycore/session"
)

var (
	serverPort   = flag.Int("port", 8092, "Port to run HTTP server")
	coreFile     = flag.String("core", "", "core file to inspect")
	snapshotFile = flag.String("snapshot", "", "recorded snapshot to inspect")
	abiFile      = flag.String("abi", "", "TOML file overriding the layout profile")
	debugLevel   = flag.Int("debuglevel", 0, "debug verbosity level")
)

var log = commonlog.GetLogger("rubycore.rbview")

// server serializes all requests because an Inspector is not safe for
// concurrent use.
type server struct {
	mu sync.Mutex
	s  *session.Session
}

func newServer(s *session.Session) http.Handler {
	srv := &server{s: s}
	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.mainHandler)
	mux.HandleFunc("/obj", srv.objHandler)
	mux.HandleFunc("/raw", srv.rawHandler)
	return mux
}

// linkObj returns the /obj URL for the VALUE w.
func linkObj(w uint64) string {
	return fmt.Sprintf("obj?addr=0x%x", w)
}

func linkRaw(addr uint64) string {
	return fmt.Sprintf("raw?addr=0x%x", addr)
}

type valueInfo struct {
	Text string
	Link string // empty unless the value is a readable heap object
}

func makeValueInfo(obj *rvalue.Object) valueInfo {
	v := valueInfo{Text: obj.Inline()}
	if _, ok := obj.Variant.(rvalue.HeapRef); ok && obj.Err == nil {
		v.Link = linkObj(obj.Word)
	}
	return v
}

type fieldInfo struct {
	Name  string
	Key   *valueInfo
	Value valueInfo
}

func makeFieldInfo(f *rvalue.Field) fieldInfo {
	info := fieldInfo{Name: f.Name}
	if f.Key != nil {
		k := makeValueInfo(f.Key)
		info.Key = &k
	}
	switch {
	case f.Err != nil:
		info.Value.Text = "<unreadable: " + f.Err.Error() + ">"
	case f.Value != nil:
		info.Value = makeValueInfo(f.Value)
	default:
		info.Value.Text = f.Text
	}
	return info
}

const style = `
		<style>
		table {
			border-collapse: collapse;
		}
		table, td, th {
			border: 1px solid grey;
			padding: 2px 6px;
		}
		</style>`

type mainInfo struct {
	Desc    string
	Layout  string
	Version string
}

var mainTemplate = template.Must(template.New("main").Parse(`
<html>
	<head>` + style + `
		<title>Ruby Object Viewer</title>
	</head>
	<body>
	<code>
		<h2>Ruby Object Viewer</h2>
		{{.Desc}}<br>
		Layout: {{.Layout}}{{if .Version}} (ruby_version {{.Version}}){{end}}
		<br><br>
		<form action="obj">
			VALUE expression: <input name="addr" size="40"> <input type="submit" value="Inspect">
		</form>
		<form action="raw">
			Memory expression: <input name="addr" size="40"> <input type="submit" value="Dump">
		</form>
	</code>
	</body>
</html>
`))

func (srv *server) mainHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "URL not found", http.StatusNotFound)
		return
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()

	in := srv.s.Inspector()
	info := mainInfo{
		Desc:   srv.s.Desc,
		Layout: in.Layout().Name,
	}
	if addr, ok := srv.s.LookupSymbol("ruby_version"); ok {
		if v, err := rvalue.ReadCString(in.Memory(), addr, 32); err == nil {
			info.Version = v
		}
	}
	if err := mainTemplate.Execute(w, info); err != nil {
		log.Errorf("%v", err)
	}
}

type objInfo struct {
	Expr    string
	Word    string
	Summary string
	Bits    string
	Block   string
	Flags   string
	Klass   *valueInfo
	Raw     string
	Err     string
	Fields  []fieldInfo
}

var objTemplate = template.Must(template.New("obj").Parse(`
<html>
	<head>` + style + `
		<title>{{.Word}} : {{.Summary}}</title>
	</head>
	<body>
	<code>
		<a href="/">Home</a>
		<h2>{{.Expr}} = {{.Word}}</h2>
		{{if .Bits}}bits: {{.Bits}}<br>{{end}}
		<b>{{.Summary}}</b><br>
		{{if .Block}}<pre>{{.Block}}</pre>{{end}}
		{{if .Err}}{{.Err}}<br>{{end}}
		{{if .Flags}}flags: {{.Flags}}<br>{{end}}
		{{with .Klass}}klass: <a href="{{.Link}}">{{.Text}}</a><br>{{end}}
		{{if .Raw}}<a href="{{.Raw}}">raw memory</a><br>{{end}}

		{{if .Fields}}
		<h3>Fields</h3>
		<table>
			{{range .Fields}}
			<tr>
				<td>{{.Name}}</td>
				<td>
				{{with .Key}}{{if .Link}}<a href="{{.Link}}">{{.Text}}</a>{{else}}{{.Text}}{{end}} =&gt; {{end}}
				{{with .Value}}{{if .Link}}<a href="{{.Link}}">{{.Text}}</a>{{else}}{{.Text}}{{end}}{{end}}
				</td>
			</tr>
			{{end}}
		</table>
		{{end}}
	</code>
	</body>
</html>
`))

// lookupExpr evaluates the address expression in the query parameter param.
func (srv *server) lookupExpr(q url.Values, param string) (string, uint64, error) {
	v := q[param]
	if len(v) != 1 {
		return "", 0, fmt.Errorf("parameter %s not found", param)
	}
	x, err := srv.s.Eval(v[0])
	return v[0], x, err
}

func (srv *server) objHandler(w http.ResponseWriter, r *http.Request) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	expr, word, err := srv.lookupExpr(r.URL.Query(), "addr")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in := srv.s.Inspector()
	obj, _ := in.Inspect(word)

	info := objInfo{
		Expr:    expr,
		Word:    fmt.Sprintf("0x%x", word),
		Summary: obj.Summary,
		Bits:    obj.Bits,
	}
	if info.Summary == "" {
		info.Summary = obj.Inline()
	}
	if obj.Block != nil {
		info.Block = obj.Block.Summary
		if info.Block == "" {
			info.Block = obj.Block.Inline()
		}
	}
	if obj.Err != nil {
		info.Err = "<unreadable: " + obj.Err.Error() + ">"
	}
	if ref, ok := obj.Variant.(rvalue.HeapRef); ok {
		info.Raw = linkRaw(ref.Addr)
	}
	if h := obj.Header; h != nil {
		info.Flags = fmt.Sprintf("0x%x %s", h.Flags, strings.Join(h.FlagNames(in.Layout()), " "))
		info.Klass = &valueInfo{Text: fmt.Sprintf("0x%x", h.Klass), Link: linkObj(h.Klass)}
	}
	for i := range obj.Fields {
		info.Fields = append(info.Fields, makeFieldInfo(&obj.Fields[i]))
	}

	if err := objTemplate.Execute(w, info); err != nil {
		log.Errorf("%v", err)
	}
}

type rawInfo struct {
	Expr string
	Dump string
	Err  string
	Prev string
	Next string
}

var rawTemplate = template.Must(template.New("raw").Parse(`
<html>
	<head>
		<title>{{.Expr}}</title>
	</head>
	<body>
	<code>
		<a href="/">Home</a> <a href="{{.Prev}}">&lt;&lt;</a> <a href="{{.Next}}">&gt;&gt;</a>
		<h2>{{.Expr}}</h2>
		<pre>{{.Dump}}</pre>
		{{if .Err}}{{.Err}}{{end}}
	</code>
	</body>
</html>
`))

const rawWords = 64

func (srv *server) rawHandler(w http.ResponseWriter, r *http.Request) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	expr, addr, err := srv.lookupExpr(r.URL.Query(), "addr")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var dump strings.Builder
	info := rawInfo{
		Expr: expr,
		Prev: linkRaw(addr - rawWords*8),
		Next: linkRaw(addr + rawWords*8),
	}
	if err := srv.s.Run(&dump, fmt.Sprintf("x 0x%x %d", addr, rawWords)); err != nil {
		info.Err = err.Error()
	}
	info.Dump = dump.String()
	if err := rawTemplate.Execute(w, info); err != nil {
		log.Errorf("%v", err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: rbview (-core file | -snapshot file) [flags] [executable [shared objects...]]\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	commonlog.Configure(*debugLevel, nil)

	fmt.Println("Loading...")
	s, err := session.Open(session.Config{
		Core:     *coreFile,
		Snapshot: *snapshotFile,
		Objects:  flag.Args(),
		ABI:      *abiFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rbview: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	fmt.Printf("Ready. Point your browser to localhost:%d\n", *serverPort)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", *serverPort), newServer(s)); err != nil {
		fmt.Fprintf(os.Stderr, "rbview: %v\n", err)
		os.Exit(1)
	}
}
