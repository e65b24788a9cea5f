package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/heapsnap/compiler"
	"github.com/chazu/heapsnap/manifest"
)

const appScript = `
function makeCounter(start) {
  let n = start
  return function () { n = n + 1; return n }
}
data = { next: makeCounter(41), label: 'app' }
`

func newTestApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	toml := "[project]\nname = \"cli\"\n\n[store]\npath = \"store.db\"\ncodec = \"lz4\"\n"
	if err := os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(toml), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	cfg, err := manifest.Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte(appScript), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	var out bytes.Buffer
	return &app{cfg: cfg, out: &out, err: &bytes.Buffer{}}, &out
}

func (a *app) path(name string) string { return filepath.Join(a.cfg.Dir, name) }

// ---------------------------------------------------------------------------
// take / load
// ---------------------------------------------------------------------------

func TestTakeToFileAndLoad(t *testing.T) {
	a, out := newTestApp(t)

	err := a.dispatch([]string{"take", a.path("app.js"), "-e", "data", "-o", a.path("app.snap")})
	if err != nil {
		t.Fatalf("take failed: %v", err)
	}
	if _, err := os.Stat(a.path("app.snap")); err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}

	out.Reset()
	err = a.dispatch([]string{"load", a.path("app.snap"), "--eval", "data.next()", "--eval", "data.label"})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := "data = [object 2 props]\n42\n\"app\"\n"
	if out.String() != want {
		t.Errorf("load output = %q, want %q", out.String(), want)
	}
}

func TestTakeIntoStore(t *testing.T) {
	a, out := newTestApp(t)

	if err := a.dispatch([]string{"take", a.path("app.js"), "-e", "data", "--name", "app"}); err != nil {
		t.Fatalf("take failed: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("take with --name wrote %d bytes to stdout", out.Len())
	}

	if err := a.dispatch([]string{"store", "ls"}); err != nil {
		t.Fatalf("store ls failed: %v", err)
	}
	if !strings.Contains(out.String(), "[app]") {
		t.Errorf("store ls output missing entry:\n%s", out.String())
	}

	out.Reset()
	if err := a.dispatch([]string{"load", "app", "--eval", "data.next() + data.next()"}); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !strings.HasSuffix(out.String(), "85\n") {
		t.Errorf("load output = %q, want 85", out.String())
	}

	if err := a.dispatch([]string{"store", "rm", "app"}); err != nil {
		t.Fatalf("store rm failed: %v", err)
	}
	if err := a.dispatch([]string{"load", "app"}); err == nil {
		t.Error("load after rm should fail")
	}
}

func TestTakeWithTrailingProgram(t *testing.T) {
	a, out := newTestApp(t)
	err := a.dispatch([]string{"take", a.path("app.js"), "-e", "data", "-o", a.path("app.snap"),
		"--program", "print('restored', data.next())"})
	if err != nil {
		t.Fatalf("take failed: %v", err)
	}
	out.Reset()
	if err := a.dispatch([]string{"load", a.path("app.snap")}); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if out.String() != "restored 42\ndata = [object 2 props]\n" {
		t.Errorf("load output = %q", out.String())
	}

	err = a.dispatch([]string{"take", a.path("app.js"), "-e", "data", "--program", "print("})
	if err == nil {
		t.Error("take with an unparsable program should fail")
	}
}

func TestTakeErrors(t *testing.T) {
	a, _ := newTestApp(t)
	tests := []struct {
		name string
		args []string
	}{
		{"no script", []string{"take", "-e", "data"}},
		{"no export", []string{"take", a.path("app.js")}},
		{"missing script", []string{"take", a.path("nope.js"), "-e", "data"}},
		{"missing export", []string{"take", a.path("app.js"), "-e", "nothing"}},
		{"unknown flag", []string{"take", "--bogus"}},
		{"unknown command", []string{"frobnicate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := a.dispatch(tt.args); err == nil {
				t.Errorf("%v should fail", tt.args)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// inspect / store
// ---------------------------------------------------------------------------

func TestInspect(t *testing.T) {
	a, out := newTestApp(t)
	if err := a.dispatch([]string{"take", a.path("app.js"), "-e", "data", "-o", a.path("app.snap")}); err != nil {
		t.Fatalf("take failed: %v", err)
	}

	out.Reset()
	if err := a.dispatch([]string{"inspect", a.path("app.snap"), "--format", "json"}); err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	var dump struct {
		Strings []string `json:"strings"`
	}
	if err := json.Unmarshal(out.Bytes(), &dump); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	found := false
	for _, s := range dump.Strings {
		found = found || s == "label"
	}
	if !found {
		t.Errorf("strings = %v, want label among them", dump.Strings)
	}

	out.Reset()
	if err := a.dispatch([]string{"inspect", a.path("app.snap")}); err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if !strings.Contains(out.String(), "counts:") {
		t.Errorf("yaml output missing counts:\n%s", out.String())
	}

	if err := a.dispatch([]string{"inspect", a.path("app.snap"), "-f", "xml"}); err == nil {
		t.Error("inspect with an unknown format should fail")
	}
}

func TestStorePutGet(t *testing.T) {
	a, out := newTestApp(t)
	if err := a.dispatch([]string{"take", a.path("app.js"), "-e", "data", "-o", a.path("app.snap")}); err != nil {
		t.Fatalf("take failed: %v", err)
	}
	want, _ := os.ReadFile(a.path("app.snap"))

	out.Reset()
	if err := a.dispatch([]string{"store", "put", a.path("app.snap"), "--name", "v1"}); err != nil {
		t.Fatalf("store put failed: %v", err)
	}
	id := strings.TrimSpace(out.String())
	if len(id) != 64 {
		t.Fatalf("store put printed %q, want a digest", id)
	}

	for _, ref := range []string{"v1", id, id[:10]} {
		out.Reset()
		if err := a.dispatch([]string{"store", "get", ref}); err != nil {
			t.Fatalf("store get %s failed: %v", ref, err)
		}
		if !bytes.Equal(out.Bytes(), want) {
			t.Errorf("store get %s returned different bytes", ref)
		}
	}

	if err := a.dispatch([]string{"store"}); err == nil {
		t.Error("store without subcommand should fail")
	}
}

// ---------------------------------------------------------------------------
// REPL
// ---------------------------------------------------------------------------

func TestREPL(t *testing.T) {
	a, out := newTestApp(t)
	input := strings.Join([]string{
		"x = 2",
		"x * 3",
		"function twice(v) {",
		"  return v * 2",
		"}",
		"twice(x)",
		":globals",
		":take snap twice",
		":bogus",
		"undefinedName",
		"exit",
		"x",
	}, "\n")

	in := compiler.New()
	in.Out = out
	r := newREPL(a, a.cfg.NewRealm(), in)
	if err := r.run(strings.NewReader(input)); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	got := out.String()
	for _, want := range []string{">> 2\n", ">> 6\n", ".. .. >> 4\n", "x = 2\n", "stored ", "Unknown command: :bogus", "ReferenceError"} {
		if !strings.Contains(got, want) {
			t.Errorf("REPL output missing %q:\n%s", want, got)
		}
	}
	if strings.Count(got, ">> ") != 9 {
		t.Errorf("REPL read past exit:\n%s", got)
	}
}

func TestDepth(t *testing.T) {
	tests := []struct {
		src  string
		want int
	}{
		{"f(1)", 0},
		{"function f() {", 1},
		{"[{(", 3},
		{"'{' + \"(\"", 0},
		{"'it\\'s {'", 0},
		{"})", -2},
	}
	for _, tt := range tests {
		if got := depth(tt.src); got != tt.want {
			t.Errorf("depth(%q) = %d, want %d", tt.src, got, tt.want)
		}
	}
}
