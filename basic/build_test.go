package basic

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"thirdlang/ast"
	"thirdlang/typeck"
	"thirdlang/types"
)

func compile(t *testing.T, src string) *Mod {
	t.Helper()
	prog, err := ast.Parse(src)
	if err != nil {
		t.Fatalf("failed to parse: %s", err)
	}
	info, err := typeck.Check(prog)
	if err != nil {
		t.Fatalf("failed to check: %s", err)
	}
	return Build(prog, info)
}

// The build pass generates literal, clumsy code,
// so this is mostly a change detector to catch regressions.
func TestBuildSimpleFun(t *testing.T) {
	t.Parallel()
	mod := compile(t, "def f() -> int { return 42 }")
	want := strings.Join([]string{
		"f() int",
		"\t0:",
		"\t\t[in:] [out: 1]",
		"\t\tjmp(1)",
		"\t1:",
		"\t\t[in: 0] [out:]",
		"\t\t$0 := 42 (int)",
		"\t\tret($0)",
	}, "\n")
	if diff := cmp.Diff(want, mod.Fun("f").String()); diff != "" {
		t.Errorf("IR mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildMangling(t *testing.T) {
	t.Parallel()
	mod := compile(t, `
		class Counter {
			n: int
			def __init__(self, n: int) { self.n = n }
			def increment(self) -> int {
				self.n = self.n + 1
				return self.n
			}
			def __del__(self) { self.n = 0 }
		}
		c = new Counter(0)
	`)
	for _, name := range []string{
		"Counter____init__",
		"Counter__increment",
		"Counter____del__",
		"__main",
	} {
		if mod.Fun(name) == nil {
			t.Errorf("no function %s", name)
		}
	}
	inc := mod.Fun("Counter__increment")
	if len(inc.Parms) != 1 || inc.Parms[0].Name != "self" {
		t.Errorf("got %d parms, want just self", len(inc.Parms))
	}
	if inc.Class == nil || inc.Class.Name != "Counter" {
		t.Errorf("got class %v, want Counter", inc.Class)
	}
}

func TestBuildEntryAllocs(t *testing.T) {
	t.Parallel()
	mod := compile(t, `
		def f(a: int, b: int) -> int {
			c = a + b
			return c
		}
	`)
	f := mod.Fun("f")
	var allocs, args int
	for _, s := range f.BBlks[0].Stmts {
		switch s.(type) {
		case *Alloc:
			allocs++
		case *Arg:
			args++
		}
	}
	if allocs != 3 {
		t.Errorf("got %d entry allocs, want 3 (a, b, c):\n%s", allocs, f)
	}
	if args != 2 {
		t.Errorf("got %d args, want 2:\n%s", args, f)
	}
	for _, b := range f.BBlks[1:] {
		for _, s := range b.Stmts {
			if _, ok := s.(*Alloc); ok {
				t.Errorf("alloc outside the entry block:\n%s", f)
			}
		}
	}
}

func TestBuildFieldTargetObjectAssign(t *testing.T) {
	t.Parallel()
	// The target's object expression binds a variable of its own;
	// it needs an entry-block slot like any other local.
	mod := compile(t, `
		class P { x: int }
		{ p = new P() p }.x = 5
	`)
	main := mod.Fun("__main")
	var found bool
	for _, s := range main.BBlks[0].Stmts {
		if a, ok := s.(*Alloc); ok && a.Name == "p" {
			found = true
		}
	}
	if !found {
		t.Errorf("no stack slot for p:\n%s", main)
	}
}

func TestBuildNew(t *testing.T) {
	t.Parallel()
	mod := compile(t, `
		class Point {
			x: int
			y: int
			def __init__(self, x: int, y: int) {
				self.x = x
				self.y = y
			}
		}
		p = new Point(3, 4)
	`)
	s := mod.Fun("__main").String()
	if !strings.Contains(s, "malloc(Point)") {
		t.Errorf("no malloc(Point):\n%s", s)
	}
	if !strings.Contains(s, "call Point____init__(") {
		t.Errorf("no constructor call:\n%s", s)
	}
	// Both fields are zeroed before the constructor runs.
	if n := strings.Count(s, "field("); n < 2 {
		t.Errorf("got %d field addresses, want at least 2 for zero-init:\n%s", n, s)
	}
	if strings.Index(s, "malloc(Point)") > strings.Index(s, "call Point____init__(") {
		t.Errorf("constructor call before malloc:\n%s", s)
	}
}

func TestBuildNewWithoutCtor(t *testing.T) {
	t.Parallel()
	mod := compile(t, "class C { x: int }\nc = new C()")
	s := mod.Fun("__main").String()
	if !strings.Contains(s, "malloc(C)") {
		t.Errorf("no malloc(C):\n%s", s)
	}
	if strings.Contains(s, "call ") {
		t.Errorf("unexpected call:\n%s", s)
	}
}

func TestBuildDelete(t *testing.T) {
	t.Parallel()
	mod := compile(t, `
		class C {
			x: int
			def __del__(self) { self.x = 0 }
		}
		c = new C()
		delete c
	`)
	s := mod.Fun("__main").String()
	dtor := strings.Index(s, "call C____del__(")
	free := strings.Index(s, "free(")
	if dtor < 0 {
		t.Fatalf("no destructor call:\n%s", s)
	}
	if free < 0 {
		t.Fatalf("no free:\n%s", s)
	}
	if dtor > free {
		t.Errorf("free before destructor call:\n%s", s)
	}
}

func TestBuildDeleteWithoutDtor(t *testing.T) {
	t.Parallel()
	mod := compile(t, "class C { x: int }\nc = new C()\ndelete c")
	s := mod.Fun("__main").String()
	if strings.Contains(s, "____del__") {
		t.Errorf("destructor call for a class with no destructor:\n%s", s)
	}
	if !strings.Contains(s, "free(") {
		t.Errorf("no free:\n%s", s)
	}
}

func TestBuildIfPhi(t *testing.T) {
	t.Parallel()
	mod := compile(t, "c = true\nx = if c { 1 } else { 2 }\ny = x")
	s := mod.Fun("__main").String()
	if !strings.Contains(s, "phi(") {
		t.Errorf("no phi for the if expression:\n%s", s)
	}
	if !strings.Contains(s, "br($") {
		t.Errorf("no conditional branch:\n%s", s)
	}
}

func TestBuildWhileLoop(t *testing.T) {
	t.Parallel()
	mod := compile(t, "x = 0\nwhile x < 3 { x = x + 1 }\ny = x")
	f := mod.Fun("__main")
	// The condition block must have two predecessors,
	// the preheader and the loop back edge.
	var found bool
	for _, b := range f.BBlks {
		if len(b.In) == 2 {
			found = true
		}
	}
	if !found {
		t.Errorf("no block with two predecessors:\n%s", f)
	}
}

func TestBuildMainResult(t *testing.T) {
	t.Parallel()
	mod := compile(t, "x = 5\ny = x + 1")
	f := mod.Fun("__main")
	if !f.Ret.Eq(types.Int) {
		t.Errorf("got return type %s, want int", f.Ret)
	}
	s := f.String()
	if !strings.Contains(s, "ret($") {
		t.Errorf("no value return:\n%s", s)
	}
}

func TestBuildDeadCodeAfterReturn(t *testing.T) {
	t.Parallel()
	mod := compile(t, `
		def f() -> int {
			return 1
			return 2
		}
	`)
	if err := Verify(mod); err != nil {
		t.Errorf("verify failed: %s", err)
	}
}

func TestVerifyCatchesBadPhi(t *testing.T) {
	t.Parallel()
	mod := compile(t, "c = true\nx = if c { 1 } else { 2 }\ny = x")
	f := mod.Fun("__main")
	for _, b := range f.BBlks {
		for _, s := range b.Stmts {
			if phi, ok := s.(*Phi); ok {
				phi.Ins = phi.Ins[:1]
			}
		}
	}
	if err := Verify(mod); err == nil {
		t.Error("verify passed on a phi missing a predecessor input")
	}
}

func TestVerifyCatchesMissingTerminator(t *testing.T) {
	t.Parallel()
	mod := compile(t, "x = 1")
	f := mod.Fun("__main")
	last := f.BBlks[len(f.BBlks)-1]
	last.Stmts = last.Stmts[:len(last.Stmts)-1]
	if err := Verify(mod); err == nil {
		t.Error("verify passed on a block with no terminator")
	}
}
