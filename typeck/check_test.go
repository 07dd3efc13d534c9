package typeck

import (
	"regexp"
	"strings"
	"testing"

	"thirdlang/ast"
	"thirdlang/types"
)

type errorTest struct {
	name string
	src  string
	err  string // regexp, "" means no error
}

func (test errorTest) run(t *testing.T) {
	t.Parallel()
	if strings.HasPrefix(test.name, "SKIP:") {
		t.Skip()
	}
	prog, err := ast.Parse(test.src)
	if err != nil {
		t.Fatalf("failed to parse source: %s", err)
	}
	switch _, err := Check(prog); {
	case test.err == "" && err == nil:
		return
	case test.err == "" && err != nil:
		t.Errorf("got %v, expected nil", err)
	case test.err != "" && err == nil:
		t.Errorf("got nil, expected matching %s", test.err)
	default:
		if !regexp.MustCompile(test.err).MatchString(err.Error()) {
			t.Errorf("got %v, expected matching %s", err, test.err)
		}
	}
}

func TestCheckVars(t *testing.T) {
	tests := []errorTest{
		{name: "simple assign", src: "x = 5"},
		{name: "use after assign", src: "x = 5\ny = x + 1"},
		{name: "undefined variable", src: "y = x", err: "undefined variable: x"},
		{name: "annotated assign", src: "x: int = 5"},
		{
			name: "annotation mismatch",
			src:  "x: bool = 5",
			err:  "type mismatch: expected bool, got int",
		},
		{
			name: "reassign same type",
			src:  "x = 5\nx = 6",
		},
		{
			name: "reassign different type",
			src:  "x = 5\nx = true",
			err:  "cannot assign",
		},
		{
			name: "branch binding does not escape",
			src:  "c = true\nz = if c { x = 1\nx } else { 2 }\ny = x",
			err:  "undefined variable: x",
		},
		{name: "self outside method", src: "x = self", err: "self used outside of a method"},
	}
	for _, test := range tests {
		t.Run(test.name, test.run)
	}
}

func TestCheckOps(t *testing.T) {
	tests := []errorTest{
		{name: "arithmetic", src: "x = 1 + 2 * 3 - 4 / 5 % 6"},
		{name: "negate int", src: "x = -5"},
		{name: "not bool", src: "x = !true"},
		{name: "negate bool", src: "x = -true", err: "cannot negate non-integer type bool"},
		{
			name: "add bool",
			src:  "x = true + 1",
			err:  "arithmetic operation requires int operands, got bool and int",
		},
		{name: "compare ints", src: "x = 1 < 2"},
		{
			name: "compare bools",
			src:  "x = true == false",
			err:  "comparison requires int operands, got bool and bool",
		},
		{
			name: "equality requires ints",
			src:  "class C {}\na = new C()\nb = new C()\nx = a == b",
			err:  "comparison requires int operands, got C and C",
		},
	}
	for _, test := range tests {
		t.Run(test.name, test.run)
	}
}

func TestCheckFuncs(t *testing.T) {
	tests := []errorTest{
		{name: "call", src: "def f(a: int) -> int { return a }\nx = f(5)"},
		{name: "undefined function", src: "x = f(5)", err: "undefined function: f"},
		{
			name: "arity",
			src:  "def f(a: int) -> int { return a }\nx = f(1, 2)",
			err:  `function f expects 1 arguments, got 2`,
		},
		{
			name: "argument type",
			src:  "def f(a: int) -> int { return a }\nx = f(true)",
			err:  "argument 1 of function f: expected int, got bool",
		},
		{
			name: "return type mismatch",
			src:  "def f() -> int { return true }",
			err:  "return type mismatch: expected int, got bool",
		},
		{
			name: "recursion",
			src:  "def fib(n: int) -> int { return if n < 2 { n } else { fib(n-1) + fib(n-2) } }\nx = fib(10)",
		},
		{
			name: "mutual recursion",
			src: `def even(n: int) -> int { return if n == 0 { 1 } else { odd(n - 1) } }
def odd(n: int) -> int { return if n == 0 { 0 } else { even(n - 1) } }
x = even(10)`,
		},
	}
	for _, test := range tests {
		t.Run(test.name, test.run)
	}
}

func TestCheckClasses(t *testing.T) {
	tests := []errorTest{
		{
			name: "class with fields and methods",
			src: `class Point {
				x: int
				y: int
				def __init__(self, x: int, y: int) {
					self.x = x
					self.y = y
				}
				def dist2(self) -> int { return self.x * self.x + self.y * self.y }
			}
			p = new Point(3, 4)
			d = p.dist2()`,
		},
		{name: "undefined class", src: "p = new P()", err: "undefined class: P"},
		{
			name: "redefined class",
			src:  "class C {}\nclass C {}",
			err:  "class C redefined",
		},
		{
			name: "unknown field type",
			src:  "class C { x: D }",
			err:  "undefined class: D",
		},
		{
			name: "mutually recursive classes",
			src:  "class A { b: B }\nclass B { a: A }",
		},
		{
			name: "undefined field",
			src:  "class C { x: int }\nc = new C()\ny = c.y",
			err:  "undefined field y on class C",
		},
		{
			name: "undefined method",
			src:  "class C {}\nc = new C()\ny = c.m()",
			err:  "undefined method m on class C",
		},
		{
			name: "method on non-class",
			src:  "x = 5\ny = x.m()",
			err:  "cannot call method on non-class type int",
		},
		{
			name: "field assign type",
			src:  "class C { x: int }\nc = new C()\nc.x = true",
			err:  "cannot assign bool to field x of type int",
		},
		{
			name: "ctor arity",
			src: `class C { x: int
				def __init__(self, x: int) { self.x = x } }
			c = new C()`,
			err: "constructor for C expects 1 arguments, got 0",
		},
		{
			name: "no ctor takes no args",
			src:  "class C { x: int }\nc = new C(1)",
			err:  "class C has no constructor but 1 arguments were given",
		},
		{
			name: "delete class",
			src:  "class C {}\nc = new C()\ndelete c",
		},
		{
			name: "delete non-class",
			src:  "x = 5\ndelete x",
			err:  "cannot delete non-class type int",
		},
		{
			name: "new is class typed regardless of ctor",
			src: `class C { def __init__(self) -> int { return 7 } }
			c = new C()
			x = c.y`,
			err: "undefined field y on class C",
		},
	}
	for _, test := range tests {
		t.Run(test.name, test.run)
	}
}

func TestCheckControlFlow(t *testing.T) {
	tests := []errorTest{
		{name: "if expression", src: "c = true\nx = if c { 1 } else { 2 }"},
		{
			name: "if condition not bool",
			src:  "x = if 1 { 1 } else { 2 }",
			err:  "if condition must be bool, got int",
		},
		{
			name: "branch type mismatch",
			src:  "c = true\nx = if c { 1 } else { true }",
			err:  "if branches have mismatched types: int and bool",
		},
		{name: "while", src: "x = 0\nwhile x < 10 { x = x + 1 }"},
		{
			name: "while condition not bool",
			src:  "while 1 { }",
			err:  "while condition must be bool, got int",
		},
	}
	for _, test := range tests {
		t.Run(test.name, test.run)
	}
}

func TestCheckInfo(t *testing.T) {
	t.Parallel()
	const src = `
		class Pair {
			a: int
			b: int
			def __init__(self, a: int, b: int) {
				self.a = a
				self.b = b
			}
			def sum(self) -> int { return self.a + self.b }
			def __del__(self) { self.a = 0 }
		}
		def twice(n: int) -> int { return n * 2 }
		x = twice(21)
	`
	prog, err := ast.Parse(src)
	if err != nil {
		t.Fatalf("failed to parse source: %s", err)
	}
	info, err := Check(prog)
	if err != nil {
		t.Fatalf("failed to check: %s", err)
	}
	c := info.Classes["Pair"]
	if c == nil {
		t.Fatal("no class info for Pair")
	}
	if !c.HasDtor {
		t.Error("HasDtor=false, want true")
	}
	if c.Ctor() == nil || c.Ctor().Sym() != "Pair____init__" {
		t.Errorf("ctor=%v, want Pair____init__", c.Ctor())
	}
	if got := c.Size(); got != 2*types.WordSize {
		t.Errorf("Size()=%d, want %d", got, 2*types.WordSize)
	}
	f := info.Funcs["twice"]
	if f == nil || len(f.Parms) != 1 || !f.Ret.Eq(types.Int) {
		t.Errorf("got func info %v, want twice(int) int", f)
	}
}
