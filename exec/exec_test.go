package exec

import (
	"context"
	"strings"
	"testing"
	"time"

	"thirdlang/ast"
	"thirdlang/basic"
	"thirdlang/typeck"
)

func run(t *testing.T, src string, passes ...string) (int64, error) {
	t.Helper()
	prog, err := ast.Parse(src)
	if err != nil {
		t.Fatalf("failed to parse: %s", err)
	}
	info, err := typeck.Check(prog)
	if err != nil {
		t.Fatalf("failed to check: %s", err)
	}
	mod := basic.Build(prog, info)
	if len(passes) > 0 {
		if err := basic.Optimize(mod, passes); err != nil {
			t.Fatalf("failed to optimize: %s", err)
		}
	}
	return Run(context.Background(), mod)
}

func mustRun(t *testing.T, src string, passes ...string) int64 {
	t.Helper()
	v, err := run(t, src, passes...)
	if err != nil {
		t.Fatalf("failed to run: %s", err)
	}
	return v
}

var programs = []struct {
	name string
	src  string
	want int64
}{
	{
		name: "arithmetic",
		src:  "x = 2 + 3 * 4\nx",
		want: 14,
	},
	{
		name: "division and modulus",
		src:  "x = 17 / 5\ny = 17 % 5\nx * 10 + y",
		want: 32,
	},
	{
		name: "negation",
		src:  "x = 7\n-x + 10",
		want: 3,
	},
	{
		name: "comparison widens to int",
		src:  "x = 3 < 5\nx",
		want: 1,
	},
	{
		name: "not",
		src:  "b = !(1 < 2)\nb",
		want: 0,
	},
	{
		name: "if else",
		src:  "x = if 5 < 3 { 1 } else { 2 }\nx",
		want: 2,
	},
	{
		name: "while sum",
		src: `
			s = 0
			i = 1
			while i <= 5 {
				s = s + i
				i = i + 1
			}
			s
		`,
		want: 15,
	},
	{
		name: "recursion",
		src: `
			def fib(n: int) -> int {
				return if n < 2 { n } else { fib(n - 1) + fib(n - 2) }
			}
			fib(10)
		`,
		want: 55,
	},
	{
		name: "point distance squared",
		src: `
			class Point {
				x: int
				y: int
				def __init__(self, x: int, y: int) {
					self.x = x
					self.y = y
				}
				def distance_squared(self) -> int {
					return self.x * self.x + self.y * self.y
				}
			}
			p = new Point(3, 4)
			p.distance_squared()
		`,
		want: 25,
	},
	{
		name: "counter increments",
		src: `
			class Counter {
				n: int
				def increment(self) -> int {
					self.n = self.n + 1
					return self.n
				}
			}
			c = new Counter()
			a = c.increment()
			b = c.increment()
			d = c.increment()
			a * 100 + b * 10 + d
		`,
		want: 123,
	},
	{
		name: "fields zeroed before constructor",
		src: `
			class C { x: int }
			c = new C()
			c.x
		`,
		want: 0,
	},
	{
		name: "destructor runs on delete",
		src: `
			class S {
				v: int
				def __init__(self, v: int) { self.v = v }
				def __del__(self) { self.v = 0 }
			}
			s = new S(42)
			x = s.v
			delete s
			x
		`,
		want: 42,
	},
	{
		name: "empty main",
		src:  "",
		want: 0,
	},
	{
		name: "free function calls",
		src: `
			def double(n: int) -> int { return n * 2 }
			def quad(n: int) -> int { return double(double(n)) }
			quad(5)
		`,
		want: 20,
	},
	{
		name: "implicit last value return",
		src: `
			def f(n: int) -> int {
				m = n + 1
				m * 2
			}
			f(4)
		`,
		want: 10,
	},
}

func TestPrograms(t *testing.T) {
	for _, test := range programs {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if got := mustRun(t, test.src); got != test.want {
				t.Errorf("got %d, want %d", got, test.want)
			}
		})
	}
}

// Every pass combination must preserve program behavior.
func TestOptimizationEquivalence(t *testing.T) {
	passSets := [][]string{
		{"mem2reg"},
		{"instcombine"},
		{"dce"},
		{"simplifycfg"},
		{"mem2reg", "instcombine"},
		{"mem2reg", "instcombine", "dce", "simplifycfg"},
		{"default"},
	}
	for _, test := range programs {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			for _, ps := range passSets {
				if got := mustRun(t, test.src, ps...); got != test.want {
					t.Errorf("passes %v: got %d, want %d", ps, got, test.want)
				}
			}
		})
	}
}

// Deleted objects are not reclaimed, so a dangling read still sees
// whatever the destructor left behind.
func TestDanglingReadAfterDelete(t *testing.T) {
	t.Parallel()
	const src = `
		class S {
			v: int
			def __init__(self, v: int) { self.v = v }
			def __del__(self) { self.v = 17 }
		}
		s = new S(42)
		delete s
		s.v
	`
	if got := mustRun(t, src); got != 17 {
		t.Errorf("got %d, want 17", got)
	}
}

func TestDivisionByZero(t *testing.T) {
	t.Parallel()
	_, err := run(t, "x = 1 / 0\nx")
	if err == nil || !strings.Contains(err.Error(), "division by zero") {
		t.Errorf("got %v, want division by zero", err)
	}
}

func TestNullFieldAccessFaults(t *testing.T) {
	t.Parallel()
	const src = `
		class C {
			x: int
			p: C
		}
		c = new C()
		c.p.x
	`
	_, err := run(t, src)
	if err == nil || !strings.Contains(err.Error(), "invalid memory access") {
		t.Errorf("got %v, want invalid memory access", err)
	}
}

func TestContextStopsRunawayLoop(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	prog, err := ast.Parse("while true { }\n0")
	if err != nil {
		t.Fatalf("failed to parse: %s", err)
	}
	info, err := typeck.Check(prog)
	if err != nil {
		t.Fatalf("failed to check: %s", err)
	}
	mod := basic.Build(prog, info)
	if _, err := Run(ctx, mod); err == nil {
		t.Error("an endless loop returned")
	}
}

func TestDeepRecursionFails(t *testing.T) {
	t.Parallel()
	const src = `
		def down(n: int) -> int { return down(n - 1) }
		down(1)
	`
	_, err := run(t, src)
	if err == nil || !strings.Contains(err.Error(), "call stack exhausted") {
		t.Errorf("got %v, want call stack exhausted", err)
	}
}
