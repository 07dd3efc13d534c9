package basic

import (
	"strings"
	"testing"

	"thirdlang/types"
)

func optCompile(t *testing.T, src string, passes ...string) *Mod {
	t.Helper()
	mod := compile(t, src)
	if err := Optimize(mod, passes); err != nil {
		t.Fatalf("failed to optimize: %s", err)
	}
	return mod
}

func TestMem2RegStraightLine(t *testing.T) {
	t.Parallel()
	mod := optCompile(t, `
		def f(a: int, b: int) -> int {
			c = a + b
			return c * 2
		}
	`, "mem2reg")
	s := mod.Fun("f").String()
	for _, bad := range []string{"alloc(", "load(", "store("} {
		if strings.Contains(s, bad) {
			t.Errorf("%s survived promotion:\n%s", bad, s)
		}
	}
}

func TestMem2RegLoopPhi(t *testing.T) {
	t.Parallel()
	mod := optCompile(t, `
		x = 0
		i = 0
		while i < 3 {
			x = x + 2
			i = i + 1
		}
		x
	`, "mem2reg")
	s := mod.Fun("__main").String()
	if strings.Contains(s, "alloc(") {
		t.Errorf("alloc survived promotion:\n%s", s)
	}
	if !strings.Contains(s, "phi(") {
		t.Errorf("no phi at the loop head:\n%s", s)
	}
}

// A slot whose address escapes to a call keeps its memory.
func TestMem2RegAddressTaken(t *testing.T) {
	t.Parallel()
	mod := &Mod{funs: make(map[string]*Fun)}
	g := newFun(mod, "g", []types.Parm{{Name: "p", Type: types.Int}}, types.Int)
	f := newFun(mod, "f", nil, types.Int)
	b0 := newBBlk(f)
	a := addAlloc(f, b0, "x", types.Int)
	v := addIntLit(f, b0, 7, types.Int)
	addStore(b0, a, v)
	c := addCall(f, b0, g, []Val{a}, types.Int)
	addRet(b0, c)
	if mem2reg(f) {
		t.Fatalf("promoted an escaping slot:\n%s", f)
	}
	if a.deleted() {
		t.Errorf("escaping alloc was deleted:\n%s", f)
	}
}

func TestInstCombineFolds(t *testing.T) {
	t.Parallel()
	mod := optCompile(t, "x = 2 + 3 * 4\nx", "mem2reg", "instcombine", "dce")
	s := mod.Fun("__main").String()
	if !strings.Contains(s, "14 (int)") {
		t.Errorf("no folded constant 14:\n%s", s)
	}
	for _, bad := range []string{"add(", "mul("} {
		if strings.Contains(s, bad) {
			t.Errorf("%s survived folding:\n%s", bad, s)
		}
	}
}

func TestInstCombineIdentities(t *testing.T) {
	t.Parallel()
	mod := optCompile(t, `
		def f(a: int) -> int {
			b = a + 0
			c = b * 1
			d = c - 0
			return d / 1
		}
	`, "mem2reg", "instcombine", "dce")
	s := mod.Fun("f").String()
	for _, bad := range []string{"add(", "mul(", "sub(", "div("} {
		if strings.Contains(s, bad) {
			t.Errorf("%s survived identity reduction:\n%s", bad, s)
		}
	}
}

func TestInstCombineKeepsDivByZero(t *testing.T) {
	t.Parallel()
	mod := optCompile(t, "x = 1 / 0\nx", "mem2reg", "instcombine")
	s := mod.Fun("__main").String()
	if !strings.Contains(s, "div(") {
		t.Errorf("division by zero was folded away:\n%s", s)
	}
}

func TestInstCombineFieldCSE(t *testing.T) {
	t.Parallel()
	mod := optCompile(t, `
		class P {
			x: int
			def __init__(self, x: int) { self.x = x }
			def twice(self) -> int { return self.x + self.x }
		}
		p = new P(3)
		p.twice()
	`, "mem2reg", "instcombine", "dce")
	s := mod.Fun("P__twice").String()
	if n := strings.Count(s, "field("); n != 1 {
		t.Errorf("got %d field addresses, want 1 after CSE:\n%s", n, s)
	}
}

func TestDCEKeepsEffects(t *testing.T) {
	t.Parallel()
	mod := optCompile(t, `
		class C { x: int }
		c = new C()
		u = 1 + 2
		v = 5
		v
	`, "default")
	s := mod.Fun("__main").String()
	if !strings.Contains(s, "malloc(C)") {
		t.Errorf("unused malloc was removed:\n%s", s)
	}
	if strings.Contains(s, "add(") {
		t.Errorf("dead add survived:\n%s", s)
	}
}

func TestSimplifyCFGConstBranch(t *testing.T) {
	t.Parallel()
	mod := optCompile(t, "x = if true { 1 } else { 2 }\nx", "default")
	f := mod.Fun("__main")
	if len(f.BBlks) != 1 {
		t.Errorf("got %d blocks, want 1:\n%s", len(f.BBlks), f)
	}
	s := f.String()
	if strings.Contains(s, "br($") {
		t.Errorf("constant branch survived:\n%s", s)
	}
}

func TestDefaultPipelineCollapsesStraightLine(t *testing.T) {
	t.Parallel()
	mod := optCompile(t, `
		def f(a: int, b: int) -> int {
			return a + b
		}
	`, "default")
	f := mod.Fun("f")
	if len(f.BBlks) != 1 {
		t.Errorf("got %d blocks, want 1:\n%s", len(f.BBlks), f)
	}
}

func TestOptimizeUnknownPass(t *testing.T) {
	t.Parallel()
	mod := compile(t, "x = 1")
	err := Optimize(mod, []string{"bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown pass: bogus") {
		t.Errorf("got %v, want unknown pass error", err)
	}
}

func TestOptimizePassOrder(t *testing.T) {
	t.Parallel()
	// simplifycfg alone cannot remove memory traffic; a later mem2reg can.
	mod := optCompile(t, "x = 1\nx", "simplifycfg")
	if !strings.Contains(mod.Fun("__main").String(), "alloc(") {
		t.Errorf("simplifycfg removed allocs:\n%s", mod.Fun("__main"))
	}
	if err := Optimize(mod, []string{"mem2reg", "simplifycfg"}); err != nil {
		t.Fatalf("failed to optimize: %s", err)
	}
	if s := mod.Fun("__main").String(); strings.Contains(s, "alloc(") {
		t.Errorf("mem2reg left allocs:\n%s", s)
	}
}
