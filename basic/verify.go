package basic

import (
	"fmt"

	"github.com/hashicorp/go-set/v3"
)

// Verify checks the structural invariants of a Mod:
// every block ends in exactly one terminator, phis sit at block heads
// with one incoming value per predecessor, predecessor and successor
// lists agree, every call targets a function of the module, and every
// use is dominated by its definition. Lowering and every optimization
// pass must leave the module verifiable.
func Verify(m *Mod) error {
	for _, f := range m.Funs {
		if err := verifyFun(m, f); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return nil
}

func verifyFun(m *Mod, f *Fun) error {
	if len(f.BBlks) == 0 {
		return fmt.Errorf("no blocks")
	}
	defBlock := make(map[Val]*BBlk)
	for _, b := range f.BBlks {
		if err := verifyBBlk(m, f, b); err != nil {
			return err
		}
		for _, s := range b.Stmts {
			if v, ok := s.(Val); ok {
				defBlock[v] = b
			}
		}
	}
	doms := dominators(f)
	for _, b := range f.BBlks {
		if doms[b] == nil {
			// Unreachable; nothing dominates or flows into it.
			continue
		}
		for i, s := range b.Stmts {
			if phi, ok := s.(*Phi); ok {
				for _, in := range phi.Ins {
					if doms[in.Src] == nil {
						// The edge is from unreachable code.
						continue
					}
					if err := verifyUse(defBlock, doms, in.Src, len(in.Src.Stmts), phi, in.Val); err != nil {
						return err
					}
				}
				continue
			}
			for _, u := range s.Uses() {
				if err := verifyUse(defBlock, doms, b, i, s, u); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func verifyBBlk(m *Mod, f *Fun, b *BBlk) error {
	n := len(b.Stmts)
	if n == 0 {
		return fmt.Errorf("b%d: empty block", b.N)
	}
	if _, ok := b.Stmts[n-1].(Term); !ok {
		return fmt.Errorf("b%d: no terminator", b.N)
	}
	inPhis := true
	for i, s := range b.Stmts {
		if _, ok := s.(Term); ok && i != n-1 {
			return fmt.Errorf("b%d: terminator before end of block", b.N)
		}
		phi, isPhi := s.(*Phi)
		if isPhi && !inPhis {
			return fmt.Errorf("b%d: phi after non-phi", b.N)
		}
		if !isPhi {
			inPhis = false
		}
		if isPhi {
			if len(phi.Ins) != len(b.In) {
				return fmt.Errorf("b%d: phi v%d has %d incoming values for %d predecessors",
					b.N, phi.Num(), len(phi.Ins), len(b.In))
			}
			srcs := set.New[*BBlk](len(phi.Ins))
			for _, in := range phi.Ins {
				if !hasBlock(b.In, in.Src) {
					return fmt.Errorf("b%d: phi v%d has incoming value from non-predecessor b%d",
						b.N, phi.Num(), in.Src.N)
				}
				if !srcs.Insert(in.Src) {
					return fmt.Errorf("b%d: phi v%d has duplicate incoming block b%d",
						b.N, phi.Num(), in.Src.N)
				}
			}
		}
		if c, ok := s.(*Call); ok {
			if c.Fun == nil || m.Fun(c.Fun.Name) != c.Fun {
				return fmt.Errorf("b%d: call to unknown function", b.N)
			}
			if len(c.Args) != len(c.Fun.Parms) {
				return fmt.Errorf("b%d: call to %s has %d arguments for %d parameters",
					b.N, c.Fun.Name, len(c.Args), len(c.Fun.Parms))
			}
		}
	}
	for _, o := range b.Out() {
		if !hasBlock(o.In, b) {
			return fmt.Errorf("b%d: successor b%d does not list it as a predecessor", b.N, o.N)
		}
	}
	for _, i := range b.In {
		if !hasBlock(i.Out(), b) {
			return fmt.Errorf("b%d: predecessor b%d does not list it as a successor", b.N, i.N)
		}
	}
	return nil
}

func verifyUse(defBlock map[Val]*BBlk, doms map[*BBlk]*set.Set[*BBlk], b *BBlk, i int, s Stmt, u Val) error {
	db, ok := defBlock[u]
	if !ok {
		return fmt.Errorf("b%d: use of v%d, which is not defined in the function", b.N, u.Num())
	}
	if db == b {
		for _, t := range b.Stmts[:i] {
			if t == Stmt(u) {
				return nil
			}
		}
		return fmt.Errorf("b%d: v%d used before its definition", b.N, u.Num())
	}
	if !doms[b].Contains(db) {
		return fmt.Errorf("b%d: use of v%d, which does not dominate it", b.N, u.Num())
	}
	return nil
}

// dominators computes the dominator sets of each reachable block by
// iteration to a fixed point. Unreachable blocks map to nil.
func dominators(f *Fun) map[*BBlk]*set.Set[*BBlk] {
	doms := make(map[*BBlk]*set.Set[*BBlk], len(f.BBlks))
	entry := f.BBlks[0]
	doms[entry] = set.From([]*BBlk{entry})
	for _, b := range rpo(f) {
		if b == entry {
			continue
		}
		doms[b] = nil
	}
	order := rpo(f)
	for changed := true; changed; {
		changed = false
		for _, b := range order {
			if b == entry {
				continue
			}
			var members []*BBlk
			first := true
			for _, p := range b.In {
				if doms[p] == nil {
					continue
				}
				if first {
					members = doms[p].Slice()
					first = false
					continue
				}
				var i int
				for _, m := range members {
					if doms[p].Contains(m) {
						members[i] = m
						i++
					}
				}
				members = members[:i]
			}
			if first {
				continue
			}
			d := set.From(members)
			d.Insert(b)
			if doms[b] == nil || doms[b].Size() != d.Size() {
				doms[b] = d
				changed = true
			}
		}
	}
	return doms
}

// rpo returns the reachable blocks in reverse post-order.
func rpo(f *Fun) []*BBlk {
	var order []*BBlk
	seen := set.New[*BBlk](len(f.BBlks))
	var walk func(*BBlk)
	walk = func(b *BBlk) {
		if !seen.Insert(b) {
			return
		}
		for _, o := range b.Out() {
			walk(o)
		}
		order = append(order, b)
	}
	walk(f.BBlks[0])
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

func hasBlock(bs []*BBlk, b *BBlk) bool {
	for _, x := range bs {
		if x == b {
			return true
		}
	}
	return false
}
