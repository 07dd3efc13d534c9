package basic

import (
	"golang.org/x/exp/slices"

	"thirdlang/types"
)

// mem2reg promotes stack slots to register values.
//
// A slot is promotable when every user is a load from it or a store
// to it; a slot whose address flows anywhere else, such as a call
// argument, keeps its memory. Loads from a promoted slot are replaced
// by the value most recently stored along each path, inserting phis
// where paths with different values meet. A load with no store on
// some path reads an undefined slot and yields zero.
func mem2reg(f *Fun) bool {
	var promoted bool
	vm := make(valMap)
	for _, s := range f.BBlks[0].Stmts {
		if s.deleted() {
			continue
		}
		a, ok := s.(*Alloc)
		if !ok || !promotable(a) {
			continue
		}
		promote(f, a, vm)
		promoted = true
	}
	if !promoted {
		return false
	}
	subValues(f, vm)
	simplifyPhis(f)
	return true
}

func promotable(a *Alloc) bool {
	for _, u := range a.Users() {
		switch u := u.(type) {
		case *Load:
		case *Store:
			if u.Dst != a || u.Val == a {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// A promoter rewrites the loads and stores of one slot.
// Its maps memoize the slot's value at block boundaries; a phi is
// placed at a join before its incoming values resolve, so loops
// terminate with the phi itself flowing around the back edge.
type promoter struct {
	f     *Fun
	vm    valMap
	local map[*BBlk]Val
	start map[*BBlk]Val
	typ   *types.Type
	zero  Val
}

func promote(f *Fun, a *Alloc, vm valMap) {
	p := &promoter{
		f:     f,
		vm:    vm,
		local: make(map[*BBlk]Val),
		start: make(map[*BBlk]Val),
		typ:   a.Type(),
	}
	type pending struct {
		load *Load
		bblk *BBlk
	}
	var loads []pending
	for _, b := range f.BBlks {
		var cur Val
		for _, s := range b.Stmts {
			if s.deleted() {
				continue
			}
			switch s := s.(type) {
			case *Load:
				if s.Src != a {
					continue
				}
				if cur != nil {
					p.vm.add(s, cur)
					deleteStmt(s)
				} else {
					loads = append(loads, pending{load: s, bblk: b})
				}
			case *Store:
				if s.Dst != a {
					continue
				}
				cur = s.Val
				deleteStmt(s)
			}
		}
		if cur != nil {
			p.local[b] = cur
		}
	}
	for _, l := range loads {
		p.vm.add(l.load, p.startVal(l.bblk))
		deleteStmt(l.load)
	}
	deleteStmt(a)
}

// startVal returns the slot's value on entry to a block.
func (p *promoter) startVal(b *BBlk) Val {
	if v, ok := p.start[b]; ok {
		return v
	}
	if len(b.In) == 0 {
		v := p.undef()
		p.start[b] = v
		return v
	}
	if len(b.In) == 1 {
		// Memoize the phi placeholder first so a degenerate cycle
		// cannot recurse forever.
		phi := p.placePhi(b)
		p.start[b] = phi
		v := p.endVal(b.In[0])
		phiIn(phi, v, b.In[0])
		return phi
	}
	phi := p.placePhi(b)
	p.start[b] = phi
	for _, in := range b.In {
		phiIn(phi, p.endVal(in), in)
	}
	return phi
}

// endVal returns the slot's value on exit from a block.
func (p *promoter) endVal(b *BBlk) Val {
	if v, ok := p.local[b]; ok {
		return v
	}
	return p.startVal(b)
}

// placePhi inserts a fresh phi after any existing phis at a block head.
func (p *promoter) placePhi(b *BBlk) *Phi {
	phi := &Phi{val: newVal(p.f, p.typ)}
	i := 0
	for i < len(b.Stmts) {
		if _, ok := b.Stmts[i].(*Phi); !ok {
			break
		}
		i++
	}
	b.Stmts = slices.Insert(b.Stmts, i, Stmt(phi))
	return phi
}

// undef is the zero read of a never-stored slot,
// materialized once in the entry block.
func (p *promoter) undef() Val {
	if p.zero != nil {
		return p.zero
	}
	b0 := p.f.BBlks[0]
	z := &IntLit{val: newVal(p.f, types.Int), Val: 0}
	p.zero = z
	b0.Stmts = slices.Insert(b0.Stmts, len(b0.Stmts)-1, Stmt(z))
	return z
}

// simplifyPhis removes phis that merge a single value, including
// through their own back edge, repeating until none remain.
func simplifyPhis(f *Fun) bool {
	changed := false
	for {
		vm := make(valMap)
		for _, b := range f.BBlks {
			for _, s := range b.Stmts {
				phi, ok := s.(*Phi)
				if !ok || phi.deleted() {
					continue
				}
				if v := phiValue(phi); v != nil {
					vm.add(phi, v)
					deleteStmt(phi)
				}
			}
		}
		if len(vm) == 0 {
			return changed
		}
		subValues(f, vm)
		changed = true
	}
}

// phiValue returns the single value a trivial phi merges, or nil.
func phiValue(phi *Phi) Val {
	var v Val
	for _, in := range phi.Ins {
		if in.Val == Val(phi) {
			continue
		}
		if v != nil && v != in.Val {
			return nil
		}
		v = in.Val
	}
	return v
}
