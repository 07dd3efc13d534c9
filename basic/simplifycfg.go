package basic

import (
	"golang.org/x/exp/slices"

	"github.com/hashicorp/go-set/v3"
)

// simplifyCFG cleans the control flow graph: branches on constants
// become jumps, unreachable blocks drop, empty forwarding blocks
// collapse, and single-predecessor single-successor chains merge.
// The steps feed each other, so they repeat to a fixed point.
func simplifyCFG(f *Fun) bool {
	changed := false
	for {
		var n int
		if constBranches(f) {
			n++
		}
		if simplifyPhis(f) {
			n++
		}
		if rmUnreachable(f) {
			n++
		}
		if rmForwarders(f) {
			n++
		}
		if mergeChains(f) {
			n++
		}
		if n == 0 {
			break
		}
		changed = true
	}
	if changed {
		rmDeleted(f)
		renumber(f)
	}
	return changed
}

// constBranches rewrites branches on constant conditions as jumps.
func constBranches(f *Fun) bool {
	changed := false
	for _, b := range f.BBlks {
		if len(b.Stmts) == 0 {
			continue
		}
		br, ok := b.Stmts[len(b.Stmts)-1].(*Br)
		if !ok || br.deleted() {
			continue
		}
		lit, ok := br.Cond.(*IntLit)
		if !ok {
			continue
		}
		dst, dead := br.Yes, br.No
		if lit.Val == 0 {
			dst, dead = br.No, br.Yes
		}
		deleteStmt(br)
		b.Stmts[len(b.Stmts)-1] = &Jmp{Dst: dst}
		if dead != dst {
			rmPhiIns(f, dead, b)
			dead.rmIn(b)
		}
		changed = true
	}
	return changed
}

// rmPhiIns drops the incoming values from a removed edge
// out of every phi of the block.
func rmPhiIns(f *Fun, b, pred *BBlk) {
	for _, s := range b.Stmts {
		phi, ok := s.(*Phi)
		if !ok {
			break
		}
		if phi.deleted() {
			continue
		}
		var i int
		for _, in := range phi.Ins {
			if in.Src == pred {
				in.Val.value().rmUser(phi)
				continue
			}
			phi.Ins[i] = in
			i++
		}
		phi.Ins = phi.Ins[:i]
	}
}

// rmUnreachable deletes blocks with no path from the entry block.
func rmUnreachable(f *Fun) bool {
	reach := set.New[*BBlk](len(f.BBlks))
	var walk func(*BBlk)
	walk = func(b *BBlk) {
		if !reach.Insert(b) {
			return
		}
		for _, o := range b.Out() {
			walk(o)
		}
	}
	walk(f.BBlks[0])
	if reach.Size() == len(f.BBlks) {
		return false
	}
	for _, b := range f.BBlks {
		if reach.Contains(b) {
			continue
		}
		for _, o := range b.Out() {
			if reach.Contains(o) {
				rmPhiIns(f, o, b)
				o.rmIn(b)
			}
		}
		for _, s := range b.Stmts {
			if !s.deleted() {
				deleteStmt(s)
			}
		}
		b.Stmts = nil
		b.In = nil
	}
	var i int
	for _, b := range f.BBlks {
		if reach.Contains(b) {
			f.BBlks[i] = b
			i++
		}
	}
	f.BBlks = f.BBlks[:i]
	return true
}

// rmForwarders removes blocks holding nothing but a jump,
// pointing their predecessors straight at the destination.
func rmForwarders(f *Fun) bool {
	changed := false
	for _, b := range f.BBlks[1:] {
		if len(b.Stmts) != 1 || len(b.In) == 0 {
			continue
		}
		jmp, ok := b.Stmts[0].(*Jmp)
		if !ok || jmp.deleted() {
			continue
		}
		o := jmp.Dst
		if o == b || conflictingEdges(o, b) {
			continue
		}
		preds := slices.Clone(b.In)
		for _, p := range preds {
			retarget(p, b, o)
			b.rmIn(p)
			o.addIn(p)
		}
		expandPhiIns(o, b, preds)
		o.rmIn(b)
		deleteStmt(jmp)
		b.Stmts = nil
		changed = true
	}
	if !changed {
		return false
	}
	var i int
	for _, b := range f.BBlks {
		if b == f.BBlks[0] || b.Stmts != nil {
			f.BBlks[i] = b
			i++
		}
	}
	f.BBlks = f.BBlks[:i]
	return true
}

// firstLive returns the first statement of a block
// that is not marked deleted, or nil.
func firstLive(b *BBlk) Stmt {
	for _, s := range b.Stmts {
		if !s.deleted() {
			return s
		}
	}
	return nil
}

// conflictingEdges reports whether removing the forwarder would give
// a phi of the destination two incoming values from one predecessor.
func conflictingEdges(o, b *BBlk) bool {
	if _, ok := firstLive(o).(*Phi); !ok {
		return false
	}
	for _, p := range b.In {
		if hasBlock(o.In, p) {
			return true
		}
	}
	return false
}

// retarget points a predecessor's terminator at a new destination.
func retarget(p, from, to *BBlk) {
	switch t := p.Stmts[len(p.Stmts)-1].(type) {
	case *Jmp:
		if t.Dst == from {
			t.Dst = to
		}
	case *Br:
		if t.Yes == from {
			t.Yes = to
		}
		if t.No == from {
			t.No = to
		}
	}
}

// expandPhiIns replaces each phi input from a removed forwarding
// block with one input per inherited predecessor.
func expandPhiIns(o, b *BBlk, preds []*BBlk) {
	for _, s := range o.Stmts {
		phi, ok := s.(*Phi)
		if !ok {
			break
		}
		if phi.deleted() {
			continue
		}
		for i := 0; i < len(phi.Ins); i++ {
			if phi.Ins[i].Src != b {
				continue
			}
			v := phi.Ins[i].Val
			phi.Ins = slices.Delete(phi.Ins, i, i+1)
			i--
			for _, p := range preds {
				phi.Ins = append(phi.Ins, PhiIn{Val: v, Src: p})
			}
		}
	}
}

// mergeChains merges each block with its sole successor when that
// successor has no other predecessor.
func mergeChains(f *Fun) bool {
	changed := false
	entry := f.BBlks[0]
	var i int
	for _, b := range f.BBlks {
		if b.Stmts == nil || (b != entry && len(b.In) == 0) {
			continue
		}
		for len(b.Out()) == 1 && len(b.Out()[0].In) == 1 && b.Out()[0] != b {
			o := b.Out()[0]
			// A sole-predecessor block cannot keep phis; they were
			// already reduced by simplifyPhis.
			if _, ok := firstLive(o).(*Phi); ok {
				break
			}
			term := b.Stmts[len(b.Stmts)-1]
			deleteStmt(term)
			b.Stmts = append(b.Stmts[:len(b.Stmts)-1], o.Stmts...)
			for _, oo := range o.Out() {
				oo.rmIn(o)
				oo.addIn(b)
				for _, s := range oo.Stmts {
					phi, ok := s.(*Phi)
					if !ok {
						break
					}
					for j := range phi.Ins {
						if phi.Ins[j].Src == o {
							phi.Ins[j].Src = b
						}
					}
				}
			}
			o.Stmts = nil
			o.In = nil
			changed = true
		}
		f.BBlks[i] = b
		i++
	}
	n := len(f.BBlks)
	f.BBlks = f.BBlks[:i]
	return changed || i != n
}
