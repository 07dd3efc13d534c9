package basic

// A valMap maps values to the values that replace them.
// Lookups compress chains, so replacing a replacement is fine.
type valMap map[Val]Val

func (m valMap) add(old, new Val) { m[old] = new }

func (m valMap) get(v Val) Val {
	u, ok := m[v]
	if !ok || u == v {
		return v
	}
	r := m.get(u)
	m[v] = r
	return r
}

// subValues rewrites every use in the function
// according to the map, maintaining user lists.
func subValues(f *Fun, m valMap) {
	if len(m) == 0 {
		return
	}
	for _, b := range f.BBlks {
		for _, s := range b.Stmts {
			if !s.deleted() {
				s.sub(m)
			}
		}
	}
}

func sub1(s Stmt, m valMap, v *Val) {
	if *v == nil {
		return
	}
	r := m.get(*v)
	if r == *v {
		return
	}
	(*v).value().rmUser(s)
	*v = r
	r.value().addUser(s)
}

func (*stmt) sub(valMap) {}

func (n *Store) sub(m valMap) {
	sub1(n, m, &n.Dst)
	sub1(n, m, &n.Val)
}

func (n *Free) sub(m valMap) { sub1(n, m, &n.Ptr) }

func (n *Ret) sub(m valMap) { sub1(n, m, &n.Val) }

func (n *Br) sub(m valMap) { sub1(n, m, &n.Cond) }

func (n *Load) sub(m valMap) { sub1(n, m, &n.Src) }

func (n *Op) sub(m valMap) {
	for i := range n.Args {
		sub1(n, m, &n.Args[i])
	}
}

func (n *Field) sub(m valMap) { sub1(n, m, &n.Obj) }

func (n *Call) sub(m valMap) {
	for i := range n.Args {
		sub1(n, m, &n.Args[i])
	}
}

func (n *Phi) sub(m valMap) {
	for i := range n.Ins {
		sub1(n, m, &n.Ins[i].Val)
	}
}

// deleteStmt marks a statement deleted
// and removes it from the user lists of its uses.
func deleteStmt(s Stmt) {
	for _, u := range s.Uses() {
		u.value().rmUser(s)
	}
	s.delete()
}

// rmDeleted compacts deleted statements out of every block.
func rmDeleted(f *Fun) {
	for _, b := range f.BBlks {
		var i int
		for _, s := range b.Stmts {
			if !s.deleted() {
				b.Stmts[i] = s
				i++
			}
		}
		b.Stmts = b.Stmts[:i]
	}
}
