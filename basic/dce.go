package basic

// dce deletes pure instructions whose values are unused, iterating so
// a chain of unused computations dies in one run. Anything with an
// observable effect survives: stores, calls, frees, allocations, and
// terminators are never removed here even when their results go
// unused.
func dce(f *Fun) bool {
	changed := false
	for {
		var n int
		for _, b := range f.BBlks {
			for _, s := range b.Stmts {
				if s.deleted() || hasEffect(s) {
					continue
				}
				v, ok := s.(Val)
				if !ok || len(v.Users()) > 0 {
					continue
				}
				deleteStmt(v)
				n++
			}
		}
		if n == 0 {
			return changed
		}
		changed = true
	}
}
