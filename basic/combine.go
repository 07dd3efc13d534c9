package basic

import (
	"golang.org/x/exp/slices"

	"thirdlang/types"
)

// instCombine simplifies instructions in place: operations on
// constants fold to constants, arithmetic identities reduce to an
// operand, double negations cancel, and repeated field addresses of
// the same object within a block share one computation. Division and
// modulus by a constant zero never fold; they keep their runtime
// behavior, whatever it is.
func instCombine(f *Fun) bool {
	vm := make(valMap)
	for _, b := range f.BBlks {
		type fieldKey struct {
			obj   Val
			class *types.ClassInfo
			index int
		}
		fields := make(map[fieldKey]*Field)
		for i := 0; i < len(b.Stmts); i++ {
			switch s := b.Stmts[i].(type) {
			case *Op:
				if s.deleted() {
					continue
				}
				if v, ok := foldOp(vm, s); ok {
					lit := &IntLit{val: newVal(f, s.Type()), Val: v}
					b.Stmts = slices.Insert(b.Stmts, i, Stmt(lit))
					i++
					vm.add(s, lit)
					deleteStmt(s)
					continue
				}
				if r := reduceOp(vm, s); r != nil {
					vm.add(s, r)
					deleteStmt(s)
				}
			case *Field:
				if s.deleted() {
					continue
				}
				k := fieldKey{obj: vm.get(s.Obj), class: s.Class, index: s.Index}
				if first, ok := fields[k]; ok {
					vm.add(s, first)
					deleteStmt(s)
				} else {
					fields[k] = s
				}
			}
		}
	}
	if len(vm) == 0 {
		return false
	}
	subValues(f, vm)
	return true
}

// foldOp evaluates an operation whose arguments are all constants.
func foldOp(vm valMap, op *Op) (int64, bool) {
	args := make([]int64, len(op.Args))
	for i, a := range op.Args {
		lit, ok := vm.get(a).(*IntLit)
		if !ok {
			return 0, false
		}
		args[i] = lit.Val
	}
	switch op.Code {
	case NegOp:
		return -args[0], true
	case NotOp:
		return 1 - args[0]&1, true
	case AddOp:
		return args[0] + args[1], true
	case SubOp:
		return args[0] - args[1], true
	case MulOp:
		return args[0] * args[1], true
	case DivOp:
		if args[1] == 0 {
			return 0, false
		}
		return args[0] / args[1], true
	case ModOp:
		if args[1] == 0 {
			return 0, false
		}
		return args[0] % args[1], true
	case LtOp:
		return b2i(args[0] < args[1]), true
	case GtOp:
		return b2i(args[0] > args[1]), true
	case LeOp:
		return b2i(args[0] <= args[1]), true
	case GeOp:
		return b2i(args[0] >= args[1]), true
	case EqOp:
		return b2i(args[0] == args[1]), true
	case NeOp:
		return b2i(args[0] != args[1]), true
	}
	return 0, false
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// reduceOp returns the operand an identity operation reduces to,
// or nil if none applies.
func reduceOp(vm valMap, op *Op) Val {
	if op.Code == NegOp || op.Code == NotOp {
		if inner, ok := vm.get(op.Args[0]).(*Op); ok && inner.Code == op.Code {
			return vm.get(inner.Args[0])
		}
		return nil
	}
	l, r := vm.get(op.Args[0]), vm.get(op.Args[1])
	switch op.Code {
	case AddOp:
		if isConst(l, 0) {
			return r
		}
		if isConst(r, 0) {
			return l
		}
	case SubOp:
		if isConst(r, 0) {
			return l
		}
	case MulOp:
		if isConst(l, 1) {
			return r
		}
		if isConst(r, 1) {
			return l
		}
	case DivOp:
		if isConst(r, 1) {
			return l
		}
	}
	return nil
}

func isConst(v Val, c int64) bool {
	lit, ok := v.(*IntLit)
	return ok && lit.Val == c
}
