// Package genllvm emits LLVM IR for a lowered module.
//
// Every value is an i64 word, including object pointers, which
// convert through inttoptr and ptrtoint at loads, stores, and calls
// to the allocator. Classes become named struct types with one i64
// member per field, and field access is a getelementptr by member
// index, so the emitted layout is exactly the declared one.
package genllvm

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"thirdlang/basic"
)

type gen struct {
	m       *ir.Module
	structs map[string]types.Type
	funcs   map[string]*ir.Func
	malloc  *ir.Func
	free    *ir.Func
}

// Emit translates a module to LLVM IR. The entry point gets a native
// main wrapper that truncates its value to the process exit code.
func Emit(mod *basic.Mod) (*ir.Module, error) {
	g := &gen{
		m:       ir.NewModule(),
		structs: make(map[string]types.Type),
		funcs:   make(map[string]*ir.Func),
	}
	for _, c := range mod.Classes {
		n := len(c.Fields)
		if n == 0 {
			n = 1
		}
		members := make([]types.Type, n)
		for i := range members {
			members[i] = types.I64
		}
		g.structs[c.Name] = g.m.NewTypeDef(c.Name, types.NewStruct(members...))
	}
	g.malloc = g.m.NewFunc("malloc", types.NewPointer(types.I8),
		ir.NewParam("size", types.I64))
	g.free = g.m.NewFunc("free", types.Void,
		ir.NewParam("ptr", types.NewPointer(types.I8)))

	for _, f := range mod.Funs {
		params := make([]*ir.Param, len(f.Parms))
		for i, p := range f.Parms {
			params[i] = ir.NewParam(p.Name, types.I64)
		}
		g.funcs[f.Name] = g.m.NewFunc(f.Name, types.I64, params...)
	}
	for _, f := range mod.Funs {
		if err := g.emitFun(f); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
	}

	entry := g.funcs[basic.MainFun]
	main := g.m.NewFunc("main", types.I32)
	b := main.NewBlock("")
	r := b.NewCall(entry)
	b.NewRet(b.NewTrunc(r, types.I32))
	return g.m, nil
}

// funGen carries the per-function emission state: the value of each
// numbered instruction, the pointer form of each address-producing
// instruction, and the phis to patch once every block is emitted.
type funGen struct {
	*gen
	fn      *ir.Func
	blocks  map[*basic.BBlk]*ir.Block
	vals    map[basic.Val]value.Value
	addrs   map[basic.Val]value.Value
	patches []patch
}

type patch struct {
	phi *ir.InstPhi
	src *basic.Phi
}

func (g *gen) emitFun(f *basic.Fun) error {
	fg := &funGen{
		gen:    g,
		fn:     g.funcs[f.Name],
		blocks: make(map[*basic.BBlk]*ir.Block),
		vals:   make(map[basic.Val]value.Value),
		addrs:  make(map[basic.Val]value.Value),
	}
	for _, b := range f.BBlks {
		fg.blocks[b] = fg.fn.NewBlock(fmt.Sprintf("b%d", b.N))
	}
	for _, b := range f.BBlks {
		for _, s := range b.Stmts {
			if err := fg.emitStmt(fg.blocks[b], s); err != nil {
				return err
			}
		}
	}
	for _, p := range fg.patches {
		for _, in := range p.src.Ins {
			p.phi.Incs = append(p.phi.Incs,
				ir.NewIncoming(fg.vals[in.Val], fg.blocks[in.Src]))
		}
	}
	return nil
}

func (fg *funGen) emitStmt(b *ir.Block, s basic.Stmt) error {
	switch s := s.(type) {
	case *basic.IntLit:
		fg.vals[s] = constant.NewInt(types.I64, s.Val)
	case *basic.Arg:
		fg.vals[s] = fg.fn.Params[s.Parm.N]
	case *basic.Alloc:
		a := b.NewAlloca(types.I64)
		fg.addrs[s] = a
		fg.vals[s] = b.NewPtrToInt(a, types.I64)
	case *basic.Load:
		fg.vals[s] = b.NewLoad(types.I64, fg.addr(b, s.Src))
	case *basic.Store:
		b.NewStore(fg.vals[s.Val], fg.addr(b, s.Dst))
	case *basic.Op:
		v, err := fg.emitOp(b, s)
		if err != nil {
			return err
		}
		fg.vals[s] = v
	case *basic.Field:
		st := fg.structs[s.Class.Name]
		obj := b.NewIntToPtr(fg.vals[s.Obj], types.NewPointer(st))
		p := b.NewGetElementPtr(st, obj,
			constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(s.Index)))
		fg.addrs[s] = p
		fg.vals[s] = b.NewPtrToInt(p, types.I64)
	case *basic.Malloc:
		size := constant.NewInt(types.I64, int64(s.Class.Size()))
		raw := b.NewCall(fg.malloc, size)
		fg.vals[s] = b.NewPtrToInt(raw, types.I64)
	case *basic.Free:
		raw := b.NewIntToPtr(fg.vals[s.Ptr], types.NewPointer(types.I8))
		b.NewCall(fg.free, raw)
	case *basic.Call:
		args := make([]value.Value, len(s.Args))
		for i, a := range s.Args {
			args[i] = fg.vals[a]
		}
		fg.vals[s] = b.NewCall(fg.funcs[s.Fun.Name], args...)
	case *basic.Phi:
		// The incomings are patched after every block is emitted, so
		// the phi must carry its type up front.
		phi := &ir.InstPhi{Typ: types.I64}
		b.Insts = append(b.Insts, phi)
		fg.vals[s] = phi
		fg.patches = append(fg.patches, patch{phi: phi, src: s})
	case *basic.Ret:
		if s.Val == nil {
			b.NewRet(constant.NewInt(types.I64, 0))
			break
		}
		b.NewRet(fg.vals[s.Val])
	case *basic.Jmp:
		b.NewBr(fg.blocks[s.Dst])
	case *basic.Br:
		cond := b.NewTrunc(fg.vals[s.Cond], types.I1)
		b.NewCondBr(cond, fg.blocks[s.Yes], fg.blocks[s.No])
	default:
		return fmt.Errorf("cannot emit %T", s)
	}
	return nil
}

func (fg *funGen) emitOp(b *ir.Block, op *basic.Op) (value.Value, error) {
	arg := func(i int) value.Value { return fg.vals[op.Args[i]] }
	switch op.Code {
	case basic.NegOp:
		return b.NewSub(constant.NewInt(types.I64, 0), arg(0)), nil
	case basic.NotOp:
		return b.NewXor(arg(0), constant.NewInt(types.I64, 1)), nil
	case basic.AddOp:
		return b.NewAdd(arg(0), arg(1)), nil
	case basic.SubOp:
		return b.NewSub(arg(0), arg(1)), nil
	case basic.MulOp:
		return b.NewMul(arg(0), arg(1)), nil
	case basic.DivOp:
		return b.NewSDiv(arg(0), arg(1)), nil
	case basic.ModOp:
		return b.NewSRem(arg(0), arg(1)), nil
	case basic.LtOp:
		return fg.cmp(b, enum.IPredSLT, arg(0), arg(1)), nil
	case basic.GtOp:
		return fg.cmp(b, enum.IPredSGT, arg(0), arg(1)), nil
	case basic.LeOp:
		return fg.cmp(b, enum.IPredSLE, arg(0), arg(1)), nil
	case basic.GeOp:
		return fg.cmp(b, enum.IPredSGE, arg(0), arg(1)), nil
	case basic.EqOp:
		return fg.cmp(b, enum.IPredEQ, arg(0), arg(1)), nil
	case basic.NeOp:
		return fg.cmp(b, enum.IPredNE, arg(0), arg(1)), nil
	}
	return nil, fmt.Errorf("cannot emit op %s", op.Code)
}

func (fg *funGen) cmp(b *ir.Block, pred enum.IPred, x, y value.Value) value.Value {
	return b.NewZExt(b.NewICmp(pred, x, y), types.I64)
}

// addr returns the pointer form of an address value. A slot or field
// address has a direct pointer; anything else, such as a pointer that
// traveled through a phi, converts back from its integer form.
func (fg *funGen) addr(b *ir.Block, v basic.Val) value.Value {
	if p, ok := fg.addrs[v]; ok {
		return p
	}
	return b.NewIntToPtr(fg.vals[v], types.NewPointer(types.I64))
}
