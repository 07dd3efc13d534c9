// Package exec runs lowered modules directly.
//
// Memory is a flat array of words. Addresses are word indices into
// the array, with index 0 reserved so a zeroed pointer field is never
// a valid object. The allocator only ever grows: free releases
// nothing, so a dangling pointer still reads whatever the object
// last held, matching the behavior of native code that happens not
// to reuse the allocation. An address outside the array faults with
// an error.
package exec

import (
	"context"
	"fmt"

	"thirdlang/basic"
	"thirdlang/types"
)

// maxDepth bounds the call stack.
const maxDepth = 1 << 14

// checkEvery is how many block transfers run between checks
// of the context, so runaway loops stay interruptible.
const checkEvery = 1 << 12

// An Engine holds the memory of one program run.
type Engine struct {
	mod   *basic.Mod
	mem   []int64
	steps int
	depth int
	ctx   context.Context
}

// Run executes the module's entry point and returns its value.
// The context bounds execution; a program that loops forever stops
// with the context's error.
func Run(ctx context.Context, m *basic.Mod) (int64, error) {
	main := m.Fun(basic.MainFun)
	if main == nil {
		return 0, fmt.Errorf("no %s function", basic.MainFun)
	}
	e := &Engine{mod: m, mem: make([]int64, 1), ctx: ctx}
	return e.call(main, nil)
}

func (e *Engine) call(f *basic.Fun, args []int64) (int64, error) {
	if e.depth++; e.depth > maxDepth {
		return 0, fmt.Errorf("%s: call stack exhausted", f.Name)
	}
	defer func() { e.depth-- }()

	frame := make([]int64, f.NVals)
	b := f.BBlks[0]
	var prev *basic.BBlk
	for {
		if e.steps++; e.steps%checkEvery == 0 {
			if err := e.ctx.Err(); err != nil {
				return 0, err
			}
		}
		stmts := b.Stmts
		// All phis of a block read their inputs together, before any
		// writes back to the frame.
		var nphi int
		for nphi < len(stmts) {
			if _, ok := stmts[nphi].(*basic.Phi); !ok {
				break
			}
			nphi++
		}
		if nphi > 0 {
			ins := make([]int64, nphi)
			for i := 0; i < nphi; i++ {
				phi := stmts[i].(*basic.Phi)
				v, err := phiIn(phi, prev)
				if err != nil {
					return 0, fmt.Errorf("%s: %w", f.Name, err)
				}
				ins[i] = frame[v.Num()]
			}
			for i := 0; i < nphi; i++ {
				frame[stmts[i].(*basic.Phi).Num()] = ins[i]
			}
			stmts = stmts[nphi:]
		}
		for _, s := range stmts {
			switch s := s.(type) {
			case *basic.IntLit:
				frame[s.Num()] = s.Val
			case *basic.Arg:
				frame[s.Num()] = args[s.Parm.N]
			case *basic.Alloc:
				frame[s.Num()] = e.alloc(1)
			case *basic.Load:
				v, err := e.load(frame[s.Src.Num()])
				if err != nil {
					return 0, fmt.Errorf("%s: %w", f.Name, err)
				}
				frame[s.Num()] = v
			case *basic.Store:
				if err := e.store(frame[s.Dst.Num()], frame[s.Val.Num()]); err != nil {
					return 0, fmt.Errorf("%s: %w", f.Name, err)
				}
			case *basic.Op:
				v, err := e.op(s, frame)
				if err != nil {
					return 0, fmt.Errorf("%s: %w", f.Name, err)
				}
				frame[s.Num()] = v
			case *basic.Field:
				frame[s.Num()] = frame[s.Obj.Num()] + int64(s.Index)
			case *basic.Malloc:
				frame[s.Num()] = e.alloc(words(s.Class.Size()))
			case *basic.Free:
				// Nothing is reclaimed.
			case *basic.Call:
				callArgs := make([]int64, len(s.Args))
				for i, a := range s.Args {
					callArgs[i] = frame[a.Num()]
				}
				v, err := e.call(s.Fun, callArgs)
				if err != nil {
					return 0, err
				}
				frame[s.Num()] = v
			case *basic.Ret:
				if s.Val == nil {
					return 0, nil
				}
				return frame[s.Val.Num()], nil
			case *basic.Jmp:
				prev, b = b, s.Dst
			case *basic.Br:
				if frame[s.Cond.Num()] != 0 {
					prev, b = b, s.Yes
				} else {
					prev, b = b, s.No
				}
			default:
				return 0, fmt.Errorf("%s: cannot execute %T", f.Name, s)
			}
		}
	}
}

func phiIn(phi *basic.Phi, prev *basic.BBlk) (basic.Val, error) {
	for _, in := range phi.Ins {
		if in.Src == prev {
			return in.Val, nil
		}
	}
	return nil, fmt.Errorf("phi $%d has no input for the incoming edge", phi.Num())
}

func (e *Engine) op(op *basic.Op, frame []int64) (int64, error) {
	arg := func(i int) int64 { return frame[op.Args[i].Num()] }
	switch op.Code {
	case basic.NegOp:
		return -arg(0), nil
	case basic.NotOp:
		if arg(0) == 0 {
			return 1, nil
		}
		return 0, nil
	case basic.AddOp:
		return arg(0) + arg(1), nil
	case basic.SubOp:
		return arg(0) - arg(1), nil
	case basic.MulOp:
		return arg(0) * arg(1), nil
	case basic.DivOp:
		if arg(1) == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return arg(0) / arg(1), nil
	case basic.ModOp:
		if arg(1) == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return arg(0) % arg(1), nil
	case basic.LtOp:
		return b2i(arg(0) < arg(1)), nil
	case basic.GtOp:
		return b2i(arg(0) > arg(1)), nil
	case basic.LeOp:
		return b2i(arg(0) <= arg(1)), nil
	case basic.GeOp:
		return b2i(arg(0) >= arg(1)), nil
	case basic.EqOp:
		return b2i(arg(0) == arg(1)), nil
	case basic.NeOp:
		return b2i(arg(0) != arg(1)), nil
	}
	return 0, fmt.Errorf("cannot execute op %s", op.Code)
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// alloc reserves n zeroed words and returns their address.
func (e *Engine) alloc(n int) int64 {
	addr := int64(len(e.mem))
	e.mem = append(e.mem, make([]int64, n)...)
	return addr
}

func (e *Engine) load(addr int64) (int64, error) {
	if addr <= 0 || addr >= int64(len(e.mem)) {
		return 0, fmt.Errorf("invalid memory access at %d", addr)
	}
	return e.mem[addr], nil
}

func (e *Engine) store(addr, v int64) error {
	if addr <= 0 || addr >= int64(len(e.mem)) {
		return fmt.Errorf("invalid memory access at %d", addr)
	}
	e.mem[addr] = v
	return nil
}

func words(size int) int {
	if size < types.WordSize {
		return 1
	}
	return size / types.WordSize
}
