// Package interp evaluates a parsed shader program directly, one
// fragment at a time. It is the reference for instruction semantics.
package interp

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/softgpu/fragc/ir"
)

// value is a flat sequence of 32-bit lanes: one for scalars, N for
// vectors, columns*rows for matrices.
type value []uint32

func scalar(bits uint32) value { return value{bits} }

func fromFloat(f float32) uint32 { return math.Float32bits(f) }

func toFloat(bits uint32) float32 { return math.Float32frombits(bits) }

func fromBool(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Interpreter walks the IR of one program.
type Interpreter struct {
	prog   *ir.Program
	memory []byte
	regs   map[ir.ID]value

	// killed is set when the fragment is discarded.
	killed bool
}

// New returns an interpreter with a zeroed memory image.
func New(prog *ir.Program) *Interpreter {
	return &Interpreter{
		prog:   prog,
		memory: make([]byte, ir.MemorySize),
		regs:   make(map[ir.ID]value),
	}
}

// WriteMemory copies words into the memory image at the byte address.
func (ip *Interpreter) WriteMemory(addr uint32, words []uint32) {
	for i, w := range words {
		binary.LittleEndian.PutUint32(ip.memory[addr+uint32(i)*4:], w)
	}
}

// ReadMemory reads n words at the byte address.
func (ip *Interpreter) ReadMemory(addr uint32, n int) []uint32 {
	words := make([]uint32, n)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(ip.memory[addr+uint32(i)*4:])
	}
	return words
}

// Killed reports whether the fragment was discarded.
func (ip *Interpreter) Killed() bool { return ip.killed }

// valueOf resolves a register or constant to its lanes.
func (ip *Interpreter) valueOf(id ir.ID) (value, error) {
	if v, ok := ip.regs[id]; ok {
		return v, nil
	}
	if c, ok := ip.prog.Constants[id]; ok {
		return ip.constantValue(c)
	}
	if v, ok := ip.prog.Variables[id]; ok {
		return scalar(v.Address), nil
	}
	return nil, fmt.Errorf("register %d has no value", id)
}

func (ip *Interpreter) constantValue(c *ir.Constant) (value, error) {
	switch v := c.Value.(type) {
	case ir.ScalarValue:
		return scalar(v.Bits), nil
	case ir.CompositeValue:
		var out value
		for _, elem := range v.Elements {
			sub, err := ip.constantValue(ip.prog.Constants[elem])
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("constant has no value")
	}
}

// Run executes the program's entry function.
func (ip *Interpreter) Run() error {
	_, err := ip.call(ip.prog.MainFunction, nil)
	return err
}

// call executes one function with the given argument values and returns
// its result, nil for void.
func (ip *Interpreter) call(fnID ir.ID, args []value) (value, error) {
	fn, ok := ip.prog.Functions[fnID]
	if !ok {
		return nil, fmt.Errorf("call of unknown function %d", fnID)
	}
	if len(args) != len(fn.Parameters) {
		return nil, fmt.Errorf("function %d called with %d of %d arguments", fnID, len(args), len(fn.Parameters))
	}
	for i, paramID := range fn.Parameters {
		ip.regs[paramID] = args[i]
	}

	blockID := fn.LabelID
	prevBlock := ir.NoBlockID
	for {
		block := ip.prog.Blocks[blockID]
		next, result, done, err := ip.runBlock(block, prevBlock)
		if err != nil || done {
			return result, err
		}
		prevBlock = blockID
		blockID = next
	}
}

// runBlock executes one block and reports where control goes next.
//
//nolint:gocyclo,cyclop,funlen // one case per instruction shape
func (ip *Interpreter) runBlock(block *ir.Block, prevBlock ir.ID) (next ir.ID, result value, done bool, err error) {
	list := block.Instructions
	for node := list.HeadNode(); node != ir.NoNode; node = list.Next(node) {
		switch i := list.At(node).(type) {
		case *ir.Phi:
			for _, pair := range i.Pairs {
				if pair.Pred == prevBlock {
					v, err := ip.valueOf(pair.Value)
					if err != nil {
						return 0, nil, false, err
					}
					ip.regs[i.Result] = v
					break
				}
			}

		case *ir.UnOp:
			if err := ip.stepUnOp(i); err != nil {
				return 0, nil, false, err
			}

		case *ir.BinOp:
			if err := ip.stepBinOp(i); err != nil {
				return 0, nil, false, err
			}

		case *ir.TerOp:
			if err := ip.stepTerOp(i); err != nil {
				return 0, nil, false, err
			}

		case *ir.AddImm:
			x, err := ip.valueOf(i.X)
			if err != nil {
				return 0, nil, false, err
			}
			ip.regs[i.Result] = scalar(uint32(int32(x[0]) + i.Imm))

		case *ir.Load:
			addr, err := ip.pointerAddress(i.Pointer)
			if err != nil {
				return 0, nil, false, err
			}
			n := int(ip.prog.SizeOf(i.Type)+3) / 4
			ip.regs[i.Result] = ip.ReadMemory(addr+i.Offset, n)

		case *ir.Store:
			addr, err := ip.pointerAddress(i.Pointer)
			if err != nil {
				return 0, nil, false, err
			}
			v, err := ip.valueOf(i.Value)
			if err != nil {
				return 0, nil, false, err
			}
			ip.WriteMemory(addr+i.Offset, v)

		case *ir.AccessChain:
			addr, err := ip.chainAddress(i)
			if err != nil {
				return 0, nil, false, err
			}
			ip.regs[i.Result] = scalar(addr)

		case *ir.CompositeConstruct:
			var out value
			for _, cID := range i.Constituents {
				v, err := ip.valueOf(cID)
				if err != nil {
					return 0, nil, false, err
				}
				out = append(out, v...)
			}
			ip.regs[i.Result] = out

		case *ir.CompositeExtract:
			v, err := ip.extract(i)
			if err != nil {
				return 0, nil, false, err
			}
			ip.regs[i.Result] = v

		case *ir.VectorShuffle:
			v1, err := ip.valueOf(i.V1)
			if err != nil {
				return 0, nil, false, err
			}
			v2, err := ip.valueOf(i.V2)
			if err != nil {
				return 0, nil, false, err
			}
			var out value
			for _, comp := range i.Components {
				if int(comp) < len(v1) {
					out = append(out, v1[comp])
				} else {
					out = append(out, v2[int(comp)-len(v1)])
				}
			}
			ip.regs[i.Result] = out

		case *ir.VectorTimesScalar:
			v, err := ip.valueOf(i.Vector)
			if err != nil {
				return 0, nil, false, err
			}
			s, err := ip.valueOf(i.Scalar)
			if err != nil {
				return 0, nil, false, err
			}
			out := make(value, len(v))
			for lane := range v {
				out[lane] = fromFloat(toFloat(v[lane]) * toFloat(s[0]))
			}
			ip.regs[i.Result] = out

		case *ir.MatrixTimesVector:
			if err := ip.stepMatrixTimesVector(i); err != nil {
				return 0, nil, false, err
			}

		case *ir.ExtInst:
			if err := ip.stepExtInst(i); err != nil {
				return 0, nil, false, err
			}

		case *ir.FunctionCall:
			args := make([]value, len(i.Args))
			for j, argID := range i.Args {
				v, err := ip.valueOf(argID)
				if err != nil {
					return 0, nil, false, err
				}
				args[j] = v
			}
			v, err := ip.call(i.Function, args)
			if err != nil {
				return 0, nil, false, err
			}
			if v != nil {
				ip.regs[i.Result] = v
			}
			if ip.killed {
				return 0, nil, true, nil
			}

		case *ir.Branch:
			return i.Target, nil, false, nil

		case *ir.BranchConditional:
			cond, err := ip.valueOf(i.Cond)
			if err != nil {
				return 0, nil, false, err
			}
			if cond[0] != 0 {
				return i.True, nil, false, nil
			}
			return i.False, nil, false, nil

		case *ir.Return:
			return 0, nil, true, nil

		case *ir.ReturnValue:
			v, err := ip.valueOf(i.Value)
			if err != nil {
				return 0, nil, false, err
			}
			return 0, v, true, nil

		case *ir.Kill:
			ip.killed = true
			return 0, nil, true, nil

		case *ir.Unreachable:
			return 0, nil, false, fmt.Errorf("reached unreachable in block %d", block.LabelID)

		default:
			return 0, nil, false, fmt.Errorf("cannot interpret %s", list.At(node).Opcode())
		}
	}
	return 0, nil, false, fmt.Errorf("block %d fell off its end", block.LabelID)
}

// pointerAddress resolves a pointer-valued ID to a byte address.
func (ip *Interpreter) pointerAddress(id ir.ID) (uint32, error) {
	if v, ok := ip.prog.Variables[id]; ok {
		return v.Address, nil
	}
	v, err := ip.valueOf(id)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// chainAddress walks an access chain, supporting dynamic indexes.
func (ip *Interpreter) chainAddress(ac *ir.AccessChain) (uint32, error) {
	addr, err := ip.pointerAddress(ac.Base)
	if err != nil {
		return 0, err
	}
	cur := ir.NoID
	if v, ok := ip.prog.Variables[ac.Base]; ok {
		cur = v.Type
	} else if ptrType, ok := ip.prog.Types[ip.prog.TypeOf(ac.Base)].Inner.(ir.Pointer); ok {
		cur = ptrType.Pointee
	}
	for _, idxID := range ac.Indexes {
		idx, err := ip.valueOf(idxID)
		if err != nil {
			return 0, err
		}
		sub, offset, err := ip.prog.ConstituentInfo(cur, int(int32(idx[0])))
		if err != nil {
			return 0, err
		}
		addr += offset
		cur = sub
	}
	return addr, nil
}

// extract resolves a composite-extract's literal index path.
func (ip *Interpreter) extract(i *ir.CompositeExtract) (value, error) {
	v, err := ip.valueOf(i.Composite)
	if err != nil {
		return nil, err
	}
	cur := ip.prog.TypeOf(i.Composite)
	var offset uint32
	for _, idx := range i.Indexes {
		sub, off, err := ip.prog.ConstituentInfo(cur, int(idx))
		if err != nil {
			return nil, err
		}
		offset += off
		cur = sub
	}
	lanes := int(ip.prog.LaneCount(cur))
	base := int(offset / 4)
	if base+lanes > len(v) {
		return nil, fmt.Errorf("extract past the end of r%d", i.Composite)
	}
	return v[base : base+lanes], nil
}
