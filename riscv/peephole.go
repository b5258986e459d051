package riscv

import (
	"github.com/softgpu/fragc/ir"
	"github.com/softgpu/fragc/spirv"
)

// immFits12 reports whether the value sign-extends from 12 bits, the
// immediate width of addi.
func immFits12(v int32) bool {
	return v >= -2048 && v <= 2047
}

// integerConstant returns the constant's value when the ID names an
// integer constant.
func integerConstant(p *ir.Program, id ir.ID) (int32, bool) {
	c, ok := p.Constants[id]
	if !ok {
		return 0, false
	}
	if _, isInt := p.Types[c.Type].Inner.(ir.Int); !isInt {
		return 0, false
	}
	sv, ok := c.Scalar()
	if !ok {
		return 0, false
	}
	return int32(sv.Bits), true
}

// Peephole folds integer adds with a small constant operand into
// add-immediates, normalizing the immediate into the second position.
// The pass runs before liveness so the folded constant stops being a
// register use, and it is idempotent.
func Peephole(p *ir.Program) {
	for _, fnID := range p.SortedFunctionIDs() {
		fn := p.Functions[fnID]
		for _, labelID := range fn.BlockOrder {
			peepholeBlock(p, p.Blocks[labelID])
		}
	}
}

func peepholeBlock(p *ir.Program, block *ir.Block) {
	list := block.Instructions
	node := list.HeadNode()
	for node != ir.NoNode {
		next := list.Next(node)
		if add, ok := list.At(node).(*ir.BinOp); ok && add.Op == spirv.OpIAdd {
			if imm, ok := integerConstant(p, add.X); ok && immFits12(imm) {
				list.InsertBefore(ir.NewAddImm(add.Line, add.Type, add.Result, add.Y, imm), node)
				list.Remove(node)
			} else if imm, ok := integerConstant(p, add.Y); ok && immFits12(imm) {
				list.InsertBefore(ir.NewAddImm(add.Line, add.Type, add.Result, add.X, imm), node)
				list.Remove(node)
			}
		}
		node = next
	}
}
