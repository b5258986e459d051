package riscv

import (
	"testing"

	"github.com/softgpu/fragc/ir"
	"github.com/softgpu/fragc/spirv"
)

// addProgram builds one block containing an integer add of x (result
// 50, loaded elsewhere) and the given constant.
func addProgram(constValue uint32, constFirst bool) (*ir.Program, *ir.Block) {
	p := ir.NewProgram(ir.Options{})
	p.Types[1] = ir.Type{Inner: ir.Int{Width: 32, Signed: true}, Size: 4}
	p.Constants[20] = &ir.Constant{Type: 1, Value: ir.ScalarValue{Bits: constValue, Kind: ir.ScalarInt}}
	p.ResultTypes[50] = 1
	p.ResultTypes[51] = 1

	fn := &ir.Function{ID: 2, LabelID: 40, BlockOrder: []ir.ID{40}}
	p.Functions[2] = fn
	block := &ir.Block{LabelID: 40, Function: fn, Pred: make(ir.IDSet), Succ: make(ir.IDSet), Dom: make(ir.IDSet), IDom: ir.NoBlockID}
	block.Instructions = ir.NewInstructionList(p.Arena, block)
	p.Blocks[40] = block

	x, y := ir.ID(50), ir.ID(20)
	if constFirst {
		x, y = 20, 50
	}
	block.Instructions.PushBack(ir.NewBinOp(ir.NoLineInfo, spirv.OpIAdd, 1, 51, x, y))
	block.Instructions.PushBack(ir.NewReturn(ir.NoLineInfo))
	return p, block
}

func TestPeepholeFoldsConstantAdd(t *testing.T) {
	tests := []struct {
		name       string
		constValue uint32
		constFirst bool
		wantFold   bool
	}{
		{"constant second", 5, false, true},
		{"constant first", 5, true, true},
		{"negative immediate", uint32(0xFFFFFFFF), false, true}, // -1
		{"largest immediate", 2047, false, true},
		{"too wide", 2048, false, false},
		{"too negative", uint32(0xFFFFF7FF), false, false}, // -2049
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, block := addProgram(tt.constValue, tt.constFirst)
			Peephole(p)

			head := block.Instructions.Head()
			addi, folded := head.(*ir.AddImm)
			if folded != tt.wantFold {
				t.Fatalf("folded = %v, want %v", folded, tt.wantFold)
			}
			if !folded {
				return
			}
			if addi.Result != 51 || addi.X != 50 {
				t.Errorf("fold kept wrong operands: result %d, x %d", addi.Result, addi.X)
			}
			if addi.Imm != int32(tt.constValue) {
				t.Errorf("immediate = %d, want %d", addi.Imm, int32(tt.constValue))
			}
			// The constant operand is gone from the register uses.
			if addi.Uses(20) {
				t.Errorf("folded constant still a register use")
			}
		})
	}
}

func TestPeepholeIdempotent(t *testing.T) {
	p, block := addProgram(5, false)
	Peephole(p)
	lenAfterFirst := block.Instructions.Len()
	Peephole(p)
	if got := block.Instructions.Len(); got != lenAfterFirst {
		t.Errorf("second peephole changed the block: %d -> %d instructions", lenAfterFirst, got)
	}
	if _, ok := block.Instructions.Head().(*ir.AddImm); !ok {
		t.Errorf("add-immediate lost on the second pass")
	}
}

func TestImmFits12(t *testing.T) {
	tests := []struct {
		v    int32
		want bool
	}{
		{0, true}, {2047, true}, {-2048, true}, {2048, false}, {-2049, false},
	}
	for _, tt := range tests {
		if got := immFits12(tt.v); got != tt.want {
			t.Errorf("immFits12(%d) = %v, want %v", tt.v, got, tt.want)
		}
	}
}
