// Package riscv lowers a transformed IR program to scalar RISC-V-like
// assembly for the soft GPU core.
//
// The backend runs after the IR transforms: it folds small constant
// adds into add-immediates, computes liveness, assigns physical
// registers by walking the dominator tree, and emits the text listing.
package riscv

import (
	"fmt"

	"github.com/softgpu/fragc/ir"
	"github.com/softgpu/fragc/spirv"
)

// Physical register file: 32 integer registers (x0 is wired to zero,
// x1 is the return address, x2 the stack pointer) and 32 float
// registers addressed as IDs 32 through 63.
const (
	firstIntReg  = 3
	numIntRegs   = 32
	floatRegBase = 32
	numFloatRegs = 32
)

// Register is the allocator's record for one virtual register: its
// type, its lane count, and the physical registers pinned to its lanes.
type Register struct {
	Type  ir.ID
	Count int
	Phy   []uint32
}

// AllocationError reports physical register exhaustion.
type AllocationError struct {
	Reg  ir.ID
	Lane int
	PC   int
}

// Error implements the error interface.
func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation failure: no physical register for %d[%d] at pc %d", e.Reg, e.Lane, e.PC)
}

// phyName renders a physical register: x0..x31 then f0..f31.
func phyName(phy uint32) string {
	if phy < floatRegBase {
		return fmt.Sprintf("x%d", phy)
	}
	return fmt.Sprintf("f%d", phy-floatRegBase)
}

// intBinOps maps integer binary opcodes straight to mnemonics.
var intBinOps = map[ir.Op]string{
	spirv.OpIAdd:                "add",
	spirv.OpISub:                "sub",
	spirv.OpIMul:                "mul",
	spirv.OpSDiv:                "div",
	spirv.OpUDiv:                "divu",
	spirv.OpSRem:                "rem",
	spirv.OpSMod:                "rem",
	spirv.OpUMod:                "remu",
	spirv.OpBitwiseAnd:          "and",
	spirv.OpBitwiseOr:           "or",
	spirv.OpBitwiseXor:          "xor",
	spirv.OpLogicalAnd:          "and",
	spirv.OpLogicalOr:           "or",
	spirv.OpShiftLeftLogical:    "sll",
	spirv.OpShiftRightLogical:   "srl",
	spirv.OpShiftRightArithmetic: "sra",
}

// floatBinOps maps float arithmetic opcodes to mnemonics.
var floatBinOps = map[ir.Op]string{
	spirv.OpFAdd: "fadd.s",
	spirv.OpFSub: "fsub.s",
	spirv.OpFMul: "fmul.s",
	spirv.OpFDiv: "fdiv.s",
}

// compareOps describes comparison lowerings: the base mnemonic, whether
// the operands swap, and whether the result is inverted with a
// trailing seqz.
type compareLowering struct {
	mnemonic string
	swap     bool
	invert   bool
}

var compareOps = map[ir.Op]compareLowering{
	spirv.OpSLessThan:            {"slt", false, false},
	spirv.OpSGreaterThan:         {"slt", true, false},
	spirv.OpSLessThanEqual:       {"slt", true, true},
	spirv.OpSGreaterThanEqual:    {"slt", false, true},
	spirv.OpULessThan:            {"sltu", false, false},
	spirv.OpUGreaterThan:         {"sltu", true, false},
	spirv.OpULessThanEqual:       {"sltu", true, true},
	spirv.OpUGreaterThanEqual:    {"sltu", false, true},
	spirv.OpFOrdLessThan:         {"flt.s", false, false},
	spirv.OpFOrdGreaterThan:      {"flt.s", true, false},
	spirv.OpFOrdLessThanEqual:    {"fle.s", false, false},
	spirv.OpFOrdGreaterThanEqual: {"fle.s", true, false},
	spirv.OpFOrdEqual:            {"feq.s", false, false},
	spirv.OpFOrdNotEqual:         {"feq.s", false, true},
}

// nativeExt are GLSL.std.450 instructions with single-instruction
// lowerings; everything else calls a library routine.
var nativeExt = map[spirv.GLSLstd450]string{
	spirv.GLSLstd450Sqrt: "fsqrt.s",
	spirv.GLSLstd450FMin: "fmin.s",
	spirv.GLSLstd450FMax: "fmax.s",
	spirv.GLSLstd450FAbs: "fabs.s",
}

// extRoutines names the library routines for the remaining extended
// instructions; the library text appended after emission provides them.
var extRoutines = map[spirv.GLSLstd450]string{
	spirv.GLSLstd450Round:       "round",
	spirv.GLSLstd450Trunc:       "trunc",
	spirv.GLSLstd450FSign:       "sign",
	spirv.GLSLstd450Floor:       "floor",
	spirv.GLSLstd450Ceil:        "ceil",
	spirv.GLSLstd450Fract:       "fract",
	spirv.GLSLstd450Radians:     "radians",
	spirv.GLSLstd450Degrees:     "degrees",
	spirv.GLSLstd450Sin:         "sin",
	spirv.GLSLstd450Cos:         "cos",
	spirv.GLSLstd450Tan:         "tan",
	spirv.GLSLstd450Asin:        "asin",
	spirv.GLSLstd450Acos:        "acos",
	spirv.GLSLstd450Atan:        "atan",
	spirv.GLSLstd450Atan2:       "atan2",
	spirv.GLSLstd450Pow:         "pow",
	spirv.GLSLstd450Exp:         "exp",
	spirv.GLSLstd450Log:         "log",
	spirv.GLSLstd450Exp2:        "exp2",
	spirv.GLSLstd450Log2:        "log2",
	spirv.GLSLstd450InverseSqrt: "inversesqrt",
	spirv.GLSLstd450FClamp:      "clamp",
	spirv.GLSLstd450FMix:        "mix",
	spirv.GLSLstd450Step:        "step",
	spirv.GLSLstd450SmoothStep:  "smoothstep",
}

// unOpMnemonics maps unary opcodes to mnemonics.
var unOpMnemonics = map[ir.Op]string{
	spirv.OpSNegate:     "neg",
	spirv.OpFNegate:     "fneg.s",
	spirv.OpConvertSToF: "fcvt.s.w",
	spirv.OpConvertUToF: "fcvt.s.wu",
	spirv.OpConvertFToS: "fcvt.w.s",
	spirv.OpConvertFToU: "fcvt.wu.s",
	spirv.OpCopyObject:  "mov",
	spirv.OpBitcast:     "mov",
	spirv.OpLogicalNot:  "seqz",
	spirv.OpNot:         "not",
	spirv.OpAny:         "mov",
	spirv.OpAll:         "mov",
}
