package ir

import (
	"math"
	"testing"

	"github.com/softgpu/fragc/spirv"
)

// Common IDs used by the test modules.
const (
	tExtSet  = 1
	tMain    = 2
	tVoid    = 3
	tFnVoid  = 4
	tFloat   = 5
	tVec4    = 6
	tInt     = 7
	tBool    = 8
	tVec2    = 9
	tEntryBB = 40
)

// preamble emits the module scaffolding every fragment shader needs.
func preamble(b *spirv.ModuleBuilder, iface ...uint32) {
	b.Op(spirv.OpCapability, uint32(spirv.CapabilityShader))
	b.OpStr(spirv.OpExtInstImport, spirv.GLSLstd450Name, []uint32{tExtSet})
	b.Op(spirv.OpMemoryModel, 0, 1)
	b.OpStr(spirv.OpEntryPoint, "main", []uint32{uint32(spirv.ExecutionModelFragment), tMain}, iface...)
}

// scalarTypes declares void, the void function type, float, int, and
// bool.
func scalarTypes(b *spirv.ModuleBuilder) {
	b.Op(spirv.OpTypeVoid, tVoid)
	b.Op(spirv.OpTypeFunction, tFnVoid, tVoid)
	b.Op(spirv.OpTypeFloat, tFloat, 32)
	b.Op(spirv.OpTypeInt, tInt, 32, 1)
	b.Op(spirv.OpTypeBool, tBool)
}

// vectorTypes declares vec4 and vec2 of float.
func vectorTypes(b *spirv.ModuleBuilder) {
	b.Op(spirv.OpTypeVector, tVec4, tFloat, 4)
	b.Op(spirv.OpTypeVector, tVec2, tFloat, 2)
}

// beginMain opens the entry function with its first block.
func beginMain(b *spirv.ModuleBuilder) {
	b.Op(spirv.OpFunction, tVoid, tMain, 0, tFnVoid)
	b.Op(spirv.OpLabel, tEntryBB)
}

// endMain terminates the current block with a return and closes the
// function.
func endMain(b *spirv.ModuleBuilder) {
	b.Op(spirv.OpReturn)
	b.Op(spirv.OpFunctionEnd)
}

// parseModule builds a module and parses it into a program.
func parseModule(t *testing.T, build func(b *spirv.ModuleBuilder)) *Program {
	t.Helper()
	b := spirv.NewModuleBuilder(100)
	build(b)
	prog := NewProgram(Options{})
	if err := spirv.Parse(b.Bytes(), NewBuilder(prog)); err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if err := prog.PostParse(); err != nil {
		t.Fatalf("PostParse() = %v", err)
	}
	return prog
}

// transform runs the pre-backend passes.
func transform(t *testing.T, prog *Program) {
	t.Helper()
	if err := ComputeCFG(prog); err != nil {
		t.Fatalf("ComputeCFG() = %v", err)
	}
	if err := RewritePhis(prog); err != nil {
		t.Fatalf("RewritePhis() = %v", err)
	}
	if err := ExpandVectors(prog); err != nil {
		t.Fatalf("ExpandVectors() = %v", err)
	}
	if err := Validate(prog); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

// float32bits spells a float constant operand.
func float32bits(f float32) uint32 {
	return math.Float32bits(f)
}
