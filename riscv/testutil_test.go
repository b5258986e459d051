package riscv

import (
	"testing"

	"github.com/softgpu/fragc/ir"
	"github.com/softgpu/fragc/spirv"
)

// Common IDs used by the backend test shaders.
const (
	sExtSet   = 1
	sMain     = 2
	sVoid     = 3
	sFnVoid   = 4
	sFloat    = 5
	sVec4     = 6
	sInt      = 7
	sBool     = 8
	sVec2     = 9
	sEntryBB  = 40
)

func modulePreamble(b *spirv.ModuleBuilder, iface ...uint32) {
	b.Op(spirv.OpCapability, uint32(spirv.CapabilityShader))
	b.OpStr(spirv.OpExtInstImport, spirv.GLSLstd450Name, []uint32{sExtSet})
	b.Op(spirv.OpMemoryModel, 0, 1)
	b.OpStr(spirv.OpEntryPoint, "main", []uint32{uint32(spirv.ExecutionModelFragment), sMain}, iface...)
}

func moduleTypes(b *spirv.ModuleBuilder) {
	b.Op(spirv.OpTypeVoid, sVoid)
	b.Op(spirv.OpTypeFunction, sFnVoid, sVoid)
	b.Op(spirv.OpTypeFloat, sFloat, 32)
	b.Op(spirv.OpTypeInt, sInt, 32, 1)
	b.Op(spirv.OpTypeBool, sBool)
	b.Op(spirv.OpTypeVector, sVec4, sFloat, 4)
	b.Op(spirv.OpTypeVector, sVec2, sFloat, 2)
}

func beginMain(b *spirv.ModuleBuilder) {
	b.Op(spirv.OpFunction, sVoid, sMain, 0, sFnVoid)
	b.Op(spirv.OpLabel, sEntryBB)
}

func endMain(b *spirv.ModuleBuilder) {
	b.Op(spirv.OpReturn)
	b.Op(spirv.OpFunctionEnd)
}

// buildProgram parses and transforms a module ready for the backend.
func buildProgram(t *testing.T, build func(b *spirv.ModuleBuilder)) *ir.Program {
	t.Helper()
	b := spirv.NewModuleBuilder(100)
	build(b)
	prog := ir.NewProgram(ir.Options{})
	if err := spirv.Parse(b.Bytes(), ir.NewBuilder(prog)); err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if err := prog.PostParse(); err != nil {
		t.Fatalf("PostParse() = %v", err)
	}
	if err := ir.ComputeCFG(prog); err != nil {
		t.Fatalf("ComputeCFG() = %v", err)
	}
	if err := ir.RewritePhis(prog); err != nil {
		t.Fatalf("RewritePhis() = %v", err)
	}
	if err := ir.ExpandVectors(prog); err != nil {
		t.Fatalf("ExpandVectors() = %v", err)
	}
	return prog
}
