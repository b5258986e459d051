package ir

import (
	"errors"
	"testing"

	"github.com/softgpu/fragc/spirv"
)

func TestBuildMinimalShader(t *testing.T) {
	prog := parseModule(t, func(b *spirv.ModuleBuilder) {
		preamble(b)
		scalarTypes(b)
		beginMain(b)
		endMain(b)
	})

	if prog.MainFunction != tMain {
		t.Errorf("MainFunction = %d, want %d", prog.MainFunction, tMain)
	}
	fn := prog.Functions[tMain]
	if fn == nil || fn.LabelID != tEntryBB {
		t.Fatalf("entry function or entry block missing")
	}
	block := prog.Blocks[tEntryBB]
	if block.Instructions.Len() != 1 {
		t.Errorf("entry block has %d instructions, want just the return", block.Instructions.Len())
	}
	if _, ok := block.Instructions.Head().(*Return); !ok {
		t.Errorf("entry block does not end with a return")
	}
}

func TestBuildRejectsVertexEntryPoint(t *testing.T) {
	b := spirv.NewModuleBuilder(100)
	b.Op(spirv.OpCapability, uint32(spirv.CapabilityShader))
	b.OpStr(spirv.OpEntryPoint, "main", []uint32{uint32(spirv.ExecutionModelVertex), tMain})

	prog := NewProgram(Options{})
	err := spirv.Parse(b.Bytes(), NewBuilder(prog))
	var irErr *Error
	if !errors.As(err, &irErr) || irErr.Kind != UnsupportedFeature {
		t.Fatalf("vertex entry point: got %v, want an unsupported-feature error", err)
	}
}

func TestBuildRejectsMissingEntryPoint(t *testing.T) {
	b := spirv.NewModuleBuilder(100)
	b.Op(spirv.OpCapability, uint32(spirv.CapabilityShader))
	b.Op(spirv.OpTypeVoid, tVoid)
	b.Op(spirv.OpTypeFunction, tFnVoid, tVoid)
	b.Op(spirv.OpFunction, tVoid, tMain, 0, tFnVoid)
	b.Op(spirv.OpLabel, tEntryBB)
	b.Op(spirv.OpReturn)
	b.Op(spirv.OpFunctionEnd)

	prog := NewProgram(Options{})
	if err := spirv.Parse(b.Bytes(), NewBuilder(prog)); err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	err := prog.PostParse()
	var irErr *Error
	if !errors.As(err, &irErr) || irErr.Kind != UnsupportedFeature {
		t.Fatalf("missing entry point: got %v, want an unsupported-feature error", err)
	}
}

func TestBuildRejectsUnknownExtInstSet(t *testing.T) {
	b := spirv.NewModuleBuilder(100)
	b.Op(spirv.OpCapability, uint32(spirv.CapabilityShader))
	b.OpStr(spirv.OpExtInstImport, "OpenCL.std", []uint32{tExtSet})

	prog := NewProgram(Options{})
	err := spirv.Parse(b.Bytes(), NewBuilder(prog))
	var irErr *Error
	if !errors.As(err, &irErr) || irErr.Kind != UnsupportedFeature {
		t.Fatalf("OpenCL.std import: got %v, want an unsupported-feature error", err)
	}
}

func TestBuildVariablesAndConstants(t *testing.T) {
	const (
		ptrOut   = 10
		outVar   = 11
		constOne = 20
	)
	prog := parseModule(t, func(b *spirv.ModuleBuilder) {
		preamble(b, outVar)
		b.OpStr(spirv.OpName, "color", []uint32{outVar})
		scalarTypes(b)
		vectorTypes(b)
		b.Op(spirv.OpTypePointer, ptrOut, uint32(spirv.StorageClassOutput), tVec4)
		b.Op(spirv.OpConstant, tFloat, constOne, float32bits(1))
		b.Op(spirv.OpVariable, ptrOut, outVar, uint32(spirv.StorageClassOutput))
		beginMain(b)
		endMain(b)
	})

	v := prog.Variables[outVar]
	if v == nil {
		t.Fatalf("output variable not recorded")
	}
	if v.Type != tVec4 || v.Class != spirv.StorageClassOutput {
		t.Errorf("variable = %+v", v)
	}
	if v.Address != OutputBase {
		t.Errorf("first output variable at %#x, want %#x", v.Address, OutputBase)
	}
	if info, ok := prog.NamedVariables["color"]; !ok || info.Size != 16 {
		t.Errorf("named variable info = %+v, %v", info, ok)
	}

	c := prog.Constants[constOne]
	if c == nil {
		t.Fatalf("constant not recorded")
	}
	sv, ok := c.Scalar()
	if !ok || sv.Kind != ScalarFloat || sv.Bits != float32bits(1) {
		t.Errorf("constant = %+v", c.Value)
	}
}

func TestBuildUnimplementedOpcode(t *testing.T) {
	build := func(b *spirv.ModuleBuilder) {
		preamble(b)
		scalarTypes(b)
		beginMain(b)
		b.Op(spirv.Opcode(400), 1, 2) // not an opcode we lower
		endMain(b)
	}

	// Lenient mode downgrades to a placeholder.
	prog := parseModule(t, build)
	if !prog.HasUnimplemented {
		t.Errorf("placeholder not recorded")
	}

	// Strict mode fails.
	b := spirv.NewModuleBuilder(100)
	build(b)
	strict := NewProgram(Options{ThrowOnUnimplemented: true})
	err := spirv.Parse(b.Bytes(), NewBuilder(strict))
	var irErr *Error
	if !errors.As(err, &irErr) || irErr.Kind != UnimplementedOpcode {
		t.Fatalf("strict mode: got %v, want an unimplemented-opcode error", err)
	}
}
