package interp

import (
	"testing"

	"github.com/softgpu/fragc/ir"
	"github.com/softgpu/fragc/spirv"
)

const (
	xExtSet  = 1
	xMain    = 2
	xVoid    = 3
	xFnVoid  = 4
	xFloat   = 5
	xVec4    = 6
	xInt     = 7
	xBool    = 8
	xVec2    = 9
	xEntryBB = 40
	xPtrIn   = 10
	xPtrOut  = 11
	xInVar   = 12
	xOutVar  = 13
)

func preamble(b *spirv.ModuleBuilder, iface ...uint32) {
	b.Op(spirv.OpCapability, uint32(spirv.CapabilityShader))
	b.OpStr(spirv.OpExtInstImport, spirv.GLSLstd450Name, []uint32{xExtSet})
	b.Op(spirv.OpMemoryModel, 0, 1)
	b.OpStr(spirv.OpEntryPoint, "main", []uint32{uint32(spirv.ExecutionModelFragment), xMain}, iface...)
}

func types(b *spirv.ModuleBuilder) {
	b.Op(spirv.OpTypeVoid, xVoid)
	b.Op(spirv.OpTypeFunction, xFnVoid, xVoid)
	b.Op(spirv.OpTypeFloat, xFloat, 32)
	b.Op(spirv.OpTypeInt, xInt, 32, 1)
	b.Op(spirv.OpTypeBool, xBool)
	b.Op(spirv.OpTypeVector, xVec4, xFloat, 4)
	b.Op(spirv.OpTypeVector, xVec2, xFloat, 2)
}

func parse(t *testing.T, build func(b *spirv.ModuleBuilder)) *ir.Program {
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
	return prog
}

func TestEvaluateConstantColor(t *testing.T) {
	const (
		zeroC, oneC, vecC = 20, 21, 22
	)
	prog := parse(t, func(b *spirv.ModuleBuilder) {
		preamble(b, xOutVar)
		b.OpStr(spirv.OpName, "fragColor", []uint32{xOutVar})
		types(b)
		b.Op(spirv.OpTypePointer, xPtrOut, uint32(spirv.StorageClassOutput), xVec4)
		b.Op(spirv.OpConstant, xFloat, zeroC, 0x00000000)
		b.Op(spirv.OpConstant, xFloat, oneC, 0x3f800000)
		b.Op(spirv.OpConstantComposite, xVec4, vecC, zeroC, oneC, zeroC, oneC)
		b.Op(spirv.OpVariable, xPtrOut, xOutVar, uint32(spirv.StorageClassOutput))
		b.Op(spirv.OpFunction, xVoid, xMain, 0, xFnVoid)
		b.Op(spirv.OpLabel, xEntryBB)
		b.Op(spirv.OpStore, xOutVar, vecC)
		b.Op(spirv.OpReturn)
		b.Op(spirv.OpFunctionEnd)
	})

	color, killed, err := Evaluate(prog, 0, 0, 256, 256)
	if err != nil {
		t.Fatalf("Evaluate() = %v", err)
	}
	if killed {
		t.Fatalf("fragment unexpectedly discarded")
	}
	want := Color{0, 1, 0, 1}
	if color != want {
		t.Errorf("color = %v, want %v", color, want)
	}
}

func TestEvaluateUV(t *testing.T) {
	// fragColor.x = gl_FragCoord.x / iResolution.x at pixel (127, 0) of
	// a 256-wide image: (127 + 0.5) / 256.
	const (
		resVar                 = 14
		ptrInF, ptrUniV, ptrUF = 15, 16, 17
		idx0                   = 20
		acX, loadX, acR, loadR = 50, 51, 52, 53
		divX                   = 54
	)
	prog := parse(t, func(b *spirv.ModuleBuilder) {
		preamble(b, xInVar, xOutVar)
		b.OpStr(spirv.OpName, "gl_FragCoord", []uint32{xInVar})
		b.OpStr(spirv.OpName, "iResolution", []uint32{resVar})
		b.OpStr(spirv.OpName, "fragColor", []uint32{xOutVar})
		b.Op(spirv.OpDecorate, xInVar, uint32(spirv.DecorationBuiltIn), uint32(spirv.BuiltInFragCoord))
		types(b)
		b.Op(spirv.OpTypePointer, xPtrIn, uint32(spirv.StorageClassInput), xVec4)
		b.Op(spirv.OpTypePointer, ptrInF, uint32(spirv.StorageClassInput), xFloat)
		b.Op(spirv.OpTypePointer, ptrUniV, uint32(spirv.StorageClassUniform), xVec2)
		b.Op(spirv.OpTypePointer, ptrUF, uint32(spirv.StorageClassUniform), xFloat)
		b.Op(spirv.OpTypePointer, xPtrOut, uint32(spirv.StorageClassOutput), xFloat)
		b.Op(spirv.OpConstant, xInt, idx0, 0)
		b.Op(spirv.OpVariable, xPtrIn, xInVar, uint32(spirv.StorageClassInput))
		b.Op(spirv.OpVariable, ptrUniV, resVar, uint32(spirv.StorageClassUniform))
		b.Op(spirv.OpVariable, xPtrOut, xOutVar, uint32(spirv.StorageClassOutput))
		b.Op(spirv.OpFunction, xVoid, xMain, 0, xFnVoid)
		b.Op(spirv.OpLabel, xEntryBB)
		b.Op(spirv.OpAccessChain, ptrInF, acX, xInVar, idx0)
		b.Op(spirv.OpLoad, xFloat, loadX, acX)
		b.Op(spirv.OpAccessChain, ptrUF, acR, resVar, idx0)
		b.Op(spirv.OpLoad, xFloat, loadR, acR)
		b.Op(spirv.OpFDiv, xFloat, divX, loadX, loadR)
		b.Op(spirv.OpStore, xOutVar, divX)
		b.Op(spirv.OpReturn)
		b.Op(spirv.OpFunctionEnd)
	})

	color, _, err := Evaluate(prog, 127, 0, 256, 256)
	if err != nil {
		t.Fatalf("Evaluate() = %v", err)
	}
	want := float32(127.5) / 256
	if color[0] != want {
		t.Errorf("color.x = %g, want %g", color[0], want)
	}
}

func TestEvaluateIfElsePhi(t *testing.T) {
	const (
		thenBB, elseBB, mergeBB = 41, 42, 43
		oneC, twoC              = 20, 21
		phiID                   = 50
	)
	for _, cond := range []bool{true, false} {
		condOp := spirv.OpConstantFalse
		want := float32(2)
		if cond {
			condOp = spirv.OpConstantTrue
			want = 1
		}
		prog := parse(t, func(b *spirv.ModuleBuilder) {
			preamble(b, xOutVar)
			b.OpStr(spirv.OpName, "fragColor", []uint32{xOutVar})
			types(b)
			b.Op(spirv.OpTypePointer, xPtrOut, uint32(spirv.StorageClassOutput), xFloat)
			b.Op(condOp, xBool, 22)
			b.Op(spirv.OpConstant, xFloat, oneC, 0x3f800000)
			b.Op(spirv.OpConstant, xFloat, twoC, 0x40000000)
			b.Op(spirv.OpVariable, xPtrOut, xOutVar, uint32(spirv.StorageClassOutput))
			b.Op(spirv.OpFunction, xVoid, xMain, 0, xFnVoid)
			b.Op(spirv.OpLabel, xEntryBB)
			b.Op(spirv.OpBranchConditional, 22, thenBB, elseBB)
			b.Op(spirv.OpLabel, thenBB)
			b.Op(spirv.OpBranch, mergeBB)
			b.Op(spirv.OpLabel, elseBB)
			b.Op(spirv.OpBranch, mergeBB)
			b.Op(spirv.OpLabel, mergeBB)
			b.Op(spirv.OpPhi, xFloat, phiID, oneC, thenBB, twoC, elseBB)
			b.Op(spirv.OpStore, xOutVar, phiID)
			b.Op(spirv.OpReturn)
			b.Op(spirv.OpFunctionEnd)
		})

		color, _, err := Evaluate(prog, 0, 0, 1, 1)
		if err != nil {
			t.Fatalf("cond=%v: Evaluate() = %v", cond, err)
		}
		if color[0] != want {
			t.Errorf("cond=%v: color.x = %g, want %g", cond, color[0], want)
		}
	}
}

func TestEvaluateKillDiscards(t *testing.T) {
	prog := parse(t, func(b *spirv.ModuleBuilder) {
		preamble(b, xOutVar)
		b.OpStr(spirv.OpName, "fragColor", []uint32{xOutVar})
		types(b)
		b.Op(spirv.OpTypePointer, xPtrOut, uint32(spirv.StorageClassOutput), xVec4)
		b.Op(spirv.OpVariable, xPtrOut, xOutVar, uint32(spirv.StorageClassOutput))
		b.Op(spirv.OpFunction, xVoid, xMain, 0, xFnVoid)
		b.Op(spirv.OpLabel, xEntryBB)
		b.Op(spirv.OpKill)
		b.Op(spirv.OpFunctionEnd)
	})

	_, killed, err := Evaluate(prog, 0, 0, 1, 1)
	if err != nil {
		t.Fatalf("Evaluate() = %v", err)
	}
	if !killed {
		t.Errorf("kill did not discard the fragment")
	}
}

func TestEvaluateArithmetic(t *testing.T) {
	// fragColor.x = (3.0 - 1.0) * 4.0 + sqrt(4.0)
	const (
		oneC, threeC, fourC          = 20, 21, 22
		subID, mulID, sqrtID, addID  = 50, 51, 52, 53
	)
	prog := parse(t, func(b *spirv.ModuleBuilder) {
		preamble(b, xOutVar)
		b.OpStr(spirv.OpName, "fragColor", []uint32{xOutVar})
		types(b)
		b.Op(spirv.OpTypePointer, xPtrOut, uint32(spirv.StorageClassOutput), xFloat)
		b.Op(spirv.OpConstant, xFloat, oneC, 0x3f800000)
		b.Op(spirv.OpConstant, xFloat, threeC, 0x40400000)
		b.Op(spirv.OpConstant, xFloat, fourC, 0x40800000)
		b.Op(spirv.OpVariable, xPtrOut, xOutVar, uint32(spirv.StorageClassOutput))
		b.Op(spirv.OpFunction, xVoid, xMain, 0, xFnVoid)
		b.Op(spirv.OpLabel, xEntryBB)
		b.Op(spirv.OpFSub, xFloat, subID, threeC, oneC)
		b.Op(spirv.OpFMul, xFloat, mulID, subID, fourC)
		b.Op(spirv.OpExtInst, xFloat, sqrtID, xExtSet, uint32(spirv.GLSLstd450Sqrt), fourC)
		b.Op(spirv.OpFAdd, xFloat, addID, mulID, sqrtID)
		b.Op(spirv.OpStore, xOutVar, addID)
		b.Op(spirv.OpReturn)
		b.Op(spirv.OpFunctionEnd)
	})

	color, _, err := Evaluate(prog, 0, 0, 1, 1)
	if err != nil {
		t.Fatalf("Evaluate() = %v", err)
	}
	if color[0] != 10 {
		t.Errorf("color.x = %g, want 10", color[0])
	}
}
