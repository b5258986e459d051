package riscv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softgpu/fragc/ir"
	"github.com/softgpu/fragc/spirv"
)

func countLines(asm, substr string) int {
	n := 0
	for _, line := range strings.Split(asm, "\n") {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

func TestEmitEmptyShader(t *testing.T) {
	prog := buildProgram(t, func(b *spirv.ModuleBuilder) {
		modulePreamble(b)
		moduleTypes(b)
		beginMain(b)
		endMain(b)
	})
	asm, err := Compile(prog, Options{})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(asm, "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Contains(t, lines[0], "jal ra, main")
	assert.Contains(t, lines[1], "ebreak")
	assert.Contains(t, asm, "main:")
	assert.Contains(t, asm, "label40:")
	assert.Equal(t, 1, countLines(asm, "ret"))
	assert.NotContains(t, asm, ".word", "an empty shader has no storage to emit")
	assert.NotContains(t, asm, "Load constant")
}

func TestEmitConstantColor(t *testing.T) {
	// gl_FragColor = vec4(0.0, 1.0, 0.0, 1.0)
	const (
		ptrOut, outVar       = 10, 11
		zeroC, oneC, vecC    = 20, 21, 22
	)
	prog := buildProgram(t, func(b *spirv.ModuleBuilder) {
		modulePreamble(b, outVar)
		b.OpStr(spirv.OpName, "gl_FragColor", []uint32{outVar})
		moduleTypes(b)
		b.Op(spirv.OpTypePointer, ptrOut, uint32(spirv.StorageClassOutput), sVec4)
		b.Op(spirv.OpConstant, sFloat, zeroC, 0x00000000)
		b.Op(spirv.OpConstant, sFloat, oneC, 0x3f800000)
		b.Op(spirv.OpConstantComposite, sVec4, vecC, zeroC, oneC, zeroC, oneC)
		b.Op(spirv.OpVariable, ptrOut, outVar, uint32(spirv.StorageClassOutput))
		beginMain(b)
		b.Op(spirv.OpStore, outVar, vecC)
		endMain(b)
	})
	asm, err := Compile(prog, Options{})
	require.NoError(t, err)

	// Four lane stores at ascending offsets of the output variable.
	assert.Equal(t, 4, countLines(asm, "fsw"), asm)
	assert.Equal(t, 1, countLines(asm, "gl_FragColor(x0)"))
	assert.Equal(t, 1, countLines(asm, "gl_FragColor+4(x0)"))
	assert.Equal(t, 1, countLines(asm, "gl_FragColor+8(x0)"))
	assert.Equal(t, 1, countLines(asm, "gl_FragColor+12(x0)"))

	// No arithmetic, no phi copies.
	assert.Equal(t, 0, countLines(asm, "fadd"))
	assert.Equal(t, 0, countLines(asm, "addi"))
	assert.Equal(t, 0, countLines(asm, "phi elimination"))

	// The composite constant's storage spells out all four lanes.
	assert.Equal(t, 3, countLines(asm, "Float 0"), "the zero constant plus two composite lanes")
	assert.GreaterOrEqual(t, countLines(asm, ".word 0x3f800000"), 3, "1.0 scalar plus two composite lanes")

	// The output variable's zero-filled storage.
	assert.Contains(t, asm, "gl_FragColor:")
	assert.GreaterOrEqual(t, countLines(asm, ".word 0"), 4)
}

func TestEmitUVShader(t *testing.T) {
	// fragColor = vec4(gl_FragCoord.x / iResolution.x,
	//                  gl_FragCoord.y / iResolution.y, 0.5, 1.0)
	const (
		ptrInVec4, ptrInF, ptrUniVec2, ptrUniF, ptrOut = 10, 11, 12, 13, 14
		coordVar, resVar, outVar                       = 15, 16, 17
		idx0, idx1, halfC, oneC                        = 20, 21, 22, 23
		acX, acY, acRX, acRY                           = 50, 51, 52, 53
		loadX, loadY, loadRX, loadRY                   = 54, 55, 56, 57
		divX, divY, vecID                              = 58, 59, 60
	)
	prog := buildProgram(t, func(b *spirv.ModuleBuilder) {
		modulePreamble(b, coordVar, outVar)
		b.OpStr(spirv.OpName, "gl_FragCoord", []uint32{coordVar})
		b.OpStr(spirv.OpName, "iResolution", []uint32{resVar})
		b.OpStr(spirv.OpName, "fragColor", []uint32{outVar})
		b.Op(spirv.OpDecorate, coordVar, uint32(spirv.DecorationBuiltIn), uint32(spirv.BuiltInFragCoord))
		moduleTypes(b)
		b.Op(spirv.OpTypePointer, ptrInVec4, uint32(spirv.StorageClassInput), sVec4)
		b.Op(spirv.OpTypePointer, ptrInF, uint32(spirv.StorageClassInput), sFloat)
		b.Op(spirv.OpTypePointer, ptrUniVec2, uint32(spirv.StorageClassUniform), sVec2)
		b.Op(spirv.OpTypePointer, ptrUniF, uint32(spirv.StorageClassUniform), sFloat)
		b.Op(spirv.OpTypePointer, ptrOut, uint32(spirv.StorageClassOutput), sVec4)
		b.Op(spirv.OpConstant, sInt, idx0, 0)
		b.Op(spirv.OpConstant, sInt, idx1, 1)
		b.Op(spirv.OpConstant, sFloat, halfC, 0x3f000000)
		b.Op(spirv.OpConstant, sFloat, oneC, 0x3f800000)
		b.Op(spirv.OpVariable, ptrInVec4, coordVar, uint32(spirv.StorageClassInput))
		b.Op(spirv.OpVariable, ptrUniVec2, resVar, uint32(spirv.StorageClassUniform))
		b.Op(spirv.OpVariable, ptrOut, outVar, uint32(spirv.StorageClassOutput))
		beginMain(b)
		b.Op(spirv.OpAccessChain, ptrInF, acX, coordVar, idx0)
		b.Op(spirv.OpLoad, sFloat, loadX, acX)
		b.Op(spirv.OpAccessChain, ptrUniF, acRX, resVar, idx0)
		b.Op(spirv.OpLoad, sFloat, loadRX, acRX)
		b.Op(spirv.OpFDiv, sFloat, divX, loadX, loadRX)
		b.Op(spirv.OpAccessChain, ptrInF, acY, coordVar, idx1)
		b.Op(spirv.OpLoad, sFloat, loadY, acY)
		b.Op(spirv.OpAccessChain, ptrUniF, acRY, resVar, idx1)
		b.Op(spirv.OpLoad, sFloat, loadRY, acRY)
		b.Op(spirv.OpFDiv, sFloat, divY, loadY, loadRY)
		b.Op(spirv.OpCompositeConstruct, sVec4, vecID, divX, divY, halfC, oneC)
		b.Op(spirv.OpStore, outVar, vecID)
		endMain(b)
	})
	asm, err := Compile(prog, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, countLines(asm, "gl_FragCoord(x0)"))
	assert.Equal(t, 1, countLines(asm, "gl_FragCoord+4(x0)"))
	assert.Equal(t, 1, countLines(asm, "iResolution(x0)"))
	assert.Equal(t, 1, countLines(asm, "iResolution+4(x0)"))
	assert.Equal(t, 2, countLines(asm, "fdiv.s"))
	assert.Equal(t, 4, countLines(asm, "fsw"))

	// Constant loads for 0.5 and 1.0 only; the integer indexes fold
	// into the addressing and never touch a register.
	assert.Equal(t, 2, countLines(asm, "Load constant"))
	assert.Equal(t, 0, countLines(asm, ".C20(x0)"))
	assert.Equal(t, 0, countLines(asm, ".C21(x0)"))
}

func TestEmitIfElsePhi(t *testing.T) {
	// a = cond ? 1.0 : 2.0, with the phi lowered to copies at the two
	// predecessors' branches.
	const (
		ptrOut, outVar          = 10, 11
		condC, oneC, twoC       = 20, 21, 22
		thenBB, elseBB, mergeBB = 41, 42, 43
		phiID                   = 50
	)
	prog := buildProgram(t, func(b *spirv.ModuleBuilder) {
		modulePreamble(b, outVar)
		b.OpStr(spirv.OpName, "fragColor", []uint32{outVar})
		moduleTypes(b)
		b.Op(spirv.OpTypePointer, ptrOut, uint32(spirv.StorageClassOutput), sFloat)
		b.Op(spirv.OpConstantTrue, sBool, condC)
		b.Op(spirv.OpConstant, sFloat, oneC, 0x3f800000)
		b.Op(spirv.OpConstant, sFloat, twoC, 0x40000000)
		b.Op(spirv.OpVariable, ptrOut, outVar, uint32(spirv.StorageClassOutput))
		beginMain(b)
		b.Op(spirv.OpSelectionMerge, mergeBB, 0)
		b.Op(spirv.OpBranchConditional, condC, thenBB, elseBB)
		b.Op(spirv.OpLabel, thenBB)
		b.Op(spirv.OpBranch, mergeBB)
		b.Op(spirv.OpLabel, elseBB)
		b.Op(spirv.OpBranch, mergeBB)
		b.Op(spirv.OpLabel, mergeBB)
		b.Op(spirv.OpPhi, sFloat, phiID, oneC, thenBB, twoC, elseBB)
		b.Op(spirv.OpStore, outVar, phiID)
		endMain(b)
	})
	asm, err := Compile(prog, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, countLines(asm, "phi elimination"), asm)
	assert.Equal(t, 2, countLines(asm, "mov f"))
	// The phi reuses the then-arm constant's register, so that copy is
	// emitted commented out.
	assert.Equal(t, 1, countLines(asm, "; mov"))
	assert.Equal(t, 1, countLines(asm, "bne"))
	assert.Contains(t, asm, "label41:")
	assert.Contains(t, asm, "label42:")
	assert.Contains(t, asm, "label43:")
	assert.Equal(t, 1, countLines(asm, "fsw"))
}

func TestEmitAddImmediate(t *testing.T) {
	// out = in + 5: one addi, and the 5 never loads into a register.
	const (
		ptrIn, ptrOut, inVar, outVar = 10, 11, 12, 13
		fiveC                        = 20
		loadID, addID                = 50, 51
	)
	prog := buildProgram(t, func(b *spirv.ModuleBuilder) {
		modulePreamble(b, inVar, outVar)
		b.OpStr(spirv.OpName, "counter", []uint32{inVar})
		b.OpStr(spirv.OpName, "result", []uint32{outVar})
		moduleTypes(b)
		b.Op(spirv.OpTypePointer, ptrIn, uint32(spirv.StorageClassInput), sInt)
		b.Op(spirv.OpTypePointer, ptrOut, uint32(spirv.StorageClassOutput), sInt)
		b.Op(spirv.OpConstant, sInt, fiveC, 5)
		b.Op(spirv.OpVariable, ptrIn, inVar, uint32(spirv.StorageClassInput))
		b.Op(spirv.OpVariable, ptrOut, outVar, uint32(spirv.StorageClassOutput))
		beginMain(b)
		b.Op(spirv.OpLoad, sInt, loadID, inVar)
		b.Op(spirv.OpIAdd, sInt, addID, loadID, fiveC)
		b.Op(spirv.OpStore, outVar, addID)
		endMain(b)
	})
	asm, err := Compile(prog, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, countLines(asm, "addi"), asm)
	assert.Contains(t, asm, ", 5")
	assert.Equal(t, 0, countLines(asm, "add "), "no plain add survives the fold")
	assert.Equal(t, 0, countLines(asm, "Load constant"), "the folded constant is never loaded")
}

func TestEmitVectorTimesScalarSharesOperand(t *testing.T) {
	const (
		ptrIn, ptrOut, inVar, outVar = 10, 11, 12, 13
		scaleC                       = 20
		loadID, mulID                = 50, 51
	)
	prog := buildProgram(t, func(b *spirv.ModuleBuilder) {
		modulePreamble(b, inVar, outVar)
		b.OpStr(spirv.OpName, "texColor", []uint32{inVar})
		b.OpStr(spirv.OpName, "fragColor", []uint32{outVar})
		moduleTypes(b)
		b.Op(spirv.OpTypePointer, ptrIn, uint32(spirv.StorageClassInput), sVec4)
		b.Op(spirv.OpTypePointer, ptrOut, uint32(spirv.StorageClassOutput), sVec4)
		b.Op(spirv.OpConstant, sFloat, scaleC, 0x40000000)
		b.Op(spirv.OpVariable, ptrIn, inVar, uint32(spirv.StorageClassInput))
		b.Op(spirv.OpVariable, ptrOut, outVar, uint32(spirv.StorageClassOutput))
		beginMain(b)
		b.Op(spirv.OpLoad, sVec4, loadID, inVar)
		b.Op(spirv.OpVectorTimesScalar, sVec4, mulID, loadID, scaleC)
		b.Op(spirv.OpStore, outVar, mulID)
		endMain(b)
	})
	asm, err := Compile(prog, Options{})
	require.NoError(t, err)

	var mulLines []string
	for _, line := range strings.Split(asm, "\n") {
		if strings.Contains(line, "fmul.s") {
			mulLines = append(mulLines, line)
		}
	}
	require.Len(t, mulLines, 4)

	// Every multiply names the same scalar register last, and four
	// distinct lane registers in between.
	scalarReg := ""
	laneRegs := make(map[string]bool)
	for _, line := range mulLines {
		fields := strings.Fields(line)
		// fmul.s fd, fa, fb
		require.GreaterOrEqual(t, len(fields), 4, line)
		operand := strings.TrimSuffix(fields[1], ",")
		laneRegs[operand] = true
		last := fields[3]
		if scalarReg == "" {
			scalarReg = last
		}
		assert.Equal(t, scalarReg, last, "scalar operand must be shared across lanes")
	}
	assert.Len(t, laneRegs, 4, "lane results must be distinct registers")
}

func TestEmitLibraryAppended(t *testing.T) {
	prog := buildProgram(t, func(b *spirv.ModuleBuilder) {
		modulePreamble(b)
		moduleTypes(b)
		beginMain(b)
		endMain(b)
	})
	library := "sin:\n        ret\n"
	asm, err := Compile(prog, Options{Library: library})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(asm, library), "library text must be appended verbatim")
}

func TestEmitExtInstCallsLibrary(t *testing.T) {
	const (
		ptrIn, ptrOut, inVar, outVar = 10, 11, 12, 13
		loadID, sinID                = 50, 51
	)
	prog := buildProgram(t, func(b *spirv.ModuleBuilder) {
		modulePreamble(b, inVar, outVar)
		b.OpStr(spirv.OpName, "angle", []uint32{inVar})
		b.OpStr(spirv.OpName, "result", []uint32{outVar})
		moduleTypes(b)
		b.Op(spirv.OpTypePointer, ptrIn, uint32(spirv.StorageClassInput), sFloat)
		b.Op(spirv.OpTypePointer, ptrOut, uint32(spirv.StorageClassOutput), sFloat)
		b.Op(spirv.OpVariable, ptrIn, inVar, uint32(spirv.StorageClassInput))
		b.Op(spirv.OpVariable, ptrOut, outVar, uint32(spirv.StorageClassOutput))
		beginMain(b)
		b.Op(spirv.OpLoad, sFloat, loadID, inVar)
		b.Op(spirv.OpExtInst, sFloat, sinID, sExtSet, uint32(spirv.GLSLstd450Sin), loadID)
		b.Op(spirv.OpStore, outVar, sinID)
		endMain(b)
	})
	asm, err := Compile(prog, Options{})
	require.NoError(t, err)

	assert.Contains(t, asm, "jal ra, sin")
	assert.Equal(t, 1, countLines(asm, "Push parameter"))
	assert.Equal(t, 1, countLines(asm, "Pop result"))
	assert.Contains(t, asm, "Save return address")
	assert.Contains(t, asm, "Restore stack")
}

func TestEmitUnimplementedPlaceholder(t *testing.T) {
	prog := buildProgram(t, func(b *spirv.ModuleBuilder) {
		modulePreamble(b)
		moduleTypes(b)
		beginMain(b)
		b.Op(spirv.Opcode(400))
		endMain(b)
	})

	asm, err := Compile(prog, Options{})
	require.NoError(t, err)
	assert.Contains(t, asm, "#error#")

	_, err = Compile(prog, Options{ThrowOnUnimplemented: true})
	var irErr *ir.Error
	require.ErrorAs(t, err, &irErr)
	assert.Equal(t, ir.UnimplementedOpcode, irErr.Kind)
}
