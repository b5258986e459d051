// spvdump - SPIR-V disassembler for debugging compiler inputs.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/softgpu/fragc/spirv"
)

// printer renders a readable listing of the module.
type printer struct{}

func (printer) Header(h spirv.Header) error {
	fmt.Printf("; SPIR-V\n")
	fmt.Printf("; Version: %d.%d\n", h.Major(), h.Minor())
	fmt.Printf("; Generator: 0x%08X\n", h.Generator)
	fmt.Printf("; Bound: %d\n", h.Bound)
	fmt.Printf("; Schema: %d\n", h.Schema)
	fmt.Println()
	return nil
}

func id(n uint32) string {
	return fmt.Sprintf("%%_%d", n)
}

// resultOperand says which operand, if any, is the instruction's result
// ID, so it can be printed on the left of the equals sign.
func resultOperand(op spirv.Opcode) int {
	switch op {
	case spirv.OpExtInstImport, spirv.OpString, spirv.OpLabel,
		spirv.OpTypeVoid, spirv.OpTypeBool, spirv.OpTypeInt, spirv.OpTypeFloat,
		spirv.OpTypeVector, spirv.OpTypeMatrix, spirv.OpTypeImage, spirv.OpTypeSampler,
		spirv.OpTypeSampledImage, spirv.OpTypeArray, spirv.OpTypeRuntimeArray,
		spirv.OpTypeStruct, spirv.OpTypePointer, spirv.OpTypeFunction:
		return 0
	case spirv.OpConstant, spirv.OpConstantTrue, spirv.OpConstantFalse,
		spirv.OpConstantComposite, spirv.OpConstantNull,
		spirv.OpFunction, spirv.OpFunctionParameter, spirv.OpVariable,
		spirv.OpLoad, spirv.OpAccessChain, spirv.OpExtInst, spirv.OpFunctionCall,
		spirv.OpPhi, spirv.OpCompositeConstruct, spirv.OpCompositeExtract,
		spirv.OpVectorShuffle, spirv.OpSampledImage, spirv.OpImageSampleImplicitLod:
		return 1
	}
	// Arithmetic, logic, and conversion results are the second operand.
	if op >= spirv.OpConvertFToU && op <= spirv.OpNot {
		return 1
	}
	return -1
}

// stringOperand says where a literal string starts, if anywhere.
func stringOperand(op spirv.Opcode) int {
	switch op {
	case spirv.OpName, spirv.OpExtInstImport, spirv.OpString:
		return 1
	case spirv.OpMemberName, spirv.OpEntryPoint:
		return 2
	}
	return -1
}

func (printer) Instruction(ins spirv.Instruction) error {
	var sb strings.Builder
	res := resultOperand(ins.Opcode)
	if res >= 0 && res < len(ins.Operands) {
		fmt.Fprintf(&sb, "%9s = ", id(ins.Operands[res]))
	} else {
		sb.WriteString(strings.Repeat(" ", 12))
	}
	sb.WriteString(ins.Opcode.String())

	strAt := stringOperand(ins.Opcode)
	for i := 0; i < len(ins.Operands); i++ {
		if i == res {
			continue
		}
		if i == strAt {
			s, words := ins.DecodeString(i)
			fmt.Fprintf(&sb, " %q", s)
			i += words - 1
			continue
		}
		fmt.Fprintf(&sb, " %s", id(ins.Operands[i]))
	}
	fmt.Println(sb.String())
	return nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: spvdump <file.spv>")
		return
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := spirv.Parse(data, printer{}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
