// Package spirv decodes SPIR-V binary modules.
//
// SPIR-V is the standard intermediate language for GPU shaders,
// used by Vulkan, OpenCL, and other APIs. This package owns the
// opcode and enum namespace and the word-stream parser; semantic
// interpretation of instructions is left to the caller.
package spirv

import "strconv"

// SPIR-V magic number and header layout.
const (
	MagicNumber = 0x07230203

	// HeaderWords is the number of words before the first instruction.
	HeaderWords = 5
)

// Opcode represents a SPIR-V opcode.
type Opcode uint16

// Module-level opcodes
const (
	OpNop             Opcode = 0
	OpUndef           Opcode = 1
	OpSourceContinued Opcode = 2
	OpSource          Opcode = 3
	OpSourceExtension Opcode = 4
	OpName            Opcode = 5
	OpMemberName      Opcode = 6
	OpString          Opcode = 7
	OpLine            Opcode = 8
	OpExtension       Opcode = 10
	OpExtInstImport   Opcode = 11
	OpExtInst         Opcode = 12
	OpMemoryModel     Opcode = 14
	OpEntryPoint      Opcode = 15
	OpExecutionMode   Opcode = 16
	OpCapability      Opcode = 17
	OpNoLine          Opcode = 317
)

// Type-declaration opcodes
const (
	OpTypeVoid         Opcode = 19
	OpTypeBool         Opcode = 20
	OpTypeInt          Opcode = 21
	OpTypeFloat        Opcode = 22
	OpTypeVector       Opcode = 23
	OpTypeMatrix       Opcode = 24
	OpTypeImage        Opcode = 25
	OpTypeSampler      Opcode = 26
	OpTypeSampledImage Opcode = 27
	OpTypeArray        Opcode = 28
	OpTypeRuntimeArray Opcode = 29
	OpTypeStruct       Opcode = 30
	OpTypeOpaque       Opcode = 31
	OpTypePointer      Opcode = 32
	OpTypeFunction     Opcode = 33
)

// Constant opcodes
const (
	OpConstantTrue      Opcode = 41
	OpConstantFalse     Opcode = 42
	OpConstant          Opcode = 43
	OpConstantComposite Opcode = 44
	OpConstantNull      Opcode = 46
)

// Function and memory opcodes
const (
	OpFunction          Opcode = 54
	OpFunctionParameter Opcode = 55
	OpFunctionEnd       Opcode = 56
	OpFunctionCall      Opcode = 57
	OpVariable          Opcode = 59
	OpLoad              Opcode = 61
	OpStore             Opcode = 62
	OpAccessChain       Opcode = 65
	OpDecorate          Opcode = 71
	OpMemberDecorate    Opcode = 72
)

// Composite opcodes
const (
	OpVectorShuffle      Opcode = 79
	OpCompositeConstruct Opcode = 80
	OpCompositeExtract   Opcode = 81
	OpCopyObject         Opcode = 83
)

// Image opcodes
const (
	OpSampledImage           Opcode = 86
	OpImageSampleImplicitLod Opcode = 87
)

// Conversion opcodes
const (
	OpConvertFToU Opcode = 109
	OpConvertFToS Opcode = 110
	OpConvertSToF Opcode = 111
	OpConvertUToF Opcode = 112
	OpBitcast     Opcode = 124
)

// Arithmetic opcodes
const (
	OpSNegate           Opcode = 126
	OpFNegate           Opcode = 127
	OpIAdd              Opcode = 128
	OpFAdd              Opcode = 129
	OpISub              Opcode = 130
	OpFSub              Opcode = 131
	OpIMul              Opcode = 132
	OpFMul              Opcode = 133
	OpUDiv              Opcode = 134
	OpSDiv              Opcode = 135
	OpFDiv              Opcode = 136
	OpUMod              Opcode = 137
	OpSRem              Opcode = 138
	OpSMod              Opcode = 139
	OpFRem              Opcode = 140
	OpFMod              Opcode = 141
	OpVectorTimesScalar Opcode = 142
	OpMatrixTimesScalar Opcode = 143
	OpVectorTimesMatrix Opcode = 144
	OpMatrixTimesVector Opcode = 145
	OpMatrixTimesMatrix Opcode = 146
	OpDot               Opcode = 148
)

// Logical and comparison opcodes
const (
	OpAny                    Opcode = 154
	OpAll                    Opcode = 155
	OpIsNan                  Opcode = 156
	OpIsInf                  Opcode = 157
	OpLogicalEqual           Opcode = 164
	OpLogicalNotEqual        Opcode = 165
	OpLogicalOr              Opcode = 166
	OpLogicalAnd             Opcode = 167
	OpLogicalNot             Opcode = 168
	OpSelect                 Opcode = 169
	OpIEqual                 Opcode = 170
	OpINotEqual              Opcode = 171
	OpUGreaterThan           Opcode = 172
	OpSGreaterThan           Opcode = 173
	OpUGreaterThanEqual      Opcode = 174
	OpSGreaterThanEqual      Opcode = 175
	OpULessThan              Opcode = 176
	OpSLessThan              Opcode = 177
	OpULessThanEqual         Opcode = 178
	OpSLessThanEqual         Opcode = 179
	OpFOrdEqual              Opcode = 180
	OpFUnordEqual            Opcode = 181
	OpFOrdNotEqual           Opcode = 182
	OpFUnordNotEqual         Opcode = 183
	OpFOrdLessThan           Opcode = 184
	OpFUnordLessThan         Opcode = 185
	OpFOrdGreaterThan        Opcode = 186
	OpFUnordGreaterThan      Opcode = 187
	OpFOrdLessThanEqual      Opcode = 188
	OpFUnordLessThanEqual    Opcode = 189
	OpFOrdGreaterThanEqual   Opcode = 190
	OpFUnordGreaterThanEqual Opcode = 191
)

// Bitwise opcodes
const (
	OpShiftRightLogical    Opcode = 194
	OpShiftRightArithmetic Opcode = 195
	OpShiftLeftLogical     Opcode = 196
	OpBitwiseOr            Opcode = 197
	OpBitwiseXor           Opcode = 198
	OpBitwiseAnd           Opcode = 199
	OpNot                  Opcode = 200
)

// Control-flow opcodes
const (
	OpPhi               Opcode = 245
	OpLoopMerge         Opcode = 246
	OpSelectionMerge    Opcode = 247
	OpLabel             Opcode = 248
	OpBranch            Opcode = 249
	OpBranchConditional Opcode = 250
	OpSwitch            Opcode = 251
	OpKill              Opcode = 252
	OpReturn            Opcode = 253
	OpReturnValue       Opcode = 254
	OpUnreachable       Opcode = 255
)

var opcodeNames = map[Opcode]string{
	OpNop: "OpNop", OpUndef: "OpUndef", OpSourceContinued: "OpSourceContinued",
	OpSource: "OpSource", OpSourceExtension: "OpSourceExtension",
	OpName: "OpName", OpMemberName: "OpMemberName", OpString: "OpString",
	OpLine: "OpLine", OpNoLine: "OpNoLine", OpExtension: "OpExtension",
	OpExtInstImport: "OpExtInstImport", OpExtInst: "OpExtInst",
	OpMemoryModel: "OpMemoryModel", OpEntryPoint: "OpEntryPoint",
	OpExecutionMode: "OpExecutionMode", OpCapability: "OpCapability",
	OpTypeVoid: "OpTypeVoid", OpTypeBool: "OpTypeBool", OpTypeInt: "OpTypeInt",
	OpTypeFloat: "OpTypeFloat", OpTypeVector: "OpTypeVector",
	OpTypeMatrix: "OpTypeMatrix", OpTypeImage: "OpTypeImage",
	OpTypeSampler: "OpTypeSampler", OpTypeSampledImage: "OpTypeSampledImage",
	OpTypeArray: "OpTypeArray", OpTypeRuntimeArray: "OpTypeRuntimeArray",
	OpTypeStruct: "OpTypeStruct", OpTypeOpaque: "OpTypeOpaque",
	OpTypePointer: "OpTypePointer", OpTypeFunction: "OpTypeFunction",
	OpConstantTrue: "OpConstantTrue", OpConstantFalse: "OpConstantFalse",
	OpConstant: "OpConstant", OpConstantComposite: "OpConstantComposite",
	OpConstantNull: "OpConstantNull",
	OpFunction: "OpFunction", OpFunctionParameter: "OpFunctionParameter",
	OpFunctionEnd: "OpFunctionEnd", OpFunctionCall: "OpFunctionCall",
	OpVariable: "OpVariable", OpLoad: "OpLoad", OpStore: "OpStore",
	OpAccessChain: "OpAccessChain", OpDecorate: "OpDecorate",
	OpMemberDecorate: "OpMemberDecorate",
	OpVectorShuffle: "OpVectorShuffle", OpCompositeConstruct: "OpCompositeConstruct",
	OpCompositeExtract: "OpCompositeExtract", OpCopyObject: "OpCopyObject",
	OpSampledImage: "OpSampledImage", OpImageSampleImplicitLod: "OpImageSampleImplicitLod",
	OpConvertFToU: "OpConvertFToU", OpConvertFToS: "OpConvertFToS",
	OpConvertSToF: "OpConvertSToF", OpConvertUToF: "OpConvertUToF",
	OpBitcast: "OpBitcast",
	OpSNegate: "OpSNegate", OpFNegate: "OpFNegate",
	OpIAdd: "OpIAdd", OpFAdd: "OpFAdd", OpISub: "OpISub", OpFSub: "OpFSub",
	OpIMul: "OpIMul", OpFMul: "OpFMul", OpUDiv: "OpUDiv", OpSDiv: "OpSDiv",
	OpFDiv: "OpFDiv", OpUMod: "OpUMod", OpSRem: "OpSRem", OpSMod: "OpSMod",
	OpFRem: "OpFRem", OpFMod: "OpFMod",
	OpVectorTimesScalar: "OpVectorTimesScalar", OpMatrixTimesScalar: "OpMatrixTimesScalar",
	OpVectorTimesMatrix: "OpVectorTimesMatrix", OpMatrixTimesVector: "OpMatrixTimesVector",
	OpMatrixTimesMatrix: "OpMatrixTimesMatrix", OpDot: "OpDot",
	OpAny: "OpAny", OpAll: "OpAll", OpIsNan: "OpIsNan", OpIsInf: "OpIsInf",
	OpLogicalEqual: "OpLogicalEqual", OpLogicalNotEqual: "OpLogicalNotEqual",
	OpLogicalOr: "OpLogicalOr", OpLogicalAnd: "OpLogicalAnd",
	OpLogicalNot: "OpLogicalNot", OpSelect: "OpSelect",
	OpIEqual: "OpIEqual", OpINotEqual: "OpINotEqual",
	OpUGreaterThan: "OpUGreaterThan", OpSGreaterThan: "OpSGreaterThan",
	OpUGreaterThanEqual: "OpUGreaterThanEqual", OpSGreaterThanEqual: "OpSGreaterThanEqual",
	OpULessThan: "OpULessThan", OpSLessThan: "OpSLessThan",
	OpULessThanEqual: "OpULessThanEqual", OpSLessThanEqual: "OpSLessThanEqual",
	OpFOrdEqual: "OpFOrdEqual", OpFOrdNotEqual: "OpFOrdNotEqual",
	OpFOrdLessThan: "OpFOrdLessThan", OpFOrdGreaterThan: "OpFOrdGreaterThan",
	OpFOrdLessThanEqual: "OpFOrdLessThanEqual", OpFOrdGreaterThanEqual: "OpFOrdGreaterThanEqual",
	OpShiftRightLogical: "OpShiftRightLogical", OpShiftRightArithmetic: "OpShiftRightArithmetic",
	OpShiftLeftLogical: "OpShiftLeftLogical", OpBitwiseOr: "OpBitwiseOr",
	OpBitwiseXor: "OpBitwiseXor", OpBitwiseAnd: "OpBitwiseAnd", OpNot: "OpNot",
	OpPhi: "OpPhi", OpLoopMerge: "OpLoopMerge", OpSelectionMerge: "OpSelectionMerge",
	OpLabel: "OpLabel", OpBranch: "OpBranch", OpBranchConditional: "OpBranchConditional",
	OpSwitch: "OpSwitch", OpKill: "OpKill", OpReturn: "OpReturn",
	OpReturnValue: "OpReturnValue", OpUnreachable: "OpUnreachable",
}

// String returns the canonical "OpXxx" name of the opcode.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "Op" + strconv.FormatUint(uint64(op), 10)
}

// Capability represents a SPIR-V capability.
type Capability uint32

const (
	CapabilityMatrix Capability = 0 // Implied by Shader
	CapabilityShader Capability = 1
)

// ExecutionModel represents a SPIR-V execution model.
type ExecutionModel uint32

const (
	ExecutionModelVertex                 ExecutionModel = 0
	ExecutionModelTessellationControl    ExecutionModel = 1
	ExecutionModelTessellationEvaluation ExecutionModel = 2
	ExecutionModelGeometry               ExecutionModel = 3
	ExecutionModelFragment               ExecutionModel = 4
	ExecutionModelGLCompute              ExecutionModel = 5
	ExecutionModelKernel                 ExecutionModel = 6
)

var executionModelNames = map[ExecutionModel]string{
	ExecutionModelVertex:                 "Vertex",
	ExecutionModelTessellationControl:    "TessellationControl",
	ExecutionModelTessellationEvaluation: "TessellationEvaluation",
	ExecutionModelGeometry:               "Geometry",
	ExecutionModelFragment:               "Fragment",
	ExecutionModelGLCompute:              "GLCompute",
	ExecutionModelKernel:                 "Kernel",
}

// String returns the name of the execution model.
func (m ExecutionModel) String() string {
	if name, ok := executionModelNames[m]; ok {
		return name
	}
	return strconv.FormatUint(uint64(m), 10)
}

// StorageClass represents a SPIR-V storage class.
type StorageClass uint32

const (
	StorageClassUniformConstant StorageClass = 0
	StorageClassInput           StorageClass = 1
	StorageClassUniform         StorageClass = 2
	StorageClassOutput          StorageClass = 3
	StorageClassWorkgroup       StorageClass = 4
	StorageClassCrossWorkgroup  StorageClass = 5
	StorageClassPrivate         StorageClass = 6
	StorageClassFunction        StorageClass = 7
	StorageClassPushConstant    StorageClass = 9
	StorageClassStorageBuffer   StorageClass = 12
)

var storageClassNames = map[StorageClass]string{
	StorageClassUniformConstant: "UniformConstant",
	StorageClassInput:           "Input",
	StorageClassUniform:         "Uniform",
	StorageClassOutput:          "Output",
	StorageClassWorkgroup:       "Workgroup",
	StorageClassCrossWorkgroup:  "CrossWorkgroup",
	StorageClassPrivate:         "Private",
	StorageClassFunction:        "Function",
	StorageClassPushConstant:    "PushConstant",
	StorageClassStorageBuffer:   "StorageBuffer",
}

// String returns the name of the storage class.
func (c StorageClass) String() string {
	if name, ok := storageClassNames[c]; ok {
		return name
	}
	return strconv.FormatUint(uint64(c), 10)
}

// Decoration represents a SPIR-V decoration.
type Decoration uint32

const (
	DecorationRelaxedPrecision  Decoration = 0
	DecorationBlock             Decoration = 2
	DecorationRowMajor          Decoration = 4
	DecorationColMajor          Decoration = 5
	DecorationArrayStride       Decoration = 6
	DecorationMatrixStride      Decoration = 7
	DecorationBuiltIn           Decoration = 11
	DecorationFlat              Decoration = 14
	DecorationLocation          Decoration = 30
	DecorationBinding           Decoration = 33
	DecorationDescriptorSet     Decoration = 34
	DecorationOffset            Decoration = 35
	DecorationLinkageAttributes Decoration = 41
)

// BuiltIn represents a SPIR-V built-in decoration value.
type BuiltIn uint32

const (
	BuiltInPosition  BuiltIn = 0
	BuiltInFragCoord BuiltIn = 15
	BuiltInFragDepth BuiltIn = 22
)

// GLSLstd450 identifies an instruction in the GLSL.std.450 extended set.
type GLSLstd450 uint32

// GLSL.std.450 extended instruction numbers
const (
	GLSLstd450Round       GLSLstd450 = 1
	GLSLstd450Trunc       GLSLstd450 = 3
	GLSLstd450FAbs        GLSLstd450 = 4
	GLSLstd450FSign       GLSLstd450 = 6
	GLSLstd450Floor       GLSLstd450 = 8
	GLSLstd450Ceil        GLSLstd450 = 9
	GLSLstd450Fract       GLSLstd450 = 10
	GLSLstd450Radians     GLSLstd450 = 11
	GLSLstd450Degrees     GLSLstd450 = 12
	GLSLstd450Sin         GLSLstd450 = 13
	GLSLstd450Cos         GLSLstd450 = 14
	GLSLstd450Tan         GLSLstd450 = 15
	GLSLstd450Asin        GLSLstd450 = 16
	GLSLstd450Acos        GLSLstd450 = 17
	GLSLstd450Atan        GLSLstd450 = 18
	GLSLstd450Atan2       GLSLstd450 = 25
	GLSLstd450Pow         GLSLstd450 = 26
	GLSLstd450Exp         GLSLstd450 = 27
	GLSLstd450Log         GLSLstd450 = 28
	GLSLstd450Exp2        GLSLstd450 = 29
	GLSLstd450Log2        GLSLstd450 = 30
	GLSLstd450Sqrt        GLSLstd450 = 31
	GLSLstd450InverseSqrt GLSLstd450 = 32
	GLSLstd450FMin        GLSLstd450 = 37
	GLSLstd450FMax        GLSLstd450 = 40
	GLSLstd450FClamp      GLSLstd450 = 43
	GLSLstd450FMix        GLSLstd450 = 46
	GLSLstd450Step        GLSLstd450 = 48
	GLSLstd450SmoothStep  GLSLstd450 = 49
	GLSLstd450Length      GLSLstd450 = 66
	GLSLstd450Distance    GLSLstd450 = 67
	GLSLstd450Cross       GLSLstd450 = 68
	GLSLstd450Normalize   GLSLstd450 = 69
	GLSLstd450Reflect     GLSLstd450 = 71
	GLSLstd450Refract     GLSLstd450 = 72
)

var glslStd450Names = map[GLSLstd450]string{
	GLSLstd450Round: "Round", GLSLstd450Trunc: "Trunc", GLSLstd450FAbs: "FAbs",
	GLSLstd450FSign: "FSign", GLSLstd450Floor: "Floor", GLSLstd450Ceil: "Ceil",
	GLSLstd450Fract: "Fract", GLSLstd450Radians: "Radians", GLSLstd450Degrees: "Degrees",
	GLSLstd450Sin: "Sin", GLSLstd450Cos: "Cos", GLSLstd450Tan: "Tan",
	GLSLstd450Asin: "Asin", GLSLstd450Acos: "Acos", GLSLstd450Atan: "Atan",
	GLSLstd450Atan2: "Atan2", GLSLstd450Pow: "Pow", GLSLstd450Exp: "Exp",
	GLSLstd450Log: "Log", GLSLstd450Exp2: "Exp2", GLSLstd450Log2: "Log2",
	GLSLstd450Sqrt: "Sqrt", GLSLstd450InverseSqrt: "InverseSqrt",
	GLSLstd450FMin: "FMin", GLSLstd450FMax: "FMax", GLSLstd450FClamp: "FClamp",
	GLSLstd450FMix: "FMix", GLSLstd450Step: "Step", GLSLstd450SmoothStep: "SmoothStep",
	GLSLstd450Length: "Length", GLSLstd450Distance: "Distance",
	GLSLstd450Cross: "Cross", GLSLstd450Normalize: "Normalize",
	GLSLstd450Reflect: "Reflect", GLSLstd450Refract: "Refract",
}

// String returns the name of the extended instruction.
func (g GLSLstd450) String() string {
	if name, ok := glslStd450Names[g]; ok {
		return name
	}
	return strconv.FormatUint(uint64(g), 10)
}

// GLSLstd450Name is the only extended instruction set the compiler accepts.
const GLSLstd450Name = "GLSL.std.450"
