package ir

import "github.com/softgpu/fragc/spirv"

// Builder materializes a Program from the instruction stream of a
// SPIR-V binary. It implements spirv.Handler.
type Builder struct {
	p *Program
}

// NewBuilder returns a builder filling the given program.
func NewBuilder(p *Program) *Builder {
	return &Builder{p: p}
}

// Header records the module header and seeds the fresh-ID counter at
// the id bound so synthesized IDs never collide with input IDs.
func (b *Builder) Header(h spirv.Header) error {
	b.p.Header = h
	b.p.nextID = h.Bound
	return nil
}

// unaryOps are the opcodes built as UnOp: [type, result, x].
var unaryOps = map[spirv.Opcode]struct{}{
	spirv.OpSNegate: {}, spirv.OpFNegate: {},
	spirv.OpConvertFToU: {}, spirv.OpConvertFToS: {},
	spirv.OpConvertSToF: {}, spirv.OpConvertUToF: {},
	spirv.OpBitcast: {}, spirv.OpCopyObject: {},
	spirv.OpLogicalNot: {}, spirv.OpNot: {},
	spirv.OpAny: {}, spirv.OpAll: {},
	spirv.OpIsNan: {}, spirv.OpIsInf: {},
}

// binaryOps are the opcodes built as BinOp: [type, result, x, y].
var binaryOps = map[spirv.Opcode]struct{}{
	spirv.OpIAdd: {}, spirv.OpFAdd: {}, spirv.OpISub: {}, spirv.OpFSub: {},
	spirv.OpIMul: {}, spirv.OpFMul: {}, spirv.OpUDiv: {}, spirv.OpSDiv: {},
	spirv.OpFDiv: {}, spirv.OpUMod: {}, spirv.OpSRem: {}, spirv.OpSMod: {},
	spirv.OpFRem: {}, spirv.OpFMod: {}, spirv.OpDot: {},
	spirv.OpLogicalEqual: {}, spirv.OpLogicalNotEqual: {},
	spirv.OpLogicalOr: {}, spirv.OpLogicalAnd: {},
	spirv.OpIEqual: {}, spirv.OpINotEqual: {},
	spirv.OpUGreaterThan: {}, spirv.OpSGreaterThan: {},
	spirv.OpUGreaterThanEqual: {}, spirv.OpSGreaterThanEqual: {},
	spirv.OpULessThan: {}, spirv.OpSLessThan: {},
	spirv.OpULessThanEqual: {}, spirv.OpSLessThanEqual: {},
	spirv.OpFOrdEqual: {}, spirv.OpFOrdNotEqual: {},
	spirv.OpFOrdLessThan: {}, spirv.OpFOrdGreaterThan: {},
	spirv.OpFOrdLessThanEqual: {}, spirv.OpFOrdGreaterThanEqual: {},
	spirv.OpShiftRightLogical: {}, spirv.OpShiftRightArithmetic: {},
	spirv.OpShiftLeftLogical: {}, spirv.OpBitwiseOr: {},
	spirv.OpBitwiseXor: {}, spirv.OpBitwiseAnd: {},
}

// Instruction dispatches one parsed instruction.
//
//nolint:gocyclo,cyclop,funlen,maintidx // switch over SPIR-V opcodes
func (b *Builder) Instruction(ins spirv.Instruction) error {
	p := b.p
	op := ins.Opcode

	if _, ok := unaryOps[op]; ok {
		return b.append(NewUnOp(p.currentLine, op, ins.Word(0), ins.Word(1), ins.Word(2)),
			ins.Word(1), ins.Word(0))
	}
	if _, ok := binaryOps[op]; ok {
		return b.append(NewBinOp(p.currentLine, op, ins.Word(0), ins.Word(1), ins.Word(2), ins.Word(3)),
			ins.Word(1), ins.Word(0))
	}

	switch op {
	case spirv.OpNop, spirv.OpSourceContinued, spirv.OpSourceExtension, spirv.OpExtension:
		// Nothing to record.

	case spirv.OpCapability:
		p.Capabilities[spirv.Capability(ins.Word(0))] = struct{}{}

	case spirv.OpExtInstImport:
		name, _ := ins.DecodeString(1)
		if name != spirv.GLSLstd450Name {
			return errf(UnsupportedFeature, "extended instruction set %q", name)
		}
		p.ExtInstSets[ins.Word(0)] = name
		p.GLSLstd450ID = ins.Word(0)

	case spirv.OpMemoryModel:
		// Logical addressing with the GLSL450 memory model is assumed.

	case spirv.OpEntryPoint:
		model := spirv.ExecutionModel(ins.Word(0))
		if model != spirv.ExecutionModelFragment {
			return errf(UnsupportedFeature, "execution model %s", model)
		}
		fnID := ins.Word(1)
		name, nameWords := ins.DecodeString(2)
		var ifaceIDs []ID
		for i := 2 + nameWords; i < len(ins.Operands); i++ {
			ifaceIDs = append(ifaceIDs, ins.Operands[i])
		}
		p.EntryPoints[fnID] = EntryPoint{
			ExecutionModel: model,
			Name:           name,
			InterfaceIDs:   ifaceIDs,
			ExecutionModes: make(map[uint32][]uint32),
		}
		p.MainFunction = fnID

	case spirv.OpExecutionMode:
		if ep, ok := p.EntryPoints[ins.Word(0)]; ok {
			ep.ExecutionModes[ins.Word(1)] = append([]uint32(nil), ins.Operands[2:]...)
			p.EntryPoints[ins.Word(0)] = ep
		}

	case spirv.OpString:
		s, _ := ins.DecodeString(1)
		p.Strings[ins.Word(0)] = s

	case spirv.OpSource:
		src := Source{Language: ins.Word(0), Version: ins.Word(1), File: NoFile}
		if len(ins.Operands) > 2 {
			src.File = ins.Word(2)
		}
		if len(ins.Operands) > 3 {
			src.Text, _ = ins.DecodeString(3)
		}
		p.Sources = append(p.Sources, src)

	case spirv.OpName:
		name, _ := ins.DecodeString(1)
		p.Names[ins.Word(0)] = name

	case spirv.OpMemberName:
		name, _ := ins.DecodeString(2)
		if p.MemberNames[ins.Word(0)] == nil {
			p.MemberNames[ins.Word(0)] = make(map[uint32]string)
		}
		p.MemberNames[ins.Word(0)][ins.Word(1)] = name

	case spirv.OpLine:
		p.currentLine = LineInfo{File: ins.Word(0), Line: ins.Word(1), Column: ins.Word(2)}

	case spirv.OpNoLine:
		p.currentLine = NoLineInfo

	case spirv.OpDecorate:
		target := ins.Word(0)
		if p.Decorations[target] == nil {
			p.Decorations[target] = make(Decorations)
		}
		p.Decorations[target][spirv.Decoration(ins.Word(1))] = append([]uint32(nil), ins.Operands[2:]...)

	case spirv.OpMemberDecorate:
		target, member := ins.Word(0), ins.Word(1)
		if p.MemberDecorations[target] == nil {
			p.MemberDecorations[target] = make(map[uint32]Decorations)
		}
		if p.MemberDecorations[target][member] == nil {
			p.MemberDecorations[target][member] = make(Decorations)
		}
		p.MemberDecorations[target][member][spirv.Decoration(ins.Word(2))] = append([]uint32(nil), ins.Operands[3:]...)

	case spirv.OpTypeVoid:
		p.Types[ins.Word(0)] = Type{Inner: Void{}, Size: 0}

	case spirv.OpTypeBool:
		p.Types[ins.Word(0)] = Type{Inner: Bool{}, Size: 1}

	case spirv.OpTypeInt:
		p.Types[ins.Word(0)] = Type{Inner: Int{Width: ins.Word(1), Signed: ins.Word(2) != 0}, Size: 4}

	case spirv.OpTypeFloat:
		p.Types[ins.Word(0)] = Type{Inner: Float{Width: ins.Word(1)}, Size: 4}

	case spirv.OpTypeVector:
		elem, count := ins.Word(1), ins.Word(2)
		p.Types[ins.Word(0)] = Type{Inner: Vector{Elem: elem, Count: count}, Size: count * p.SizeOf(elem)}

	case spirv.OpTypeMatrix:
		col, count := ins.Word(1), ins.Word(2)
		p.Types[ins.Word(0)] = Type{Inner: Matrix{ColumnType: col, Columns: count}, Size: count * p.SizeOf(col)}

	case spirv.OpTypeArray:
		elem := ins.Word(1)
		lengthConst, ok := p.Constants[ins.Word(2)]
		if !ok {
			return errf(TypeError, "array length %d is not a constant", ins.Word(2))
		}
		sv, ok := lengthConst.Scalar()
		if !ok {
			return errf(TypeError, "array length %d is not a scalar constant", ins.Word(2))
		}
		count := sv.Bits
		p.Types[ins.Word(0)] = Type{Inner: Array{Elem: elem, Count: count}, Size: count * p.SizeOf(elem)}

	case spirv.OpTypeStruct:
		members := append([]ID(nil), ins.Operands[1:]...)
		p.Types[ins.Word(0)] = Type{Inner: Struct{Members: members}, Size: b.structSize(ins.Word(0), members)}

	case spirv.OpTypePointer:
		p.Types[ins.Word(0)] = Type{
			Inner: Pointer{Pointee: ins.Word(2), Class: spirv.StorageClass(ins.Word(1))},
			Size:  4,
		}

	case spirv.OpTypeFunction:
		p.Types[ins.Word(0)] = Type{
			Inner: FunctionType{Return: ins.Word(1), Params: append([]ID(nil), ins.Operands[2:]...)},
			Size:  4,
		}

	case spirv.OpTypeImage:
		img := Image{
			Sampled: ins.Word(1), Dim: ins.Word(2), Depth: ins.Word(3),
			Arrayed: ins.Word(4), MS: ins.Word(5), SampledOp: ins.Word(6), Format: ins.Word(7),
		}
		if len(ins.Operands) > 8 {
			img.Access = ins.Word(8)
		}
		p.Types[ins.Word(0)] = Type{Inner: img, Size: 4}

	case spirv.OpTypeSampler:
		p.Types[ins.Word(0)] = Type{Inner: Sampler{}, Size: 4}

	case spirv.OpTypeSampledImage:
		p.Types[ins.Word(0)] = Type{Inner: SampledImage{Image: ins.Word(1)}, Size: 4}

	case spirv.OpConstantTrue, spirv.OpConstantFalse:
		bits := uint32(0)
		if op == spirv.OpConstantTrue {
			bits = 1
		}
		p.Constants[ins.Word(1)] = &Constant{Type: ins.Word(0), Value: ScalarValue{Bits: bits, Kind: ScalarBool}}

	case spirv.OpConstant:
		typeID := ins.Word(0)
		kind := ScalarUint
		switch inner := p.Types[typeID].Inner.(type) {
		case Float:
			kind = ScalarFloat
		case Int:
			if inner.Signed {
				kind = ScalarInt
			}
		default:
			return errf(TypeError, "constant %d has non-scalar type %d", ins.Word(1), typeID)
		}
		p.Constants[ins.Word(1)] = &Constant{Type: typeID, Value: ScalarValue{Bits: ins.Word(2), Kind: kind}}

	case spirv.OpConstantComposite:
		p.Constants[ins.Word(1)] = &Constant{
			Type:  ins.Word(0),
			Value: CompositeValue{Elements: append([]ID(nil), ins.Operands[2:]...)},
		}

	case spirv.OpConstantNull:
		typeID := ins.Word(0)
		switch p.Types[typeID].Inner.(type) {
		case Bool:
			p.Constants[ins.Word(1)] = &Constant{Type: typeID, Value: ScalarValue{Kind: ScalarBool}}
		case Int:
			p.Constants[ins.Word(1)] = &Constant{Type: typeID, Value: ScalarValue{Kind: ScalarInt}}
		case Float:
			p.Constants[ins.Word(1)] = &Constant{Type: typeID, Value: ScalarValue{Kind: ScalarFloat}}
		default:
			return b.unimplemented(ins)
		}

	case spirv.OpVariable:
		ptrType, ok := p.Types[ins.Word(0)].Inner.(Pointer)
		if !ok {
			return errf(TypeError, "variable %d has non-pointer type %d", ins.Word(1), ins.Word(0))
		}
		class := spirv.StorageClass(ins.Word(2))
		addr, err := p.Allocate(class, ptrType.Pointee)
		if err != nil {
			return err
		}
		v := &Variable{Type: ptrType.Pointee, Class: class, Initializer: NoInitializer, Address: addr}
		if len(ins.Operands) > 3 {
			v.Initializer = ins.Word(3)
		}
		p.Variables[ins.Word(1)] = v

	case spirv.OpFunction:
		fn := &Function{
			ID:      ins.Word(1),
			Type:    ins.Word(3),
			LabelID: NoBlockID,
		}
		p.Functions[fn.ID] = fn
		p.currentFunction = fn

	case spirv.OpFunctionParameter:
		if p.currentFunction == nil {
			return errf(InvariantViolation, "function parameter outside a function")
		}
		p.currentFunction.Parameters = append(p.currentFunction.Parameters, ins.Word(1))
		p.ResultTypes[ins.Word(1)] = ins.Word(0)

	case spirv.OpFunctionEnd:
		if p.currentBlock != nil {
			return errf(InvariantViolation, "function ended inside an unterminated block")
		}
		p.currentFunction = nil

	case spirv.OpLabel:
		if p.currentFunction == nil {
			return errf(InvariantViolation, "label %d outside a function", ins.Word(0))
		}
		block := &Block{
			LabelID:  ins.Word(0),
			Function: p.currentFunction,
			Pred:     make(IDSet),
			Succ:     make(IDSet),
			Dom:      make(IDSet),
			IDom:     NoBlockID,
		}
		block.Instructions = NewInstructionList(p.Arena, block)
		p.Blocks[block.LabelID] = block
		p.currentFunction.BlockOrder = append(p.currentFunction.BlockOrder, block.LabelID)
		if p.currentFunction.LabelID == NoBlockID {
			p.currentFunction.LabelID = block.LabelID
		}
		p.currentBlock = block

	case spirv.OpPhi:
		if len(ins.Operands)%2 != 0 {
			return errf(InvariantViolation, "phi %d has a dangling operand", ins.Word(1))
		}
		var pairs []PhiPair
		for i := 2; i < len(ins.Operands); i += 2 {
			pairs = append(pairs, PhiPair{Value: ins.Operands[i], Pred: ins.Operands[i+1]})
		}
		return b.append(NewPhi(p.currentLine, ins.Word(0), ins.Word(1), pairs), ins.Word(1), ins.Word(0))

	case spirv.OpLoad:
		return b.append(NewLoad(p.currentLine, ins.Word(0), ins.Word(1), ins.Word(2), 0),
			ins.Word(1), ins.Word(0))

	case spirv.OpStore:
		return b.append(NewStore(p.currentLine, ins.Word(0), ins.Word(1), 0), NoID, NoID)

	case spirv.OpAccessChain:
		return b.append(NewAccessChain(p.currentLine, ins.Word(0), ins.Word(1), ins.Word(2),
			append([]ID(nil), ins.Operands[3:]...)), ins.Word(1), ins.Word(0))

	case spirv.OpCompositeConstruct:
		return b.append(NewCompositeConstruct(p.currentLine, ins.Word(0), ins.Word(1),
			append([]ID(nil), ins.Operands[2:]...)), ins.Word(1), ins.Word(0))

	case spirv.OpCompositeExtract:
		return b.append(NewCompositeExtract(p.currentLine, ins.Word(0), ins.Word(1), ins.Word(2),
			append([]uint32(nil), ins.Operands[3:]...)), ins.Word(1), ins.Word(0))

	case spirv.OpVectorShuffle:
		return b.append(NewVectorShuffle(p.currentLine, ins.Word(0), ins.Word(1), ins.Word(2), ins.Word(3),
			append([]uint32(nil), ins.Operands[4:]...)), ins.Word(1), ins.Word(0))

	case spirv.OpVectorTimesScalar:
		return b.append(NewVectorTimesScalar(p.currentLine, ins.Word(0), ins.Word(1), ins.Word(2), ins.Word(3)),
			ins.Word(1), ins.Word(0))

	case spirv.OpMatrixTimesVector:
		return b.append(NewMatrixTimesVector(p.currentLine, ins.Word(0), ins.Word(1), ins.Word(2), ins.Word(3)),
			ins.Word(1), ins.Word(0))

	case spirv.OpSelect:
		return b.append(NewTerOp(p.currentLine, op, ins.Word(0), ins.Word(1), ins.Word(2), ins.Word(3), ins.Word(4)),
			ins.Word(1), ins.Word(0))

	case spirv.OpExtInst:
		if ins.Word(2) != p.GLSLstd450ID {
			return errf(UnsupportedFeature, "extended instruction from unknown set %d", ins.Word(2))
		}
		return b.append(NewExtInst(p.currentLine, spirv.GLSLstd450(ins.Word(3)), ins.Word(0), ins.Word(1),
			append([]ID(nil), ins.Operands[4:]...)), ins.Word(1), ins.Word(0))

	case spirv.OpFunctionCall:
		return b.append(NewFunctionCall(p.currentLine, ins.Word(0), ins.Word(1), ins.Word(2),
			append([]ID(nil), ins.Operands[3:]...)), ins.Word(1), ins.Word(0))

	case spirv.OpBranch:
		return b.appendTerminator(NewBranch(p.currentLine, ins.Word(0)))

	case spirv.OpBranchConditional:
		return b.appendTerminator(NewBranchConditional(p.currentLine, ins.Word(0), ins.Word(1), ins.Word(2)))

	case spirv.OpReturn:
		return b.appendTerminator(NewReturn(p.currentLine))

	case spirv.OpReturnValue:
		return b.appendTerminator(NewReturnValue(p.currentLine, ins.Word(0)))

	case spirv.OpKill:
		return b.appendTerminator(NewKill(p.currentLine))

	case spirv.OpUnreachable:
		return b.appendTerminator(NewUnreachable(p.currentLine))

	case spirv.OpSelectionMerge, spirv.OpLoopMerge:
		// Structured-control-flow hints; the CFG is derived from the
		// branches themselves.

	default:
		return b.unimplemented(ins)
	}

	return nil
}

// structSize computes a struct's byte size: when any member carries an
// explicit Offset decoration the size is the extent of the furthest
// member, otherwise the members pack tightly.
func (b *Builder) structSize(typeID ID, members []ID) uint32 {
	p := b.p
	hasOffsets := false
	var max, sum uint32
	for i, m := range members {
		size := p.SizeOf(m)
		sum += size
		if ops, ok := p.memberDecoration(typeID, uint32(i), spirv.DecorationOffset); ok && len(ops) > 0 {
			hasOffsets = true
			if end := ops[0] + size; end > max {
				max = end
			}
		}
	}
	if hasOffsets {
		return max
	}
	return sum
}

// append adds an instruction to the current block, recording its result
// type when it has one.
func (b *Builder) append(ins Instruction, result, typeID ID) error {
	p := b.p
	if p.currentBlock == nil {
		return errf(InvariantViolation, "%s outside a block", ins.Opcode())
	}
	if result != NoID {
		p.ResultTypes[result] = typeID
	}
	p.currentBlock.Instructions.PushBack(ins)
	return nil
}

// appendTerminator adds a block terminator and closes the block; the
// next label reopens one.
func (b *Builder) appendTerminator(ins Instruction) error {
	if err := b.append(ins, NoID, NoID); err != nil {
		return err
	}
	b.p.currentBlock = nil
	return nil
}

// unimplemented downgrades an unknown opcode to a placeholder, or fails
// when the caller asked for strictness.
func (b *Builder) unimplemented(ins spirv.Instruction) error {
	p := b.p
	if p.Opts.ThrowOnUnimplemented {
		return errf(UnimplementedOpcode, "%s", ins.Opcode)
	}
	p.HasUnimplemented = true
	p.log.Warnf("opcode %s not implemented", ins.Opcode)
	if p.currentBlock != nil {
		// The placeholder records no result or argument IDs, and no
		// result type is recorded for the unknown instruction.
		u := NewUnimplemented(p.currentLine, ins.Opcode)
		p.currentBlock.Instructions.PushBack(u)
	}
	return nil
}
