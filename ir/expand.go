package ir

import "github.com/softgpu/fragc/spirv"

// ExpandVectors rewrites every instruction with a vector (or matrix)
// result into scalar instructions operating on synthesized scalar
// registers, threading the scalar IDs through operands via the
// program's lane map. The pass is idempotent: running it on an
// already-scalar program changes nothing.
func ExpandVectors(p *Program) error {
	for _, fnID := range p.SortedFunctionIDs() {
		fn := p.Functions[fnID]
		entry := p.Blocks[fn.LabelID]
		if err := expandBlockTree(p, entry); err != nil {
			return err
		}
	}
	return nil
}

// expandBlockTree walks the dominator tree in pre-order so that every
// definition's lanes are mapped before its dominated uses.
func expandBlockTree(p *Program, block *Block) error {
	if err := expandBlock(p, block); err != nil {
		return err
	}
	for _, child := range block.IDomChildren {
		if err := expandBlockTree(p, p.Blocks[child]); err != nil {
			return err
		}
	}
	return nil
}

//nolint:gocyclo,cyclop,funlen // one case per expandable instruction shape
func expandBlock(p *Program, block *Block) error {
	old := make([]Instruction, 0, block.Instructions.Len())
	block.Instructions.ForEach(func(ins Instruction) {
		old = append(old, ins)
	})

	out := NewInstructionList(p.Arena, block)
	for _, ins := range old {
		var err error
		switch i := ins.(type) {
		case *UnOp:
			err = expandKindOp(p, out, ins, i.Type, i.Result, func(subtype ID, lane int, args []ID) Instruction {
				return NewUnOp(i.Line, i.Op, subtype, args[0], args[1])
			}, i.X)
		case *BinOp:
			if i.Op == spirv.OpDot {
				err = expandDot(p, out, i)
			} else {
				err = expandKindOp(p, out, ins, i.Type, i.Result, func(subtype ID, lane int, args []ID) Instruction {
					return NewBinOp(i.Line, i.Op, subtype, args[0], args[1], args[2])
				}, i.X, i.Y)
			}
		case *TerOp:
			err = expandKindOp(p, out, ins, i.Type, i.Result, func(subtype ID, lane int, args []ID) Instruction {
				return NewTerOp(i.Line, i.Op, subtype, args[0], args[1], args[2], args[3])
			}, i.X, i.Y, i.Z)
		case *VectorTimesScalar:
			err = expandVectorTimesScalar(p, out, i)
		case *MatrixTimesVector:
			err = expandMatrixTimesVector(p, out, i)
		case *Load:
			err = expandLoad(p, out, i)
		case *Store:
			err = expandStore(p, out, i)
		case *CompositeConstruct:
			err = expandCompositeConstruct(p, out, i)
		case *CompositeExtract:
			err = expandCompositeExtract(p, out, i)
		case *VectorShuffle:
			err = expandVectorShuffle(p, out, i)
		case *Phi:
			err = expandPhi(p, out, i)
		case *ExtInst:
			err = expandExtInst(p, out, i)
		default:
			out.PushBack(ins)
		}
		if err != nil {
			return err
		}
	}
	block.Instructions = out
	return nil
}

// lanes returns how many scalar lanes the type flattens to, or 1 when
// it is already scalar.
func lanes(p *Program, typeID ID) int {
	return int(p.LaneCount(typeID))
}

// laneType returns the scalar type of one flat lane of a vector or
// matrix type.
func laneType(p *Program, typeID ID) (ID, error) {
	switch inner := p.Types[typeID].Inner.(type) {
	case Vector:
		return inner.Elem, nil
	case Matrix:
		col, ok := p.VectorOf(inner.ColumnType)
		if !ok {
			return NoID, errf(TypeError, "matrix %d has non-vector columns", typeID)
		}
		return col.Elem, nil
	default:
		return typeID, nil
	}
}

// constantLane descends a composite constant to the scalar constant at
// the flat lane.
func constantLane(p *Program, id ID, lane int) (ID, error) {
	c := p.Constants[id]
	switch v := c.Value.(type) {
	case ScalarValue:
		return id, nil
	case CompositeValue:
		for _, elem := range v.Elements {
			n := lanes(p, p.TypeOf(elem))
			if lane < n {
				return constantLane(p, elem, lane)
			}
			lane -= n
		}
		return NoID, errf(TypeError, "lane out of range for composite constant %d", id)
	default:
		return NoID, errf(TypeError, "constant %d has no lanes", id)
	}
}

// scalarOperand returns the scalar ID standing for one lane of an
// operand. Scalars are broadcast: the same ID serves every lane.
func scalarOperand(p *Program, id ID, lane int) (ID, error) {
	if p.IsConstant(id) {
		if _, isScalar := p.Constants[id].Value.(ScalarValue); isScalar {
			return id, nil
		}
		return constantLane(p, id, lane)
	}
	typeID := p.TypeOf(id)
	if typeID == NoID {
		return id, nil
	}
	switch p.Types[typeID].Inner.(type) {
	case Vector, Matrix:
		sub, err := laneType(p, typeID)
		if err != nil {
			return NoID, err
		}
		return p.Scalarize(id, lane, sub), nil
	default:
		return id, nil
	}
}

// bindLane records that a lane of a composite register is an existing
// scalar, emitting a copy when a lane register was already synthesized
// (a dominated phi may have minted it first).
func bindLane(p *Program, out *InstructionList, line LineInfo, subtype, composite ID, lane int, scalar ID) {
	if existing, ok := p.BindScalar(composite, lane, scalar); !ok {
		out.PushBack(NewUnOp(line, spirv.OpCopyObject, subtype, existing, scalar))
	}
}

// expandKindOp is the uniform rewriter for unary, binary, and ternary
// kinds: for a vector result of width N it emits N scalar instructions
// of the same kind, lane i of every argument feeding lane i of the
// result. The mk callback receives the lane's [result, args...].
func expandKindOp(p *Program, out *InstructionList, ins Instruction, typeID, result ID,
	mk func(subtype ID, lane int, args []ID) Instruction, args ...ID) error {

	n := lanes(p, typeID)
	if n == 1 {
		out.PushBack(ins)
		return nil
	}
	subtype, err := laneType(p, typeID)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		laneArgs := []ID{p.Scalarize(result, i, subtype)}
		for _, a := range args {
			s, err := scalarOperand(p, a, i)
			if err != nil {
				return err
			}
			laneArgs = append(laneArgs, s)
		}
		out.PushBack(mk(subtype, i, laneArgs))
	}
	return nil
}

// expandDot lowers a dot product to lane multiplies and an add chain;
// the final add writes the original result register.
func expandDot(p *Program, out *InstructionList, ins *BinOp) error {
	vec, ok := p.VectorOf(p.TypeOf(ins.X))
	if !ok {
		out.PushBack(ins)
		return nil
	}
	n := int(vec.Count)
	ft := ins.Type

	acc := NoID
	for i := 0; i < n; i++ {
		x, err := scalarOperand(p, ins.X, i)
		if err != nil {
			return err
		}
		y, err := scalarOperand(p, ins.Y, i)
		if err != nil {
			return err
		}
		mulDst := p.NewID(ft)
		if n == 1 {
			mulDst = ins.Result
		}
		out.PushBack(NewBinOp(ins.Line, spirv.OpFMul, ft, mulDst, x, y))
		if i == 0 {
			acc = mulDst
			continue
		}
		addDst := p.NewID(ft)
		if i == n-1 {
			addDst = ins.Result
		}
		out.PushBack(NewBinOp(ins.Line, spirv.OpFAdd, ft, addDst, acc, mulDst))
		acc = addDst
	}
	return nil
}

// expandVectorTimesScalar emits one multiply per lane, every lane
// sharing the scalar operand.
func expandVectorTimesScalar(p *Program, out *InstructionList, ins *VectorTimesScalar) error {
	vec, ok := p.VectorOf(ins.Type)
	if !ok {
		out.PushBack(ins)
		return nil
	}
	for i := 0; i < int(vec.Count); i++ {
		v, err := scalarOperand(p, ins.Vector, i)
		if err != nil {
			return err
		}
		out.PushBack(NewBinOp(ins.Line, spirv.OpFMul, vec.Elem,
			p.Scalarize(ins.Result, i, vec.Elem), v, ins.Scalar))
	}
	return nil
}

// expandMatrixTimesVector lowers M×v into per-row multiply/add chains.
// The matrix is column-major: element (row, col) is flat lane
// col*rows + row.
func expandMatrixTimesVector(p *Program, out *InstructionList, ins *MatrixTimesVector) error {
	resVec, ok := p.VectorOf(ins.Type)
	if !ok {
		out.PushBack(ins)
		return nil
	}
	mat, ok := p.MatrixOf(p.TypeOf(ins.Matrix))
	if !ok {
		return errf(TypeError, "matrix operand %d of result %d is not a matrix", ins.Matrix, ins.Result)
	}
	rows := int(resVec.Count)
	cols := int(mat.Columns)
	ft := resVec.Elem

	for r := 0; r < rows; r++ {
		acc := NoID
		for c := 0; c < cols; c++ {
			m, err := scalarOperand(p, ins.Matrix, c*rows+r)
			if err != nil {
				return err
			}
			v, err := scalarOperand(p, ins.Vector, c)
			if err != nil {
				return err
			}
			mulDst := p.NewID(ft)
			out.PushBack(NewBinOp(ins.Line, spirv.OpFMul, ft, mulDst, m, v))
			if c == 0 {
				acc = mulDst
				continue
			}
			addDst := p.NewID(ft)
			if c == cols-1 {
				addDst = p.Scalarize(ins.Result, r, ft)
			}
			out.PushBack(NewBinOp(ins.Line, spirv.OpFAdd, ft, addDst, acc, mulDst))
			acc = addDst
		}
		if cols == 1 {
			bindLane(p, out, ins.Line, ft, ins.Result, r, acc)
		}
	}
	return nil
}

// expandLoad splits a wide load into per-lane loads at ascending byte
// offsets from the same pointer.
func expandLoad(p *Program, out *InstructionList, ins *Load) error {
	n := lanes(p, ins.Type)
	if n == 1 {
		out.PushBack(ins)
		return nil
	}
	sub, err := laneType(p, ins.Type)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		out.PushBack(NewLoad(ins.Line, sub, p.Scalarize(ins.Result, i, sub),
			ins.Pointer, ins.Offset+uint32(i)*p.SizeOf(sub)))
	}
	return nil
}

// expandStore splits a wide store into per-lane stores.
func expandStore(p *Program, out *InstructionList, ins *Store) error {
	typeID := p.TypeOf(ins.Value)
	n := lanes(p, typeID)
	if n == 1 {
		out.PushBack(ins)
		return nil
	}
	sub, err := laneType(p, typeID)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		v, err := scalarOperand(p, ins.Value, i)
		if err != nil {
			return err
		}
		out.PushBack(NewStore(ins.Line, ins.Pointer, v, ins.Offset+uint32(i)*p.SizeOf(sub)))
	}
	return nil
}

// expandCompositeConstruct maps each lane of the result onto the
// constituents' lanes; no code is emitted unless a lane register
// already existed.
func expandCompositeConstruct(p *Program, out *InstructionList, ins *CompositeConstruct) error {
	n := lanes(p, ins.Type)
	if n == 1 {
		out.PushBack(ins)
		return nil
	}
	sub, err := laneType(p, ins.Type)
	if err != nil {
		return err
	}
	lane := 0
	for _, c := range ins.Constituents {
		cn := lanes(p, p.TypeOf(c))
		for j := 0; j < cn; j++ {
			s, err := scalarOperand(p, c, j)
			if err != nil {
				return err
			}
			bindLane(p, out, ins.Line, sub, ins.Result, lane, s)
			lane++
		}
	}
	if lane != n {
		return errf(TypeError, "composite construct %d fills %d of %d lanes", ins.Result, lane, n)
	}
	return nil
}

// expandCompositeExtract resolves the literal index path to flat lanes
// of the composite and copies them into the result.
func expandCompositeExtract(p *Program, out *InstructionList, ins *CompositeExtract) error {
	srcType := p.TypeOf(ins.Composite)
	var offset uint32
	cur := srcType
	for _, idx := range ins.Indexes {
		sub, off, err := p.ConstituentInfo(cur, int(idx))
		if err != nil {
			return err
		}
		offset += off
		cur = sub
	}
	baseLane := int(offset / 4)

	n := lanes(p, ins.Type)
	if n == 1 {
		src, err := scalarOperand(p, ins.Composite, baseLane)
		if err != nil {
			return err
		}
		out.PushBack(NewUnOp(ins.Line, spirv.OpCopyObject, ins.Type, ins.Result, src))
		return nil
	}
	sub, err := laneType(p, ins.Type)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		src, err := scalarOperand(p, ins.Composite, baseLane+i)
		if err != nil {
			return err
		}
		bindLane(p, out, ins.Line, sub, ins.Result, i, src)
	}
	return nil
}

// expandVectorShuffle maps result lanes onto lanes of the two source
// vectors.
func expandVectorShuffle(p *Program, out *InstructionList, ins *VectorShuffle) error {
	v1Lanes := lanes(p, p.TypeOf(ins.V1))
	sub, err := laneType(p, ins.Type)
	if err != nil {
		return err
	}
	for i, c := range ins.Components {
		if c == 0xFFFFFFFF {
			// Undefined component; any value satisfies it.
			c = 0
		}
		var src ID
		if int(c) < v1Lanes {
			src, err = scalarOperand(p, ins.V1, int(c))
		} else {
			src, err = scalarOperand(p, ins.V2, int(c)-v1Lanes)
		}
		if err != nil {
			return err
		}
		bindLane(p, out, ins.Line, sub, ins.Result, i, src)
	}
	return nil
}

// expandPhi splits a vector phi into one scalar phi per lane, each
// carrying the lane's value from every predecessor.
func expandPhi(p *Program, out *InstructionList, ins *Phi) error {
	n := lanes(p, ins.Type)
	if n == 1 {
		out.PushBack(ins)
		return nil
	}
	sub, err := laneType(p, ins.Type)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		pairs := make([]PhiPair, 0, len(ins.Pairs))
		for _, pair := range ins.Pairs {
			v, err := scalarOperand(p, pair.Value, i)
			if err != nil {
				return err
			}
			pairs = append(pairs, PhiPair{Value: v, Pred: pair.Pred})
		}
		phi := NewPhi(ins.Line, sub, p.Scalarize(ins.Result, i, sub), pairs)
		phi.FromPred = make(map[ID]ID, len(pairs))
		for _, pair := range pairs {
			phi.FromPred[pair.Pred] = pair.Value
		}
		out.PushBack(phi)
	}
	return nil
}

// componentwiseExt are the GLSL.std.450 instructions that apply
// independently per lane.
var componentwiseExt = map[spirv.GLSLstd450]struct{}{
	spirv.GLSLstd450Round: {}, spirv.GLSLstd450Trunc: {}, spirv.GLSLstd450FAbs: {},
	spirv.GLSLstd450FSign: {}, spirv.GLSLstd450Floor: {}, spirv.GLSLstd450Ceil: {},
	spirv.GLSLstd450Fract: {}, spirv.GLSLstd450Radians: {}, spirv.GLSLstd450Degrees: {},
	spirv.GLSLstd450Sin: {}, spirv.GLSLstd450Cos: {}, spirv.GLSLstd450Tan: {},
	spirv.GLSLstd450Asin: {}, spirv.GLSLstd450Acos: {}, spirv.GLSLstd450Atan: {},
	spirv.GLSLstd450Atan2: {}, spirv.GLSLstd450Pow: {}, spirv.GLSLstd450Exp: {},
	spirv.GLSLstd450Log: {}, spirv.GLSLstd450Exp2: {}, spirv.GLSLstd450Log2: {},
	spirv.GLSLstd450Sqrt: {}, spirv.GLSLstd450InverseSqrt: {},
	spirv.GLSLstd450FMin: {}, spirv.GLSLstd450FMax: {}, spirv.GLSLstd450FClamp: {},
	spirv.GLSLstd450FMix: {}, spirv.GLSLstd450Step: {}, spirv.GLSLstd450SmoothStep: {},
}

//nolint:gocyclo,cyclop // a few geometric instructions with bespoke lowerings
func expandExtInst(p *Program, out *InstructionList, ins *ExtInst) error {
	if _, ok := componentwiseExt[ins.Ext]; ok {
		return expandKindOp(p, out, ins, ins.Type, ins.Result, func(subtype ID, lane int, args []ID) Instruction {
			return NewExtInst(ins.Line, ins.Ext, subtype, args[0], args[1:])
		}, ins.Args...)
	}

	switch ins.Ext {
	case spirv.GLSLstd450Length:
		return expandLength(p, out, ins, ins.Args[0], ins.Result)

	case spirv.GLSLstd450Distance:
		vec, ok := p.VectorOf(p.TypeOf(ins.Args[0]))
		if !ok {
			out.PushBack(ins)
			return nil
		}
		ft := ins.Type
		diff := p.NewID(p.TypeOf(ins.Args[0]))
		for i := 0; i < int(vec.Count); i++ {
			a, err := scalarOperand(p, ins.Args[0], i)
			if err != nil {
				return err
			}
			b, err := scalarOperand(p, ins.Args[1], i)
			if err != nil {
				return err
			}
			out.PushBack(NewBinOp(ins.Line, spirv.OpFSub, ft, p.Scalarize(diff, i, ft), a, b))
		}
		return expandLength(p, out, ins, diff, ins.Result)

	case spirv.GLSLstd450Normalize:
		vec, ok := p.VectorOf(ins.Type)
		if !ok {
			out.PushBack(ins)
			return nil
		}
		ft := vec.Elem
		length := p.NewID(ft)
		if err := expandLength(p, out, ins, ins.Args[0], length); err != nil {
			return err
		}
		for i := 0; i < int(vec.Count); i++ {
			v, err := scalarOperand(p, ins.Args[0], i)
			if err != nil {
				return err
			}
			out.PushBack(NewBinOp(ins.Line, spirv.OpFDiv, ft,
				p.Scalarize(ins.Result, i, ft), v, length))
		}
		return nil

	case spirv.GLSLstd450Cross:
		vec, ok := p.VectorOf(ins.Type)
		if !ok || vec.Count != 3 {
			return errf(TypeError, "cross product %d needs vec3 operands", ins.Result)
		}
		ft := vec.Elem
		// Lane i of a×b is a[i+1]*b[i+2] - a[i+2]*b[i+1], indexes mod 3.
		for i := 0; i < 3; i++ {
			j, k := (i+1)%3, (i+2)%3
			aj, err := scalarOperand(p, ins.Args[0], j)
			if err != nil {
				return err
			}
			bk, err := scalarOperand(p, ins.Args[1], k)
			if err != nil {
				return err
			}
			ak, err := scalarOperand(p, ins.Args[0], k)
			if err != nil {
				return err
			}
			bj, err := scalarOperand(p, ins.Args[1], j)
			if err != nil {
				return err
			}
			m1, m2 := p.NewID(ft), p.NewID(ft)
			out.PushBack(NewBinOp(ins.Line, spirv.OpFMul, ft, m1, aj, bk))
			out.PushBack(NewBinOp(ins.Line, spirv.OpFMul, ft, m2, ak, bj))
			out.PushBack(NewBinOp(ins.Line, spirv.OpFSub, ft, p.Scalarize(ins.Result, i, ft), m1, m2))
		}
		return nil

	default:
		if lanes(p, ins.Type) == 1 {
			out.PushBack(ins)
			return nil
		}
		// Geometric instructions beyond the set above are extension
		// points; downgrade like any unimplemented opcode.
		p.HasUnimplemented = true
		p.Log().Warnf("extended instruction %s on vectors not implemented", ins.Ext)
		out.PushBack(NewUnimplemented(ins.Line, spirv.OpExtInst))
		return nil
	}
}

// expandLength lowers length(v) = sqrt(v·v), writing the final sqrt to
// dst.
func expandLength(p *Program, out *InstructionList, ins *ExtInst, vecID, dst ID) error {
	vec, ok := p.VectorOf(p.TypeOf(vecID))
	if !ok {
		out.PushBack(ins)
		return nil
	}
	ft := vec.Elem
	acc := NoID
	for i := 0; i < int(vec.Count); i++ {
		v, err := scalarOperand(p, vecID, i)
		if err != nil {
			return err
		}
		mulDst := p.NewID(ft)
		out.PushBack(NewBinOp(ins.Line, spirv.OpFMul, ft, mulDst, v, v))
		if i == 0 {
			acc = mulDst
			continue
		}
		addDst := p.NewID(ft)
		out.PushBack(NewBinOp(ins.Line, spirv.OpFAdd, ft, addDst, acc, mulDst))
		acc = addDst
	}
	out.PushBack(NewExtInst(ins.Line, spirv.GLSLstd450Sqrt, ft, dst, []ID{acc}))
	return nil
}
