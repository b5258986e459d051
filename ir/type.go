package ir

import "github.com/softgpu/fragc/spirv"

// Type is a registered type: its kind plus the byte footprint used by
// memory allocation and register layout.
type Type struct {
	Inner TypeInner
	Size  uint32
}

// TypeInner is the kind of a type.
type TypeInner interface {
	typeInner()
}

// Void has no size.
type Void struct{}

func (Void) typeInner() {}

// Bool is a one-byte boolean.
type Bool struct{}

func (Bool) typeInner() {}

// Int is a 32-bit integer, signed or unsigned.
type Int struct {
	Width  uint32
	Signed bool
}

func (Int) typeInner() {}

// Float is a 32-bit float.
type Float struct {
	Width uint32
}

func (Float) typeInner() {}

// Vector is a flat sequence of 1 to 4 scalar elements.
type Vector struct {
	// Elem is the element type ID.
	Elem ID

	// Count is the number of elements.
	Count uint32
}

func (Vector) typeInner() {}

// Matrix is a sequence of column vectors. Data is column-major: the
// element at (row, col) lives at flat index col*rows + row. The layout
// is arbitrary but must be applied consistently everywhere.
type Matrix struct {
	// ColumnType is the type ID of each column vector.
	ColumnType ID

	// Columns is the number of columns.
	Columns uint32
}

func (Matrix) typeInner() {}

// Array is a flat sequence of elements.
type Array struct {
	Elem  ID
	Count uint32
}

func (Array) typeInner() {}

// Struct is a sequence of members. Member offsets derive from member
// sizes unless an explicit Offset decoration overrides them.
type Struct struct {
	Members []ID
}

func (Struct) typeInner() {}

// Pointer points at a value in a storage class.
type Pointer struct {
	Pointee ID
	Class   spirv.StorageClass
}

func (Pointer) typeInner() {}

// FunctionType is a function signature.
type FunctionType struct {
	Return ID
	Params []ID
}

func (FunctionType) typeInner() {}

// Image is a texture type. Lowering of image access is an extension
// point; the fields are carried through from the binary.
type Image struct {
	Sampled   ID
	Dim       uint32
	Depth     uint32
	Arrayed   uint32
	MS        uint32
	SampledOp uint32
	Format    uint32
	Access    uint32
}

func (Image) typeInner() {}

// Sampler is a bare sampler.
type Sampler struct{}

func (Sampler) typeInner() {}

// SampledImage pairs an image with a sampler.
type SampledImage struct {
	Image ID
}

func (SampledImage) typeInner() {}

// SizeOf returns the byte footprint of the type.
func (p *Program) SizeOf(typeID ID) uint32 {
	return p.Types[typeID].Size
}

// VectorOf returns the type as a Vector if it is one.
func (p *Program) VectorOf(typeID ID) (Vector, bool) {
	v, ok := p.Types[typeID].Inner.(Vector)
	return v, ok
}

// MatrixOf returns the type as a Matrix if it is one.
func (p *Program) MatrixOf(typeID ID) (Matrix, bool) {
	m, ok := p.Types[typeID].Inner.(Matrix)
	return m, ok
}

// IsFloat reports whether the type is a float. Integers, booleans, and
// pointers are not; any other type is a TypeError.
func (p *Program) IsFloat(typeID ID) (bool, error) {
	switch p.Types[typeID].Inner.(type) {
	case Float:
		return true, nil
	case Int, Bool, Pointer:
		return false, nil
	default:
		return false, errf(TypeError, "type %d is neither int nor float", typeID)
	}
}

// ConstituentInfo returns the type ID of and byte offset to constituent
// i of the composite type. For structs, members are zero-indexed.
func (p *Program) ConstituentInfo(typeID ID, i int) (ID, uint32, error) {
	t, ok := p.Types[typeID]
	if !ok {
		return NoID, 0, errf(TypeError, "unknown type %d", typeID)
	}
	switch inner := t.Inner.(type) {
	case Vector:
		if i < 0 || uint32(i) >= inner.Count {
			return NoID, 0, errf(TypeError, "vector index %d out of range for %d elements", i, inner.Count)
		}
		return inner.Elem, uint32(i) * p.SizeOf(inner.Elem), nil
	case Array:
		if i < 0 || uint32(i) >= inner.Count {
			return NoID, 0, errf(TypeError, "array index %d out of range for %d elements", i, inner.Count)
		}
		return inner.Elem, uint32(i) * p.SizeOf(inner.Elem), nil
	case Matrix:
		if i < 0 || uint32(i) >= inner.Columns {
			return NoID, 0, errf(TypeError, "matrix column %d out of range for %d columns", i, inner.Columns)
		}
		return inner.ColumnType, uint32(i) * p.SizeOf(inner.ColumnType), nil
	case Struct:
		if i < 0 || i >= len(inner.Members) {
			return NoID, 0, errf(TypeError, "struct member %d out of range for %d members", i, len(inner.Members))
		}
		if ops, ok := p.memberDecoration(typeID, uint32(i), spirv.DecorationOffset); ok && len(ops) > 0 {
			return inner.Members[i], ops[0], nil
		}
		var offset uint32
		for j := 0; j < i; j++ {
			offset += p.SizeOf(inner.Members[j])
		}
		return inner.Members[i], offset, nil
	default:
		return NoID, 0, errf(TypeError, "type %d has no constituents", typeID)
	}
}

// LaneCount returns how many 32-bit lanes a value of the type occupies
// in the register file: vector count, matrix columns*rows, else 1.
func (p *Program) LaneCount(typeID ID) uint32 {
	switch inner := p.Types[typeID].Inner.(type) {
	case Vector:
		return inner.Count
	case Matrix:
		if col, ok := p.VectorOf(inner.ColumnType); ok {
			return inner.Columns * col.Count
		}
		return inner.Columns
	default:
		return 1
	}
}

func (p *Program) memberDecoration(typeID ID, member uint32, d spirv.Decoration) ([]uint32, bool) {
	byMember, ok := p.MemberDecorations[typeID]
	if !ok {
		return nil, false
	}
	decs, ok := byMember[member]
	if !ok {
		return nil, false
	}
	ops, ok := decs[d]
	return ops, ok
}
