package ir

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/softgpu/fragc/spirv"
)

// Options configures IR construction.
type Options struct {
	// ThrowOnUnimplemented makes unknown opcodes fatal instead of
	// becoming #error# placeholders.
	ThrowOnUnimplemented bool

	// Verbose is recorded with the options; no pass reads it, and the
	// passes log no debug-level messages.
	Verbose bool

	// Logger receives diagnostics; defaults to the standard logger.
	Logger logrus.FieldLogger
}

// Memory layout: each storage class gets one region of the memory
// image. The layout is fixed so the execution environment can find
// inputs and outputs.
const (
	RegionSize = 0x1000

	UniformConstantBase = 0x0000
	InputBase           = 0x1000
	UniformBase         = 0x2000
	OutputBase          = 0x3000
	PrivateBase         = 0x4000
	FunctionBase        = 0x5000
	WorkgroupBase       = 0x6000

	// MemorySize is the total size of the memory image.
	MemorySize = 0x7000
)

// regIndex keys the vector-to-scalar lane map.
type regIndex struct {
	reg  ID
	lane int
}

// Program is the static state of one shader module: the single owner of
// all IR entities. It is built once by the Builder, mutated by the
// transform passes, and read-only during emission.
type Program struct {
	// Opts are the construction options.
	Opts Options

	// Header is the decoded module header.
	Header spirv.Header

	// Capabilities declared by the module.
	Capabilities map[spirv.Capability]struct{}

	// ExtInstSets maps import IDs to set names.
	ExtInstSets map[ID]string

	// GLSLstd450ID is the import ID of GLSL.std.450, or NoID.
	GLSLstd450ID ID

	// Strings, Names, and MemberNames are debug metadata.
	Strings     map[ID]string
	Names       map[ID]string
	MemberNames map[ID]map[uint32]string

	// Decorations and MemberDecorations, keyed by target ID (and member).
	Decorations       map[ID]Decorations
	MemberDecorations map[ID]map[uint32]Decorations

	// Sources holds source-language records.
	Sources []Source

	// Types holds every registered type, keyed by result ID.
	Types map[ID]Type

	// Variables, Constants, Functions, and Blocks, keyed by result ID.
	Variables map[ID]*Variable
	Constants map[ID]*Constant
	Functions map[ID]*Function
	Blocks    map[ID]*Block

	// ResultTypes maps instruction result IDs to their type IDs.
	ResultTypes map[ID]ID

	// EntryPoints maps function IDs to entry point records.
	EntryPoints map[ID]EntryPoint

	// MainFunction is the Fragment entry function, or NoFunction.
	MainFunction ID

	// Regions holds one bump allocator per storage class.
	Regions map[spirv.StorageClass]*MemoryRegion

	// NamedVariables locates flattened named variables in memory.
	NamedVariables map[string]VariableInfo

	// Arena owns every instruction node.
	Arena *Arena

	// Instructions is the post-transform linearization used by the
	// register allocator and the emitter.
	Instructions []Instruction

	// Labels maps block label IDs to their first linear pc.
	Labels map[ID]int

	// HasUnimplemented records that at least one opcode was downgraded
	// to a placeholder.
	HasUnimplemented bool

	// nextID hands out fresh result IDs for the vector expander,
	// starting at the module's id bound.
	nextID ID

	// vecToScalar maps (vector register, lane) to its scalar register.
	vecToScalar map[regIndex]ID

	// Builder cursors, valid only while parsing.
	currentFunction *Function
	currentBlock    *Block
	currentLine     LineInfo

	log logrus.FieldLogger
}

// NewProgram returns an empty program.
func NewProgram(opts Options) *Program {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Program{
		Opts:              opts,
		Capabilities:      make(map[spirv.Capability]struct{}),
		ExtInstSets:       make(map[ID]string),
		GLSLstd450ID:      NoID,
		Strings:           make(map[ID]string),
		Names:             make(map[ID]string),
		MemberNames:       make(map[ID]map[uint32]string),
		Decorations:       make(map[ID]Decorations),
		MemberDecorations: make(map[ID]map[uint32]Decorations),
		Types:             make(map[ID]Type),
		Variables:         make(map[ID]*Variable),
		Constants:         make(map[ID]*Constant),
		Functions:         make(map[ID]*Function),
		Blocks:            make(map[ID]*Block),
		ResultTypes:       make(map[ID]ID),
		EntryPoints:       make(map[ID]EntryPoint),
		MainFunction:      NoFunction,
		Regions:           defaultRegions(),
		NamedVariables:    make(map[string]VariableInfo),
		Arena:             NewArena(),
		Labels:            make(map[ID]int),
		vecToScalar:       make(map[regIndex]ID),
		currentLine:       NoLineInfo,
		log:               log,
	}
	return p
}

func defaultRegions() map[spirv.StorageClass]*MemoryRegion {
	return map[spirv.StorageClass]*MemoryRegion{
		spirv.StorageClassUniformConstant: NewMemoryRegion(UniformConstantBase, RegionSize),
		spirv.StorageClassInput:           NewMemoryRegion(InputBase, RegionSize),
		spirv.StorageClassUniform:         NewMemoryRegion(UniformBase, RegionSize),
		spirv.StorageClassOutput:          NewMemoryRegion(OutputBase, RegionSize),
		spirv.StorageClassPrivate:         NewMemoryRegion(PrivateBase, RegionSize),
		spirv.StorageClassFunction:        NewMemoryRegion(FunctionBase, RegionSize),
		spirv.StorageClassWorkgroup:       NewMemoryRegion(WorkgroupBase, RegionSize),
	}
}

// Log returns the program's logger.
func (p *Program) Log() logrus.FieldLogger { return p.log }

// TypeOf returns the type ID of an entity: an instruction result, a
// constant, or a variable (the pointee). Returns NoID if unknown.
func (p *Program) TypeOf(id ID) ID {
	if t, ok := p.ResultTypes[id]; ok {
		return t
	}
	if c, ok := p.Constants[id]; ok {
		return c.Type
	}
	return NoID
}

// IsConstant reports whether the register holds a module constant.
func (p *Program) IsConstant(id ID) bool {
	_, ok := p.Constants[id]
	return ok
}

// Allocate reserves room for a value of the type in the storage class's
// region and returns its address.
func (p *Program) Allocate(class spirv.StorageClass, typeID ID) (uint32, error) {
	region, ok := p.Regions[class]
	if !ok {
		return 0, errf(UnsupportedFeature, "no memory region for storage class %s", class)
	}
	return region.Allocate(p.SizeOf(typeID))
}

// NewID hands out a fresh result ID above the module's id bound.
func (p *Program) NewID(typeID ID) ID {
	id := p.nextID
	p.nextID++
	p.ResultTypes[id] = typeID
	return id
}

// Scalarize returns the scalar register standing for lane i of the
// vector register, creating a fresh one on first use.
func (p *Program) Scalarize(vreg ID, lane int, subtype ID) ID {
	key := regIndex{vreg, lane}
	if id, ok := p.vecToScalar[key]; ok {
		return id
	}
	id := p.NewID(subtype)
	p.vecToScalar[key] = id
	return id
}

// ScalarFor returns the scalar register for the lane if one exists.
func (p *Program) ScalarFor(vreg ID, lane int) (ID, bool) {
	id, ok := p.vecToScalar[regIndex{vreg, lane}]
	return id, ok
}

// BindScalar records that lane i of vreg is the existing register
// scalar. If a different scalar was already created for the lane, it is
// returned with ok=false and the caller must materialize a copy.
func (p *Program) BindScalar(vreg ID, lane int, scalar ID) (ID, bool) {
	key := regIndex{vreg, lane}
	if id, ok := p.vecToScalar[key]; ok {
		if id == scalar {
			return id, true
		}
		return id, false
	}
	p.vecToScalar[key] = scalar
	return scalar, true
}

// CleanName strips a glslang-mangled function name down to an assembly
// label: everything from the first '(' is dropped and remaining
// non-alphanumeric characters become underscores.
func CleanName(name string) string {
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	if sb.Len() == 0 {
		return ".anonymous"
	}
	return sb.String()
}

// FunctionName returns the cleaned-up label for a function: its OpName,
// else its entry-point name, else f<id>.
func (p *Program) FunctionName(id ID) string {
	if name, ok := p.Names[id]; ok {
		return CleanName(name)
	}
	if ep, ok := p.EntryPoints[id]; ok && ep.Name != "" {
		return CleanName(ep.Name)
	}
	return "f" + uitoa(id)
}

// SortedFunctionIDs returns the function IDs in ascending order.
func (p *Program) SortedFunctionIDs() []ID {
	return sortedIDs(p.Functions)
}

// Linearize flattens every function's blocks into the Instructions
// vector, assigning linear pcs, block ranges, and function starts. It
// must be re-run after any pass that rewrites instruction lists.
func (p *Program) Linearize() {
	p.Instructions = p.Instructions[:0]
	p.Labels = make(map[ID]int)
	for _, fnID := range p.SortedFunctionIDs() {
		fn := p.Functions[fnID]
		fn.Start = len(p.Instructions)
		for _, labelID := range fn.BlockOrder {
			block := p.Blocks[labelID]
			block.Begin = len(p.Instructions)
			p.Labels[labelID] = block.Begin
			block.Instructions.ForEach(func(ins Instruction) {
				p.Instructions = append(p.Instructions, ins)
			})
			block.End = len(p.Instructions)
		}
	}
}

// PostParse performs the checks and derivations that need the whole
// module: the Fragment entry point must exist, and named variables are
// flattened for the execution environment.
func (p *Program) PostParse() error {
	if p.MainFunction == NoFunction {
		return errf(UnsupportedFeature, "no entry point for the Fragment execution model")
	}
	if _, ok := p.Functions[p.MainFunction]; !ok {
		return errf(InvariantViolation, "entry point names unknown function %d", p.MainFunction)
	}
	for _, id := range sortedIDs(p.Variables) {
		v := p.Variables[id]
		if name, ok := p.Names[id]; ok && name != "" {
			if err := p.storeNamedVariableInfo(name, v.Type, v.Address); err != nil {
				return err
			}
		}
	}
	return nil
}

// storeNamedVariableInfo records the address and size of a named
// variable, recursing into structs and arrays so that every leaf gets a
// dotted or indexed name.
func (p *Program) storeNamedVariableInfo(name string, typeID ID, address uint32) error {
	switch inner := p.Types[typeID].Inner.(type) {
	case Struct:
		for i := range inner.Members {
			memberName := ""
			if names, ok := p.MemberNames[typeID]; ok {
				memberName = names[uint32(i)]
			}
			full := memberName
			if name != "" {
				full = name + "." + memberName
			}
			sub, offset, err := p.ConstituentInfo(typeID, i)
			if err != nil {
				return err
			}
			if err := p.storeNamedVariableInfo(full, sub, address+offset); err != nil {
				return err
			}
		}
	case Array:
		for i := uint32(0); i < inner.Count; i++ {
			full := name + "[" + uitoa(i) + "]"
			if err := p.storeNamedVariableInfo(full, inner.Elem, address+i*p.SizeOf(inner.Elem)); err != nil {
				return err
			}
		}
	case Vector, Float, Int, Bool, Matrix, SampledImage, Image:
		p.NamedVariables[name] = VariableInfo{Address: address, Size: p.SizeOf(typeID)}
	default:
		p.log.Warnf("unhandled type for named variable %q", name)
	}
	return nil
}

func uitoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
