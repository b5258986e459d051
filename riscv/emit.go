package riscv

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/softgpu/fragc/ir"
	"github.com/softgpu/fragc/spirv"
)

// Options configures the backend.
type Options struct {
	// Library is the text appended verbatim after emission; it provides
	// the math routines the emitted code calls into.
	Library string

	// ThrowOnUnimplemented upgrades #error# placeholders to failures.
	ThrowOnUnimplemented bool
}

// Compiler drives the backend: peephole, liveness, register
// assignment, then emission to a single text stream.
type Compiler struct {
	prog *ir.Program
	opts Options

	out strings.Builder

	// registers maps virtual registers to their allocation records.
	registers map[ir.ID]*Register

	// pointers maps access-chain results to their instructions for
	// static address resolution.
	pointers map[ir.ID]*ir.AccessChain

	intPool    []uint32
	floatPool  []uint32
	localLabel int
}

// Compile lowers a fully transformed program to assembly text.
func Compile(prog *ir.Program, opts Options) (string, error) {
	Peephole(prog)
	if err := ir.ComputeLiveness(prog); err != nil {
		return "", err
	}

	c := &Compiler{
		prog:      prog,
		opts:      opts,
		registers: make(map[ir.ID]*Register),
		pointers:  make(map[ir.ID]*ir.AccessChain),
	}
	for i := firstIntReg; i < numIntRegs; i++ {
		c.intPool = append(c.intPool, uint32(i))
	}
	for i := 0; i < numFloatRegs; i++ {
		c.floatPool = append(c.floatPool, uint32(floatRegBase+i))
	}
	for _, ins := range prog.Instructions {
		if ac, ok := ins.(*ir.AccessChain); ok {
			c.pointers[ac.Result] = ac
		}
	}

	if err := c.assignRegisters(); err != nil {
		return "", err
	}
	if err := c.emitProgram(); err != nil {
		return "", err
	}
	return c.out.String(), nil
}

// emit writes one instruction line: 8 spaces of indent, the operation
// padded to 30 columns, and an optional comment.
func (c *Compiler) emit(op, comment string) {
	line := fmt.Sprintf("        %-30s", op)
	if comment != "" {
		line += "; " + comment
	}
	c.out.WriteString(strings.TrimRight(line, " "))
	c.out.WriteByte('\n')
}

// emitLabel writes a label at column zero.
func (c *Compiler) emitLabel(label string) {
	if label == "" {
		label = ".anonymous"
	}
	c.out.WriteString(label)
	c.out.WriteString(":\n")
}

// emitRaw writes a line verbatim.
func (c *Compiler) emitRaw(line string) {
	c.out.WriteString(line)
	c.out.WriteByte('\n')
}

// makeLocalLabel hands out emitter-private labels.
func (c *Compiler) makeLocalLabel() string {
	label := "local" + strconv.Itoa(c.localLabel)
	c.localLabel++
	return label
}

// reg renders lane 0 of a virtual register.
func (c *Compiler) reg(id ir.ID) string {
	return c.regLane(id, 0)
}

// regLane renders one lane of a virtual register: its physical register
// when allocated, a float literal for unpinned float constants, the
// entity's name when it has one, and r<id> as a last resort.
func (c *Compiler) regLane(id ir.ID, lane int) string {
	if r, ok := c.registers[id]; ok && lane < len(r.Phy) {
		return phyName(r.Phy[lane])
	}
	if constant, ok := c.prog.Constants[id]; ok {
		if _, isFloat := c.prog.Types[constant.Type].Inner.(ir.Float); isFloat {
			if sv, ok := constant.Scalar(); ok {
				return formatFloat(math.Float32frombits(sv.Bits))
			}
		}
	}
	if name, ok := c.prog.Names[id]; ok && name != "" {
		return ir.CleanName(name)
	}
	return "r" + uitoa(id)
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

// constantLabel names a constant's storage: its declared name when it
// has one, .C<id> otherwise.
func (c *Compiler) constantLabel(id ir.ID) string {
	if name, ok := c.prog.Names[id]; ok && name != "" {
		return ir.CleanName(name)
	}
	return ".C" + uitoa(id)
}

// pointeeOf returns the type a pointer-valued ID points at.
func (c *Compiler) pointeeOf(id ir.ID) ir.ID {
	if v, ok := c.prog.Variables[id]; ok {
		return v.Type
	}
	if ac, ok := c.pointers[id]; ok {
		if ptr, ok := c.prog.Types[ac.Type].Inner.(ir.Pointer); ok {
			return ptr.Pointee
		}
	}
	return ir.NoID
}

// resolveAddress resolves a pointer to a static label or address plus a
// byte offset. Access chains with non-constant indexes do not resolve.
func (c *Compiler) resolveAddress(id ir.ID) (label string, offset uint32, ok bool) {
	if v, ok := c.prog.Variables[id]; ok {
		if name, named := c.prog.Names[id]; named && name != "" {
			return ir.CleanName(name), 0, true
		}
		return "", v.Address, true
	}
	ac, isChain := c.pointers[id]
	if !isChain {
		return "", 0, false
	}
	label, offset, ok = c.resolveAddress(ac.Base)
	if !ok {
		return "", 0, false
	}
	cur := c.pointeeOf(ac.Base)
	for _, idxID := range ac.Indexes {
		idx, isConst := integerConstant(c.prog, idxID)
		if !isConst {
			return "", 0, false
		}
		sub, off, err := c.prog.ConstituentInfo(cur, int(idx))
		if err != nil {
			return "", 0, false
		}
		offset += off
		cur = sub
	}
	return label, offset, true
}

// memOperand renders a resolved address as an addressing-mode operand.
func memOperand(label string, offset uint32) string {
	if label == "" {
		return uitoa(offset) + "(x0)"
	}
	if offset == 0 {
		return label + "(x0)"
	}
	return label + "+" + uitoa(offset) + "(x0)"
}

// emitProgram writes the whole listing: prologue, functions with their
// labels and instructions, then the variable and constant sections and
// the library.
func (c *Compiler) emitProgram() error {
	prog := c.prog

	c.emit("jal ra, "+prog.FunctionName(prog.MainFunction), "")
	c.emit("ebreak", "")

	labelAt := make(map[int][]ir.ID)
	for labelID, pc := range prog.Labels {
		labelAt[pc] = append(labelAt[pc], labelID)
	}

	for pc, ins := range prog.Instructions {
		for _, fnID := range prog.SortedFunctionIDs() {
			fn := prog.Functions[fnID]
			if fn.Start != pc {
				continue
			}
			name := prog.FunctionName(fnID)
			c.emitRaw("; ---------------------------- function \"" + name + "\"")
			c.emitLabel(name)
			c.emitParameterLoads(fn)
			if err := c.emitConstantLoads(fn); err != nil {
				return err
			}
		}

		for _, labelID := range labelAt[pc] {
			c.emitLabel("label" + uitoa(labelID))
		}

		if err := c.emitInstruction(ins); err != nil {
			return err
		}
	}

	c.emitVariables()
	if err := c.emitConstants(); err != nil {
		return err
	}

	c.out.WriteString(c.opts.Library)
	return nil
}

// emitParameterLoads pops the caller-pushed parameters into the
// registers pinned for them.
func (c *Compiler) emitParameterLoads(fn *ir.Function) {
	slot := 0
	for _, paramID := range fn.Parameters {
		r, ok := c.registers[paramID]
		if !ok {
			continue
		}
		for lane := 0; lane < len(r.Phy); lane++ {
			mnemonic := "lw"
			if r.Phy[lane] >= floatRegBase {
				mnemonic = "flw"
			}
			c.emit(fmt.Sprintf("%s %s, %d(sp)", mnemonic, phyName(r.Phy[lane]), slot*4), "Load parameter")
			slot++
		}
	}
}

// emitConstantLoads fills the registers pre-pinned for the constants
// live into the function.
func (c *Compiler) emitConstantLoads(fn *ir.Function) error {
	prog := c.prog
	entry := prog.Instructions[fn.Start]
	for _, regID := range entry.Head().LiveInAll.Sorted() {
		if !prog.IsConstant(regID) {
			continue
		}
		r, ok := c.registers[regID]
		if !ok || len(r.Phy) == 0 {
			return &ir.Error{Kind: ir.InvariantViolation,
				Msg: "constant " + uitoa(regID) + " has no register at head of function"}
		}
		mnemonic := "lw"
		if r.Phy[0] >= floatRegBase {
			mnemonic = "flw"
		}
		c.emit(fmt.Sprintf("%s %s, %s(x0)", mnemonic, phyName(r.Phy[0]), c.constantLabel(regID)),
			"Load constant")
	}
	return nil
}

// notImplemented emits the #error# placeholder, or fails when the
// caller asked for strictness.
func (c *Compiler) notImplemented(what string) error {
	if c.opts.ThrowOnUnimplemented {
		return &ir.Error{Kind: ir.UnimplementedOpcode, Msg: what}
	}
	c.prog.Log().Warnf("%s not implemented", what)
	c.emit("#error#", what+" not implemented")
	return nil
}

//nolint:gocyclo,cyclop,funlen // one case per instruction shape
func (c *Compiler) emitInstruction(ins ir.Instruction) error {
	switch i := ins.(type) {
	case *ir.UnOp:
		mnemonic, ok := unOpMnemonics[i.Op]
		if !ok {
			return c.notImplemented(i.Op.String())
		}
		c.emit(fmt.Sprintf("%s %s, %s", mnemonic, c.reg(i.Result), c.reg(i.X)),
			fmt.Sprintf("r%d = %s r%d", i.Result, mnemonic, i.X))

	case *ir.BinOp:
		return c.emitBinOp(i)

	case *ir.TerOp:
		if i.Op != spirv.OpSelect {
			return c.notImplemented(i.Op.String())
		}
		local := c.makeLocalLabel()
		c.emit(fmt.Sprintf("mov %s, %s", c.reg(i.Result), c.reg(i.Y)), "Select: assume true")
		c.emit(fmt.Sprintf("bne %s, x0, %s", c.reg(i.X), local), "")
		c.emit(fmt.Sprintf("mov %s, %s", c.reg(i.Result), c.reg(i.Z)), "Select: false")
		c.emitLabel(local)

	case *ir.AddImm:
		c.emit(fmt.Sprintf("addi %s, %s, %d", c.reg(i.Result), c.reg(i.X), i.Imm),
			fmt.Sprintf("r%d = r%d + %d", i.Result, i.X, i.Imm))

	case *ir.Load:
		label, offset, ok := c.resolveAddress(i.Pointer)
		if !ok {
			return c.notImplemented("load through dynamic pointer")
		}
		offset += i.Offset
		mnemonic := "lw"
		if c.isFloatReg(i.Result) {
			mnemonic = "flw"
		}
		c.emit(fmt.Sprintf("%s %s, %s", mnemonic, c.reg(i.Result), memOperand(label, offset)),
			fmt.Sprintf("r%d = load", i.Result))

	case *ir.Store:
		label, offset, ok := c.resolveAddress(i.Pointer)
		if !ok {
			return c.notImplemented("store through dynamic pointer")
		}
		offset += i.Offset
		mnemonic := "sw"
		if c.isFloatReg(i.Value) {
			mnemonic = "fsw"
		}
		c.emit(fmt.Sprintf("%s %s, %s", mnemonic, c.reg(i.Value), memOperand(label, offset)),
			fmt.Sprintf("store r%d", i.Value))

	case *ir.AccessChain:
		// Static chains fold into the loads and stores that use them.
		if _, _, ok := c.resolveAddress(i.Result); !ok {
			return c.notImplemented("access chain with dynamic index")
		}

	case *ir.Phi:
		// Copies are materialized at each predecessor's terminator.

	case *ir.Branch:
		c.emitPhiCopies(i.Block, i.Target)
		c.emit("j label"+uitoa(i.Target), "")

	case *ir.BranchConditional:
		trueLabel := "label" + uitoa(i.True)
		c.emitPhiCopies(i.Block, i.True)
		c.emit(fmt.Sprintf("bne %s, x0, %s", c.reg(i.Cond), trueLabel), "")
		c.emitPhiCopies(i.Block, i.False)
		c.emit("j label"+uitoa(i.False), "")

	case *ir.Return:
		c.emit("ret", "")

	case *ir.ReturnValue:
		mnemonic := "sw"
		if c.isFloatReg(i.Value) {
			mnemonic = "fsw"
		}
		c.emit(fmt.Sprintf("%s %s, 0(sp)", mnemonic, c.reg(i.Value)), "Return value")
		c.emit("ret", "")

	case *ir.Kill:
		c.emit("ebreak", "Kill")

	case *ir.Unreachable:
		c.emit("ebreak", "Unreachable")

	case *ir.ExtInst:
		return c.emitExtInst(i)

	case *ir.FunctionCall:
		var results []ir.ID
		if _, isVoid := c.prog.Types[i.Type].Inner.(ir.Void); !isVoid {
			results = append(results, i.Result)
		}
		c.emitCall(c.prog.FunctionName(i.Function), results, i.Args)

	case *ir.Unimplemented:
		return c.notImplemented(i.Opc.String())

	default:
		return c.notImplemented(ins.Opcode().String())
	}
	return nil
}

// emitBinOp lowers arithmetic, bitwise, and comparison operators.
func (c *Compiler) emitBinOp(i *ir.BinOp) error {
	comment := fmt.Sprintf("r%d = %s r%d r%d", i.Result, i.Op, i.X, i.Y)

	if mnemonic, ok := intBinOps[i.Op]; ok {
		c.emit(fmt.Sprintf("%s %s, %s, %s", mnemonic, c.reg(i.Result), c.reg(i.X), c.reg(i.Y)), comment)
		return nil
	}
	if mnemonic, ok := floatBinOps[i.Op]; ok {
		c.emit(fmt.Sprintf("%s %s, %s, %s", mnemonic, c.reg(i.Result), c.reg(i.X), c.reg(i.Y)), comment)
		return nil
	}
	if l, ok := compareOps[i.Op]; ok {
		x, y := i.X, i.Y
		if l.swap {
			x, y = y, x
		}
		c.emit(fmt.Sprintf("%s %s, %s, %s", l.mnemonic, c.reg(i.Result), c.reg(x), c.reg(y)), comment)
		if l.invert {
			c.emit(fmt.Sprintf("seqz %s, %s", c.reg(i.Result), c.reg(i.Result)), "")
		}
		return nil
	}

	switch i.Op {
	case spirv.OpIEqual, spirv.OpLogicalEqual:
		c.emit(fmt.Sprintf("sub %s, %s, %s", c.reg(i.Result), c.reg(i.X), c.reg(i.Y)), comment)
		c.emit(fmt.Sprintf("seqz %s, %s", c.reg(i.Result), c.reg(i.Result)), "")
	case spirv.OpINotEqual, spirv.OpLogicalNotEqual:
		c.emit(fmt.Sprintf("sub %s, %s, %s", c.reg(i.Result), c.reg(i.X), c.reg(i.Y)), comment)
		c.emit(fmt.Sprintf("snez %s, %s", c.reg(i.Result), c.reg(i.Result)), "")
	case spirv.OpFRem, spirv.OpFMod:
		c.emitCall("fmod", []ir.ID{i.Result}, []ir.ID{i.X, i.Y})
	default:
		return c.notImplemented(i.Op.String())
	}
	return nil
}

// emitExtInst lowers a GLSL.std.450 instruction: natively when a single
// machine instruction covers it, otherwise through the library-call
// protocol.
func (c *Compiler) emitExtInst(i *ir.ExtInst) error {
	if mnemonic, ok := nativeExt[i.Ext]; ok {
		operands := c.reg(i.Result)
		for _, a := range i.Args {
			operands += ", " + c.reg(a)
		}
		c.emit(mnemonic+" "+operands, fmt.Sprintf("r%d = %s", i.Result, i.Ext))
		return nil
	}
	routine, ok := extRoutines[i.Ext]
	if !ok {
		return c.notImplemented(i.Ext.String())
	}
	c.emitCall(routine, []ir.ID{i.Result}, i.Args)
	return nil
}

// emitPhiCopies materializes, just before a branch from fromBlock, the
// copies for every phi at the head of the target block. A copy whose
// source and destination share a physical register is emitted commented
// out.
func (c *Compiler) emitPhiCopies(fromBlock, target ir.ID) {
	block := c.prog.Blocks[target]
	list := block.Instructions
	for node := list.HeadNode(); node != ir.NoNode; node = list.Next(node) {
		phi, ok := list.At(node).(*ir.Phi)
		if !ok {
			break
		}
		src, ok := phi.FromPred[fromBlock]
		if !ok {
			c.prog.Log().Errorf("can't find source block %d in phi assigning to %d", fromBlock, phi.Result)
			continue
		}
		line := fmt.Sprintf("mov %s, %s", c.reg(phi.Result), c.reg(src))
		if c.samePhysical(phi.Result, src, 0) {
			line = "; " + line
		}
		c.emit(line, "phi elimination")
	}
}

// emitCall emits the library-call protocol: parameters pushed on the
// stack, the jump, results popped back off.
func (c *Compiler) emitCall(name string, results, operands []ir.ID) {
	c.emit(fmt.Sprintf("addi sp, sp, -%d", 4*(len(operands)+1)), "Make room on stack")
	c.emit(fmt.Sprintf("sw ra, %d(sp)", 4*len(operands)), "Save return address")
	for i := len(operands) - 1; i >= 0; i-- {
		c.emit(fmt.Sprintf("fsw %s, %d(sp)", c.reg(operands[i]), i*4), "Push parameter")
	}
	c.emit("jal ra, "+name, "Call routine")
	for i := range results {
		c.emit(fmt.Sprintf("flw %s, %d(sp)", c.reg(results[i]), i*4), "Pop result")
	}
	c.emit(fmt.Sprintf("lw ra, %d(sp)", 4*len(operands)), "Restore return address")
	c.emit(fmt.Sprintf("addi sp, sp, %d", 4*(len(operands)+1)), "Restore stack")
}

// emitVariables writes zero-filled storage for every named module
// variable.
func (c *Compiler) emitVariables() {
	prog := c.prog
	for _, id := range sortedVarIDs(prog) {
		v := prog.Variables[id]
		name, ok := prog.Names[id]
		if !ok || name == "" {
			prog.Log().Warnf("name of variable %d not defined", id)
			continue
		}
		c.emitLabel(ir.CleanName(name))
		size := prog.SizeOf(v.Type)
		for i := uint32(0); i < size/4; i++ {
			c.emit(".word 0", "")
		}
		for i := uint32(0); i < size%4; i++ {
			c.emit(".byte 0", "")
		}
	}
}

// emitConstants writes every constant's storage, recursively for
// vectors.
func (c *Compiler) emitConstants() error {
	prog := c.prog
	for _, id := range sortedConstIDs(prog) {
		constant := prog.Constants[id]
		c.emitLabel(c.constantLabel(id))
		if err := c.emitConstantValue(id, constant.Type, constant.Value); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) emitConstantValue(id ir.ID, typeID ir.ID, value ir.ConstantValue) error {
	switch c.prog.Types[typeID].Inner.(type) {
	case ir.Int, ir.Bool:
		sv, ok := value.(ir.ScalarValue)
		if !ok {
			return &ir.Error{Kind: ir.TypeError, Msg: "scalar constant " + uitoa(id) + " has composite value"}
		}
		c.emit(".word "+uitoa(sv.Bits), "")
	case ir.Float:
		sv, ok := value.(ir.ScalarValue)
		if !ok {
			return &ir.Error{Kind: ir.TypeError, Msg: "scalar constant " + uitoa(id) + " has composite value"}
		}
		c.emit(fmt.Sprintf(".word 0x%x", sv.Bits), "Float "+formatFloat(math.Float32frombits(sv.Bits)))
	case ir.Vector:
		cv, ok := value.(ir.CompositeValue)
		if !ok {
			return &ir.Error{Kind: ir.TypeError, Msg: "vector constant " + uitoa(id) + " has scalar value"}
		}
		for _, elem := range cv.Elements {
			elemConst := c.prog.Constants[elem]
			if err := c.emitConstantValue(elem, elemConst.Type, elemConst.Value); err != nil {
				return err
			}
		}
	default:
		return &ir.Error{Kind: ir.TypeError, Msg: "unhandled type for constant " + uitoa(id)}
	}
	return nil
}

func sortedVarIDs(p *ir.Program) []ir.ID {
	ids := make([]ir.ID, 0, len(p.Variables))
	for id := range p.Variables {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func sortedConstIDs(p *ir.Program) []ir.ID {
	ids := make([]ir.ID, 0, len(p.Constants))
	for id := range p.Constants {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func sortIDs(ids []ir.ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
