package riscv

import (
	"sort"

	"github.com/softgpu/fragc/ir"
)

// assignRegisters performs physical register assignment for the whole
// program: one Register record per virtual register, constants and
// parameters pre-pinned at each function's entry, then a dominator-tree
// walk per function.
func (c *Compiler) assignRegisters() error {
	prog := c.prog

	for _, id := range sortedKeys(prog.ResultTypes) {
		if !ir.IsRegisterValue(prog, id) {
			continue
		}
		typeID := prog.ResultTypes[id]
		if !c.allocatable(typeID) {
			continue
		}
		c.registers[id] = &Register{Type: typeID, Count: int(prog.LaneCount(typeID))}
	}

	for _, fnID := range prog.SortedFunctionIDs() {
		fn := prog.Functions[fnID]
		if fn.Start >= len(prog.Instructions) {
			continue
		}
		if err := c.pinFunctionEntry(fn); err != nil {
			return err
		}
		if err := c.assignBlock(prog.Blocks[fn.LabelID]); err != nil {
			return err
		}
	}
	return nil
}

// allocatable reports whether values of the type occupy registers.
func (c *Compiler) allocatable(typeID ir.ID) bool {
	switch c.prog.Types[typeID].Inner.(type) {
	case ir.Void, ir.Image, ir.SampledImage, ir.Sampler, ir.FunctionType:
		return false
	}
	return true
}

// isFloatReg reports whether the virtual register lives in the float
// register file.
func (c *Compiler) isFloatReg(id ir.ID) bool {
	r, ok := c.registers[id]
	typeID := ir.NoID
	if ok {
		typeID = r.Type
	} else if constant, isConst := c.prog.Constants[id]; isConst {
		typeID = constant.Type
	}
	if typeID == ir.NoID {
		return false
	}
	isFloat, err := c.prog.IsFloat(typeID)
	return err == nil && isFloat
}

// pinFunctionEntry assigns registers to everything live into the
// function: parameters first, then constants. The pins are inherited
// down the dominator tree through each block's live-in seed.
func (c *Compiler) pinFunctionEntry(fn *ir.Function) error {
	prog := c.prog
	entry := prog.Instructions[fn.Start]
	liveIn := entry.Head().LiveInAll

	used := make(map[uint32]struct{})
	for _, id := range liveIn.Sorted() {
		if r, ok := c.registers[id]; ok {
			for _, phy := range r.Phy {
				used[phy] = struct{}{}
			}
		}
	}

	pin := func(id ir.ID, typeID ir.ID, count int) error {
		r, ok := c.registers[id]
		if !ok {
			r = &Register{Type: typeID, Count: count}
			c.registers[id] = r
		}
		if len(r.Phy) > 0 {
			return nil // pinned by an earlier function
		}
		pool := c.intPool
		if c.isFloatRegType(typeID) {
			pool = c.floatPool
		}
		for lane := 0; lane < count; lane++ {
			phy, ok := pickFree(pool, used)
			if !ok {
				return &AllocationError{Reg: id, Lane: lane, PC: fn.Start}
			}
			r.Phy = append(r.Phy, phy)
			used[phy] = struct{}{}
		}
		return nil
	}

	for _, paramID := range fn.Parameters {
		typeID := prog.ResultTypes[paramID]
		if err := pin(paramID, typeID, int(prog.LaneCount(typeID))); err != nil {
			return err
		}
	}

	for _, id := range liveIn.Sorted() {
		if r, ok := c.registers[id]; ok && len(r.Phy) > 0 {
			continue
		}
		constant, ok := prog.Constants[id]
		if !ok {
			return &ir.Error{Kind: ir.InvariantViolation,
				Msg: "register " + uitoa(id) + " live at head of function is not a constant"}
		}
		if err := pin(id, constant.Type, 1); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) isFloatRegType(typeID ir.ID) bool {
	isFloat, err := c.prog.IsFloat(typeID)
	return err == nil && isFloat
}

// assignBlock walks one block in linear order, releasing registers
// whose last use has passed and assigning fresh ones to results, then
// recurses into the block's dominator-tree children. The occupancy set
// is derived from the block's own live-in, so siblings in the tree
// never see each other's allocations.
func (c *Compiler) assignBlock(block *ir.Block) error {
	prog := c.prog

	assigned := make(map[uint32]struct{})
	if block.Begin < block.End {
		for id := range prog.Instructions[block.Begin].Head().LiveInAll {
			r, ok := c.registers[id]
			if !ok {
				prog.Log().Warnf("live-in register %d not found in block %d", id, block.LabelID)
				continue
			}
			if len(r.Phy) == 0 {
				prog.Log().Warnf("expected physical register for %d at head of block %d", id, block.LabelID)
				continue
			}
			for _, phy := range r.Phy {
				assigned[phy] = struct{}{}
			}
		}
	}

	for pc := block.Begin; pc < block.End; pc++ {
		ins := prog.Instructions[pc]
		h := ins.Head()

		// A register whose last use is this instruction frees up here.
		for id := range h.ArgIDSet {
			if h.LiveOut.Has(id) {
				continue
			}
			if r, ok := c.registers[id]; ok {
				for _, phy := range r.Phy {
					delete(assigned, phy)
				}
			}
		}

		for _, resID := range h.ResIDList {
			r, ok := c.registers[resID]
			if !ok {
				continue
			}
			if len(r.Phy) > 0 {
				continue // pinned at function entry
			}
			pool := c.intPool
			if c.isFloatRegType(r.Type) {
				pool = c.floatPool
			}
			for lane := 0; lane < r.Count; lane++ {
				phy, ok := pickFree(pool, assigned)
				if !ok {
					return &AllocationError{Reg: resID, Lane: lane, PC: pc}
				}
				r.Phy = append(r.Phy, phy)
				if h.LiveOut.Has(resID) {
					assigned[phy] = struct{}{}
				}
			}
		}
	}

	for _, child := range block.IDomChildren {
		if err := c.assignBlock(prog.Blocks[child]); err != nil {
			return err
		}
	}
	return nil
}

// pickFree returns the lowest-numbered register in the pool that is not
// currently assigned.
func pickFree(pool []uint32, assigned map[uint32]struct{}) (uint32, bool) {
	for _, phy := range pool {
		if _, busy := assigned[phy]; !busy {
			return phy, true
		}
	}
	return 0, false
}

// samePhysical reports whether two virtual registers share the physical
// register at the lane.
func (c *Compiler) samePhysical(id1, id2 ir.ID, lane int) bool {
	r1, ok1 := c.registers[id1]
	r2, ok2 := c.registers[id2]
	if !ok1 || !ok2 || lane >= len(r1.Phy) || lane >= len(r2.Phy) {
		return false
	}
	return r1.Phy[lane] == r2.Phy[lane]
}

func sortedKeys(m map[ir.ID]ir.ID) []ir.ID {
	ids := make([]ir.ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
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
