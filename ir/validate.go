package ir

// Validate checks the structural invariants the transform passes rely
// on: list integrity, set/list coherence on every instruction, and
// exactly one terminator per block. It returns the first violation.
func Validate(p *Program) error {
	for _, fnID := range p.SortedFunctionIDs() {
		fn := p.Functions[fnID]
		if fn.LabelID == NoBlockID {
			return errf(InvariantViolation, "function %d has no entry block", fn.ID)
		}
		for _, labelID := range fn.BlockOrder {
			block := p.Blocks[labelID]
			if err := block.Instructions.Check(); err != nil {
				return err
			}
			if err := validateBlock(p, block); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateBlock(p *Program, block *Block) error {
	list := block.Instructions
	if list.Empty() {
		return errf(InvariantViolation, "block %d is empty", block.LabelID)
	}
	for node := list.HeadNode(); node != NoNode; node = list.Next(node) {
		ins := list.At(node)
		if err := validateInstruction(ins); err != nil {
			return err
		}
		isLast := list.Next(node) == NoNode
		if IsTerminator(ins) != isLast {
			return errf(InvariantViolation, "block %d has a terminator %s away from its end",
				block.LabelID, ins.Opcode())
		}
	}
	return nil
}

// validateInstruction checks that the result and argument sets agree
// with their ordered lists.
func validateInstruction(ins Instruction) error {
	h := ins.Head()
	if !NewIDSet(h.ArgIDList...).Equal(h.ArgIDSet) {
		return errf(InvariantViolation, "%s argument set disagrees with its list", ins.Opcode())
	}
	if !NewIDSet(h.ResIDList...).Equal(h.ResIDSet) {
		return errf(InvariantViolation, "%s result set disagrees with its list", ins.Opcode())
	}
	return nil
}
