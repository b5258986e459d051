package ir

// RewritePhis converts every phi's incoming pairs into the explicit
// predecessor-keyed copy representation the emitter materializes just
// before each predecessor's terminator.
//
// Along the way it enforces the structural rules: phis appear only in
// the run of instructions at a block's head, and a phi carries exactly
// one incoming pair per predecessor of its block.
func RewritePhis(p *Program) error {
	for _, fnID := range p.SortedFunctionIDs() {
		fn := p.Functions[fnID]
		for _, labelID := range fn.BlockOrder {
			if err := rewritePhisInBlock(p, p.Blocks[labelID]); err != nil {
				return err
			}
		}
	}
	return nil
}

func rewritePhisInBlock(p *Program, block *Block) error {
	list := block.Instructions
	sawNonPhi := false
	for node := list.HeadNode(); node != NoNode; node = list.Next(node) {
		phi, ok := list.At(node).(*Phi)
		if !ok {
			sawNonPhi = true
			continue
		}
		if sawNonPhi {
			return errf(InvariantViolation, "phi %d appears after a non-phi at the head of block %d",
				phi.Result, block.LabelID)
		}

		phi.FromPred = make(map[ID]ID, len(phi.Pairs))
		for _, pair := range phi.Pairs {
			if !block.Pred.Has(pair.Pred) {
				return errf(InvariantViolation, "phi %d names %d which is not a predecessor of block %d",
					phi.Result, pair.Pred, block.LabelID)
			}
			if _, dup := phi.FromPred[pair.Pred]; dup {
				return errf(InvariantViolation, "phi %d has two incoming values from block %d",
					phi.Result, pair.Pred)
			}
			phi.FromPred[pair.Pred] = pair.Value
		}
		if len(phi.FromPred) != len(block.Pred) {
			return errf(InvariantViolation, "phi %d covers %d of %d predecessors of block %d",
				phi.Result, len(phi.FromPred), len(block.Pred), block.LabelID)
		}
	}
	return nil
}

// AssertNoPhiAt verifies that the block does not start with a phi; the
// emitter requires this of branch targets whose copies were already
// materialized.
func AssertNoPhiAt(p *Program, labelID ID) error {
	block, ok := p.Blocks[labelID]
	if !ok {
		return errf(InvariantViolation, "unknown block %d", labelID)
	}
	if _, isPhi := block.Instructions.Head().(*Phi); isPhi {
		return errf(InvariantViolation, "block %d unexpectedly starts with a phi", labelID)
	}
	return nil
}
