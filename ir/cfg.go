package ir

// ComputeCFG derives, for every function, the predecessor and successor
// sets, the dominator sets, the immediate dominators, and the dominator
// tree. It must run after parsing and before the phi and register
// allocation passes.
func ComputeCFG(p *Program) error {
	for _, fnID := range p.SortedFunctionIDs() {
		if err := computeFunctionCFG(p, p.Functions[fnID]); err != nil {
			return err
		}
	}
	return nil
}

func computeFunctionCFG(p *Program, fn *Function) error {
	if fn.LabelID == NoBlockID {
		return errf(InvariantViolation, "function %d has no blocks", fn.ID)
	}

	// Successors come from each terminator's target labels;
	// predecessors are the inverse edges.
	for _, labelID := range fn.BlockOrder {
		block := p.Blocks[labelID]
		block.Pred = make(IDSet)
		block.Succ = make(IDSet)
		block.Dom = make(IDSet)
		block.IDom = NoBlockID
		block.IDomChildren = nil
	}
	for _, labelID := range fn.BlockOrder {
		block := p.Blocks[labelID]
		term := block.Terminator()
		if term == nil || !IsTerminator(term) {
			return errf(InvariantViolation, "block %d does not end with a terminator", labelID)
		}
		for target := range term.Head().TargetLabels {
			block.Succ.Add(target)
			succ, ok := p.Blocks[target]
			if !ok {
				return errf(InvariantViolation, "branch in block %d targets unknown label %d", labelID, target)
			}
			succ.Pred.Add(labelID)
		}
	}

	// Dominators, by iteration to a fixed point:
	// Dom(entry) = {entry}; Dom(b) = {b} ∪ ⋂ Dom(p) over preds p.
	all := make(IDSet)
	for _, labelID := range fn.BlockOrder {
		all.Add(labelID)
	}
	for _, labelID := range fn.BlockOrder {
		block := p.Blocks[labelID]
		if labelID == fn.LabelID {
			block.Dom = NewIDSet(labelID)
		} else {
			block.Dom = all.Clone()
		}
	}
	for changed := true; changed; {
		changed = false
		for _, labelID := range fn.BlockOrder {
			if labelID == fn.LabelID {
				continue
			}
			block := p.Blocks[labelID]
			next := intersectPredDoms(p, block)
			next.Add(labelID)
			if !next.Equal(block.Dom) {
				block.Dom = next
				changed = true
			}
		}
	}

	// The immediate dominator of b is the strict dominator of b that is
	// dominated by every other strict dominator of b.
	for _, labelID := range fn.BlockOrder {
		if labelID == fn.LabelID {
			continue
		}
		block := p.Blocks[labelID]
		if len(block.Pred) == 0 {
			// Unreachable; no dominator tree membership.
			continue
		}
		idom := NoBlockID
		for _, d := range block.Dom.Sorted() {
			if d == labelID {
				continue
			}
			dominatedByAll := true
			for e := range block.Dom {
				if e == labelID || e == d {
					continue
				}
				if !p.Blocks[d].IsDominatedBy(e) {
					dominatedByAll = false
					break
				}
			}
			if dominatedByAll {
				idom = d
				break
			}
		}
		if idom == NoBlockID {
			return errf(InvariantViolation, "block %d is reachable but has no immediate dominator", labelID)
		}
		block.IDom = idom
		parent := p.Blocks[idom]
		parent.IDomChildren = append(parent.IDomChildren, labelID)
	}

	return nil
}

// intersectPredDoms intersects the dominator sets of the block's
// predecessors. Unreachable predecessors (still carrying the full set)
// fall out naturally.
func intersectPredDoms(p *Program, block *Block) IDSet {
	first := true
	var acc IDSet
	for _, predID := range block.Pred.Sorted() {
		pred := p.Blocks[predID]
		if first {
			acc = pred.Dom.Clone()
			first = false
			continue
		}
		for id := range acc {
			if !pred.Dom.Has(id) {
				acc.Remove(id)
			}
		}
	}
	if acc == nil {
		acc = make(IDSet)
	}
	return acc
}
