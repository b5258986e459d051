package ir

// maxLivenessPasses bounds the fixed-point iteration; a well-formed
// program converges in a handful of passes.
const maxLivenessPasses = 1000

// ComputeLiveness fills every instruction's live-in and live-out sets
// by iterative reverse dataflow over the linearized program, to a fixed
// point.
//
// Pointer-typed results and variables never live in registers (their
// addresses resolve statically at emission), so they are excluded from
// the sets.
func ComputeLiveness(p *Program) error {
	p.Linearize()

	for _, ins := range p.Instructions {
		h := ins.Head()
		h.LiveIn = make(map[ID]IDSet)
		h.LiveInAll = make(IDSet)
		h.LiveOut = make(IDSet)
		h.needLiveness = true
	}

	for pass := 0; ; pass++ {
		if pass >= maxLivenessPasses {
			return errf(InvariantViolation, "liveness did not converge after %d passes", maxLivenessPasses)
		}
		changed := false
		for i := len(p.Instructions) - 1; i >= 0; i-- {
			if updateLiveness(p, i) {
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return nil
}

// IsRegisterValue reports whether the ID can live in a register:
// variables and pointer-typed results are memory addresses, not
// register values.
func IsRegisterValue(p *Program, id ID) bool {
	return regLike(p, id)
}

// regLike reports whether the ID can live in a register: variables and
// pointer-typed results are memory addresses, not register values.
func regLike(p *Program, id ID) bool {
	if _, isVar := p.Variables[id]; isVar {
		return false
	}
	if t := p.TypeOf(id); t != NoID {
		if _, isPtr := p.Types[t].Inner.(Pointer); isPtr {
			return false
		}
	}
	return true
}

// liveInFrom answers "what is live going into ins when control arrives
// from block from". Phis route their per-predecessor values; everything
// else answers with the aggregate.
func liveInFrom(ins Instruction, from ID) IDSet {
	if phi, ok := ins.(*Phi); ok && from != NoBlockID {
		if s, ok := phi.LiveIn[from]; ok {
			return s
		}
	}
	return ins.Head().LiveInAll
}

// updateLiveness recomputes one instruction's sets and reports whether
// anything changed.
func updateLiveness(p *Program, pc int) bool {
	ins := p.Instructions[pc]
	h := ins.Head()

	// liveout(i) = ⋃ over successors s of livein(s, from = block of i).
	out := make(IDSet)
	if IsTerminator(ins) {
		for target := range h.TargetLabels {
			succ := p.Blocks[target].Instructions.Head()
			if succ != nil {
				out.AddAll(liveInFrom(succ, h.Block))
			}
		}
	} else if pc+1 < len(p.Instructions) {
		next := p.Instructions[pc+1]
		if next.Head().Block == h.Block {
			out.AddAll(liveInFrom(next, NoBlockID))
		}
	}

	defs := make(IDSet)
	for id := range h.ResIDSet {
		if regLike(p, id) {
			defs.Add(id)
		}
	}

	newIn := make(map[ID]IDSet)
	all := make(IDSet)
	if phi, ok := ins.(*Phi); ok {
		// A phi's incoming value is live only on the edge it arrives by.
		base := out.Clone()
		for id := range defs {
			base.Remove(id)
		}
		for _, pair := range phi.Pairs {
			in := base.Clone()
			if regLike(p, pair.Value) {
				in.Add(pair.Value)
			}
			newIn[pair.Pred] = in
			all.AddAll(in)
		}
	} else {
		in := out.Clone()
		for id := range defs {
			in.Remove(id)
		}
		for id := range h.ArgIDSet {
			if regLike(p, id) {
				in.Add(id)
			}
		}
		newIn[NoBlockID] = in
		all = in
	}

	changed := !out.Equal(h.LiveOut) || !all.Equal(h.LiveInAll) || len(newIn) != len(h.LiveIn)
	if !changed {
		for from, in := range newIn {
			if old, ok := h.LiveIn[from]; !ok || !in.Equal(old) {
				changed = true
				break
			}
		}
	}
	if changed {
		h.LiveOut = out
		h.LiveIn = newIn
		h.LiveInAll = all
	}
	h.needLiveness = false
	return changed
}
