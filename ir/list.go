package ir

// NodeID indexes an instruction node in the program's arena. Arena
// indices replace pointer links so that list nodes have single
// ownership and no reference cycles.
type NodeID int32

// NoNode means "no node".
const NoNode NodeID = -1

type arenaNode struct {
	ins  Instruction
	prev NodeID
	next NodeID
	list *InstructionList
}

// Arena owns every instruction node of a program. Lists hold indices
// into it.
type Arena struct {
	nodes []arenaNode
	free  []NodeID
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

func (a *Arena) alloc(ins Instruction) NodeID {
	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		a.nodes[id] = arenaNode{ins: ins, prev: NoNode, next: NoNode}
		return id
	}
	a.nodes = append(a.nodes, arenaNode{ins: ins, prev: NoNode, next: NoNode})
	return NodeID(len(a.nodes) - 1)
}

func (a *Arena) release(id NodeID) {
	a.nodes[id] = arenaNode{prev: NoNode, next: NoNode}
	a.free = append(a.free, id)
}

// InstructionList is a doubly-linked list of instructions backed by the
// program arena. A node belongs to at most one list; adding an
// instruction that is already listed removes it from its old list
// first.
type InstructionList struct {
	arena *Arena
	block *Block
	head  NodeID
	tail  NodeID
}

// NewInstructionList returns an empty list for the given block (which
// may be nil for scratch lists).
func NewInstructionList(arena *Arena, block *Block) *InstructionList {
	return &InstructionList{arena: arena, block: block, head: NoNode, tail: NoNode}
}

// Empty reports whether the list has no instructions.
func (l *InstructionList) Empty() bool { return l.head == NoNode }

// HeadNode returns the first node, or NoNode.
func (l *InstructionList) HeadNode() NodeID { return l.head }

// TailNode returns the last node, or NoNode.
func (l *InstructionList) TailNode() NodeID { return l.tail }

// Head returns the first instruction, or nil.
func (l *InstructionList) Head() Instruction {
	if l.head == NoNode {
		return nil
	}
	return l.arena.nodes[l.head].ins
}

// Tail returns the last instruction, or nil.
func (l *InstructionList) Tail() Instruction {
	if l.tail == NoNode {
		return nil
	}
	return l.arena.nodes[l.tail].ins
}

// At returns the instruction at the node.
func (l *InstructionList) At(id NodeID) Instruction {
	return l.arena.nodes[id].ins
}

// Next returns the node after id, or NoNode.
func (l *InstructionList) Next(id NodeID) NodeID {
	return l.arena.nodes[id].next
}

// Prev returns the node before id, or NoNode.
func (l *InstructionList) Prev(id NodeID) NodeID {
	return l.arena.nodes[id].prev
}

// prepareForAdd detaches the instruction from any list it is in and
// allocates a node in this list.
func (l *InstructionList) prepareForAdd(ins Instruction) NodeID {
	h := ins.Head()
	if h.list != nil {
		h.list.Remove(h.node)
	}
	id := l.arena.alloc(ins)
	l.arena.nodes[id].list = l
	h.list = l
	h.node = id
	if l.block != nil {
		h.Block = l.block.LabelID
	}
	return id
}

// PushBack appends the instruction and returns its node.
func (l *InstructionList) PushBack(ins Instruction) NodeID {
	id := l.prepareForAdd(ins)
	if l.head == NoNode {
		l.head = id
	} else {
		l.arena.nodes[l.tail].next = id
		l.arena.nodes[id].prev = l.tail
	}
	l.tail = id
	return id
}

// InsertBefore inserts the instruction before the other node. If the
// list is empty, other must be NoNode and the instruction becomes the
// only element.
func (l *InstructionList) InsertBefore(ins Instruction, other NodeID) NodeID {
	if other == NoNode {
		return l.PushBack(ins)
	}
	id := l.prepareForAdd(ins)
	prev := l.arena.nodes[other].prev
	l.arena.nodes[other].prev = id
	l.arena.nodes[id].next = other
	l.arena.nodes[id].prev = prev
	if prev == NoNode {
		l.head = id
	} else {
		l.arena.nodes[prev].next = id
	}
	return id
}

// Remove unlinks the node, severing both sibling links and the
// instruction's back-pointer, and returns its instruction.
func (l *InstructionList) Remove(id NodeID) Instruction {
	n := &l.arena.nodes[id]
	ins := n.ins
	if n.prev == NoNode {
		l.head = n.next
	} else {
		l.arena.nodes[n.prev].next = n.next
	}
	if n.next == NoNode {
		l.tail = n.prev
	} else {
		l.arena.nodes[n.next].prev = n.prev
	}
	h := ins.Head()
	h.list = nil
	h.node = NoNode
	l.arena.release(id)
	return ins
}

// Len counts the instructions front to back.
func (l *InstructionList) Len() int {
	n := 0
	for id := l.head; id != NoNode; id = l.arena.nodes[id].next {
		n++
	}
	return n
}

// Check verifies the list's structural invariants: forward and backward
// lengths agree, head nil iff tail nil, and every node points back at
// this list.
func (l *InstructionList) Check() error {
	if (l.head == NoNode) != (l.tail == NoNode) {
		return errf(InvariantViolation, "list head/tail disagree about emptiness")
	}
	forward := 0
	for id := l.head; id != NoNode; id = l.arena.nodes[id].next {
		if l.arena.nodes[id].list != l {
			return errf(InvariantViolation, "node %d does not belong to this list", id)
		}
		if l.arena.nodes[id].ins.Head().list != l {
			return errf(InvariantViolation, "instruction at node %d has a stale list pointer", id)
		}
		forward++
	}
	backward := 0
	for id := l.tail; id != NoNode; id = l.arena.nodes[id].prev {
		backward++
	}
	if forward != backward {
		return errf(InvariantViolation, "list length mismatch: %d forward, %d backward", forward, backward)
	}
	return nil
}

// ForEach calls f on every instruction front to back. Mutating the list
// during iteration is not supported; iterate nodes directly for that.
func (l *InstructionList) ForEach(f func(Instruction)) {
	for id := l.head; id != NoNode; id = l.arena.nodes[id].next {
		f(l.arena.nodes[id].ins)
	}
}
