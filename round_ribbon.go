// round_ribbon.go - Priority-ordered intrusive list living in guest RAM

/*
round_ribbon.go - Round Ribbon

The scheduler's ready queue. A fixed-capacity singly-linked list whose
nodes live in a caller-provided region of guest RAM, so the queue survives
save-states and can be inspected by a debugger that only sees guest memory.

Node 0 is a permanently valid header with weight 0xFFFFFFFF acting as the
terminator sentinel. Insert places a new node after the last node whose
weight is less than or equal to the new weight, so equal-weight entries
accumulate at the tail of their band - this is what turns the scheduler's
remove-and-reinsert step into round-robin within a priority band.
*/

package main

import "encoding/binary"

const (
	RIBBON_NODE_SIZE = 0x10

	ribbonNodeValid  = 0x00
	ribbonNodeNext   = 0x04
	ribbonNodeWeight = 0x08
	ribbonNodeValue  = 0x0C
)

// RIBBON_END marks both the header terminator and a failed Insert.
const RIBBON_END = 0xFFFFFFFF

type RoundRibbon struct {
	mem      []byte
	maxNodes uint32
}

// NewRoundRibbon wraps a guest memory region as an empty queue. The region
// is zeroed and the header node installed.
func NewRoundRibbon(mem []byte) *RoundRibbon {
	for i := range mem {
		mem[i] = 0
	}
	r := &RoundRibbon{
		mem:      mem,
		maxNodes: uint32(len(mem) / RIBBON_NODE_SIZE),
	}
	r.setField(0, ribbonNodeNext, RIBBON_END)
	r.setField(0, ribbonNodeWeight, RIBBON_END)
	r.setField(0, ribbonNodeValid, 1)
	return r
}

func (r *RoundRibbon) field(index uint32, off uint32) uint32 {
	return binary.LittleEndian.Uint32(r.mem[index*RIBBON_NODE_SIZE+off:])
}

func (r *RoundRibbon) setField(index uint32, off uint32, value uint32) {
	binary.LittleEndian.PutUint32(r.mem[index*RIBBON_NODE_SIZE+off:], value)
}

func (r *RoundRibbon) nodeExists(index uint32) bool {
	return index < r.maxNodes
}

func (r *RoundRibbon) allocateNode() (uint32, bool) {
	for i := uint32(1); i < r.maxNodes; i++ {
		if r.field(i, ribbonNodeValid) == 1 {
			continue
		}
		r.setField(i, ribbonNodeValid, 1)
		return i, true
	}
	return 0, false
}

// Insert adds a value with the given weight and returns the node index,
// or RIBBON_END when the pool is exhausted. The node lands at the tail of
// its weight band.
func (r *RoundRibbon) Insert(value, weight uint32) uint32 {
	node, ok := r.allocateNode()
	if !ok {
		return RIBBON_END
	}
	r.setField(node, ribbonNodeWeight, weight)
	r.setField(node, ribbonNodeValue, value)

	prev := uint32(RIBBON_END)
	next := uint32(0)
	for {
		if !r.nodeExists(next) {
			// Insert after prev
			r.setField(node, ribbonNodeNext, r.field(prev, ribbonNodeNext))
			r.setField(prev, ribbonNodeNext, node)
			break
		}
		if r.field(next, ribbonNodeWeight) == RIBBON_END {
			// Header - always keep walking
			prev = next
			next = r.field(next, ribbonNodeNext)
			continue
		}
		if weight < r.field(next, ribbonNodeWeight) {
			next = RIBBON_END
			continue
		}
		prev = next
		next = r.field(next, ribbonNodeNext)
	}

	return node
}

// Remove splices a node out of the chain. Index 0 (the header) and
// already-free nodes are ignored.
func (r *RoundRibbon) Remove(index uint32) {
	if index == 0 {
		return
	}
	if !r.nodeExists(index) {
		return
	}
	if r.field(index, ribbonNodeValid) != 1 {
		return
	}

	node := uint32(0)
	for r.nodeExists(node) {
		if r.field(node, ribbonNodeNext) == index {
			r.setField(node, ribbonNodeNext, r.field(index, ribbonNodeNext))
			break
		}
		node = r.field(node, ribbonNodeNext)
	}

	r.setField(index, ribbonNodeValid, 0)
}

// Begin returns an iterator positioned on the first real node.
func (r *RoundRibbon) Begin() RibbonIterator {
	return RibbonIterator{ribbon: r, index: r.field(0, ribbonNodeNext)}
}

type RibbonIterator struct {
	ribbon *RoundRibbon
	index  uint32
}

func (it *RibbonIterator) IsEnd() bool {
	if it.ribbon == nil {
		return true
	}
	return !it.ribbon.nodeExists(it.index)
}

func (it *RibbonIterator) Next() {
	if !it.IsEnd() {
		it.index = it.ribbon.field(it.index, ribbonNodeNext)
	}
}

func (it *RibbonIterator) Value() uint32 {
	if it.IsEnd() {
		return 0
	}
	return it.ribbon.field(it.index, ribbonNodeValue)
}

func (it *RibbonIterator) Weight() uint32 {
	if it.IsEnd() {
		return RIBBON_END
	}
	return it.ribbon.field(it.index, ribbonNodeWeight)
}

func (it *RibbonIterator) Index() uint32 {
	return it.index
}
