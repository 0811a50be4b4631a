package core

import (
	"math/rand/v2"
	"unsafe"
)

// RandomIndex asks the docket to pick a stack uniformly at random. Any
// preferred index at or beyond the stack count behaves the same way.
const RandomIndex = ^uint32(0)

const cacheLineSize = 64

// paddedStack keeps neighboring workers' stacks on separate cache lines.
type paddedStack struct {
	NodeStack
	_ [cacheLineSize - unsafe.Sizeof(NodeStack{})%cacheLineSize]byte
}

// Docket is a fixed array of lock-free stacks, one per worker. Producers
// push chains onto a preferred stack (their own worker's, for locality);
// consumers pop their own stack first and may steal from the others.
type Docket struct {
	stacks []paddedStack
}

// NewDocket creates a docket with stackCount stacks.
func NewDocket(stackCount uint32) *Docket {
	assertf(stackCount >= 1, "docket needs at least one stack, got %d", stackCount)
	return &Docket{stacks: make([]paddedStack, stackCount)}
}

// StackCount returns the docket width.
func (d *Docket) StackCount() uint32 {
	return uint32(len(d.stacks))
}

// PutMultipleItems pushes the chain head..tail onto the preferred stack, or
// a uniformly random one for RandomIndex.
func (d *Docket) PutMultipleItems(head, tail *Schedulable, preferredIndex uint32) {
	count := d.StackCount()
	if preferredIndex >= count {
		preferredIndex = rand.Uint32N(count)
	}
	d.stacks[preferredIndex].PushMany(head, tail)
}

// GetMultipleItems pops the full chain from the preferred stack, returning
// the chain and the index it came from. When the preferred stack is empty
// and stealing is allowed, the other stacks are probed in a deterministic
// spiral (preferred±1, preferred±2, ...) that spreads contention while
// keeping the locality bias toward near neighbors. Returns nil when nothing
// was found.
func (d *Docket) GetMultipleItems(preferredIndex uint32, disableWorkStealing bool) (*Schedulable, uint32) {
	count := d.StackCount()
	if preferredIndex >= count {
		preferredIndex = rand.Uint32N(count)
	}

	selected := preferredIndex
	if nodes := d.stacks[preferredIndex].PopAll(); disableWorkStealing || nodes != nil {
		return nodes, selected
	}

	for i := uint32(0); i < count; i++ {
		offset := int32(i/2 + 1)
		if i&1 == 1 {
			offset = -offset
		}
		selected = (preferredIndex + uint32(offset)) % count
		if nodes := d.stacks[selected].PopAll(); nodes != nil {
			return nodes, selected
		}
	}
	return nil, preferredIndex
}
