package compiler

import "github.com/lualite-lang/lualite/pkg/bytecode"

// Temporary is a compiler-introduced anonymous register. Its concrete
// register number is unknown while the body compiles, because temporaries
// are numbered after the named locals and the local count is only final
// at the end. Encoding a temporary into an instruction therefore writes a
// zero operand byte and records a deferred patch; the allocator resolves
// every patch once the body is done.
//
// A Temporary implements bytecode.Source and bytecode.Destination with
// register class, so the encoders accept it anywhere a register goes.
type Temporary struct {
	alloc *tempAllocator
	slot  int
}

func (t *Temporary) DestClass() bytecode.DestClass     { return bytecode.DestRegister }
func (t *Temporary) SourceClass() bytecode.SourceClass { return bytecode.SourceRegister }

func (t *Temporary) EncodeDestination() bytecode.Instruction {
	t.alloc.recordDeferred(t.slot, bytecode.DestinationOffset)
	return 0
}

func (t *Temporary) EncodeFirst() bytecode.Instruction {
	t.alloc.recordDeferred(t.slot, bytecode.FirstSourceOffset)
	return 0
}

func (t *Temporary) EncodeSecond() bytecode.Instruction {
	t.alloc.recordDeferred(t.slot, bytecode.SecondSourceOffset)
	return 0
}

// Release marks the temporary's slot reusable. Callers release a
// temporary once the last instruction reading it has been emitted; its
// slot can then back a later, non-overlapping temporary.
func (t *Temporary) Release() {
	if t.alloc.useCount[t.slot] > 0 {
		t.alloc.useCount[t.slot]--
	}
}

// Retain adds a second live use of the same slot. The slot stays
// unavailable until both handles are released.
func (t *Temporary) Retain() *Temporary {
	t.alloc.useCount[t.slot]++
	return &Temporary{alloc: t.alloc, slot: t.slot}
}

func (t *Temporary) String() string { return "R?" }

// deferredWrite records one operand byte awaiting a register number:
// which instruction word, at which bit offset, for which slot.
type deferredWrite struct {
	instructionOffset int
	bitOffset         uint
	slot              int
}

// tempAllocator hands out use-counted temporary slots and tracks the
// deferred operand writes that resolve them.
type tempAllocator struct {
	useCount []int
	deferred []deferredWrite

	// nextInstructionOffset is the bytecode index the next pushed
	// instruction will occupy. Operand encoding happens while the word is
	// being built, before the push, so this is where its deferred patches
	// must land.
	nextInstructionOffset int
}

func newTempAllocator(startingInstructionOffset int) *tempAllocator {
	return &tempAllocator{nextInstructionOffset: startingInstructionOffset}
}

// count returns the number of distinct slots ever allocated, which is the
// number of registers the temporaries need.
func (a *tempAllocator) count() int { return len(a.useCount) }

func (a *tempAllocator) recordDeferred(slot int, bitOffset uint) {
	a.deferred = append(a.deferred, deferredWrite{
		instructionOffset: a.nextInstructionOffset,
		bitOffset:         bitOffset,
		slot:              slot,
	})
}

// take allocates the lowest-indexed free slot, extending the slot list if
// none is free.
func (a *tempAllocator) take() *Temporary {
	for slot, uses := range a.useCount {
		if uses == 0 {
			a.useCount[slot]++
			return &Temporary{alloc: a, slot: slot}
		}
	}
	a.useCount = append(a.useCount, 1)
	return &Temporary{alloc: a, slot: len(a.useCount) - 1}
}

// takeRange allocates n contiguous slots, which a call instruction needs
// for its argument registers. It reuses an existing run of free slots
// when one is long enough, otherwise it extends the list, reusing any
// free run at the tail.
func (a *tempAllocator) takeRange(n int) []*Temporary {
	if n == 0 {
		return nil
	}
	run := 0
	for slot := 0; slot < len(a.useCount); slot++ {
		if a.useCount[slot] > 0 {
			run = 0
			continue
		}
		run++
		if run == n {
			return a.markRange(slot-n+1, n)
		}
	}
	start := len(a.useCount) - run
	for len(a.useCount)-start < n {
		a.useCount = append(a.useCount, 0)
	}
	return a.markRange(start, n)
}

func (a *tempAllocator) markRange(start, n int) []*Temporary {
	temps := make([]*Temporary, n)
	for k := 0; k < n; k++ {
		a.useCount[start+k]++
		temps[k] = &Temporary{alloc: a, slot: start + k}
	}
	return temps
}

// reconcile resolves every deferred write by OR-ing the slot's final
// register number into the recorded operand position. Temporaries are
// numbered from tempRegistersStart, directly after the named locals. The
// OR is sound because each patched operand byte was encoded as zero.
func (a *tempAllocator) reconcile(tempRegistersStart uint8, code []bytecode.Instruction) {
	for _, d := range a.deferred {
		register := uint32(tempRegistersStart) + uint32(d.slot)
		code[d.instructionOffset] |= bytecode.Instruction(register << d.bitOffset)
	}
}

// setNextInstructionOffset records where the next pushed instruction will
// land. The function compiler calls this after every push.
func (a *tempAllocator) setNextInstructionOffset(offset int) {
	a.nextInstructionOffset = offset
}
