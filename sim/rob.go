package sim

// DefaultROBCapacity is the instruction capacity of a ReorderBuffer.
const DefaultROBCapacity = 256

// Instruction is one instruction group entering the reorder buffer.
// Address is zero for non-memory instructions.
type Instruction struct {
	Address   uint64
	Cycle     uint64 // issue cycle
	Timestamp uint64 // access timestamp handed to the controller
}

// ReorderBuffer is a cycle-level in-order retirement model. Memory
// instructions stay at the head until the tree's current latency has elapsed
// since their issue cycle.
type ReorderBuffer struct {
	controller *Controller
	capacity   int
	queue      []Instruction
	cycle      uint64

	stalls       uint64
	totalLatency float64
	memRetired   uint64
	curLatency   float64 // cached head latency, 0 when stale
}

// NewReorderBuffer creates a buffer feeding memory accesses into c.
func NewReorderBuffer(c *Controller, capacity int, startCycle uint64) *ReorderBuffer {
	if capacity <= 0 {
		capacity = DefaultROBCapacity
	}
	return &ReorderBuffer{controller: c, capacity: capacity, cycle: startCycle}
}

// Issue appends ins, or counts a stall and returns false when the buffer is full.
func (r *ReorderBuffer) Issue(ins Instruction) bool {
	if len(r.queue) >= r.capacity {
		r.stalls++
		return false
	}
	r.queue = append(r.queue, ins)
	if ins.Address != 0 {
		r.controller.Access(ins.Timestamp, 0, ins.Address, 0)
	}
	return true
}

// Tick advances one cycle and tries to retire the head.
func (r *ReorderBuffer) Tick() {
	r.cycle++
	r.retire()
}

func (r *ReorderBuffer) latency() float64 {
	accesses := r.controller.GetAccess(r.cycle)
	return r.controller.CalculateLatency(accesses, r.controller.DRAMLatency())
}

func (r *ReorderBuffer) canRetire(ins Instruction) bool {
	if ins.Address == 0 {
		return true
	}
	if r.curLatency == 0 {
		r.curLatency = r.latency()
	}
	if float64(saturatingSub(r.cycle, ins.Cycle)) >= r.curLatency {
		r.curLatency = 0
		return true
	}
	return false
}

func (r *ReorderBuffer) retire() {
	if len(r.queue) == 0 {
		return
	}
	head := r.queue[0]
	if !r.canRetire(head) {
		r.stalls++
		return
	}
	if head.Address != 0 {
		r.totalLatency += r.latency()
		r.memRetired++
	}
	r.queue = r.queue[1:]
}

// Len returns the number of in-flight instructions.
func (r *ReorderBuffer) Len() int { return len(r.queue) }

// StallCount returns the cycles lost to a full buffer or an unfinished head.
func (r *ReorderBuffer) StallCount() uint64 { return r.stalls }

// CurrentCycle returns the current cycle.
func (r *ReorderBuffer) CurrentCycle() uint64 { return r.cycle }

// TotalLatency returns the latency summed over retired memory instructions.
func (r *ReorderBuffer) TotalLatency() float64 { return r.totalLatency }

// AverageLatency returns the mean latency of retired memory instructions.
func (r *ReorderBuffer) AverageLatency() float64 {
	if r.memRetired == 0 {
		return 0
	}
	return r.totalLatency / float64(r.memRetired)
}
