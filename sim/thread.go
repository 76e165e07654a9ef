package sim

import "github.com/sirupsen/logrus"

// ROBSize bounds the number of in-flight instructions a thread's window covers.
const ROBSize = 512

// LBRBatch is the number of branch records delivered per sample.
const LBRBatch = 32

// LBR flag layout: bits 0..15 retired instructions, bits 16..23 LLC misses.
const (
	LBRInsShift  = 0
	LBRInsMask   = uint64(0xffff) << LBRInsShift
	LBRDataShift = 16
	LBRDataMask  = uint64(0xff) << LBRDataShift
)

// pendingClassLimit caps classifications waiting for a branch record to consume them.
const pendingClassLimit = 4 * ROBSize

// LBR is one last-branch-record entry.
type LBR struct {
	From  uint64
	To    uint64
	Flags uint64
}

// Instructions returns the retired-instruction count encoded in Flags.
func (l LBR) Instructions() uint64 { return (l.Flags & LBRInsMask) >> LBRInsShift }

// LLCMisses returns the LLC-miss count encoded in Flags.
func (l LBR) LLCMisses() uint64 { return (l.Flags & LBRDataMask) >> LBRDataShift }

// NewLBRFlags packs instruction and LLC-miss counts into an LBR flags word.
func NewLBRFlags(instructions, llcMisses uint64) uint64 {
	return (instructions<<LBRInsShift)&LBRInsMask | (llcMisses<<LBRDataShift)&LBRDataMask
}

// BranchCounter is the per-branch counter word sampled alongside an LBR.
type BranchCounter struct {
	Counters uint64
}

// Locality classifies an access as served locally or by a CXL device.
type Locality int

const (
	LocalAccess Locality = iota
	RemoteAccess
)

// ROBWindow holds a thread's running totals within the sliding ROB window.
type ROBWindow struct {
	Bandwidth uint64
	MCount    [2]uint64 // LLC misses in the window keyed by Locality
	LLCMBase  uint64    // LLC misses that have slid out of the window
	LLCMCount uint64
	InsCount  uint64
}

// ThreadInfo is the per-thread ROB bookkeeping.
type ThreadInfo struct {
	ROB ROBWindow

	llcmType    []Locality // classified accesses awaiting an LLC miss to consume them
	llcmTypeROB []Locality // classes of LLC misses currently inside the window
	ring        []LBR      // branch records currently inside the window, oldest first
}

// LLCMissRatio returns LLC misses per instruction within the window.
func (t *ThreadInfo) LLCMissRatio() float64 {
	if t.ROB.InsCount == 0 {
		return 0.0
	}
	return float64(t.ROB.LLCMCount) / float64(t.ROB.InsCount)
}

// RemoteRatio returns the share of in-window LLC misses served remotely.
func (t *ThreadInfo) RemoteRatio() float64 {
	local, remote := t.ROB.MCount[LocalAccess], t.ROB.MCount[RemoteAccess]
	if local+remote == 0 {
		return 0.0
	}
	return float64(remote) / float64(local+remote)
}

// Pending returns the number of classifications not yet consumed by an LLC miss.
func (t *ThreadInfo) Pending() int { return len(t.llcmType) }

func (t *ThreadInfo) classify(l Locality) {
	if len(t.llcmType) >= pendingClassLimit {
		t.llcmType = t.llcmType[1:]
	}
	t.llcmType = append(t.llcmType, l)
}

// insertOne slides the window forward by one branch record.
// Invariant: ROB.InsCount <= ROBSize on return.
func (t *ThreadInfo) insertOne(lbr LBR) {
	rob := &t.ROB
	llcm := lbr.LLCMisses()
	ins := lbr.Instructions()

	t.ring = append(t.ring, lbr)

	for i := uint64(0); i < llcm; i++ {
		cls := LocalAccess
		if len(t.llcmType) > 0 {
			cls = t.llcmType[0]
			t.llcmType = t.llcmType[1:]
		}
		rob.MCount[cls]++
		t.llcmTypeROB = append(t.llcmTypeROB, cls)
	}
	rob.LLCMCount += llcm
	rob.InsCount += ins

	for rob.InsCount > ROBSize && len(t.ring) > 0 {
		old := t.ring[0]
		t.ring = t.ring[1:]
		oldLLCM := old.LLCMisses()

		rob.InsCount = saturatingSub(rob.InsCount, old.Instructions())
		if oldLLCM > rob.LLCMCount {
			logrus.Warnf("rob window underflow: retiring %d LLC misses with %d recorded", oldLLCM, rob.LLCMCount)
		}
		rob.LLCMCount = saturatingSub(rob.LLCMCount, oldLLCM)
		rob.LLCMBase += oldLLCM

		for i := uint64(0); i < oldLLCM; i++ {
			if len(t.llcmTypeROB) == 0 {
				break
			}
			cls := t.llcmTypeROB[0]
			t.llcmTypeROB = t.llcmTypeROB[1:]
			rob.MCount[cls] = saturatingSub(rob.MCount[cls], 1)
		}
	}
}
