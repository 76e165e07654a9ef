package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLBR_FlagLayout(t *testing.T) {
	l := LBR{From: 1, To: 2, Flags: NewLBRFlags(300, 7)}
	assert.Equal(t, uint64(300), l.Instructions())
	assert.Equal(t, uint64(7), l.LLCMisses())
	assert.Equal(t, uint64(300|7<<16), l.Flags)
}

func TestThreadInfo_InsertOne_WindowNeverExceedsROBSize(t *testing.T) {
	// GIVEN random branch records, including ones larger than the whole window
	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		ti := &ThreadInfo{}
		for i := 0; i < 500; i++ {
			if rng.Intn(3) == 0 {
				ti.classify(Locality(rng.Intn(2)))
			}
			// WHEN each record is fed into the window
			ti.insertOne(LBR{From: 1, To: 2, Flags: rng.Uint64()})

			// THEN the instruction count stays bounded and the class counts agree
			if ti.ROB.InsCount > ROBSize {
				t.Fatalf("seed %d step %d: InsCount %d > %d", seed, i, ti.ROB.InsCount, ROBSize)
			}
			if got := ti.ROB.MCount[LocalAccess] + ti.ROB.MCount[RemoteAccess]; got != uint64(len(ti.llcmTypeROB)) {
				t.Fatalf("seed %d step %d: class counts %d != window misses %d", seed, i, got, len(ti.llcmTypeROB))
			}
		}
	}
}

func TestThreadInfo_InsertOne_SlidesOldestOut(t *testing.T) {
	// GIVEN a window holding 300 instructions with 2 remote misses
	ti := &ThreadInfo{}
	ti.classify(RemoteAccess)
	ti.classify(RemoteAccess)
	ti.insertOne(LBR{From: 1, Flags: NewLBRFlags(300, 2)})
	assert.Equal(t, uint64(2), ti.ROB.MCount[RemoteAccess])

	// WHEN 300 more instructions with one unclassified miss arrive
	ti.insertOne(LBR{From: 1, Flags: NewLBRFlags(300, 1)})

	// THEN the first record slid out with its misses
	assert.Equal(t, uint64(300), ti.ROB.InsCount)
	assert.Equal(t, uint64(1), ti.ROB.LLCMCount)
	assert.Equal(t, uint64(2), ti.ROB.LLCMBase)
	assert.Equal(t, [2]uint64{1, 0}, ti.ROB.MCount)
	assert.Equal(t, 0.0, ti.RemoteRatio())
	assert.InDelta(t, 1.0/300, ti.LLCMissRatio(), 1e-12)
}

func TestThreadInfo_PendingClassesBounded(t *testing.T) {
	ti := &ThreadInfo{}
	for i := 0; i < pendingClassLimit+10; i++ {
		ti.classify(LocalAccess)
	}
	assert.Equal(t, pendingClassLimit, ti.Pending())
}

func TestThreadInfo_Ratios_EmptyWindow(t *testing.T) {
	ti := &ThreadInfo{}
	assert.Equal(t, 0.0, ti.LLCMissRatio())
	assert.Equal(t, 0.0, ti.RemoteRatio())
}
