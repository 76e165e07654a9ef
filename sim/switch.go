package sim

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

const (
	// congestionThreshold is the minimum spacing (about 20ns) between two
	// transfers on a shared switch link before they collide.
	congestionThreshold uint64 = 2000
	// DefaultCongestionLatency is the penalty charged per collision.
	DefaultCongestionLatency = 90.0
	// EpochTimeUnits converts an epoch setting into timestamp units.
	EpochTimeUnits uint64 = 1000
	// robPressure is the fraction of ROBSize at which the window counts as congested.
	robPressure = 0.8
)

type nodeKind int

const (
	expanderNode nodeKind = iota
	switchNode
)

// nodeRef points at a child in the topology arena, preserving description order.
type nodeRef struct {
	kind  nodeKind
	index int
}

// Switch is an interior topology node. It owns child switches and expanders
// by arena index and aggregates their latency, bandwidth and congestion.
type Switch struct {
	ID                int
	CongestionLatency float64

	arena     *Topology
	switches  []int
	expanders []int
	children  []nodeRef

	counter       SwitchCounter
	lastTimestamp atomic.Uint64
	epoch         atomic.Int64
}

func newSwitch(arena *Topology, id int, congestionLatency float64) *Switch {
	return &Switch{ID: id, arena: arena, CongestionLatency: congestionLatency}
}

// Counter exposes the switch's event counters.
func (s *Switch) Counter() *SwitchCounter { return &s.counter }

// LastTimestamp returns the newest timestamp routed through this switch.
func (s *Switch) LastTimestamp() uint64 { return s.lastTimestamp.Load() }

// ChildSwitches returns the switches directly below this one.
func (s *Switch) ChildSwitches() []*Switch {
	out := make([]*Switch, len(s.switches))
	for i, idx := range s.switches {
		out[i] = s.arena.Switches[idx]
	}
	return out
}

// ChildExpanders returns the expanders directly below this switch.
func (s *Switch) ChildExpanders() []*Expander {
	out := make([]*Expander, len(s.expanders))
	for i, idx := range s.expanders {
		out[i] = s.arena.Expanders[idx]
	}
	return out
}

func (s *Switch) advance(ts uint64) {
	for {
		last := s.lastTimestamp.Load()
		if ts <= last || s.lastTimestamp.CompareAndSwap(last, ts) {
			return
		}
	}
}

// SetEpoch sets the congestion window (in thousands of time units) on the whole subtree.
func (s *Switch) SetEpoch(epoch int) {
	s.epoch.Store(int64(epoch))
	for _, e := range s.ChildExpanders() {
		e.SetEpoch(epoch)
	}
	for _, sw := range s.ChildSwitches() {
		sw.SetEpoch(epoch)
	}
}

// Insert routes an access down the subtree: child expanders first, then child
// switches. The first Store or Load wins.
func (s *Switch) Insert(timestamp, tid, physAddr, virtAddr uint64, target int) RouteResult {
	logrus.Debugf("switch %d: insert phys=%#x virt=%#x target=%d", s.ID, physAddr, virtAddr, target)
	for _, e := range s.ChildExpanders() {
		if res := e.Insert(timestamp, tid, physAddr, virtAddr, target); res != MissRoute {
			s.record(res, timestamp)
			return res
		}
	}
	for _, sw := range s.ChildSwitches() {
		if res := sw.Insert(timestamp, tid, physAddr, virtAddr, target); res != MissRoute {
			s.record(res, timestamp)
			return res
		}
	}
	return MissRoute
}

func (s *Switch) record(res RouteResult, ts uint64) {
	s.advance(ts)
	if res == Store {
		s.counter.Store.Increment()
	} else {
		s.counter.Load.Increment()
	}
}

// GetAccess concatenates the recent access sets of the whole subtree.
func (s *Switch) GetAccess(timestamp uint64) []Access {
	var res []Access
	for _, e := range s.ChildExpanders() {
		res = append(res, e.GetAccess(timestamp)...)
	}
	for _, sw := range s.ChildSwitches() {
		res = append(res, sw.GetAccess(timestamp)...)
	}
	return res
}

// CalculateLatency sums the children's flat latencies.
func (s *Switch) CalculateLatency(accesses []Access, dramLatency float64) float64 {
	lat := 0.0
	for _, e := range s.ChildExpanders() {
		lat += e.CalculateLatency(accesses, dramLatency)
	}
	for _, sw := range s.ChildSwitches() {
		lat += sw.CalculateLatency(accesses, dramLatency)
	}
	return lat
}

// CalculateBandwidth sums the children's bandwidths.
func (s *Switch) CalculateBandwidth(accesses []Access) float64 {
	bw := 0.0
	for _, e := range s.ChildExpanders() {
		bw += e.CalculateBandwidth(accesses)
	}
	for _, sw := range s.ChildSwitches() {
		bw += sw.CalculateBandwidth(accesses)
	}
	return bw
}

// CalculateCongestion merges the children's congestion lists with the
// timestamps of this switch's own expanders that fall inside the epoch. Any
// two neighbors closer than congestionThreshold collide: the switch charges
// CongestionLatency, counts a conflict and coalesces the pair. Every call
// counts the collisions of the current window again.
func (s *Switch) CalculateCongestion() (float64, []uint64) {
	return s.congestion(true)
}

// congestion computes the penalty, incrementing Conflict only when count is set.
func (s *Switch) congestion(count bool) (float64, []uint64) {
	latency := 0.0
	var timestamps []uint64
	for _, sw := range s.ChildSwitches() {
		lat, ts := sw.congestion(count)
		latency += lat
		timestamps = append(timestamps, ts...)
	}

	window := uint64(max(s.epoch.Load(), 0)) * EpochTimeUnits
	after := saturatingSub(s.lastTimestamp.Load(), window)
	for _, e := range s.ChildExpanders() {
		timestamps = append(timestamps, e.Occupancy().Timestamps(after)...)
	}

	slices.Sort(timestamps)
	for i := 0; i+1 < len(timestamps); {
		if timestamps[i+1]-timestamps[i] < congestionThreshold {
			latency += s.CongestionLatency
			if count {
				s.counter.Conflict.Increment()
			}
			timestamps = slices.Delete(timestamps, i, i+1)
			continue
		}
		i++
	}
	return latency, timestamps
}

// EndpointROBLatency is the ROB-aware latency of the accesses resident on e:
// the device's flat latency inflated by ROB pressure and remote-access share,
// plus a DRAM term.
func (s *Switch) EndpointROBLatency(e *Expander, accesses []Access, t *ThreadInfo, dramLatency float64) float64 {
	base := (e.Latency.Read + e.Latency.Write) / 2.0
	llcMissRatio := t.LLCMissRatio()
	remoteRatio := t.RemoteRatio()

	total := 0.0
	matched := 0
	for _, a := range accesses {
		if !e.Occupancy().Contains(a.Address) {
			continue
		}
		matched++
		cur := base
		if float64(t.ROB.InsCount) >= ROBSize*robPressure {
			cur *= 1.0 + llcMissRatio*0.5
		}
		if t.ROB.MCount[RemoteAccess] > 0 {
			cur *= 1.0 + remoteRatio*0.3
		}
		cur += dramLatency * (remoteRatio + 0.1)
		total += cur
	}
	if matched == 0 {
		return 0.0
	}
	return total / float64(matched)
}

// DeleteEntry fans the invalidation out to the subtree.
func (s *Switch) DeleteEntry(addr, length uint64) {
	for _, e := range s.ChildExpanders() {
		e.DeleteEntry(addr, length)
	}
	for _, sw := range s.ChildSwitches() {
		sw.DeleteEntry(addr, length)
	}
}

// FreeStats fans the allocator-free eviction out to the subtree.
func (s *Switch) FreeStats(size float64) {
	for _, e := range s.ChildExpanders() {
		e.FreeStats(size)
	}
	for _, sw := range s.ChildSwitches() {
		sw.FreeStats(size)
	}
}

func (s *Switch) String() string {
	return fmt.Sprintf("switch_%d{switches=%d expanders=%d}", s.ID, len(s.switches), len(s.expanders))
}
