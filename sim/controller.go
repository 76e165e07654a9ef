package sim

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/cxlmemsim/cxlmemsim/sim/trace"
)

// maintenanceInterval is the number of accesses between paging/migration passes.
const maintenanceInterval = 1000

// ErrNoExpanders is returned when a controller is configured without any expander.
var ErrNoExpanders = errors.New("no expanders registered")

// ControllerConfig holds the local tier and timing parameters of a controller.
type ControllerConfig struct {
	Capacity          float64  // local DRAM, MiB
	PageType          PageType // initial allocation granularity
	Epoch             int      // congestion window, thousands of time units
	DRAMLatency       float64  // ns
	CacheBytes        uint64   // address cache budget; 0 disables the cache
	CongestionLatency float64  // ns per switch collision
}

// DefaultControllerConfig returns the parameters used when nothing is configured.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Capacity:          0,
		PageType:          Page,
		Epoch:             5,
		DRAMLatency:       110,
		CacheBytes:        DefaultCacheBytes,
		CongestionLatency: DefaultCongestionLatency,
	}
}

// Validate checks that the controller parameters are usable.
func (c ControllerConfig) Validate() error {
	if c.Capacity < 0 {
		return fmt.Errorf("local capacity must be non-negative, got %v", c.Capacity)
	}
	if !c.PageType.Valid() {
		return fmt.Errorf("unknown page type %d", int(c.PageType))
	}
	if c.Epoch <= 0 {
		return fmt.Errorf("epoch must be > 0, got %d", c.Epoch)
	}
	if c.DRAMLatency < 0 {
		return fmt.Errorf("dram latency must be non-negative, got %v", c.DRAMLatency)
	}
	if c.CongestionLatency < 0 {
		return fmt.Errorf("congestion latency must be non-negative, got %v", c.CongestionLatency)
	}
	return nil
}

// Option customizes a Controller at construction.
type Option func(*Controller)

// WithMonitor sets the collaborator SetProcessInfo and SetThreadInfo drive.
func WithMonitor(m Monitor) Option {
	return func(c *Controller) { c.monitor = m }
}

// WithRNG sets the partitioned RNG expanders draw their free coin flips from.
func WithRNG(rng *PartitionedRNG) Option {
	return func(c *Controller) { c.rng = rng }
}

// WithTrace records epochs and migrations into st.
func WithTrace(st *trace.SimulationTrace) Option {
	return func(c *Controller) { c.trace = st }
}

// Aggregates are the running latency and bandwidth totals of the LBR path.
type Aggregates struct {
	LatencyLat   float64 `json:"latency_lat"`
	BandwidthLat float64 `json:"bandwidth_lat"`
}

// EpochStats summarizes one epoch.
type EpochStats struct {
	Epoch         int              `json:"epoch"`
	Timestamp     uint64           `json:"timestamp"`
	Accesses      int              `json:"accesses"`
	Latency       float64          `json:"latency"`
	Bandwidth     float64          `json:"bandwidth"`
	Congestion    float64          `json:"congestion"`
	Conflicts     uint64           `json:"conflicts"`
	ROBLatency    float64          `json:"rob_latency"`
	InjectedDelay float64          `json:"injected_delay"`
	Counters      ControllerEvents `json:"counters"`
}

// Controller is the root of the topology. It owns local DRAM occupancy, the
// address cache, per-thread ROB state and the policy set, and routes every
// access either locally or down the switch tree.
type Controller struct {
	mu sync.RWMutex

	cfg      ControllerConfig
	policies PolicySet
	topo     *Topology
	local    *OccupancyTable
	cache    *AddressCache
	counter  ControllerCounter
	pageType atomic.Int32
	threads  map[uint64]*ThreadInfo

	monitor Monitor
	rng     *PartitionedRNG
	trace   *trace.SimulationTrace

	lastIndex     int64
	lastTimestamp uint64
	lastAccess    Access
	pending       int // accesses since the last maintenance pass
	freed         uint64

	latencyLat   float64
	bandwidthLat float64

	epochSeq      int
	latencyMark   float64
	counterMark   ControllerEvents
	conflictsMark uint64
}

// NewController creates a controller with an empty topology.
func NewController(cfg ControllerConfig, policies PolicySet, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("controller config: %w", err)
	}
	if err := policies.Validate(); err != nil {
		return nil, fmt.Errorf("controller policies: %w", err)
	}
	c := &Controller{
		cfg:      cfg,
		policies: policies,
		local:    NewOccupancyTable(),
		cache:    NewAddressCache(cfg.CacheBytes),
		threads:  make(map[uint64]*ThreadInfo),
		monitor:  NopMonitor{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = NewPartitionedRNG(NewSimulationKey(0))
	}
	c.pageType.Store(int32(cfg.PageType))
	c.topo = NewTopology(cfg.CongestionLatency, c.rng)
	c.topo.Root().SetEpoch(cfg.Epoch)
	return c, nil
}

// InsertEndPoint registers an expander; ConstructTopo places it.
func (c *Controller) InsertEndPoint(e *Expander) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topo.InsertEndPoint(e)
	e.SetEpoch(c.cfg.Epoch)
}

// ConstructTopo builds the switch tree from a bracket description.
func (c *Controller) ConstructTopo(desc string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.topo.ConstructTopo(desc); err != nil {
		return err
	}
	c.topo.Root().SetEpoch(c.cfg.Epoch)
	return nil
}

// The accessors below do not lock; policies call them while the controller
// holds its write lock.

// Topology returns the node arena.
func (c *Controller) Topology() *Topology { return c.topo }

// Expanders returns the registered expanders in registration order.
func (c *Controller) Expanders() []*Expander { return c.topo.Expanders }

// Local returns the local DRAM occupancy table.
func (c *Controller) Local() *OccupancyTable { return c.local }

// Cache returns the address cache.
func (c *Controller) Cache() *AddressCache { return c.cache }

// Capacity returns the local capacity in MiB.
func (c *Controller) Capacity() float64 { return c.cfg.Capacity }

// DRAMLatency returns the platform DRAM latency in ns.
func (c *Controller) DRAMLatency() float64 { return c.cfg.DRAMLatency }

// PageType returns the current allocation granularity.
func (c *Controller) PageType() PageType { return PageType(c.pageType.Load()) }

// SetPageType changes the allocation granularity.
func (c *Controller) SetPageType(pt PageType) {
	if !pt.Valid() {
		panic(fmt.Sprintf("unhandled page type %d", int(pt)))
	}
	c.pageType.Store(int32(pt))
}

// LocalUsedMiB returns modeled local occupancy.
func (c *Controller) LocalUsedMiB() float64 { return usedMiB(c.local.Len(), c.PageType()) }

// LastAccess returns the access currently being classified.
func (c *Controller) LastAccess() Access { return c.lastAccess }

// Counter exposes the controller's event counters.
func (c *Controller) Counter() *ControllerCounter { return &c.counter }

// Policies returns the active policy set.
func (c *Controller) Policies() PolicySet { return c.policies }

// ThreadSnapshot is a point-in-time copy of one thread's ROB state.
type ThreadSnapshot struct {
	ROB          ROBWindow
	Pending      int
	LLCMissRatio float64
	RemoteRatio  float64
}

// Thread returns a copy of the ROB state of tid. The copy does not follow
// later ingestion.
func (c *Controller) Thread(tid uint64) (ThreadSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.threads[tid]
	if !ok {
		return ThreadSnapshot{}, false
	}
	return ThreadSnapshot{
		ROB:          t.ROB,
		Pending:      t.Pending(),
		LLCMissRatio: t.LLCMissRatio(),
		RemoteRatio:  t.RemoteRatio(),
	}, true
}

func (c *Controller) thread(tid uint64) *ThreadInfo {
	t, ok := c.threads[tid]
	if !ok {
		t = &ThreadInfo{}
		c.threads[tid] = t
	}
	return t
}

// Insert ingests the accesses between the previous stream index and index,
// spreading their timestamps evenly up to timestamp. It returns the number of
// accesses applied.
func (c *Controller) Insert(timestamp, tid, physAddr, virtAddr uint64, index int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insert(timestamp, tid, physAddr, virtAddr, index)
}

// Access ingests a single access at the next stream index.
func (c *Controller) Access(timestamp, tid, physAddr, virtAddr uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insert(timestamp, tid, physAddr, virtAddr, c.lastIndex+1)
}

func (c *Controller) insert(timestamp, tid, physAddr, virtAddr uint64, index int64) int {
	if index < c.lastIndex {
		logrus.Warnf("controller: stream index went backwards (%d < %d), resetting stream", index, c.lastIndex)
		c.lastIndex = index
		c.lastTimestamp = max(c.lastTimestamp, timestamp)
		return 0
	}
	if timestamp < c.lastTimestamp {
		c.counter.OutOfOrder.Increment()
		logrus.Debugf("controller: clamping out-of-order timestamp %d to %d", timestamp, c.lastTimestamp)
		timestamp = c.lastTimestamp
	}

	t := c.thread(tid)
	n := index - c.lastIndex
	step := uint64(0)
	if n > 0 {
		step = (timestamp - c.lastTimestamp) / uint64(n)
	}
	cur := c.lastTimestamp
	for i := int64(0); i < n; i++ {
		cur += step
		c.apply(t, cur, tid, physAddr, virtAddr)
	}
	c.lastIndex = index
	c.lastTimestamp = timestamp

	c.pending += int(n)
	if c.pending >= maintenanceInterval {
		c.maintain()
		c.pending = 0
	}
	return int(n)
}

func (c *Controller) apply(t *ThreadInfo, ts, tid, physAddr, virtAddr uint64) {
	c.lastAccess = Access{Timestamp: ts, Address: physAddr}
	if rec, ok := c.policies.Migration.(AccessRecorder); ok {
		rec.RecordAccess(physAddr)
	}
	c.topo.Root().advance(ts)

	if _, hit := c.cache.Get(physAddr, ts); hit {
		c.counter.Local.Increment()
		t.classify(LocalAccess)
		return
	}

	target := c.policies.Allocation.ComputeOnce(c)
	if target < 0 {
		c.local.Touch(ts, physAddr)
		c.counter.Local.Increment()
		t.classify(LocalAccess)
		c.cache.Put(physAddr, physAddr, ts)
		return
	}

	c.counter.Remote.Increment()
	if res := c.topo.Root().Insert(ts, tid, physAddr, virtAddr, target); res == MissRoute {
		logrus.Debugf("controller: no device accepted target %d for %#x", target, physAddr)
	}
	t.classify(RemoteAccess)
	if c.policies.Caching.ComputeOnce(c) != 0 {
		c.counter.HitM.Increment()
		c.cache.Put(physAddr, physAddr, ts)
	}
}

// maintain runs the paging policy, then the migration policy.
func (c *Controller) maintain() {
	before := c.PageType()
	if c.policies.Paging.ComputeOnce(c) > 0 {
		logrus.Infof("controller: page size promoted from %s to %s", before, c.PageType())
	}
	if c.policies.Migration.ComputeOnce(c) > 0 {
		c.performMigration()
	}
}

// InsertLBR slides thread tid's ROB window over a batch of branch records
// (stopping at the first empty one), then accumulates the ROB-aware latency
// of every expander and the tree bandwidth into the running aggregates.
// Branch counters are currently unused. It returns the latency added.
func (c *Controller) InsertLBR(timestamp, tid uint64, lbrs [LBRBatch]LBR, _ [LBRBatch]BranchCounter) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.thread(tid)
	for _, l := range lbrs {
		if l.From == 0 {
			break
		}
		t.insertOne(l)
	}

	accesses := c.topo.Root().GetAccess(timestamp)
	total := 0.0
	c.topo.Walk(func(sw *Switch, _ int) {
		for _, e := range sw.ChildExpanders() {
			total += sw.EndpointROBLatency(e, accesses, t, c.cfg.DRAMLatency)
		}
	})
	c.latencyLat += total
	c.bandwidthLat += c.topo.Root().CalculateBandwidth(accesses)
	return total
}

// PerformMigration moves every address the migration policy nominates and
// returns the number of moves. Local addresses go to the nominated expander
// when it has room, otherwise to the first expander with room in DFS order.
// Remote addresses come back to local memory.
func (c *Controller) PerformMigration() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.performMigration()
}

func (c *Controller) performMigration() int {
	moved := 0
	for _, m := range c.policies.Migration.MigrationList(c) {
		if rec, ok := c.local.Remove(m.Addr); ok {
			dst := c.findEndpoint(m.Addr)
			if dst == nil {
				dst = c.migrationTarget(m.Target)
			}
			if dst == nil {
				c.local.Put(rec)
				logrus.Debugf("controller: no expander has room for %#x, keeping it local", m.Addr)
				continue
			}
			dst.Occupancy().Put(rec)
			dst.Counter().MigrateIn.Increment()
			c.counter.MigrateOut.Increment()
			c.cache.Invalidate(m.Addr)
			c.recordMigration(m.Addr, trace.LocalLocation, SubsystemExpander(dst.ID))
			moved++
			continue
		}
		src := c.findEndpoint(m.Addr)
		if src == nil {
			continue
		}
		rec, _ := src.Occupancy().Remove(m.Addr)
		rec.Timestamp = c.lastTimestamp
		c.local.Put(rec)
		src.Counter().MigrateOut.Increment()
		c.counter.MigrateIn.Increment()
		c.recordMigration(m.Addr, SubsystemExpander(src.ID), trace.LocalLocation)
		moved++
	}
	return moved
}

func (c *Controller) migrationTarget(target int) *Expander {
	pt := c.PageType()
	if e, ok := c.topo.Expander(target); ok && !e.Full(pt) {
		return e
	}
	for _, e := range c.topo.Endpoints() {
		if !e.Full(pt) {
			return e
		}
	}
	return nil
}

func (c *Controller) findEndpoint(addr uint64) *Expander {
	for _, e := range c.topo.Endpoints() {
		if e.Occupancy().Contains(addr) {
			return e
		}
	}
	return nil
}

func (c *Controller) recordMigration(addr uint64, from, to string) {
	logrus.Debugf("controller: migrated %#x from %s to %s", addr, from, to)
	if c.trace != nil {
		c.trace.RecordMigration(trace.MigrationRecord{Timestamp: c.lastTimestamp, Address: addr, From: from, To: to})
	}
}

// SetStats applies allocator totals: when the freed total grows, every
// expander drops records at random to mirror the frees.
func (c *Controller) SetStats(stats MemStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stats.TotalFreed <= c.freed {
		return
	}
	if n := len(c.topo.Endpoints()); n > 0 && stats.TotalAllocated < statsAllocationCeiling {
		c.topo.Root().FreeStats(float64(stats.TotalFreed-c.freed) / float64(n))
	}
	c.freed = stats.TotalFreed
}

// SetProcessInfo enables process-wide sampling for a newly traced process.
func (c *Controller) SetProcessInfo(info ProcInfo) error {
	if err := c.monitor.Enable(info.CurrentPID, info.CurrentTID, true, processPEBSPeriod, 0); err != nil {
		return fmt.Errorf("enabling monitor for process %d: %w", info.CurrentPID, err)
	}
	return nil
}

// SetThreadInfo enables sampling for a newly discovered thread.
func (c *Controller) SetThreadInfo(info ProcInfo) error {
	if err := c.monitor.Enable(info.CurrentPID, info.CurrentTID, false, 0, 0); err != nil {
		return fmt.Errorf("enabling monitor for thread %d/%d: %w", info.CurrentPID, info.CurrentTID, err)
	}
	return nil
}

// GetAccess returns the recent access set of the whole tree.
func (c *Controller) GetAccess(timestamp uint64) []Access {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topo.Root().GetAccess(timestamp)
}

// CalculateLatency returns the tree's flat latency over accesses.
func (c *Controller) CalculateLatency(accesses []Access, dramLatency float64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topo.Root().CalculateLatency(accesses, dramLatency)
}

// CalculateBandwidth returns the tree's bandwidth over accesses.
func (c *Controller) CalculateBandwidth(accesses []Access) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topo.Root().CalculateBandwidth(accesses)
}

// CalculateCongestion returns the tree's collision penalty and merged
// timestamps. It leaves the Conflict counters alone; only Epoch counts the
// collisions of a window.
func (c *Controller) CalculateCongestion() (float64, []uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topo.Root().congestion(false)
}

// DeleteEntry invalidates [addr, addr+length] on every expander.
func (c *Controller) DeleteEntry(addr, length uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topo.Root().DeleteEntry(addr, length)
}

// SetEpoch changes the congestion window of the whole tree.
func (c *Controller) SetEpoch(epoch int) error {
	if epoch <= 0 {
		return fmt.Errorf("epoch must be > 0, got %d", epoch)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Epoch = epoch
	c.topo.Root().SetEpoch(epoch)
	return nil
}

// LatencyLat returns the accumulated ROB-aware latency.
func (c *Controller) LatencyLat() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latencyLat
}

// BandwidthLat returns the accumulated bandwidth.
func (c *Controller) BandwidthLat() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bandwidthLat
}

// Aggregates returns both running totals.
func (c *Controller) Aggregates() Aggregates {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Aggregates{LatencyLat: c.latencyLat, BandwidthLat: c.bandwidthLat}
}

// ResetAggregates zeroes the running totals.
func (c *Controller) ResetAggregates() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latencyLat, c.bandwidthLat = 0, 0
	c.latencyMark = 0
}

// Epoch closes an epoch at timestamp and returns its statistics. The
// injected delay is the ROB latency accumulated since the previous epoch plus
// the tree's flat latency and congestion penalty.
func (c *Controller) Epoch(timestamp uint64) EpochStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	root := c.topo.Root()
	accesses := root.GetAccess(timestamp)
	congestion, _ := root.CalculateCongestion()
	conflicts := c.totalConflicts()
	snap := c.counter.Snapshot()

	stats := EpochStats{
		Epoch:      c.epochSeq,
		Timestamp:  timestamp,
		Accesses:   len(accesses),
		Latency:    root.CalculateLatency(accesses, c.cfg.DRAMLatency),
		Bandwidth:  root.CalculateBandwidth(accesses),
		Congestion: congestion,
		Conflicts:  conflicts - c.conflictsMark,
		ROBLatency: c.latencyLat - c.latencyMark,
		Counters:   snap.Sub(c.counterMark),
	}
	stats.InjectedDelay = stats.ROBLatency + stats.Latency + stats.Congestion

	if c.trace != nil {
		c.trace.RecordEpoch(trace.EpochRecord{
			Epoch:         stats.Epoch,
			Timestamp:     timestamp,
			Latency:       stats.Latency,
			Bandwidth:     stats.Bandwidth,
			Congestion:    stats.Congestion,
			Conflicts:     stats.Conflicts,
			Local:         stats.Counters.Local,
			Remote:        stats.Counters.Remote,
			InjectedDelay: stats.InjectedDelay,
		})
	}

	c.epochSeq++
	c.latencyMark = c.latencyLat
	c.counterMark = snap
	c.conflictsMark = conflicts
	return stats
}

func (c *Controller) totalConflicts() uint64 {
	var n uint64
	for _, sw := range c.topo.Switches {
		n += sw.Counter().Conflict.Get()
	}
	return n
}

func (c *Controller) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("controller{local=%d/%.0fMiB page=%s policies=%s/%s/%s/%s topology=%s}",
		c.local.Len(), c.cfg.Capacity, c.PageType(),
		c.policies.Allocation.Name(), c.policies.Migration.Name(),
		c.policies.Paging.Name(), c.policies.Caching.Name(), c.topo)
}
