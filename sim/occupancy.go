package sim

import "sync"

// OccupancyRecord marks an address as resident on a device.
type OccupancyRecord struct {
	Timestamp   uint64 `json:"timestamp"`
	Address     uint64 `json:"address"`
	AccessCount uint64 `json:"access_count"`
}

// Access is one (timestamp, address) pair from a device's recent access set.
type Access struct {
	Timestamp uint64
	Address   uint64
}

// OccupancyTable holds at most one record per address, in insertion order.
// Refreshing a record moves it to the tail. Many concurrent readers, one writer.
type OccupancyTable struct {
	mu      sync.RWMutex
	records []OccupancyRecord
	index   map[uint64]int // address -> position in records
}

// NewOccupancyTable returns an empty table.
func NewOccupancyTable() *OccupancyTable {
	return &OccupancyTable{index: make(map[uint64]int)}
}

// Len returns the number of resident addresses.
func (t *OccupancyTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Contains reports whether addr has a record.
func (t *OccupancyTable) Contains(addr uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.index[addr]
	return ok
}

// Get returns the record for addr.
func (t *OccupancyTable) Get(addr uint64) (OccupancyRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[addr]
	if !ok {
		return OccupancyRecord{}, false
	}
	return t.records[i], true
}

// Touch records an access to addr at ts. An existing record is re-timed,
// its access count incremented and moved to the tail; otherwise a new record
// is appended. Returns true when the address was already resident.
func (t *OccupancyTable) Touch(ts, addr uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i, ok := t.index[addr]; ok {
		rec := t.records[i]
		t.removeAt(i)
		rec.Timestamp = ts
		rec.AccessCount++
		t.append(rec)
		return true
	}
	t.append(OccupancyRecord{Timestamp: ts, Address: addr})
	return false
}

// Put inserts rec, replacing any record for the same address.
func (t *OccupancyTable) Put(rec OccupancyRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i, ok := t.index[rec.Address]; ok {
		t.removeAt(i)
	}
	t.append(rec)
}

// Remove deletes the record for addr and returns it.
func (t *OccupancyTable) Remove(addr uint64) (OccupancyRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[addr]
	if !ok {
		return OccupancyRecord{}, false
	}
	rec := t.records[i]
	t.removeAt(i)
	return rec, true
}

// RemoveIf deletes every record for which drop returns true and reports how many went.
func (t *OccupancyTable) RemoveIf(drop func(OccupancyRecord) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.records[:0]
	removed := 0
	for _, rec := range t.records {
		if drop(rec) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	t.records = kept
	t.reindex()
	return removed
}

// TouchRange marks every record with address in [lo, hi] as accessed at ts
// without moving it. Returns the number of records touched.
func (t *OccupancyTable) TouchRange(lo, hi, ts uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i := range t.records {
		if t.records[i].Address >= lo && t.records[i].Address <= hi {
			t.records[i].AccessCount++
			t.records[i].Timestamp = ts
			n++
		}
	}
	return n
}

// Oldest returns the record with the smallest timestamp (first inserted on ties).
func (t *OccupancyTable) Oldest() (OccupancyRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.records) == 0 {
		return OccupancyRecord{}, false
	}
	oldest := t.records[0]
	for _, rec := range t.records[1:] {
		if rec.Timestamp < oldest.Timestamp {
			oldest = rec
		}
	}
	return oldest, true
}

// Records returns a copy of all records in table order.
func (t *OccupancyTable) Records() []OccupancyRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]OccupancyRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Since returns the accesses whose timestamp is strictly greater than after.
func (t *OccupancyTable) Since(after uint64) []Access {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Access
	for _, rec := range t.records {
		if rec.Timestamp > after {
			out = append(out, Access{Timestamp: rec.Timestamp, Address: rec.Address})
		}
	}
	return out
}

// Timestamps returns the timestamps of records newer than after.
func (t *OccupancyTable) Timestamps(after uint64) []uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []uint64
	for _, rec := range t.records {
		if rec.Timestamp > after {
			out = append(out, rec.Timestamp)
		}
	}
	return out
}

// AccessCountStats returns the sum of access counts and the record count.
func (t *OccupancyTable) AccessCountStats() (total uint64, pages int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, rec := range t.records {
		total += rec.AccessCount
	}
	return total, len(t.records)
}

func (t *OccupancyTable) append(rec OccupancyRecord) {
	t.index[rec.Address] = len(t.records)
	t.records = append(t.records, rec)
}

func (t *OccupancyTable) removeAt(i int) {
	delete(t.index, t.records[i].Address)
	copy(t.records[i:], t.records[i+1:])
	t.records = t.records[:len(t.records)-1]
	for j := i; j < len(t.records); j++ {
		t.index[t.records[j].Address] = j
	}
}

func (t *OccupancyTable) reindex() {
	clear(t.index)
	for i, rec := range t.records {
		t.index[rec.Address] = i
	}
}
