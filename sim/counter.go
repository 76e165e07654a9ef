package sim

import "sync/atomic"

// Counter is a monotonically increasing event tally. Safe for concurrent readers.
type Counter struct {
	v atomic.Uint64
}

// Increment adds one to the counter.
func (c *Counter) Increment() { c.v.Add(1) }

// Get returns the current value.
func (c *Counter) Get() uint64 { return c.v.Load() }

// ExpanderCounter tallies events observed by one memory expander.
type ExpanderCounter struct {
	Load       Counter
	Store      Counter
	MigrateIn  Counter
	MigrateOut Counter
	HitM       Counter
}

// ExpanderEvents is a point-in-time copy of an ExpanderCounter.
type ExpanderEvents struct {
	Load       uint64 `json:"load"`
	Store      uint64 `json:"store"`
	MigrateIn  uint64 `json:"migrate_in"`
	MigrateOut uint64 `json:"migrate_out"`
	HitM       uint64 `json:"hitm"`
}

// Snapshot copies the current values.
func (c *ExpanderCounter) Snapshot() ExpanderEvents {
	return ExpanderEvents{
		Load:       c.Load.Get(),
		Store:      c.Store.Get(),
		MigrateIn:  c.MigrateIn.Get(),
		MigrateOut: c.MigrateOut.Get(),
		HitM:       c.HitM.Get(),
	}
}

// Sub returns the per-field difference e - prev.
func (e ExpanderEvents) Sub(prev ExpanderEvents) ExpanderEvents {
	return ExpanderEvents{
		Load:       e.Load - prev.Load,
		Store:      e.Store - prev.Store,
		MigrateIn:  e.MigrateIn - prev.MigrateIn,
		MigrateOut: e.MigrateOut - prev.MigrateOut,
		HitM:       e.HitM - prev.HitM,
	}
}

// SwitchCounter tallies events routed through, or contended on, one switch.
type SwitchCounter struct {
	Load     Counter
	Store    Counter
	Conflict Counter
}

// SwitchEvents is a point-in-time copy of a SwitchCounter.
type SwitchEvents struct {
	Load     uint64 `json:"load"`
	Store    uint64 `json:"store"`
	Conflict uint64 `json:"conflict"`
}

// Snapshot copies the current values.
func (c *SwitchCounter) Snapshot() SwitchEvents {
	return SwitchEvents{
		Load:     c.Load.Get(),
		Store:    c.Store.Get(),
		Conflict: c.Conflict.Get(),
	}
}

// ControllerCounter tallies controller-level access classification.
type ControllerCounter struct {
	Local      Counter
	Remote     Counter
	HitM       Counter
	MigrateIn  Counter
	MigrateOut Counter
	OutOfOrder Counter
}

// ControllerEvents is a point-in-time copy of a ControllerCounter.
type ControllerEvents struct {
	Local      uint64 `json:"local"`
	Remote     uint64 `json:"remote"`
	HitM       uint64 `json:"hitm"`
	MigrateIn  uint64 `json:"migrate_in"`
	MigrateOut uint64 `json:"migrate_out"`
	OutOfOrder uint64 `json:"out_of_order"`
}

// Snapshot copies the current values.
func (c *ControllerCounter) Snapshot() ControllerEvents {
	return ControllerEvents{
		Local:      c.Local.Get(),
		Remote:     c.Remote.Get(),
		HitM:       c.HitM.Get(),
		MigrateIn:  c.MigrateIn.Get(),
		MigrateOut: c.MigrateOut.Get(),
		OutOfOrder: c.OutOfOrder.Get(),
	}
}

// Sub returns the per-field difference e - prev.
func (e ControllerEvents) Sub(prev ControllerEvents) ControllerEvents {
	return ControllerEvents{
		Local:      e.Local - prev.Local,
		Remote:     e.Remote - prev.Remote,
		HitM:       e.HitM - prev.HitM,
		MigrateIn:  e.MigrateIn - prev.MigrateIn,
		MigrateOut: e.MigrateOut - prev.MigrateOut,
		OutOfOrder: e.OutOfOrder - prev.OutOfOrder,
	}
}
