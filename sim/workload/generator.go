package workload

import "math/rand"

// Sequential generates n accesses walking memory from start in stride-byte
// steps, one every step time units.
func Sequential(n int, start, stride, step uint64) []AccessEvent {
	events := make([]AccessEvent, n)
	for i := range events {
		addr := start + uint64(i)*stride
		events[i] = AccessEvent{
			Timestamp: uint64(i+1) * step,
			TID:       1,
			PhysAddr:  addr,
			VirtAddr:  addr,
			Index:     int64(i + 1),
		}
	}
	return events
}

// HotSet generates n accesses over hot+cold distinct addresses spaced stride
// bytes apart. Each access hits one of the first hot addresses with
// probability hotFraction, otherwise one of the cold ones.
func HotSet(rng *rand.Rand, n, hot, cold int, hotFraction float64, stride, step uint64) []AccessEvent {
	if hot+cold == 0 {
		return nil
	}
	events := make([]AccessEvent, n)
	for i := range events {
		var slot int
		switch {
		case cold == 0 || (hot > 0 && rng.Float64() < hotFraction):
			slot = rng.Intn(hot)
		default:
			slot = hot + rng.Intn(cold)
		}
		addr := uint64(slot+1) * stride
		events[i] = AccessEvent{
			Timestamp: uint64(i+1) * step,
			TID:       1,
			PhysAddr:  addr,
			VirtAddr:  addr,
			Index:     int64(i + 1),
		}
	}
	return events
}
