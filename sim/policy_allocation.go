package sim

// interleaveScale is the number of round-robin slots the inverse write
// latencies are spread over.
const interleaveScale = 10

// InterleavePolicy keeps accesses local until local memory is 90% full, then
// spreads them over expanders in a weighted round-robin. Faster writers get
// more slots.
type InterleavePolicy struct {
	weights    []int
	total      int
	lastRemote int
}

func (p *InterleavePolicy) Name() string { return "interleave" }

// Weights returns the per-expander slot counts, computed on first use.
func (p *InterleavePolicy) Weights() []int { return p.weights }

func (p *InterleavePolicy) computeWeights(exps []*Expander) {
	inv := make([]float64, len(exps))
	sum := 0.0
	for i, e := range exps {
		inv[i] = 1.0 / e.Latency.Write
		sum += inv[i]
	}
	p.weights = make([]int, len(exps))
	p.total = 0
	for i := range exps {
		w := int(inv[i] / sum * interleaveScale)
		p.weights[i] = max(w, 1)
		p.total += p.weights[i]
	}
}

// slot maps a round-robin position onto an expander index.
func (p *InterleavePolicy) slot(pos int) int {
	sum := 0
	for i, w := range p.weights {
		sum += w
		if sum > pos {
			return i
		}
	}
	return len(p.weights) - 1
}

func (p *InterleavePolicy) ComputeOnce(c *Controller) int {
	if localHasRoom(c) {
		return -1
	}
	exps := c.Expanders()
	if len(exps) == 0 {
		return -1
	}
	if len(p.weights) != len(exps) {
		p.computeWeights(exps)
	}
	pt := c.PageType()
	for i, total := 0, p.total; i < total; i++ {
		p.lastRemote = (p.lastRemote + 1) % p.total
		idx := p.slot(p.lastRemote)
		if usable(exps[idx], pt) {
			return idx
		}
	}
	return -1
}

// NUMAPolicy keeps accesses local until local memory is 90% full, then picks
// the expander with the best latency score scaled by its free fraction.
type NUMAPolicy struct {
	scores []float64
}

func (p *NUMAPolicy) Name() string { return "numa" }

const (
	numaReadWeight  = 0.7
	numaWriteWeight = 0.3
)

func (p *NUMAPolicy) ComputeOnce(c *Controller) int {
	if localHasRoom(c) {
		return -1
	}
	exps := c.Expanders()
	if len(p.scores) != len(exps) {
		p.scores = make([]float64, len(exps))
		for i, e := range exps {
			p.scores[i] = 1.0 / (numaReadWeight*e.Latency.Read + numaWriteWeight*e.Latency.Write)
		}
	}
	pt := c.PageType()
	best, bestScore := -1, -1.0
	for i, e := range exps {
		if !usable(e, pt) {
			continue
		}
		score := p.scores[i] * (1.0 - e.UsedMiB(pt)/e.Capacity)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 {
		return best
	}
	for i, e := range exps {
		if usable(e, pt) {
			return i
		}
	}
	return -1
}
