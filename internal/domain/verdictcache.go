package domain

// VerdictCache memoizes aggregated verdicts for one aggregation pass. Create
// a fresh cache for every pass; it must not outlive a mutation of the graph.
type VerdictCache struct {
	verdicts map[ID]Verdict
}

// NewVerdictCache starts a pass
func NewVerdictCache() *VerdictCache {
	return &VerdictCache{verdicts: make(map[ID]Verdict)}
}

// Len returns the number of memoized entities
func (c *VerdictCache) Len() int {
	return len(c.verdicts)
}

func (c *VerdictCache) lookup(id ID) (Verdict, bool) {
	v, ok := c.verdicts[id]
	return v, ok
}

func (c *VerdictCache) store(id ID, v Verdict) {
	c.verdicts[id] = v
}
