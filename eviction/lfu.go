package eviction

// lfu counts reads per name. Ties go to the name inserted first.
type lfu struct {
	hits map[string]uint64
	seq  map[string]uint64 // insertion sequence, for tie-breaking
	next uint64
}

func newLFU() *lfu {
	return &lfu{hits: make(map[string]uint64), seq: make(map[string]uint64)}
}

func (l *lfu) OnGet(k string) {
	if _, ok := l.hits[k]; ok {
		l.hits[k]++
	}
}

func (l *lfu) OnPut(k string) {
	if _, ok := l.hits[k]; ok {
		return
	}
	l.hits[k] = 0
	l.seq[k] = l.next
	l.next++
}

// Evict scans every tracked name. Buckets are small (capacity / bucket count).
func (l *lfu) Evict() string {
	var (
		victim string
		found  bool
	)
	for k, h := range l.hits {
		if !found || h < l.hits[victim] || (h == l.hits[victim] && l.seq[k] < l.seq[victim]) {
			victim, found = k, true
		}
	}
	if !found {
		return ""
	}
	l.Remove(victim)
	return victim
}

func (l *lfu) Remove(k string) {
	delete(l.hits, k)
	delete(l.seq, k)
}
