package eviction

import "container/list"

// lru keeps names in a list ordered by last use; the front is the most recent.
type lru struct {
	order *list.List
	elems map[string]*list.Element
}

func newLRU() *lru {
	return &lru{order: list.New(), elems: make(map[string]*list.Element)}
}

func (l *lru) OnGet(k string) {
	if e, ok := l.elems[k]; ok {
		l.order.MoveToFront(e)
	}
}

func (l *lru) OnPut(k string) {
	if _, ok := l.elems[k]; ok {
		return
	}
	l.elems[k] = l.order.PushFront(k)
}

func (l *lru) Evict() string {
	e := l.order.Back()
	if e == nil {
		return ""
	}
	k := l.order.Remove(e).(string)
	delete(l.elems, k)
	return k
}

func (l *lru) Remove(k string) {
	if e, ok := l.elems[k]; ok {
		l.order.Remove(e)
		delete(l.elems, k)
	}
}
