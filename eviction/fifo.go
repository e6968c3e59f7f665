package eviction

import "container/list"

// fifo evicts in insertion order and ignores reads.
type fifo struct {
	queue *list.List
	elems map[string]*list.Element
}

func newFIFO() *fifo {
	return &fifo{queue: list.New(), elems: make(map[string]*list.Element)}
}

func (f *fifo) OnGet(string) {}

func (f *fifo) OnPut(k string) {
	if _, ok := f.elems[k]; ok {
		return
	}
	f.elems[k] = f.queue.PushBack(k)
}

func (f *fifo) Evict() string {
	e := f.queue.Front()
	if e == nil {
		return ""
	}
	k := f.queue.Remove(e).(string)
	delete(f.elems, k)
	return k
}

// Remove is O(1): the element is found through the map instead of scanning the queue.
func (f *fifo) Remove(k string) {
	if e, ok := f.elems[k]; ok {
		f.queue.Remove(e)
		delete(f.elems, k)
	}
}
