package qsim

// scheduler.go holds the time-ordered queues the engine draws from at the
// start of every step: agents about to depart, and network change events.

import (
	"cmp"
	"container/heap"

	"golang.org/x/exp/slices"
)

// departure is an agent scheduled to start its current leg
type departure struct {
	time  float64
	seq   int // ties are broken by scheduling order
	agent Driver
}

// departureHeap and its methods implement a min-priority heap
// on the departure times of agents
type departureHeap []*departure

func (h departureHeap) Len() int { return len(h) }
func (h departureHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	return h[i].seq < h[j].seq
}
func (h departureHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *departureHeap) Push(x any) {
	*h = append(*h, x.(*departure))
}

func (h *departureHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return x
}

// DepartureScheduler hands out agents in order of departure time
type DepartureScheduler struct {
	pending departureHeap
	nxtSeq  int
}

// CreateDepartureScheduler is a constructor
func CreateDepartureScheduler() *DepartureScheduler {
	ds := new(DepartureScheduler)
	ds.pending = departureHeap{}
	heap.Init(&ds.pending)
	return ds
}

// Schedule enters an agent to depart at the given time
func (ds *DepartureScheduler) Schedule(agent Driver, time float64) {
	ds.nxtSeq++
	heap.Push(&ds.pending, &departure{time: time, seq: ds.nxtSeq, agent: agent})
}

// Due removes and returns, in order, every agent departing at or before now
func (ds *DepartureScheduler) Due(now float64) []Driver {
	rtn := []Driver{}
	for len(ds.pending) > 0 && ds.pending[0].time <= now {
		dep := heap.Pop(&ds.pending).(*departure)
		rtn = append(rtn, dep.agent)
	}
	return rtn
}

// Len returns the number of agents still to depart
func (ds *DepartureScheduler) Len() int {
	return len(ds.pending)
}

// drain removes and returns every agent still to depart, in order
func (ds *DepartureScheduler) drain() []Driver {
	rtn := []Driver{}
	for len(ds.pending) > 0 {
		rtn = append(rtn, heap.Pop(&ds.pending).(*departure).agent)
	}
	return rtn
}

// changeQueue holds change events ordered by time, stable for equal times
type changeQueue struct {
	events []*ChangeEvent
	nxt    int
}

func newChangeQueue(events []*ChangeEvent) *changeQueue {
	sorted := append([]*ChangeEvent{}, events...)
	slices.SortStableFunc(sorted, func(a, b *ChangeEvent) int { return cmp.Compare(a.Time, b.Time) })
	return &changeQueue{events: sorted}
}

// due returns the change events taking effect at or before now, each once
func (cq *changeQueue) due(now float64) []*ChangeEvent {
	start := cq.nxt
	for cq.nxt < len(cq.events) && cq.events[cq.nxt].Time <= now {
		cq.nxt++
	}
	return cq.events[start:cq.nxt]
}

func (cq *changeQueue) pending() int {
	return len(cq.events) - cq.nxt
}
