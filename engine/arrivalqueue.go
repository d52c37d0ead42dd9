package engine

import (
	"container/heap"
	"sync"

	"github.com/sarchlab/meshsim/link"
	"github.com/sarchlab/meshsim/topology"
)

// An arrival is a packet that will reach the end of a link.
type arrival struct {
	transit *link.Transit
	edge    *topology.Edge
	seq     uint64
}

// arrivalQueue orders arrivals by arrive tick. Arrivals of the same tick keep
// the order in which they were pushed.
type arrivalQueue struct {
	sync.Mutex
	arrivals arrivalHeap
	nextSeq  uint64
}

func newArrivalQueue() *arrivalQueue {
	q := new(arrivalQueue)
	q.arrivals = make([]*arrival, 0)
	heap.Init(&q.arrivals)

	return q
}

func (q *arrivalQueue) Push(transit *link.Transit, edge *topology.Edge) {
	q.Lock()
	heap.Push(&q.arrivals, &arrival{
		transit: transit,
		edge:    edge,
		seq:     q.nextSeq,
	})
	q.nextSeq++
	q.Unlock()
}

func (q *arrivalQueue) Pop() *arrival {
	q.Lock()
	a := heap.Pop(&q.arrivals).(*arrival)
	q.Unlock()

	return a
}

func (q *arrivalQueue) Peek() *arrival {
	q.Lock()
	a := q.arrivals[0]
	q.Unlock()

	return a
}

func (q *arrivalQueue) Len() int {
	q.Lock()
	l := q.arrivals.Len()
	q.Unlock()

	return l
}

type arrivalHeap []*arrival

func (h arrivalHeap) Len() int {
	return len(h)
}

func (h arrivalHeap) Less(i, j int) bool {
	if h[i].transit.ArriveTick != h[j].transit.ArriveTick {
		return h[i].transit.ArriveTick < h[j].transit.ArriveTick
	}

	return h[i].seq < h[j].seq
}

func (h arrivalHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *arrivalHeap) Push(x any) {
	*h = append(*h, x.(*arrival))
}

func (h *arrivalHeap) Pop() any {
	old := *h
	n := len(old)
	a := old[n-1]
	*h = old[0 : n-1]

	return a
}
