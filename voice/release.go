package voice

import "container/heap"

// release is a pending timed note-off
type release struct {
	at    float64 // absolute clock time
	seq   uint64  // insertion order, breaks ties
	pitch uint8
}

// releaseQueue is a min-heap of releases keyed by (at, seq)
type releaseQueue []release

func (q releaseQueue) Len() int { return len(q) }

func (q releaseQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q releaseQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *releaseQueue) Push(x any) { *q = append(*q, x.(release)) }

func (q *releaseQueue) Pop() any {
	old := *q
	n := len(old)
	r := old[n-1]
	*q = old[:n-1]
	return r
}

func (q *releaseQueue) schedule(r release) {
	heap.Push(q, r)
}

// popDue removes and returns the earliest release if it is due at now
func (q *releaseQueue) popDue(now float64) (release, bool) {
	if len(*q) == 0 || (*q)[0].at > now {
		return release{}, false
	}
	return heap.Pop(q).(release), true
}

// next returns the time of the earliest pending release
func (q releaseQueue) next() (float64, bool) {
	if len(q) == 0 {
		return 0, false
	}
	return q[0].at, true
}
