package portscan

// expiryQueue is a min-heap of records ordered by window start.
type expiryQueue []*activity

func (q expiryQueue) Len() int { return len(q) }

func (q expiryQueue) Less(i, j int) bool {
	return q[i].windowStart.Before(q[j].windowStart)
}

func (q expiryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *expiryQueue) Push(x any) {
	rec := x.(*activity) //nolint:forcetypeassert
	rec.index = len(*q)
	*q = append(*q, rec)
}

func (q *expiryQueue) Pop() any {
	old := *q
	n := len(old)
	rec := old[n-1]
	old[n-1] = nil
	rec.index = -1
	*q = old[:n-1]
	return rec
}
