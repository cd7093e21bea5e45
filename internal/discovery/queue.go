package discovery

import "sync"

// responseQueue hands responses from the receive goroutine to the main loop
// in arrival order. push never blocks beyond the lock.
type responseQueue struct {
	mu    sync.Mutex
	items []ConnectResponse
}

func (q *responseQueue) push(r ConnectResponse) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
}

// drain removes and returns everything queued so far.
func (q *responseQueue) drain() []ConnectResponse {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *responseQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
