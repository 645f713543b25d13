package stream

import "sync"

// frameQueue is a bounded FIFO that drops its oldest frame when full so a
// slow client never blocks publishers.
type frameQueue struct {
	mu      sync.Mutex
	frames  []Frame
	limit   int
	dropped int
	ready   chan struct{}
}

func newFrameQueue(limit int) *frameQueue {
	if limit <= 0 {
		limit = DefaultQueueSize
	}
	return &frameQueue{limit: limit, ready: make(chan struct{}, 1)}
}

func (q *frameQueue) push(f Frame) {
	q.mu.Lock()
	if len(q.frames) >= q.limit {
		q.frames = q.frames[1:]
		q.dropped++
	}
	q.frames = append(q.frames, f)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *frameQueue) drain() []Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.frames
	q.frames = nil
	return out
}

func (q *frameQueue) droppedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
