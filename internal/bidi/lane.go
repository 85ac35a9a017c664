package bidi

import "sync"

// lane is an ordered queue of event frames drained by exactly one goroutine.
// Pushing never blocks the reader; with a limit, frames past it are refused.
type lane struct {
	mu      sync.Mutex
	queue   [][]byte
	limit   int
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

func newLane(limit int) *lane {
	return &lane{
		limit: limit,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (l *lane) push(frame []byte) bool {
	l.mu.Lock()
	if l.stopped || (l.limit > 0 && len(l.queue) >= l.limit) {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, frame)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

func (l *lane) pop() ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	frame := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return frame, true
}

func (l *lane) run(deliver func([]byte)) {
	for {
		if frame, ok := l.pop(); ok {
			deliver(frame)
			continue
		}
		select {
		case <-l.wake:
		case <-l.done:
			// Drain anything pushed before stop.
			for frame, ok := l.pop(); ok; frame, ok = l.pop() {
				deliver(frame)
			}
			return
		}
	}
}

func (l *lane) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	close(l.done)
}
