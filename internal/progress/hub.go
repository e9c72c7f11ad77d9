package progress

import (
	"errors"
	"sync"

	"github.com/TonyXing/youtube-to-epub/internal/types"
)

// ErrUnknownJob is returned when subscribing to a job id never registered.
var ErrUnknownJob = errors.New("unknown job")

// Hub is the per-job progress channel. The pipeline goroutine is the sole
// publisher for its job; any number of readers may attach, and each receives
// every event from its subscription point onward, in publish order,
// independent of the other readers' consumption speed.
type Hub struct {
	mu      sync.Mutex
	streams map[string]*stream
}

type stream struct {
	last     types.ProgressEvent
	hasLast  bool
	terminal bool
	subs     []*subscriber
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{streams: make(map[string]*stream)}
}

// Register creates the stream for a new job. Must happen before the first
// Publish or Subscribe for that job.
func (h *Hub) Register(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.streams[jobID]; !ok {
		h.streams[jobID] = &stream{}
	}
}

// Publish pushes one event to every subscriber of the job. The percentage is
// clamped so the published sequence never decreases; a terminal event ends
// every stream exactly once. Publishing after a terminal event is a no-op.
func (h *Hub) Publish(jobID string, event types.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.streams[jobID]
	if !ok || st.terminal {
		return
	}

	if st.hasLast && event.Percent < st.last.Percent {
		event.Percent = st.last.Percent
	}
	st.last = event
	st.hasLast = true

	for _, sub := range st.subs {
		sub.push(event)
	}

	if event.Terminal {
		st.terminal = true
		for _, sub := range st.subs {
			sub.finish()
		}
		st.subs = nil
	}
}

// Subscribe attaches a reader to a job's stream. The returned channel first
// yields the latest event (the current snapshot, if any), then every
// subsequent event; it is closed after the terminal event. The cancel
// function detaches early and must be called when the reader walks away.
func (h *Hub) Subscribe(jobID string) (<-chan types.ProgressEvent, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.streams[jobID]
	if !ok {
		return nil, nil, ErrUnknownJob
	}

	sub := newSubscriber()
	if st.hasLast {
		sub.push(st.last)
	}

	if st.terminal {
		sub.finish()
		return sub.out, func() {}, nil
	}

	st.subs = append(st.subs, sub)
	cancel := func() {
		h.mu.Lock()
		for i, s := range st.subs {
			if s == sub {
				st.subs = append(st.subs[:i], st.subs[i+1:]...)
				break
			}
		}
		h.mu.Unlock()
		sub.stop()
	}
	return sub.out, cancel, nil
}

// Last returns the most recent event for a job, if any.
func (h *Hub) Last(jobID string) (types.ProgressEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.streams[jobID]
	if !ok || !st.hasLast {
		return types.ProgressEvent{}, false
	}
	return st.last, true
}

// Remove drops a job's stream, ending any remaining subscriptions.
func (h *Hub) Remove(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.streams[jobID]
	if !ok {
		return
	}
	for _, sub := range st.subs {
		sub.finish()
	}
	delete(h.streams, jobID)
}

// subscriber decouples publish order from consumption speed: events queue
// without bound and a pump goroutine feeds the outward channel.
type subscriber struct {
	mu     sync.Mutex
	queue  []types.ProgressEvent
	wake   chan struct{}
	quit   chan struct{}
	closed bool

	out chan types.ProgressEvent
}

func newSubscriber() *subscriber {
	sub := &subscriber{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		out:  make(chan types.ProgressEvent),
	}
	go sub.pump()
	return sub
}

func (s *subscriber) push(event types.ProgressEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, event)
	s.mu.Unlock()
	s.signal()
}

// finish marks the queue complete; the pump closes out after draining.
func (s *subscriber) finish() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

// stop abandons the subscription without draining.
func (s *subscriber) stop() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.quit)
	}
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) pump() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				close(s.out)
				return
			}
			<-s.wake
			continue
		}
		event := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- event:
		case <-s.quit:
			return
		}
	}
}
