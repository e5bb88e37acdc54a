package grading

import (
	"sync"
	"time"
)

const progressBufferSize = 16

// ProgressEvent describes one submission state change for live observers.
type ProgressEvent struct {
	SubmissionID string    `json:"submission_id"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	At           time.Time `json:"at"`
}

// ProgressBroker fans submission state changes out to websocket subscribers.
// Slow subscribers drop events rather than blocking the pipeline.
type ProgressBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan ProgressEvent]struct{}
}

// NewProgressBroker constructs an empty broker.
func NewProgressBroker() *ProgressBroker {
	return &ProgressBroker{
		subscribers: make(map[string]map[chan ProgressEvent]struct{}),
	}
}

// Subscribe registers interest in one submission's state changes. The
// returned cancel function must be called when the observer disconnects.
func (b *ProgressBroker) Subscribe(submissionID string) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, progressBufferSize)

	b.mu.Lock()
	if b.subscribers[submissionID] == nil {
		b.subscribers[submissionID] = make(map[chan ProgressEvent]struct{})
	}
	b.subscribers[submissionID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if subs, ok := b.subscribers[submissionID]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subscribers, submissionID)
			}
		}
		b.mu.Unlock()
		close(ch)
	}

	return ch, cancel
}

// Publish delivers an event to every subscriber of the submission.
func (b *ProgressBroker) Publish(event ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[event.SubmissionID] {
		select {
		case ch <- event:
		default:
		}
	}
}
