package progress

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aixcyberchallenge/submission-relay/internal/types"
)

var ErrChannelClosed = errors.New("progress channel already delivered its closed event")

// Unbounded, ordered, single producer / single consumer event queue for one submission.
//
// Send never blocks. Once a closed event has been sent no further events are accepted.
type Channel struct {
	submissionID string
	owner        string
	created      time.Time

	mu     sync.Mutex
	queue  []types.ProgressEvent
	closed bool
	// buffered(1) wake up for the consumer
	notify chan struct{}

	total   atomic.Int64
	current atomic.Int64
}

func newChannel(submissionID, owner string, created time.Time) *Channel {
	return &Channel{
		submissionID: submissionID,
		owner:        owner,
		created:      created,
		notify:       make(chan struct{}, 1),
	}
}

func (c *Channel) SubmissionID() string {
	return c.submissionID
}

func (c *Channel) Owner() string {
	return c.owner
}

func (c *Channel) Created() time.Time {
	return c.created
}

// Appends an event. Returns ErrChannelClosed if the terminal event was already sent.
func (c *Channel) Send(evt types.ProgressEvent) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.queue = append(c.queue, evt)
	if evt.Kind.Terminal() {
		c.closed = true
	}
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}

	return nil
}

// Blocks until the next event is available or ctx is done
func (c *Channel) Receive(ctx context.Context) (types.ProgressEvent, error) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			evt := c.queue[0]
			c.queue[0] = types.ProgressEvent{}
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return evt, nil
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return types.ProgressEvent{}, ctx.Err()
		case <-c.notify:
		}
	}
}

// True once the producer sent the terminal event, regardless of whether it was consumed
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) SetTotal(total int) {
	c.total.Store(int64(total))
}

func (c *Channel) SetCurrent(current int) {
	c.current.Store(int64(current))
}

func (c *Channel) Total() int {
	return int(c.total.Load())
}

func (c *Channel) Current() int {
	return int(c.current.Load())
}
