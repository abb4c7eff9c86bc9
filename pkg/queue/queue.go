// Package queue carries consumer throughput samples from the consumers under
// test to the controller. Delivery is at-least-once: a reserved message that is
// never deleted becomes available again.
package queue

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrTimeout is returned by Reserve when nothing arrived within the timeout.
// It is the normal idle outcome, not a failure.
var ErrTimeout = errors.New("timed out waiting for a message")

// ErrNotReserved is returned by Delete for a message the queue no longer holds.
var ErrNotReserved = errors.New("message is not reserved")

// Message is one reserved queue entry.
type Message struct {
	ID   string
	Body []byte

	handle interface{}
}

// Queue is the work queue the controllers poll.
type Queue interface {
	// Reserve blocks up to timeout for the next message.
	Reserve(ctx context.Context, timeout time.Duration) (*Message, error)
	// Delete acknowledges a reserved message so it is never redelivered.
	Delete(ctx context.Context, msg *Message) error
}

// Publisher puts raw sample bodies onto the queue.
type Publisher interface {
	Put(ctx context.Context, body []byte) error
}

// Flusher discards everything currently queued, returning how many entries went.
type Flusher interface {
	Flush(ctx context.Context) (int, error)
}

// Requeuer puts reserved-but-undeleted messages back for redelivery, returning
// how many moved. Kafka has no Requeue: uncommitted records are redelivered to
// the next member of the group on their own.
type Requeuer interface {
	Requeue(ctx context.Context) (int, error)
}

// Drain reserves and deletes messages until a reserve times out. It is the
// fallback flush for backends with no bulk delete.
func Drain(ctx context.Context, q Queue, timeout time.Duration) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		msg, err := q.Reserve(ctx, timeout)
		if errors.Is(err, ErrTimeout) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := q.Delete(ctx, msg); err != nil {
			return n, err
		}
		n++
	}
}
