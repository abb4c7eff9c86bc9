package queue

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Memory is an in-process FIFO with the same reserve/delete contract as the
// networked backends. It backs dry runs and tests.
type Memory struct {
	mu       sync.Mutex
	items    []*Message
	reserved map[string]*Message
	seq      uint64
	signal   chan struct{}
}

func NewMemory() *Memory {
	return &Memory{
		reserved: map[string]*Message{},
		signal:   make(chan struct{}, 1),
	}
}

func (m *Memory) Put(_ context.Context, body []byte) error {
	m.mu.Lock()
	m.seq++
	b := make([]byte, len(body))
	copy(b, body)
	m.items = append(m.items, &Message{ID: strconv.FormatUint(m.seq, 10), Body: b, handle: m.seq})
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return nil
}

func (m *Memory) Reserve(ctx context.Context, timeout time.Duration) (*Message, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	for {
		if msg := m.pop(); msg != nil {
			return msg, nil
		}
		if expired == nil {
			return nil, ErrTimeout
		}
		select {
		case <-m.signal:
		case <-expired:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *Memory) pop() *Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return nil
	}
	msg := m.items[0]
	m.items = m.items[1:]
	m.reserved[msg.ID] = msg
	return msg
}

func (m *Memory) Delete(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reserved[msg.ID]; !ok {
		return errors.WithStack(ErrNotReserved)
	}
	delete(m.reserved, msg.ID)
	return nil
}

func (m *Memory) Flush(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.items) + len(m.reserved)
	m.items = nil
	m.reserved = map[string]*Message{}
	return n, nil
}

// Requeue puts every reserved message back at the front of the queue in
// original order.
func (m *Memory) Requeue(_ context.Context) (int, error) {
	m.mu.Lock()
	back := make([]*Message, 0, len(m.reserved))
	for _, msg := range m.reserved {
		back = append(back, msg)
	}
	sort.Slice(back, func(i, j int) bool {
		return back[i].handle.(uint64) < back[j].handle.(uint64)
	})
	m.items = append(back, m.items...)
	m.reserved = map[string]*Message{}
	m.mu.Unlock()

	if len(back) > 0 {
		select {
		case m.signal <- struct{}{}:
		default:
		}
	}
	return len(back), nil
}

// Len returns the number of messages waiting to be reserved.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
