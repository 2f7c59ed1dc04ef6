package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/emirpasic/gods/v2/queues/linkedlistqueue"
)

// MemBroker is an in-process Broker. Delayed jobs are held by timers.
type MemBroker struct {
	mu      sync.Mutex
	ready   *linkedlistqueue.Queue[*Job]
	notify  chan struct{}
	timers  map[*time.Timer]struct{}
	maxWait time.Duration
	batch   int
}

func NewMemBroker() *MemBroker {
	return &MemBroker{
		ready:   linkedlistqueue.New[*Job](),
		notify:  make(chan struct{}, 1),
		timers:  map[*time.Timer]struct{}{},
		maxWait: time.Second,
		batch:   10,
	}
}

func (b *MemBroker) Publish(ctx context.Context, job Job, delay time.Duration) error {
	if delay <= 0 {
		b.push(job)
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		b.mu.Lock()
		delete(b.timers, t)
		b.mu.Unlock()
		b.push(job)
	})
	b.timers[t] = struct{}{}
	return nil
}

func (b *MemBroker) push(job Job) {
	b.mu.Lock()
	b.ready.Enqueue(&job)
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *MemBroker) Receive(ctx context.Context) ([]Delivery, error) {
	if out := b.take(); len(out) > 0 {
		return out, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.notify:
	case <-time.After(b.maxWait):
	}
	return b.take(), nil
}

func (b *MemBroker) take() []Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Delivery
	for len(out) < b.batch {
		j, ok := b.ready.Dequeue()
		if !ok {
			break
		}
		out = append(out, Delivery{Job: *j})
	}
	if !b.ready.Empty() {
		select {
		case b.notify <- struct{}{}:
		default:
		}
	}
	return out
}

func (b *MemBroker) Ack(ctx context.Context, d Delivery) error { return nil }

// Pending counts jobs that are ready or waiting on a delay.
func (b *MemBroker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready.Size() + len(b.timers)
}

func (b *MemBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for t := range b.timers {
		t.Stop()
	}
	clear(b.timers)
}
