// Package dispatch provides the serial delivery context used for all
// listener callbacks. Callbacks posted from any goroutine run one at a
// time on a single goroutine, in post order, so listeners never observe
// concurrent invocations.
package dispatch

import "sync"

// Serial holds an unbounded queue so a running callback may post
// follow-up work without blocking the goroutine that drains it.
type Serial struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

func NewSerial() *Serial {
	d := &Serial{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

func (d *Serial) loop() {
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			close(d.done)
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()
		fn()
	}
}

// Post enqueues fn for execution on the delivery goroutine. It never
// blocks. Posting to a closed dispatcher is a no-op.
func (d *Serial) Post(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, fn)
	d.cond.Signal()
}

// Close stops the delivery goroutine once the pending queue drains.
// It must not be called from a posted callback.
func (d *Serial) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.cond.Signal()
	d.mu.Unlock()
	<-d.done
}
