package discord

import (
	"sync"

	zlog "github.com/rs/zerolog/log"
)

const dispatchBuffer = 32

// dispatcher runs work for each guild on its own goroutine, in the order it was dispatched.
type dispatcher struct {
	mu      sync.Mutex
	workers map[string]chan func()
	done    chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		workers: make(map[string]chan func()),
		done:    make(chan struct{}),
	}
}

// Dispatch queues fn for key. It blocks while key's queue is full and returns false once closed.
func (d *dispatcher) Dispatch(key string, fn func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	ch, ok := d.workers[key]
	if !ok {
		ch = make(chan func(), dispatchBuffer)
		d.workers[key] = ch
		d.wg.Add(1)
		go d.work(key, ch)
	}
	d.mu.Unlock()

	select {
	case ch <- fn:
		return true
	case <-d.done:
		return false
	}
}

func (d *dispatcher) work(key string, ch chan func()) {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case fn := <-ch:
			d.call(key, fn)
		}
	}
}

func (d *dispatcher) call(key string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("discord: handler panicked: guild=%s panic=%v", key, r)
		}
	}()
	fn()
}

// Close stops every worker and waits for running work to return.
func (d *dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.done)
	d.mu.Unlock()
	d.wg.Wait()
}
