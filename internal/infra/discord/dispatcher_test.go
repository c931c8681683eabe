package discord

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDispatcher_OrderPerKey(t *testing.T) {
	d := newDispatcher()
	defer d.Close()

	var mu sync.Mutex
	got := map[string][]int{}
	var wg sync.WaitGroup
	for n := range 20 {
		for _, key := range []string{"g1", "g2"} {
			wg.Add(1)
			assert.True(t, d.Dispatch(key, func() {
				defer wg.Done()
				mu.Lock()
				got[key] = append(got[key], n)
				mu.Unlock()
			}))
		}
	}
	wg.Wait()

	want := make([]int, 20)
	for n := range want {
		want[n] = n
	}
	assert.Equal(t, want, got["g1"])
	assert.Equal(t, want, got["g2"])
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	d := newDispatcher()
	defer d.Close()

	d.Dispatch("g1", func() { panic("boom") })
	ran := make(chan struct{})
	d.Dispatch("g1", func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("worker stopped after a panic")
	}
}

func TestDispatcher_Close(t *testing.T) {
	d := newDispatcher()
	d.Close()
	d.Close()
	assert.False(t, d.Dispatch("g1", func() {}))
}
