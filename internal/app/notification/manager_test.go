package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStream struct {
	mu       sync.Mutex
	received []*Notification
	err      error
	block    chan struct{}
}

func (s *recordingStream) Send(n *Notification) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, n)
	return s.err
}

func (s *recordingStream) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func TestManager_Broadcast(t *testing.T) {
	m := NewManager()
	a := &recordingStream{}
	b := &recordingStream{err: errors.New("closed")}
	m.Subscribe(a)
	m.Subscribe(b)
	require.Equal(t, 2, m.SubscriberCount())

	m.Broadcast(&Notification{Type: TypeNowPlaying, GuildID: "g1"})
	m.Broadcast(&Notification{Type: TypeQueueEmpty, GuildID: "g1"})

	require.Equal(t, 2, a.count())
	assert.Equal(t, 2, b.count())
	assert.Equal(t, uint64(1), a.received[0].SequenceNo)
	assert.Equal(t, uint64(2), a.received[1].SequenceNo)
	assert.Equal(t, TypeQueueEmpty, a.received[1].Type)
}

func TestManager_Unsubscribe(t *testing.T) {
	m := NewManager()
	a := &recordingStream{}
	id := m.Subscribe(a)

	m.Unsubscribe(id)
	m.Broadcast(&Notification{Type: TypeNowPlaying})

	assert.Equal(t, 0, a.count())
	assert.Equal(t, 0, m.SubscriberCount())
}

func TestManager_SlowSubscriberDoesNotBlock(t *testing.T) {
	m := NewManager()
	m.sendTimeout = 20 * time.Millisecond
	slow := &recordingStream{block: make(chan struct{})}
	fast := &recordingStream{}
	m.Subscribe(slow)
	m.Subscribe(fast)

	start := time.Now()
	m.Broadcast(&Notification{Type: TypeProgress})
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, fast.count())

	close(slow.block)
}

func TestManager_Close(t *testing.T) {
	m := NewManager()
	m.Subscribe(&recordingStream{})
	m.Close()
	assert.Equal(t, 0, m.SubscriberCount())
}
