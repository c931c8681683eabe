package queue

import "github.com/osa030/jukebot/internal/domain/song"

// MaxPrefetchAttempts is how many failed downloads a song may have before
// background fetching gives up on it. The player still fetches it itself.
const MaxPrefetchAttempts = 3

// ClaimNextFetch finds the first song that has not been fetched and marks it Fetching.
// While the queue is playing, position 0 is skipped because the player fetches it itself.
// When no song is claimed, headPending reports whether the skipped position 0 is
// still unfetched.
func (q *Queue) ClaimNextFetch() (claimed *song.Song, headPending bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, s := range q.songs {
		if i == 0 && q.playing {
			continue
		}
		if s.FetchState().Status == song.NotFetched && s.FetchFailures() < MaxPrefetchAttempts {
			s.MarkFetching()
			return s, false
		}
	}
	if len(q.songs) > 0 && q.playing && q.songs[0].FetchState().Status == song.NotFetched {
		return nil, true
	}
	return nil, false
}

// BeginFetch marks s Fetching and returns its previous state.
func (q *Queue) BeginFetch(s *song.Song) song.FetchState {
	q.mu.Lock()
	defer q.mu.Unlock()
	prev := s.FetchState()
	s.MarkFetching()
	return prev
}

// CompleteFetch records the result of a download for s.
// A failed download returns the song to NotFetched so it can be retried.
func (q *Queue) CompleteFetch(s *song.Song, path string, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err != nil || path == "" {
		s.FailFetch()
		return
	}
	s.MarkFetched(path)
}

// FetchStateOf returns the fetch state of s under the queue lock.
func (q *Queue) FetchStateOf(s *song.Song) song.FetchState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return s.FetchState()
}
