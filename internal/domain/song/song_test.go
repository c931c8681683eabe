package song

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSong_FetchTransitions(t *testing.T) {
	s := &Song{ID: "abc", Title: "Test"}

	assert.Equal(t, NotFetched, s.FetchState().Status)
	assert.Empty(t, s.FilePath())

	s.MarkFetching()
	assert.Equal(t, Fetching, s.FetchState().Status)
	assert.Empty(t, s.FilePath())

	s.MarkFetched("/tmp/abc.mp3")
	assert.Equal(t, Fetched, s.FetchState().Status)
	assert.Equal(t, "/tmp/abc.mp3", s.FilePath())

	s.ResetFetch()
	assert.Equal(t, FetchState{Status: NotFetched}, s.FetchState())
	assert.Empty(t, s.FilePath())
}

func TestFetchStatus_String(t *testing.T) {
	assert.Equal(t, "not_fetched", NotFetched.String())
	assert.Equal(t, "fetching", Fetching.String())
	assert.Equal(t, "fetched", Fetched.String())
	assert.Equal(t, "unknown", FetchStatus(42).String())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		seconds  int
		expected string
	}{
		{name: "unknown", seconds: 0, expected: "Unknown"},
		{name: "negative", seconds: -5, expected: "Unknown"},
		{name: "seconds only", seconds: 7, expected: "0:07"},
		{name: "minutes", seconds: 185, expected: "3:05"},
		{name: "hours", seconds: 3725, expected: "1:02:05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatDuration(tt.seconds))
		})
	}
}
