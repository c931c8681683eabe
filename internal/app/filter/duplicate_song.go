package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/jukebot/internal/domain/song"
)

// DuplicateSongFilter rejects songs that are already queued.
// Detects:
// - Exact stable id matches
// - Re-uploads of the same title by the same uploader ("Official Video", "Lyrics", remasters)
type DuplicateSongFilter struct{}

// NewDuplicateSongFilter creates a new duplicate song filter.
func NewDuplicateSongFilter() *DuplicateSongFilter {
	return &DuplicateSongFilter{}
}

// Name returns the filter name.
func (f *DuplicateSongFilter) Name() string {
	return "duplicate_song_filter"
}

// Description returns the filter description.
func (f *DuplicateSongFilter) Description() string {
	return "Rejects songs already in the queue, including alternate uploads of the same title"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateSongFilter) ReturnCodes() []string {
	return []string{"duplicate_song"}
}

// AppliesTo returns which sources this filter applies to.
func (f *DuplicateSongFilter) AppliesTo(source Source) bool {
	// Playlists are queued as the owner arranged them
	return source == SourceCommand
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateSongFilter) ValidateConfig(settings map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the song is a duplicate.
func (f *DuplicateSongFilter) Check(ctx context.Context, req Request, q QueueView) Result {
	for _, queued := range q.Songs() {
		if queued.ID != "" && queued.ID == req.Song.ID {
			return Reject("duplicate_song")
		}
		if isSameUpload(queued, req.Song) {
			return Reject("duplicate_song")
		}
	}
	return Accept()
}

var (
	decorationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*[\(\[][^\)\]]*\b(official|video|audio|lyrics?|visuali[sz]er|remaster(ed)?|hd|hq|4k|mv)\b[^\)\]]*[\)\]]`),
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?$`),
	}
	spacePattern = regexp.MustCompile(`\s+`)
)

// isSameUpload checks if two songs are the same title from the same uploader.
func isSameUpload(a, b *song.Song) bool {
	if a.Uploader == "" || b.Uploader == "" {
		return false
	}
	if !strings.EqualFold(a.Uploader, b.Uploader) {
		return false
	}
	return normalizeTitle(a.Title) == normalizeTitle(b.Title)
}

// normalizeTitle strips upload decorations such as "(Official Video)" from a title.
func normalizeTitle(title string) string {
	normalized := strings.ToLower(title)
	for _, pattern := range decorationPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	normalized = spacePattern.ReplaceAllString(strings.TrimSpace(normalized), " ")
	return strings.TrimRight(normalized, " -")
}

func init() {
	Register("duplicate_song_filter", func() Filter {
		return NewDuplicateSongFilter()
	})
}
