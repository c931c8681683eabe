package ytdlp

import (
	"bufio"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

var progressPattern = regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%`)

// Metadata describes a media item as reported by yt-dlp.
type Metadata struct {
	ID             string
	Title          string
	URL            string // Canonical page URL
	Duration       int    // Seconds, 0 when unknown
	Uploader       string
	Thumbnail      string
	FilesizeApprox int64
}

// record is the subset of a yt-dlp JSON dump that is used.
type record struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Duration       *float64 `json:"duration"`
	Uploader       string   `json:"uploader"`
	Channel        string   `json:"channel"`
	Thumbnail      string   `json:"thumbnail"`
	Thumbnails     []thumb  `json:"thumbnails"`
	WebpageURL     string   `json:"webpage_url"`
	URL            string   `json:"url"`
	FilesizeApprox *float64 `json:"filesize_approx"`
}

type thumb struct {
	URL string `json:"url"`
}

func (r record) toMetadata() *Metadata {
	m := &Metadata{
		ID:        r.ID,
		Title:     r.Title,
		Uploader:  r.Uploader,
		Thumbnail: r.Thumbnail,
	}
	if m.Uploader == "" {
		m.Uploader = r.Channel
	}
	if m.Thumbnail == "" && len(r.Thumbnails) > 0 {
		m.Thumbnail = r.Thumbnails[len(r.Thumbnails)-1].URL
	}
	if r.Duration != nil && *r.Duration > 0 {
		m.Duration = int(math.Round(*r.Duration))
	}
	if r.FilesizeApprox != nil {
		m.FilesizeApprox = int64(*r.FilesizeApprox)
	}
	switch {
	case r.WebpageURL != "":
		m.URL = r.WebpageURL
	case strings.HasPrefix(r.URL, "http"):
		m.URL = r.URL
	case r.ID != "":
		m.URL = watchURL(r.ID)
	}
	return m
}

func watchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// parseRecord decodes a single JSON document.
func parseRecord(out string) (*Metadata, error) {
	var r record
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &r); err != nil {
		return nil, errors.Wrap(err, "failed to parse yt-dlp output")
	}
	if r.ID == "" {
		return nil, errors.New("yt-dlp output has no id")
	}
	return r.toMetadata(), nil
}

// parseRecords decodes newline-delimited JSON documents, skipping lines that are not JSON objects.
func parseRecords(out string) ([]*Metadata, error) {
	var result []*Metadata
	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var r record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return nil, errors.Wrap(err, "failed to parse yt-dlp output")
		}
		if r.ID == "" {
			continue
		}
		result = append(result, r.toMetadata())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read yt-dlp output")
	}
	return result, nil
}

// parseProgress extracts the percentage from a "[download]  42.0%" line.
func parseProgress(line string) (float64, bool) {
	m := progressPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return pct, true
}
