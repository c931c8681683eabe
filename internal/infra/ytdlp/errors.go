package ytdlp

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Errors
var (
	ErrResolution = errors.New("failed to resolve media metadata")
	ErrSearch     = errors.New("search failed")
	ErrDownload   = errors.New("download failed")
	ErrNotFound   = errors.New("no results found")
)

// maxDiagnosticLen bounds the yt-dlp output kept on an error.
const maxDiagnosticLen = 2000

// withDiagnostic attaches the tail of yt-dlp's output to err.
func withDiagnostic(err error, output string) error {
	output = strings.TrimSpace(output)
	if output == "" {
		return err
	}
	if len(output) > maxDiagnosticLen {
		output = output[len(output)-maxDiagnosticLen:]
	}
	return errors.WithDetail(err, output)
}

// Diagnostic returns the yt-dlp output attached to err, if any.
func Diagnostic(err error) string {
	return strings.Join(errors.GetAllDetails(err), "\n")
}
