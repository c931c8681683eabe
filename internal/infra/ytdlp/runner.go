package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/lrstanley/go-ytdlp"
)

// runner executes yt-dlp with raw arguments.
type runner interface {
	// Run waits for the process and returns its captured output.
	Run(ctx context.Context, args ...string) (stdout, stderr string, err error)
	// Stream calls onLine for each output line while the process runs and
	// returns the combined output once it exits.
	Stream(ctx context.Context, onLine func(line string), args ...string) (output string, err error)
}

// commandRunner runs yt-dlp through go-ytdlp.
type commandRunner struct {
	proxy string
}

func (r *commandRunner) command() *ytdlp.Command {
	cmd := ytdlp.New().
		IgnoreConfig().
		NoWarnings()
	if r.proxy != "" {
		cmd.Proxy(r.proxy)
	}
	return cmd
}

func (r *commandRunner) Run(ctx context.Context, args ...string) (string, string, error) {
	res, err := r.command().Run(ctx, args...)
	var stdout, stderr string
	if res != nil {
		stdout, stderr = res.Stdout, res.Stderr
	}
	if err != nil {
		return stdout, stderr, errors.Wrap(err, "yt-dlp exited with error")
	}
	return stdout, stderr, nil
}

func (r *commandRunner) Stream(ctx context.Context, onLine func(line string), args ...string) (string, error) {
	cmd := r.command().BuildCommand(ctx, args...)

	pr, pw := io.Pipe()
	var combined bytes.Buffer
	out := io.MultiWriter(pw, &combined)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return "", errors.Wrap(err, "failed to start yt-dlp")
	}

	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		pw.Close()
		waitErr <- err
	}()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			onLine(line)
		}
	}
	// Drain so the process never blocks on a full pipe after a scan error.
	_, _ = io.Copy(io.Discard, pr)

	if err := <-waitErr; err != nil {
		return combined.String(), errors.Wrap(err, "yt-dlp exited with error")
	}
	return combined.String(), nil
}
