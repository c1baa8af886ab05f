// Package links delivers incoming deep links to the client.
package links

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
)

// Source is the platform URL-launch collaborator.
type Source interface {
	// InitialURL returns the URL the app was launched with, if any. Queried once at start.
	InitialURL() (string, bool)
	// Subscribe yields URLs opened while running. The release func must be called on
	// shutdown; it is idempotent. The channel is closed when the source is exhausted
	// or released.
	Subscribe(ctx context.Context) (<-chan string, func())
}

// StaticSource only has a cold-start URL.
type StaticSource struct{ URL string }

// InitialURL implements Source.
func (s StaticSource) InitialURL() (string, bool) {
	u := strings.TrimSpace(s.URL)
	return u, u != ""
}

// Subscribe implements Source with an already-closed channel.
func (StaticSource) Subscribe(context.Context) (<-chan string, func()) {
	ch := make(chan string)
	close(ch)
	return ch, func() {}
}

// LineSource reads one URL per line, e.g. from stdin or a FIFO.
type LineSource struct {
	Initial string
	R       io.Reader
}

// InitialURL implements Source.
func (s *LineSource) InitialURL() (string, bool) {
	return StaticSource{URL: s.Initial}.InitialURL()
}

// Subscribe implements Source. Blank lines are skipped. A reader blocked in Read
// keeps its goroutine until the next line or EOF, but nothing is delivered after release.
func (s *LineSource) Subscribe(ctx context.Context) (<-chan string, func()) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan string)

	var once sync.Once
	release := func() { once.Do(cancel) }

	go func() {
		defer close(out)
		sc := bufio.NewScanner(s.R)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, release
}
