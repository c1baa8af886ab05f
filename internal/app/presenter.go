package app

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// TextPresenter writes status lines and alerts to a terminal.
type TextPresenter struct {
	mu sync.Mutex
	w  io.Writer
	// Quiet suppresses status lines; alerts are always printed.
	Quiet bool
}

// NewTextPresenter constructs a presenter over w.
func NewTextPresenter(w io.Writer) *TextPresenter { return &TextPresenter{w: w} }

// Status implements Presenter.
func (p *TextPresenter) Status(text string) {
	if p.Quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "status: %s\n", text)
}

// Alert implements Presenter.
func (p *TextPresenter) Alert(a Alert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%s]\n", a.Title)
	for _, line := range strings.Split(a.Message, "\n") {
		fmt.Fprintf(p.w, "  %s\n", line)
	}
}
