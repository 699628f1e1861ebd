package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/gpufleet/internal/host"
)

// EventPrinter renders connection events as they happen, one line each.
// Safe for concurrent use; the collector reports from every target's
// goroutine.
//
// Example output:
//
//	○ gpu25 via shell1                               connection refused
//	● gpu25 via shell2 (fallback)                                  0.3s
type EventPrinter struct {
	mu       sync.Mutex
	w        io.Writer
	showAll  bool
	failures int
}

// NewEventPrinter creates a printer writing to w. By default only failed
// attempts and fallback connections are shown.
func NewEventPrinter(w io.Writer) *EventPrinter {
	return &EventPrinter{w: w}
}

// ShowAll includes first-try connections too.
func (p *EventPrinter) ShowAll(all bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.showAll = all
}

// Handle implements host.EventHandler.
func (p *EventPrinter) Handle(e host.ConnectionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Type {
	case host.EventTrying:
		return
	case host.EventFailed:
		p.failures++
	case host.EventConnected:
		if !p.showAll && !strings.HasSuffix(e.Message, "(fallback)") {
			return
		}
	}
	fmt.Fprintln(p.w, RenderEventLine(e))
}

// Failures returns how many failed attempts have been seen.
func (p *EventPrinter) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

// RenderEventLine formats a single connection event.
func RenderEventLine(e host.ConnectionEvent) string {
	var symbol, status string
	symbolStyle := MutedStyle()

	route := fmt.Sprintf("%s via %s", e.Target, e.JumpHost)
	switch e.Type {
	case host.EventConnected:
		symbol = SymbolComplete
		symbolStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
		status = formatDuration(e.Latency)
		if strings.HasSuffix(e.Message, "(fallback)") {
			route += " (fallback)"
		}
	case host.EventFailed:
		symbol = SymbolPending
		status = e.Message
		if status == "" {
			status = "failed"
		}
	default:
		symbol = SymbolProgress
		status = e.Type.String()
	}

	padding := 50 - lipgloss.Width(route)
	if padding < 2 {
		padding = 2
	}

	return fmt.Sprintf("  %s %s%s%s",
		symbolStyle.Render(symbol),
		route,
		strings.Repeat(" ", padding),
		MutedStyle().Render(status),
	)
}
