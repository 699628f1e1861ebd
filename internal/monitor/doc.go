// Package monitor implements the interactive TUI view of a GPU poll.
//
// The view is a Bubble Tea model. Each batch runs the injected CollectFunc
// on a background goroutine; finished targets stream back as progressMsg so
// the header can count them, and the joined batch arrives as one reportMsg
// that replaces the ranked table. Batches only start on launch and when the
// user presses r, never on a timer.
//
// # Keyboard Shortcuts
//
//	q, Ctrl+C   - Quit
//	r           - Poll again (ignored while a batch is running)
//	j/k, ↑/↓    - Move through rows
//	Home/End    - First or last row
//	?           - Toggle help overlay
package monitor
