package vision

import (
	"github.com/andresmejia3/camcal/internal/session"
	"gocv.io/x/gocv"
)

// Window is the live preview surface.
type Window struct {
	win *gocv.Window
}

// NewWindow creates a named preview window.
func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

// Show renders the frame.
func (w *Window) Show(f session.Frame) error {
	frame, err := asFrame(f)
	if err != nil {
		return err
	}
	return w.win.IMShow(frame.Mat)
}

// WaitKey polls the keyboard for up to delayMs milliseconds.
func (w *Window) WaitKey(delayMs int) int {
	key := w.win.WaitKey(delayMs)
	if key < 0 {
		return session.KeyNone
	}
	// Some backends report modifier state in the high bits
	return key & 0xFF
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.win.Close()
}
