package vision

import (
	"errors"
	"fmt"
	"image"

	"github.com/andresmejia3/camcal/internal/session"
	"gocv.io/x/gocv"
)

// ErrDeviceOpen is returned when the capture device cannot be opened.
var ErrDeviceOpen = errors.New("failed to open camera device")

// Frame wraps a gocv.Mat so the session never touches OpenCV types directly.
type Frame struct {
	Mat gocv.Mat
}

// Size returns the frame's pixel dimensions as (width, height).
func (f *Frame) Size() image.Point {
	return image.Pt(f.Mat.Cols(), f.Mat.Rows())
}

// Close releases the underlying Mat.
func (f *Frame) Close() error {
	return f.Mat.Close()
}

// CameraOptions selects the device and an optional capture resolution (0 keeps the driver default).
type CameraOptions struct {
	Device int
	Width  int
	Height int
}

// Camera reads frames from a local capture device.
type Camera struct {
	device int
	vc     *gocv.VideoCapture
}

// OpenCamera opens the device. Any failure is reported as ErrDeviceOpen.
func OpenCamera(opts CameraOptions) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(opts.Device)
	if err != nil {
		return nil, fmt.Errorf("%w (webcam %d): %w", ErrDeviceOpen, opts.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w (webcam %d)", ErrDeviceOpen, opts.Device)
	}

	if opts.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
	}
	if opts.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}
	// Keep latency low so the preview follows the board
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	return &Camera{device: opts.Device, vc: vc}, nil
}

// Read grabs the next frame. It returns false at end of stream or on device error.
func (c *Camera) Read() (session.Frame, bool) {
	img := gocv.NewMat()
	if ok := c.vc.Read(&img); !ok || img.Empty() {
		img.Close()
		return nil, false
	}
	return &Frame{Mat: img}, true
}

// Close releases the device.
func (c *Camera) Close() error {
	return c.vc.Close()
}
