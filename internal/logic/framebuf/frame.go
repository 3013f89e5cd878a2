package framebuf

import "time"

// PixelFormat describes how Image.Data is laid out.
type PixelFormat string

const (
	FormatBGR24 PixelFormat = "bgr24" // 3 bytes per pixel, OpenCV order
	FormatGray8 PixelFormat = "gray8" // 1 byte per pixel
	FormatJPEG  PixelFormat = "jpeg"  // already compressed (MJPEG devices, snapshots)
)

// Image is one captured picture as delivered by a capture backend.
type Image struct {
	Width  int
	Height int
	Format PixelFormat
	Data   []byte
}

// Frame is a captured image plus its validity marker.
// A Frame is never modified after it has been written to a Ring;
// producers must hand over a Data slice they no longer touch.
type Frame struct {
	Image      Image
	Valid      bool      // false for the empty sentinel
	Seq        uint64    // 1 for the first captured frame, 0 for the sentinel
	CapturedAt time.Time // zero for the sentinel
}

// Empty returns the sentinel stored in slots that were never written.
func Empty() Frame {
	return Frame{}
}
