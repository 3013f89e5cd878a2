package snapshot

import (
	"bytes"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cjeanneret/DroneEye/internal/logic/framebuf"
)

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestCompleteJPEG(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want bool
	}{
		{"empty", nil, false},
		{"soi_only", []byte{0xFF, 0xD8, 0x00}, false},
		{"truncated", []byte{0xFF, 0xD8, 0x00, 0x00, 0x00}, false},
		{"complete", []byte{0xFF, 0xD8, 0x00, 0xFF, 0xD9}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := completeJPEG(tc.data); got != tc.want {
				t.Errorf("completeJPEG = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestOpen_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "latest.jpg")
	if _, err := Open(path, time.Second); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestRead_ExistingFileIsFirstFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.jpg")
	if err := os.WriteFile(path, encodeJPEG(t, 8, 6), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Open(path, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	img, ok := c.Read()
	if !ok {
		t.Fatal("expected first read to succeed")
	}
	if img.Format != framebuf.FormatJPEG || img.Width != 8 || img.Height != 6 {
		t.Errorf("image = %s %dx%d, want jpeg 8x6", img.Format, img.Width, img.Height)
	}

	// Nothing new was written: the next read times out.
	if _, ok := c.Read(); ok {
		t.Error("expected second read without a new write to fail")
	}
}

func TestRead_PicksUpRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.jpg")
	c, err := Open(path, 2*time.Second)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	data := encodeJPEG(t, 16, 4)
	go func() {
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(path, data, 0o644)
	}()

	img, ok := c.Read()
	if !ok {
		t.Fatal("expected read to see the new file")
	}
	if img.Width != 16 || img.Height != 4 {
		t.Errorf("size = %dx%d, want 16x4", img.Width, img.Height)
	}
}

func TestClose(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "latest.jpg"), time.Second)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !c.IsOpen() {
		t.Error("expected open capture")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.IsOpen() {
		t.Error("expected closed capture")
	}
	if _, ok := c.Read(); ok {
		t.Error("read after close should fail")
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
