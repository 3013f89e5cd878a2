package framebuf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
)

// ErrNoImage is returned when encoding a frame that carries no pixels.
var ErrNoImage = errors.New("framebuf: no image data")

// JPEG returns the image encoded as JPEG. JPEG data is returned as is.
func (img Image) JPEG(quality int) ([]byte, error) {
	if len(img.Data) == 0 {
		return nil, ErrNoImage
	}

	var src image.Image
	switch img.Format {
	case FormatJPEG:
		return img.Data, nil
	case FormatBGR24:
		if len(img.Data) != img.Width*img.Height*3 {
			return nil, fmt.Errorf("bgr24 %dx%d: got %d bytes, want %d", img.Width, img.Height, len(img.Data), img.Width*img.Height*3)
		}
		rgba := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
		for i, j := 0, 0; i < len(img.Data); i, j = i+3, j+4 {
			rgba.Pix[j] = img.Data[i+2]
			rgba.Pix[j+1] = img.Data[i+1]
			rgba.Pix[j+2] = img.Data[i]
			rgba.Pix[j+3] = 0xff
		}
		src = rgba
	case FormatGray8:
		if len(img.Data) != img.Width*img.Height {
			return nil, fmt.Errorf("gray8 %dx%d: got %d bytes, want %d", img.Width, img.Height, len(img.Data), img.Width*img.Height)
		}
		src = &image.Gray{Pix: img.Data, Stride: img.Width, Rect: image.Rect(0, 0, img.Width, img.Height)}
	default:
		return nil, fmt.Errorf("unsupported pixel format %q", img.Format)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
