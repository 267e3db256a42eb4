package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrUndecodable       = errors.New("undecodable image")
)

// Normalized is a PNG texture ready to be written to a job workspace.
type Normalized struct {
	PNG       []byte
	Width     int
	Height    int
	Converted bool // re-encoded from another format
	Resized   bool // downscaled to fit maxSide
}

// Normalize converts b to PNG with its longest side at most maxSide pixels.
// A PNG already within bounds is returned unchanged.
// Images declaring more than maxPixels pixels are rejected with ErrTooLarge
// before any pixel data is decoded.
func Normalize(b []byte, maxSide int, maxPixels int64) (*Normalized, error) {
	format := Sniff(b)
	if !format.Raster() {
		return nil, ErrUnsupportedFormat
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrUndecodable
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	tooLarge := maxSide > 0 && max(cfg.Width, cfg.Height) > maxSide
	if format == FormatPNG && !tooLarge {
		return &Normalized{PNG: b, Width: cfg.Width, Height: cfg.Height}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	n := &Normalized{Converted: format != FormatPNG}
	if tooLarge {
		img = resize.Thumbnail(uint(maxSide), uint(maxSide), img, resize.Lanczos3)
		n.Resized = true
	}
	bounds := img.Bounds()
	n.Width, n.Height = bounds.Dx(), bounds.Dy()

	var buf bytes.Buffer
	if err = png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("texture.Normalize: %w", err)
	}
	n.PNG = buf.Bytes()

	return n, nil
}
