// Package texture acquires, validates and normalizes the image that is
// wrapped onto the generated model.
package texture

import (
	"context"
	"errors"
)

var ErrNoSource = errors.New("no image source")

// Source names where the image comes from. Exactly one field must be set.
type Source struct {
	Data string // data URL
	URL  string
}

// Name returns the request field the source came from.
func (s *Source) Name() string {
	if s.Data != "" {
		return "imageData"
	}
	return "imageUrl"
}

// Texture is an acquired and normalized image.
type Texture struct {
	Source       string
	DeclaredType string // media type from a data URL, if any
	Format       Format // sniffed from the original bytes
	Magic        string
	BytesIn      int
	*Normalized
}

// RejectedError is returned when the acquired bytes are not a supported image.
type RejectedError struct {
	Source  string
	Format  Format
	Magic   string
	Preview string
	Err     error
}

func (e *RejectedError) Error() string {
	return "texture: " + e.Source + " is " + string(e.Format) + ": " + e.Err.Error()
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

type Acquirer struct {
	fetcher   *Fetcher
	maxSide   int
	maxPixels int64
}

type NewAcquirerParams struct {
	Fetcher   *Fetcher // required
	MaxSide   int      // longest side after downscaling
	MaxPixels int64    // largest accepted width*height
}

func NewAcquirer(params *NewAcquirerParams) *Acquirer {
	return &Acquirer{
		fetcher:   params.Fetcher,
		maxSide:   params.MaxSide,
		maxPixels: params.MaxPixels,
	}
}

// Acquire obtains the image from src, validates its magic bytes and normalizes it.
// Nothing is written to disk.
func (a *Acquirer) Acquire(ctx context.Context, src *Source) (*Texture, error) {
	t := &Texture{Source: src.Name()}

	var b []byte
	var err error
	switch {
	case src.Data != "":
		b, t.DeclaredType, err = ParseDataURL(src.Data)
	case src.URL != "":
		b, err = a.fetcher.Fetch(ctx, src.URL)
	default:
		err = ErrNoSource
	}
	if err != nil {
		return nil, err
	}

	t.BytesIn = len(b)
	t.Format = Sniff(b)
	t.Magic = MagicHex(b)

	n, err := Normalize(b, a.maxSide, a.maxPixels)
	if err != nil {
		return nil, &RejectedError{Source: t.Source, Format: t.Format, Magic: t.Magic, Preview: Preview(b), Err: err}
	}
	t.Normalized = n

	return t, nil
}
