package texture

import (
	"bytes"
	"encoding/hex"
)

// Format is a file format recognized by its leading bytes.
type Format string

const (
	FormatUnknown Format = "unknown"
	FormatPNG     Format = "png"
	FormatJPEG    Format = "jpeg"
	FormatWEBP    Format = "webp"
	FormatHTML    Format = "html"
)

// Raster reports whether f is an image format Normalize accepts.
func (f Format) Raster() bool {
	switch f {
	case FormatPNG, FormatJPEG, FormatWEBP:
		return true
	default:
		return false
	}
}

var (
	magicPNG  = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	magicJPEG = []byte{0xff, 0xd8, 0xff}
)

// Sniff detects the format of b from its magic bytes.
// Declared content types are never consulted.
func Sniff(b []byte) Format {
	switch {
	case bytes.HasPrefix(b, magicPNG):
		return FormatPNG
	case bytes.HasPrefix(b, magicJPEG):
		return FormatJPEG
	case len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WEBP":
		return FormatWEBP
	case looksLikeHTML(b):
		return FormatHTML
	default:
		return FormatUnknown
	}
}

// looksLikeHTML reports whether b starts like an HTML document,
// which is what error pages served in place of images look like.
func looksLikeHTML(b []byte) bool {
	head := b
	if len(head) > 64 {
		head = head[:64]
	}
	head = bytes.ToLower(bytes.TrimLeft(head, " \t\r\n\ufeff"))
	return bytes.Contains(head, []byte("<html")) || bytes.Contains(head, []byte("<!doctype"))
}

// MagicHex returns the first 16 bytes of b in hex.
func MagicHex(b []byte) string {
	if len(b) > 16 {
		b = b[:16]
	}
	return hex.EncodeToString(b)
}

// Preview returns the first bytes of b as printable text.
func Preview(b []byte) string {
	if len(b) > 80 {
		b = b[:80]
	}
	out := make([]byte, len(b))
	for i, c := range b {
		if c < 0x20 || c > 0x7e {
			c = '.'
		}
		out[i] = c
	}
	return string(out)
}
