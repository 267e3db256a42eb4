package build

import (
	"strings"
	"time"
)

// Format is the kind of archive a build produces.
type Format string

const (
	FormatUSDZ Format = "usdz"
	FormatGLB  Format = "glb"
)

// ParseFormat parses s, defaulting to FormatUSDZ when s is empty.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(s) {
	case "", "usdz":
		return FormatUSDZ, true
	case "glb":
		return FormatGLB, true
	default:
		return "", false
	}
}

// FormatFromCollection returns the format served under collection.
func FormatFromCollection(collection string) (Format, bool) {
	switch collection {
	case "usdz":
		return FormatUSDZ, true
	case "glb":
		return FormatGLB, true
	default:
		return "", false
	}
}

// Collection returns the first path segment archives of f are served under.
func (f Format) Collection() string { return string(f) }

// Extension returns the archive file extension of f.
func (f Format) Extension() string { return string(f) }

// MediaType returns the Content-Type archives of f are served with.
func (f Format) MediaType() string {
	if f == FormatGLB {
		return "model/gltf-binary"
	}
	return "model/vnd.usdz+zip"
}

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// StatusFromString returns the status s names and whether it is known.
func StatusFromString(s string) (Status, bool) {
	switch Status(s) {
	case StatusSucceeded, StatusFailed, StatusExpired:
		return Status(s), true
	default:
		return Status(s), false
	}
}

// Record is the stored outcome of a build.
type Record struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"requestId"`
	Format     Format    `json:"format"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	PackMethod string    `json:"packMethod,omitempty"`
	WidthCm    float64   `json:"widthCm"`
	HeightCm   float64   `json:"heightCm"`
	BytesIn    int64     `json:"bytesIn"`
	BytesOut   int64     `json:"bytesOut"`
	Mirrored   bool      `json:"mirrored"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}
