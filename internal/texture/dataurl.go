package texture

import (
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
)

var ErrInvalidDataURL = errors.New("invalid data URL")

var dataURLRegexp = regexp.MustCompile(`(?is)^data:(image/[a-z0-9.+-]+);base64,(.+)$`)

// ParseDataURL decodes a base64 image data URL.
// It returns the decoded bytes and the declared media type.
func ParseDataURL(s string) (data []byte, mediaType string, err error) {
	m := dataURLRegexp.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil, "", ErrInvalidDataURL
	}
	mediaType = strings.ToLower(m[1])

	payload := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		default:
			return r
		}
	}, m[2])

	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil || len(data) == 0 {
		return nil, "", ErrInvalidDataURL
	}

	return data, mediaType, nil
}
