package build

import (
	"context"
	"errors"

	"github.com/k11v/arframe/internal/pack"
	"github.com/k11v/arframe/internal/texture"
	"github.com/k11v/arframe/internal/tool"
)

// ErrorKind classifies build failures.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindClient             // invalid input
	KindUpstream           // the image could not be fetched
	KindTool               // an external tool failed
	KindVerify             // the archive is absent or undersized after a successful tool run
	KindBusy               // the build was never admitted
)

// Error is a build failure with a stable reason code.
type Error struct {
	Kind   ErrorKind
	Code   string
	Detail string
	Tool   *tool.Result   // output of the failed tool, if any
	Debug  map[string]any // extra fields for the response body
	Err    error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

func clientError(code, detail string) *Error {
	return &Error{Kind: KindClient, Code: code, Detail: detail}
}

// classify turns a step error into an *Error.
func classify(err error) *Error {
	if e := (*Error)(nil); errors.As(err, &e) {
		return e
	}

	if failure := (*tool.Failure)(nil); errors.As(err, &failure) {
		return &Error{Kind: KindTool, Code: failure.Code, Detail: failure.Detail, Tool: failure.Result, Err: err}
	}
	if verifyErr := (*pack.VerifyError)(nil); errors.As(err, &verifyErr) {
		return &Error{Kind: KindVerify, Code: verifyErr.Error(), Err: err}
	}
	if errors.Is(err, pack.ErrNoPackager) {
		return &Error{Kind: KindTool, Code: "packager_missing", Err: err}
	}

	if errors.Is(err, texture.ErrInvalidDataURL) {
		return &Error{Kind: KindClient, Code: "imageData_invalid", Err: err}
	}
	if errors.Is(err, texture.ErrTooLarge) {
		return &Error{Kind: KindClient, Code: "image_too_large", Err: err}
	}
	if rejected := (*texture.RejectedError)(nil); errors.As(err, &rejected) {
		code := "image_invalid_format"
		if errors.Is(err, texture.ErrUndecodable) {
			code = "image_undecodable"
		}
		return &Error{
			Kind: KindClient,
			Code: code,
			Err:  err,
			Debug: map[string]any{
				"got": map[string]any{
					"source":    rejected.Source,
					"imageType": rejected.Format,
					"magic":     rejected.Magic,
					"preview":   rejected.Preview,
				},
				"fix": "send a PNG, JPEG or WEBP image as a base64 data URL or a direct image link",
			},
		}
	}
	if fetchErr := (*texture.FetchError)(nil); errors.As(err, &fetchErr) {
		return &Error{Kind: KindUpstream, Code: fetchErr.Error(), Err: err}
	}
	if errors.Is(err, texture.ErrHTML) {
		return &Error{Kind: KindUpstream, Code: "image_fetch_failed_html", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindUpstream, Code: "image_fetch_failed_timeout", Err: err}
	}

	return &Error{Kind: KindInternal, Code: "internal_error", Detail: err.Error(), Err: err}
}
