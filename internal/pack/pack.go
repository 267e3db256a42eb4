// Package pack assembles a model and its texture into a USDZ archive.
package pack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/k11v/arframe/internal/tool"
	"github.com/k11v/arframe/internal/workspace"
)

// MinArchiveSize is the smallest archive accepted as valid.
const MinArchiveSize = 64

var ErrNoPackager = errors.New("no packaging tool installed")

// Method is a packaging strategy.
type Method string

const (
	MethodUSDZip Method = "usdzip" // dedicated USD packager
	MethodZip    Method = "zip"    // generic zip in store-only mode
)

// Config holds the packager configuration.
type Config struct {
	Usdzip        string        `env:"USDZIP"`         // default: "usdzip"
	Zip           string        `env:"ZIP"`            // default: "zip"
	UsdzipTimeout time.Duration `env:"USDZIP_TIMEOUT"` // default: 60s
	ZipTimeout    time.Duration `env:"ZIP_TIMEOUT"`    // default: 30s
}

func (c *Config) usdzip() string {
	if c.Usdzip == "" {
		return "usdzip"
	}
	return c.Usdzip
}

func (c *Config) zip() string {
	if c.Zip == "" {
		return "zip"
	}
	return c.Zip
}

func (c *Config) timeout(m Method) time.Duration {
	if m == MethodUSDZip {
		if c.UsdzipTimeout == 0 {
			return 60 * time.Second
		}
		return c.UsdzipTimeout
	}
	if c.ZipTimeout == 0 {
		return 30 * time.Second
	}
	return c.ZipTimeout
}

// VerifyError is returned when a packaging tool reported success but the
// archive is absent or too small.
type VerifyError struct {
	Method Method
	Size   int64 // -1 if absent
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("usdz_missing_or_empty (%s)", e.Method)
}

type Packager struct {
	runner tool.Runner
	cfg    Config
	log    *slog.Logger
}

func New(runner tool.Runner, cfg *Config, log *slog.Logger) *Packager {
	return &Packager{runner: runner, cfg: *cfg, log: log.With("component", "pack")}
}

// Probe returns the packaging method available on the host.
// It checks the host on every call.
func (p *Packager) Probe() (Method, string, error) {
	if path, found := p.runner.LookPath(p.cfg.usdzip()); found {
		return MethodUSDZip, path, nil
	}
	if path, found := p.runner.LookPath(p.cfg.zip()); found {
		return MethodZip, path, nil
	}
	return "", "", ErrNoPackager
}

type PackParams struct {
	Job   *workspace.Job // required
	Files []string       // required, relative to Job.Dir, first one is the root layer
}

type PackResult struct {
	Method Method `json:"method"`
	Path   string `json:"-"`
	Size   int64  `json:"size"`
	OK     bool   `json:"ok"`
	Stdout string `json:"out"`
	Stderr string `json:"err"`
}

// Pack probes for a packaging method, builds <job id>.usdz in the job
// directory and verifies it.
func (p *Packager) Pack(ctx context.Context, params *PackParams) (*PackResult, error) {
	method, path, err := p.Probe()
	if err != nil {
		return nil, err
	}

	const ext = "usdz"
	if err = params.Job.ClearArchive(ext); err != nil {
		return nil, fmt.Errorf("pack.Pack: %w", err)
	}
	name := params.Job.ArchiveName(ext)

	var args []string
	switch method {
	case MethodUSDZip:
		args = append([]string{name}, params.Files...)
	case MethodZip:
		args = append([]string{"-0", "-q", name}, params.Files...)
	}

	result := p.runner.Run(ctx, &tool.Command{
		Name:    path,
		Args:    args,
		Dir:     params.Job.Dir,
		Timeout: p.cfg.timeout(method),
	})
	pr := &PackResult{
		Method: method,
		Path:   params.Job.ArchivePath(ext),
		OK:     result.Success,
		Stdout: tool.Excerpt(result.Stdout, 4000),
		Stderr: tool.Excerpt(result.Stderr, 4000),
	}
	if !result.Success {
		return pr, &tool.Failure{Code: string(method) + "_failed", Detail: tool.Excerpt(result.Output(), 400), Result: result}
	}

	pr.Size, err = Verify(pr.Path)
	if err != nil {
		pr.OK = false
		return pr, &VerifyError{Method: method, Size: pr.Size}
	}

	p.log.Info("archive packed", "job_id", params.Job.ID, "method", method, "size", pr.Size)
	return pr, nil
}

// Verify returns the size of the archive at path.
// It fails if the archive is absent or smaller than MinArchiveSize.
func Verify(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return -1, err
	}
	if !info.Mode().IsRegular() || info.Size() < MinArchiveSize {
		return info.Size(), fmt.Errorf("archive has %d bytes, want at least %d", info.Size(), MinArchiveSize)
	}
	return info.Size(), nil
}
