package build

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/k11v/arframe/internal/metrics"
	"github.com/k11v/arframe/internal/modeler"
	"github.com/k11v/arframe/internal/pack"
	"github.com/k11v/arframe/internal/texture"
	"github.com/k11v/arframe/internal/tool"
	"github.com/k11v/arframe/internal/workspace"
)

// Config holds the build configuration.
type Config struct {
	WorkDir        string        `env:"WORK_DIR"`         // default: "/tmp/ar"
	PublicBaseURL  string        // required, set from PUBLIC_BASE_URL
	DisableFixup   bool          `env:"DISABLE_FIXUP"`
	MaxConcurrent  int           `env:"MAX_CONCURRENT"`   // default: runtime.NumCPU()
	TTL            time.Duration `env:"TTL"`              // default: 24h
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL"`   // default: 10m
	FetchTimeout   time.Duration `env:"FETCH_TIMEOUT"`    // default: 20s
	MaxImageBytes  int64         `env:"MAX_IMAGE_BYTES"`  // default: 20MiB
	MaxImagePixels int64         `env:"MAX_IMAGE_PIXELS"` // default: 40 megapixels
	MaxTextureSide int           `env:"MAX_TEXTURE_SIDE"` // default: 4096
	NotifyTimeout  time.Duration `env:"NOTIFY_TIMEOUT"`   // default: 10s, per mirror, record or publish call

	Modeler modeler.Config
	Pack    pack.Config
}

func (c *Config) workDir() string {
	if c.WorkDir == "" {
		return "/tmp/ar"
	}
	return c.WorkDir
}

func (c *Config) maxConcurrent() int {
	if c.MaxConcurrent <= 0 {
		return runtime.NumCPU()
	}
	return c.MaxConcurrent
}

func (c *Config) ttl() time.Duration {
	if c.TTL <= 0 {
		return 24 * time.Hour
	}
	return c.TTL
}

func (c *Config) sweepInterval() time.Duration {
	if c.SweepInterval <= 0 {
		return 10 * time.Minute
	}
	return c.SweepInterval
}

func (c *Config) fetchTimeout() time.Duration {
	if c.FetchTimeout <= 0 {
		return 20 * time.Second
	}
	return c.FetchTimeout
}

func (c *Config) maxImageBytes() int64 {
	if c.MaxImageBytes <= 0 {
		return 20 << 20
	}
	return c.MaxImageBytes
}

func (c *Config) maxImagePixels() int64 {
	if c.MaxImagePixels <= 0 {
		return 40_000_000
	}
	return c.MaxImagePixels
}

func (c *Config) notifyTimeout() time.Duration {
	if c.NotifyTimeout <= 0 {
		return 10 * time.Second
	}
	return c.NotifyTimeout
}

func (c *Config) maxTextureSide() int {
	if c.MaxTextureSide <= 0 {
		return 4096
	}
	return c.MaxTextureSide
}

type Builder struct {
	cfg       Config
	workspace *workspace.Workspace
	acquirer  *texture.Acquirer
	modeler   *modeler.Modeler
	packager  *pack.Packager
	sem       *semaphore.Weighted

	database Database           // required
	storage  Storage            // optional
	broker   Broker             // optional
	metrics  *metrics.Collector // optional
	log      *slog.Logger
	now      func() time.Time
}

type NewBuilderParams struct {
	Config   *Config     // required
	Runner   tool.Runner // required
	Database Database    // required
	Storage  Storage
	Broker   Broker
	Metrics  *metrics.Collector
	Log      *slog.Logger // required
}

func NewBuilder(params *NewBuilderParams) *Builder {
	cfg := *params.Config
	log := params.Log.With("component", "build")

	return &Builder{
		cfg:       cfg,
		workspace: workspace.New(cfg.workDir()),
		acquirer:  texture.NewAcquirer(&texture.NewAcquirerParams{
			Fetcher:   texture.NewFetcher(cfg.fetchTimeout(), cfg.maxImageBytes()),
			MaxSide:   cfg.maxTextureSide(),
			MaxPixels: cfg.maxImagePixels(),
		}),
		modeler:   modeler.New(params.Runner, &cfg.Modeler, params.Log),
		packager:  pack.New(params.Runner, &cfg.Pack, params.Log),
		sem:       semaphore.NewWeighted(int64(cfg.maxConcurrent())),
		database:  params.Database,
		storage:   params.Storage,
		broker:    params.Broker,
		metrics:   params.Metrics,
		log:       log,
		now:       time.Now,
	}
}

// Workspace returns the workspace job directories are created in.
func (b *Builder) Workspace() *workspace.Workspace {
	return b.workspace
}

type BuildParams struct {
	RequestID string // required
	ImageData string // data URL; exclusive with ImageURL
	ImageURL  string
	WidthCm   float64 // required
	HeightCm  float64 // required
	Format    Format  // default: FormatUSDZ
}

// Build is a finished build.
// On failure the fields reached before the failing step are set.
type Build struct {
	ID         string
	RequestID  string
	Format     Format
	URL        string
	Path       string
	Size       int64
	Texture    *texture.Texture
	Model      *modeler.ModelResult
	Conversion *modeler.Conversion
	Fix        *modeler.Fix
	Pack       *pack.PackResult
	Listing    []workspace.Entry
	Mirrored   bool
	Duration   time.Duration
}

// Build runs the whole pipeline for one request and returns once the
// archive is verified or a step failed.
// Parameters are validated before any filesystem or subprocess work.
// A failed build leaves no job directory behind.
func (b *Builder) Build(ctx context.Context, params *BuildParams) (*Build, error) {
	start := b.now()
	format, known := ParseFormat(string(params.Format))
	if !known {
		format = params.Format
	}
	result := &Build{RequestID: params.RequestID, Format: format}

	err := b.build(ctx, params, result)
	result.Duration = b.now().Sub(start)

	if err != nil {
		berr := classify(err)
		b.metrics.ObserveBuild(string(format), string(StatusFailed), metricReason(berr.Code), result.Duration)
		b.log.Warn(
			"build failed",
			"request_id", params.RequestID,
			"job_id", result.ID,
			"reason", berr.Error(),
			"duration", result.Duration,
		)
		return result, berr
	}

	b.metrics.ObserveBuild(string(format), string(StatusSucceeded), "", result.Duration)
	b.log.Info(
		"build succeeded",
		"request_id", params.RequestID,
		"job_id", result.ID,
		"format", format,
		"bytes_out", result.Size,
		"duration", result.Duration,
	)
	return result, nil
}

func (b *Builder) build(ctx context.Context, params *BuildParams, result *Build) error {
	if err := validate(params); err != nil {
		return err
	}

	if err := b.sem.Acquire(ctx, 1); err != nil {
		return &Error{Kind: KindBusy, Code: "server_busy", Err: err}
	}
	defer b.sem.Release(1)
	b.metrics.BuildStarted()
	defer b.metrics.BuildFinished()

	src := &texture.Source{Data: params.ImageData, URL: params.ImageURL}
	_, err := b.stage("acquire", func() error {
		t, acquireErr := b.acquirer.Acquire(ctx, src)
		result.Texture = t
		return acquireErr
	})
	if err != nil {
		e := classify(err)
		if e.Kind == KindInternal && src.URL != "" {
			e = &Error{Kind: KindUpstream, Code: "image_fetch_failed", Detail: err.Error(), Err: err}
		}
		return e
	}

	// Past acquisition the job runs to completion even if the client goes away.
	ctx = context.WithoutCancel(ctx)

	job, err := b.workspace.Create(workspace.NewID())
	if err != nil {
		return err
	}
	result.ID = job.ID

	err = b.run(ctx, job, params, result)
	if err != nil {
		if rmErr := b.workspace.Remove(job.ID); rmErr != nil {
			b.log.Error("failed to remove job", "job_id", job.ID, "error", rmErr)
		}
	}
	b.record(ctx, result, params, err)
	return err
}

func (b *Builder) run(ctx context.Context, job *workspace.Job, params *BuildParams, result *Build) error {
	if err := job.WriteFile(workspace.TextureFile, result.Texture.PNG); err != nil {
		return err
	}

	kind := modeler.KindUSD
	if result.Format == FormatGLB {
		kind = modeler.KindGLB
	}
	_, err := b.stage("model", func() error {
		m, modelErr := b.modeler.Model(ctx, &modeler.ModelParams{
			Job:      job,
			Kind:     kind,
			WidthCm:  params.WidthCm,
			HeightCm: params.HeightCm,
		})
		result.Model = m
		return modelErr
	})
	if err != nil {
		return err
	}

	result.Path = job.ArchivePath(result.Format.Extension())
	if result.Format == FormatGLB {
		// The exporter writes a complete binary glTF; it only needs its served name.
		if err = os.Rename(job.GLBPath(), result.Path); err != nil {
			return err
		}
		if result.Size, err = pack.Verify(result.Path); err != nil {
			return &Error{Kind: KindVerify, Code: "glb_missing_or_empty", Err: err}
		}
	} else {
		_, _ = b.stage("convert", func() error {
			result.Conversion = b.modeler.Convert(ctx, job.ModelPath())
			return nil
		})

		if !b.cfg.DisableFixup {
			_, err = b.stage("fix", func() error {
				fix, fixErr := b.modeler.Fix(ctx, job)
				result.Fix = fix
				return fixErr
			})
			if err != nil {
				return err
			}
		}

		_, err = b.stage("pack", func() error {
			pr, packErr := b.packager.Pack(ctx, &pack.PackParams{
				Job:   job,
				Files: []string{workspace.ModelFile, workspace.TextureFile},
			})
			result.Pack = pr
			return packErr
		})
		if err != nil {
			return err
		}
		result.Size = result.Pack.Size
	}

	result.URL = b.archiveURL(result.Format, job.ID)

	if listing, listErr := job.Listing(); listErr == nil {
		result.Listing = listing
	}

	if b.storage != nil {
		uploadCtx, cancel := context.WithTimeout(ctx, b.cfg.notifyTimeout())
		err = b.storage.UploadArchive(uploadCtx, &StorageUploadArchiveParams{
			Key:         ArchiveKey(result.Format, job.ID),
			Path:        result.Path,
			ContentType: result.Format.MediaType(),
		})
		cancel()
		if err != nil {
			b.log.Warn("failed to mirror archive", "job_id", job.ID, "error", err)
		} else {
			result.Mirrored = true
		}
	}

	return nil
}

// record stores the outcome of a build that reached the workspace and
// announces it. Both are best effort.
func (b *Builder) record(ctx context.Context, result *Build, params *BuildParams, buildErr error) {
	now := b.now()
	p := &DatabaseCreateBuildParams{
		ID:        result.ID,
		RequestID: result.RequestID,
		Format:    result.Format,
		Status:    StatusSucceeded,
		WidthCm:   params.WidthCm,
		HeightCm:  params.HeightCm,
		BytesOut:  result.Size,
		Mirrored:  result.Mirrored,
		CreatedAt: now,
		ExpiresAt: now.Add(b.cfg.ttl()),
	}
	if result.Texture != nil {
		p.BytesIn = int64(result.Texture.BytesIn)
	}
	if result.Pack != nil {
		p.PackMethod = string(result.Pack.Method)
	}
	if buildErr != nil {
		p.Status = StatusFailed
		p.Reason = classify(buildErr).Error()
		p.BytesOut = 0
		p.ExpiresAt = now
	}

	recordCtx, cancel := context.WithTimeout(ctx, b.cfg.notifyTimeout())
	_, err := b.database.CreateBuild(recordCtx, p)
	cancel()
	if err != nil {
		b.log.Error("failed to record build", "job_id", result.ID, "error", err)
	}

	if b.broker != nil {
		event := &FinishedEvent{
			ID:        result.ID,
			RequestID: result.RequestID,
			Format:    result.Format,
			Status:    p.Status,
			Reason:    p.Reason,
			URL:       result.URL,
		}
		publishCtx, cancel := context.WithTimeout(ctx, b.cfg.notifyTimeout())
		err = b.broker.PublishFinished(publishCtx, event)
		cancel()
		if err != nil {
			b.log.Warn("failed to publish build event", "job_id", result.ID, "error", err)
		}
	}
}

// stage runs f and records its duration.
func (b *Builder) stage(name string, f func() error) (time.Duration, error) {
	start := b.now()
	err := f()
	d := b.now().Sub(start)
	b.metrics.ObserveStage(name, err == nil, d)
	return d, err
}

func (b *Builder) archiveURL(f Format, id string) string {
	return strings.TrimRight(b.cfg.PublicBaseURL, "/") + "/" + ArchiveKey(f, id)
}

// Expected describes the request body a build accepts.
var Expected = map[string]any{
	"imageData": "data:image/png;base64,... (or imageUrl)",
	"imageUrl":  "https://... (or imageData)",
	"widthCm":   "positive number",
	"heightCm":  "positive number",
	"format":    "usdz (default) or glb",
}

func validate(params *BuildParams) error {
	missingSource := params.ImageData == "" && params.ImageURL == ""
	if missingSource || params.WidthCm == 0 || params.HeightCm == 0 {
		e := clientError("missing_params", "")
		e.Debug = map[string]any{"expected": Expected}
		return e
	}
	if params.ImageData != "" && params.ImageURL != "" {
		return clientError("invalid_params", "imageData and imageUrl are mutually exclusive")
	}
	if params.ImageURL != "" {
		u, err := url.Parse(params.ImageURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return clientError("invalid_params", "imageUrl must be an absolute http or https URL")
		}
	}
	dims := []struct {
		name  string
		value float64
	}{{"widthCm", params.WidthCm}, {"heightCm", params.HeightCm}}
	for _, d := range dims {
		if math.IsNaN(d.value) || math.IsInf(d.value, 0) || d.value <= 0 {
			return clientError("invalid_params", fmt.Sprintf("%s must be a positive number", d.name))
		}
	}
	if _, ok := ParseFormat(string(params.Format)); !ok {
		return clientError("invalid_params", fmt.Sprintf("unknown format %q", params.Format))
	}
	return nil
}

// metricReason keeps the reason label to the code before any detail.
func metricReason(code string) string {
	code, _, _ = strings.Cut(code, " ")
	return code
}
