// Package modeler drives Blender to turn a texture into a 3D model.
package modeler

import (
	"bytes"
	"context"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/k11v/arframe/internal/tool"
	"github.com/k11v/arframe/internal/workspace"
)

//go:embed scripts
var scripts embed.FS

var fixTemplate = template.Must(template.ParseFS(scripts, "scripts/fix_usd.py.tmpl"))

const (
	usdcHeader = "PXR-USDC"

	makeUSDScript = "make_usd.py"
	makeGLBScript = "make_glb.py"
	fixScript     = "fix_usd.py"
)

// Config holds the modeler configuration.
type Config struct {
	Blender        string        `env:"BLENDER"`         // default: "blender"
	Usdcat         string        `env:"USDCAT"`          // default: "usdcat"
	ModelTimeout   time.Duration `env:"MODEL_TIMEOUT"`   // default: 2m
	ConvertTimeout time.Duration `env:"CONVERT_TIMEOUT"` // default: 30s
	FixTimeout     time.Duration `env:"FIX_TIMEOUT"`     // default: 2m
}

func (c *Config) blender() string { return orDefault(c.Blender, "blender") }
func (c *Config) usdcat() string  { return orDefault(c.Usdcat, "usdcat") }

func (c *Config) modelTimeout() time.Duration {
	return orDefaultDuration(c.ModelTimeout, 2*time.Minute)
}
func (c *Config) convertTimeout() time.Duration {
	return orDefaultDuration(c.ConvertTimeout, 30*time.Second)
}
func (c *Config) fixTimeout() time.Duration {
	return orDefaultDuration(c.FixTimeout, 2*time.Minute)
}

// Kind is the kind of model Blender exports.
type Kind string

const (
	KindUSD Kind = "usd"
	KindGLB Kind = "glb"
)

type Modeler struct {
	runner tool.Runner
	cfg    Config
	log    *slog.Logger
}

func New(runner tool.Runner, cfg *Config, log *slog.Logger) *Modeler {
	return &Modeler{runner: runner, cfg: *cfg, log: log.With("component", "modeler")}
}

type ModelParams struct {
	Job      *workspace.Job // required
	Kind     Kind           // default: KindUSD
	WidthCm  float64        // required
	HeightCm float64        // required
}

type ModelResult struct {
	Path string
	Tool *tool.Result
}

// Model runs Blender headless to build a plane of the given physical size
// textured with the job's texture.
// The job's texture must already be written.
func (m *Modeler) Model(ctx context.Context, params *ModelParams) (*ModelResult, error) {
	script, output := makeUSDScript, params.Job.ModelPath()
	if params.Kind == KindGLB {
		script, output = makeGLBScript, params.Job.GLBPath()
	}
	if err := m.writeScript(params.Job, script); err != nil {
		return nil, fmt.Errorf("modeler.Model: %w", err)
	}

	result := m.runner.Run(ctx, &tool.Command{
		Name: m.cfg.blender(),
		Args: []string{
			"-b",
			"-P", script,
			"--",
			workspace.TextureFile,
			output,
			formatCm(params.WidthCm),
			formatCm(params.HeightCm),
		},
		Dir:     params.Job.Dir,
		Timeout: m.cfg.modelTimeout(),
	})
	if !result.Success {
		return &ModelResult{Tool: result}, &tool.Failure{Code: "blender_failed", Detail: tool.Excerpt(result.Output(), 400), Result: result}
	}

	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		return &ModelResult{Tool: result}, &tool.Failure{Code: "model_missing", Result: result}
	}

	m.log.Info("model built", "job_id", params.Job.ID, "kind", params.Kind, "duration", result.Duration)
	return &ModelResult{Path: output, Tool: result}, nil
}

// Header is the leading bytes of a model file.
type Header struct {
	ASCII string `json:"ascii"`
	Hex   string `json:"hex"`
}

// Conversion reports the best-effort binary conversion of a USD file.
type Conversion struct {
	Path      string `json:"path"`
	Header    Header `json:"header"`
	Converted bool   `json:"converted"`
	Converter string `json:"converter"`
	Log       string `json:"converterLogs,omitempty"`
}

// Convert rewrites the USD file at path in the binary crate format when
// usdcat is available. Failures only downgrade the result; Convert never
// fails the build.
func (m *Modeler) Convert(ctx context.Context, path string) *Conversion {
	c := &Conversion{Path: path, Header: readHeader(path)}
	if c.Header.ASCII == usdcHeader {
		c.Converter = "none_needed"
		return c
	}

	usdcat, found := m.runner.LookPath(m.cfg.usdcat())
	if !found {
		c.Converter = "usdcat_missing"
		return c
	}
	c.Converter = "usdcat"

	tmp := strings.TrimSuffix(path, ".usd") + ".usdc.usd"
	defer os.Remove(tmp)

	result := m.runner.Run(ctx, &tool.Command{
		Name:    usdcat,
		Args:    []string{path, "-o", tmp},
		Timeout: m.cfg.convertTimeout(),
	})
	c.Log = tool.Excerpt(strings.TrimSpace(result.Stdout+"\n"+result.Stderr), 4000)
	if !result.Success {
		m.log.Warn("usd conversion failed", "path", path, "exit_code", result.ExitCode)
		return c
	}

	info, err := os.Stat(tmp)
	if err != nil || info.Size() <= 16 {
		return c
	}
	if err = copyFile(tmp, path); err != nil {
		c.Log = strings.TrimSpace(c.Log + "\n" + err.Error())
		return c
	}

	c.Converted = true
	c.Header = readHeader(path)
	return c
}

// Fix is the outcome of the fix-up pass.
type Fix struct {
	OK       bool          `json:"ok"`
	Duration time.Duration `json:"-"`
	Ms       int64         `json:"ms"`
	Stdout   string        `json:"out"`
	Stderr   string        `json:"err"`
	Note     string        `json:"note,omitempty"`
}

type fixTemplateData struct {
	Texture       string
	STCandidates  []string
	UpAxis        string
	MetersPerUnit string
	Material      string
	MinExtent     string
	Scale         string
}

var defaultFixTemplateData = fixTemplateData{
	Texture:       workspace.TextureFile,
	STCandidates:  []string{"UVMap", "st0", "st1", "uv", "uv0", "texcoord", "texcoords", "map1"},
	UpAxis:        "y",
	MetersPerUnit: "1.0",
	Material:      "FrameMaterial",
	MinExtent:     "0.10",
	Scale:         "100.0",
}

// Fix runs a generated pxr script through Blender's Python to make the USD
// stage viewable in AR Quick Look.
// A failed run or error markers in the script output fail the build.
func (m *Modeler) Fix(ctx context.Context, job *workspace.Job) (*Fix, error) {
	var buf bytes.Buffer
	if err := fixTemplate.Execute(&buf, defaultFixTemplateData); err != nil {
		return nil, fmt.Errorf("modeler.Fix: %w", err)
	}
	if err := job.WriteFile(fixScript, buf.Bytes()); err != nil {
		return nil, fmt.Errorf("modeler.Fix: %w", err)
	}

	result := m.runner.Run(ctx, &tool.Command{
		Name:    m.cfg.blender(),
		Args:    []string{"-b", "-P", fixScript, "--", job.ModelPath()},
		Dir:     job.Dir,
		Timeout: m.cfg.fixTimeout(),
	})
	fix := &Fix{
		OK:       result.Success,
		Duration: result.Duration,
		Ms:       result.Duration.Milliseconds(),
		Stdout:   tool.Excerpt(result.Stdout, 4000),
		Stderr:   tool.Excerpt(result.Stderr, 4000),
	}

	switch {
	case !result.Success:
		fix.Note = "blender_pxr_fix_failed"
	case hasErrorMarker(result.Stdout) || hasErrorMarker(result.Stderr):
		fix.OK = false
		fix.Note = "pxr_script_error"
	}
	if !fix.OK {
		return fix, &tool.Failure{Code: "usd_fix_failed", Detail: fix.Note, Result: result}
	}

	m.log.Info("model fixed", "job_id", job.ID, "duration", result.Duration)
	return fix, nil
}

func hasErrorMarker(s string) bool {
	return strings.Contains(s, "ERR:") || strings.Contains(s, "Traceback")
}

func (m *Modeler) writeScript(job *workspace.Job, name string) error {
	b, err := scripts.ReadFile("scripts/" + name)
	if err != nil {
		return err
	}
	return job.WriteFile(name, b)
}

func readHeader(path string) Header {
	f, err := os.Open(path)
	if err != nil {
		return Header{}
	}
	defer f.Close()

	b := make([]byte, 8)
	n, err := io.ReadFull(f, b)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Header{}
	}
	b = b[:n]
	return Header{ASCII: string(b), Hex: hex.EncodeToString(b)}
}

func copyFile(src, dst string) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, b, 0o666)
}

func formatCm(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orDefaultDuration(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return d
}
