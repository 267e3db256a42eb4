package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/k11v/arframe/internal/build"
	"github.com/k11v/arframe/internal/modeler"
	"github.com/k11v/arframe/internal/pack"
	"github.com/k11v/arframe/internal/tool"
	"github.com/k11v/arframe/internal/workspace"

	_ "github.com/k11v/arframe/internal/docs"
)

const maxRequestBodyBytes = 12 << 20

type handler struct {
	mux       *http.ServeMux
	builder   *build.Builder
	workspace *workspace.Workspace
	database  build.Database
	storage   build.Storage // optional
	version   string
	log       *slog.Logger
}

func newHandler(cfg *Config, params *NewParams, log *slog.Logger) *handler {
	mux := http.NewServeMux()
	h := &handler{
		mux:       mux,
		builder:   params.Builder,
		workspace: params.Builder.Workspace(),
		database:  params.Database,
		storage:   params.Storage,
		version:   cfg.version(),
		log:       log,
	}

	if cfg.Development {
		mux.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	}

	mux.HandleFunc("GET /{$}", h.GetRoot)
	mux.HandleFunc("GET /health", h.GetHealth)
	mux.Handle("GET /metrics", params.Metrics.Handler())

	mux.HandleFunc("POST /build-usdz", h.CreateBuild)
	mux.HandleFunc("POST /builds", h.CreateBuild)
	mux.HandleFunc("GET /builds/{id}", h.GetBuild)

	for _, f := range []build.Format{build.FormatUSDZ, build.FormatGLB} {
		mux.Handle("GET /"+f.Collection()+"/{id}/{file}", h.archiveHandler(f))
	}

	mux.HandleFunc("/", h.NotFound)

	return h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// GetRoot reports liveness and the server version.
//
//	@Summary	Liveness and version
//	@Produce	json
//	@Success	200	{object}	rootResponse
//	@Router		/ [get]
func (h *handler) GetRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{OK: true, ServerVersion: h.version})
}

type rootResponse struct {
	OK            bool   `json:"ok"`
	ServerVersion string `json:"serverVersion"`
}

// GetHealth
//
//	@Summary	Health check
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/health [get]
func (h *handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

func (h *handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeNotFound(w)
}

// dimension is a length in centimeters sent as a JSON number or a numeric
// string. An unparsable string decodes to NaN so validation rejects it.
type dimension float64

func (d *dimension) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*d = 0
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
		if s == "" {
			*d = 0
			return nil
		}
		v, parseErr := strconv.ParseFloat(s, 64)
		if parseErr != nil {
			v = math.NaN()
		}
		*d = dimension(v)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid dimension %s", s)
	}
	*d = dimension(v)
	return nil
}

type createBuildRequest struct {
	ImageData string    `json:"imageData"`
	ImageURL  string    `json:"imageUrl"`
	WidthCm   dimension `json:"widthCm" swaggertype:"number"`
	HeightCm  dimension `json:"heightCm" swaggertype:"number"`
	Format    string    `json:"format"`
}

type buildDebug struct {
	ServerVersion string `json:"serverVersion"`
	ImageSource   string `json:"imageSource,omitempty"`
	ImageType     string `json:"imageType,omitempty"`
	Magic         string `json:"magic,omitempty"`
	BytesIn       int    `json:"bytesIn,omitempty"`
	BytesOut      int64  `json:"bytesOut,omitempty"`
	PackMethod    string `json:"packMethod,omitempty"`
	ExitCode      *int   `json:"exitCode,omitempty"`
	TimedOut      bool   `json:"timedOut,omitempty"`
	Stdout        string `json:"stdout,omitempty"`
	Stderr        string `json:"stderr,omitempty"`
}

type toolOutput struct {
	OK  bool   `json:"ok"`
	Out string `json:"out"`
	Err string `json:"err"`
}

type createBuildResponse struct {
	OK            bool                `json:"ok"`
	RequestID     string              `json:"requestId"`
	JobID         string              `json:"jobId,omitempty"`
	USDZURL       string              `json:"usdzUrl,omitempty"`
	GLBURL        string              `json:"glbUrl,omitempty"`
	URL           string              `json:"url,omitempty"`
	Reason        string              `json:"reason,omitempty"`
	Expected      any                 `json:"expected,omitempty"`
	Got           any                 `json:"got,omitempty"`
	Fix           any                 `json:"fix,omitempty"`
	Debug         buildDebug          `json:"debug"`
	Blender       *toolOutput         `json:"blender,omitempty"`
	USD           *modeler.Conversion `json:"usd,omitempty"`
	USDFix        *modeler.Fix        `json:"usdFix,omitempty"`
	USDZBuild     *pack.PackResult    `json:"usdzBuild,omitempty"`
	JobDirListing []workspace.Entry   `json:"jobDirListing,omitempty"`
}

// CreateBuild builds an archive and responds once it is ready or failed.
//
//	@Summary	Build an AR archive from an image
//	@Accept		json
//	@Produce	json
//	@Param		request	body		createBuildRequest	true	"image and physical size"
//	@Success	200		{object}	createBuildResponse
//	@Failure	400		{object}	createBuildResponse
//	@Failure	500		{object}	createBuildResponse
//	@Failure	503		{object}	createBuildResponse
//	@Router		/build-usdz [post]
//	@Router		/builds [post]
func (h *handler) CreateBuild(w http.ResponseWriter, r *http.Request) {
	resp := &createBuildResponse{
		RequestID: requestID(r.Context()),
		Debug:     buildDebug{ServerVersion: h.version},
	}

	var req createBuildRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if maxBytesErr := (*http.MaxBytesError)(nil); errors.As(err, &maxBytesErr) {
			resp.Reason = "body_too_large"
			writeJSON(w, http.StatusRequestEntityTooLarge, resp)
			return
		}
		resp.Reason = "invalid_json"
		resp.Expected = build.Expected
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	result, err := h.builder.Build(r.Context(), &build.BuildParams{
		RequestID: resp.RequestID,
		ImageData: req.ImageData,
		ImageURL:  req.ImageURL,
		WidthCm:   float64(req.WidthCm),
		HeightCm:  float64(req.HeightCm),
		Format:    build.Format(req.Format),
	})
	fillBuildResponse(resp, result)

	if err != nil {
		berr := (*build.Error)(nil)
		if !errors.As(err, &berr) {
			berr = &build.Error{Code: "internal_error", Detail: err.Error()}
		}
		resp.Reason = berr.Error()
		resp.Expected = berr.Debug["expected"]
		resp.Got = berr.Debug["got"]
		resp.Fix = berr.Debug["fix"]
		if berr.Tool != nil {
			exitCode := berr.Tool.ExitCode
			resp.Debug.ExitCode = &exitCode
			resp.Debug.TimedOut = berr.Tool.TimedOut
			resp.Debug.Stdout = tool.Excerpt(berr.Tool.Stdout, 4000)
			resp.Debug.Stderr = tool.Excerpt(berr.Tool.Stderr, 4000)
		}
		writeJSON(w, statusFor(berr.Kind), resp)
		return
	}

	resp.OK = true
	resp.JobID = result.ID
	resp.URL = result.URL
	if result.Format == build.FormatGLB {
		resp.GLBURL = result.URL
	} else {
		resp.USDZURL = result.URL
	}
	writeJSON(w, http.StatusOK, resp)
}

func fillBuildResponse(resp *createBuildResponse, result *build.Build) {
	if result == nil {
		return
	}
	if t := result.Texture; t != nil {
		resp.Debug.ImageSource = t.Source
		resp.Debug.ImageType = t.DeclaredType
		if resp.Debug.ImageType == "" {
			resp.Debug.ImageType = string(t.Format)
		}
		resp.Debug.Magic = t.Magic
		resp.Debug.BytesIn = t.BytesIn
	}
	resp.Debug.BytesOut = result.Size
	if m := result.Model; m != nil && m.Tool != nil {
		resp.Blender = &toolOutput{
			OK:  m.Tool.Success,
			Out: tool.Excerpt(m.Tool.Stdout, 4000),
			Err: tool.Excerpt(m.Tool.Stderr, 4000),
		}
	}
	resp.USD = result.Conversion
	resp.USDFix = result.Fix
	if result.Pack != nil {
		resp.USDZBuild = result.Pack
		resp.Debug.PackMethod = string(result.Pack.Method)
	}
	resp.JobDirListing = result.Listing
}

func statusFor(kind build.ErrorKind) int {
	switch kind {
	case build.KindClient:
		return http.StatusBadRequest
	case build.KindBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetBuild returns the stored record of a build.
//
//	@Summary	Get a build record
//	@Produce	json
//	@Param		id	path		string	true	"job id"
//	@Success	200	{object}	build.Record
//	@Failure	404	{object}	map[string]any
//	@Router		/builds/{id} [get]
func (h *handler) GetBuild(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !workspace.ValidID(id) {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "reason": "not_found"})
		return
	}

	record, err := h.database.GetBuild(r.Context(), &build.DatabaseGetBuildParams{ID: id})
	if errors.Is(err, build.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "reason": "not_found"})
		return
	} else if err != nil {
		h.log.Error("failed to get build", "request_id", requestID(r.Context()), "job_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "reason": "server_error"})
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// archiveHandler serves <id>.<ext> of format f from the workspace, or from
// the mirror once the local copy is gone.
//
//	@Summary	Download a built archive
//	@Produce	model/vnd.usdz+zip
//	@Produce	model/gltf-binary
//	@Param		id		path		string	true	"job id"
//	@Param		file	path		string	true	"archive file name, <id>.<ext>"
//	@Param		Range	header		string	false	"byte range"
//	@Success	200		{file}		file
//	@Success	206		{file}		file
//	@Failure	404		{string}	string
//	@Router		/usdz/{id}/{file} [get]
//	@Router		/glb/{id}/{file} [get]
func (h *handler) archiveHandler(f build.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, file := r.PathValue("id"), r.PathValue("file")

		if p, err := h.workspace.ArchivePath(id, file, f.Extension()); err == nil {
			h.serveLocalArchive(w, r, f, p, file)
			return
		}

		if h.storage != nil && workspace.ValidID(id) && file == id+"."+f.Extension() {
			h.serveMirroredArchive(w, r, f, id, file)
			return
		}

		writeNotFound(w)
	}
}

func (h *handler) serveLocalArchive(w http.ResponseWriter, r *http.Request, f build.Format, path, file string) {
	fh, err := os.Open(path)
	if err != nil {
		writeNotFound(w)
		return
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		writeNotFound(w)
		return
	}

	setArchiveHeaders(w, f, file)
	http.ServeContent(w, r, file, info.ModTime(), fh)
}

func (h *handler) serveMirroredArchive(w http.ResponseWriter, r *http.Request, f build.Format, id, file string) {
	params := &build.StorageOpenArchiveParams{Key: build.ArchiveKey(f, id)}
	if r.Method == http.MethodGet {
		params.Range = r.Header.Get("Range")
	}
	result, err := h.storage.OpenArchive(r.Context(), params)
	if errors.Is(err, build.ErrInvalidRange) {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	if err != nil {
		if !errors.Is(err, build.ErrNotFound) {
			h.log.Warn("failed to open mirrored archive", "job_id", id, "error", err)
		}
		writeNotFound(w)
		return
	}
	defer result.Body.Close()

	setArchiveHeaders(w, f, file)
	if result.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(result.Size, 10))
	}
	status := http.StatusOK
	if result.ContentRange != "" {
		w.Header().Set("Content-Range", result.ContentRange)
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err = io.Copy(w, result.Body); err != nil {
		h.log.Warn("failed to stream mirrored archive", "job_id", id, "error", err)
	}
}

func setArchiveHeaders(w http.ResponseWriter, f build.Format, file string) {
	h := w.Header()
	h.Set("Content-Type", f.MediaType())
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "public, max-age=300")
	h.Set("Content-Disposition", `inline; filename="`+file+`"`)
	h.Set("Accept-Ranges", "bytes")
}

func writeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, "not_found")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
