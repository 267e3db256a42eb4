package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/k11v/arframe/internal/build"
	"github.com/k11v/arframe/internal/build/buildsqlite"
	"github.com/k11v/arframe/internal/tool"
	"github.com/k11v/arframe/internal/tool/tooltest"
)

const testVersion = "test-version"

func pngDataURL(tb testing.TB) string {
	tb.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newTestRunner(installed ...string) *tooltest.Runner {
	return &tooltest.Runner{
		Installed: installed,
		Handlers: map[string]func(*tool.Command) *tool.Result{
			"blender": func(cmd *tool.Command) *tool.Result {
				if cmd.Args[2] == "fix_usd.py" {
					return &tool.Result{Success: true, Stdout: "OK fixed"}
				}
				return tooltest.WriteFile(5, bytes.Repeat([]byte("m"), 256))(cmd)
			},
			"usdzip": tooltest.WriteFile(0, bytes.Repeat([]byte("z"), 128)),
			"zip":    tooltest.WriteFile(2, bytes.Repeat([]byte("z"), 128)),
		},
	}
}

func newTestHandler(t *testing.T, runner *tooltest.Runner) http.Handler {
	t.Helper()

	workDir := filepath.Join(t.TempDir(), "ar")
	db, err := buildsqlite.Open(filepath.Join(t.TempDir(), "builds.db"))
	if err != nil {
		t.Fatalf("didn't want %q", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	database := buildsqlite.NewDatabase(db)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	builder := build.NewBuilder(&build.NewBuilderParams{
		Config:   &build.Config{WorkDir: workDir, PublicBaseURL: "http://ar.test"},
		Runner:   runner,
		Database: database,
		Log:      log,
	})

	cfg := &Config{Version: testVersion}
	return NewHandler(cfg, log, &NewParams{Builder: builder, Database: database})
}

func do(h http.Handler, method, target string, body string, header http.Header) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(tb testing.TB, rec *httptest.ResponseRecorder) map[string]any {
	tb.Helper()
	var v map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		tb.Fatalf("didn't want %q for body %q", err, rec.Body.String())
	}
	return v
}

func buildBody(tb testing.TB, fields map[string]any) string {
	tb.Helper()
	b, err := json.Marshal(fields)
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	return string(b)
}

func TestHandlerRoot(t *testing.T) {
	h := newTestHandler(t, newTestRunner())

	t.Run("reports the server version", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/", "", nil)
		if got, want := rec.Code, http.StatusOK; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
		body := decodeBody(t, rec)
		if body["ok"] != true || body["serverVersion"] != testVersion {
			t.Errorf("got %v", body)
		}
	})

	t.Run("reports health", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/health", "", nil)
		if got, want := rec.Body.String(), `{"status":"ok"}`; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})

	t.Run("answers unknown paths with not_found", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/nope", "", nil)
		if got, want := rec.Code, http.StatusNotFound; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
		if got, want := rec.Body.String(), "not_found"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})
}

func TestHandlerCreateBuild(t *testing.T) {
	t.Run("builds and serves a usdz", func(t *testing.T) {
		h := newTestHandler(t, newTestRunner("blender", "usdzip"))

		rec := do(h, http.MethodPost, "/build-usdz", buildBody(t, map[string]any{
			"imageData": pngDataURL(t),
			"widthCm":   10,
			"heightCm":  10,
		}), nil)
		if got, want := rec.Code, http.StatusOK; got != want {
			t.Fatalf("got %d, want %d: %s", got, want, rec.Body.String())
		}
		body := decodeBody(t, rec)
		if body["ok"] != true {
			t.Fatalf("got %v", body)
		}
		if body["requestId"] == "" || body["requestId"] != rec.Header().Get("X-Request-Id") {
			t.Errorf("got %v request id, want %q", body["requestId"], rec.Header().Get("X-Request-Id"))
		}

		jobID, _ := body["jobId"].(string)
		usdzURL, _ := body["usdzUrl"].(string)
		if want := "http://ar.test/usdz/" + jobID + "/" + jobID + ".usdz"; usdzURL != want {
			t.Fatalf("got %q, want %q", usdzURL, want)
		}
		debug, _ := body["debug"].(map[string]any)
		if debug["packMethod"] != "usdzip" || debug["imageType"] != "image/png" {
			t.Errorf("got %v debug", debug)
		}

		u, err := url.Parse(usdzURL)
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		rec = do(h, http.MethodGet, u.Path, "", nil)
		if got, want := rec.Code, http.StatusOK; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
		if got, want := rec.Header().Get("Content-Type"), "model/vnd.usdz+zip"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		if got, want := rec.Header().Get("Content-Disposition"), `inline; filename="`+jobID+`.usdz"`; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		if got, want := rec.Header().Get("Cache-Control"), "public, max-age=300"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		if rec.Body.Len() < 64 {
			t.Errorf("got %d bytes, want at least 64", rec.Body.Len())
		}

		rec = do(h, http.MethodGet, u.Path, "", http.Header{"Range": {"bytes=0-9"}})
		if got, want := rec.Code, http.StatusPartialContent; got != want {
			t.Errorf("got %d, want %d", got, want)
		}
		if got, want := rec.Body.Len(), 10; got != want {
			t.Errorf("got %d bytes, want %d", got, want)
		}

		rec = do(h, http.MethodGet, "/builds/"+jobID, "", nil)
		if got, want := rec.Code, http.StatusOK; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
		record := decodeBody(t, rec)
		if record["status"] != "succeeded" || record["packMethod"] != "usdzip" {
			t.Errorf("got %v", record)
		}
	})

	t.Run("accepts numeric strings and builds a glb", func(t *testing.T) {
		h := newTestHandler(t, newTestRunner("blender"))

		rec := do(h, http.MethodPost, "/builds", buildBody(t, map[string]any{
			"imageData": pngDataURL(t),
			"widthCm":   "10.5",
			"heightCm":  "20",
			"format":    "glb",
		}), nil)
		if got, want := rec.Code, http.StatusOK; got != want {
			t.Fatalf("got %d, want %d: %s", got, want, rec.Body.String())
		}
		body := decodeBody(t, rec)
		glbURL, _ := body["glbUrl"].(string)
		if !strings.HasSuffix(glbURL, ".glb") {
			t.Fatalf("got %q", glbURL)
		}

		u, _ := url.Parse(glbURL)
		rec = do(h, http.MethodGet, u.Path, "", nil)
		if got, want := rec.Header().Get("Content-Type"), "model/gltf-binary"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("falls back to zip when usdzip is absent", func(t *testing.T) {
		h := newTestHandler(t, newTestRunner("blender", "zip"))

		rec := do(h, http.MethodPost, "/build-usdz", buildBody(t, map[string]any{
			"imageData": pngDataURL(t),
			"widthCm":   10,
			"heightCm":  10,
		}), nil)
		if got, want := rec.Code, http.StatusOK; got != want {
			t.Fatalf("got %d, want %d: %s", got, want, rec.Body.String())
		}
		usdzBuild, _ := decodeBody(t, rec)["usdzBuild"].(map[string]any)
		if got, want := usdzBuild["method"], "zip"; got != want {
			t.Errorf("got %v, want %q", got, want)
		}
	})

	t.Run("rejects missing params", func(t *testing.T) {
		runner := newTestRunner("blender", "usdzip")
		h := newTestHandler(t, runner)

		rec := do(h, http.MethodPost, "/build-usdz", `{"widthCm": 10}`, nil)
		if got, want := rec.Code, http.StatusBadRequest; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
		body := decodeBody(t, rec)
		if got, want := body["reason"], "missing_params"; got != want {
			t.Errorf("got %v, want %q", got, want)
		}
		if body["expected"] == nil {
			t.Error("got no expected")
		}
		if got := len(runner.Calls()); got != 0 {
			t.Errorf("got %d tool calls, want 0", got)
		}
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		h := newTestHandler(t, newTestRunner())

		rec := do(h, http.MethodPost, "/build-usdz", `{"widthCm":`, nil)
		if got, want := rec.Code, http.StatusBadRequest; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
		if got, want := decodeBody(t, rec)["reason"], "invalid_json"; got != want {
			t.Errorf("got %v, want %q", got, want)
		}
	})

	t.Run("rejects a non-image payload", func(t *testing.T) {
		h := newTestHandler(t, newTestRunner("blender", "usdzip"))
		data := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("<!DOCTYPE html><html></html>"))

		rec := do(h, http.MethodPost, "/build-usdz", buildBody(t, map[string]any{
			"imageData": data,
			"widthCm":   10,
			"heightCm":  10,
		}), nil)
		if got, want := rec.Code, http.StatusBadRequest; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
		body := decodeBody(t, rec)
		if got, want := body["reason"], "image_invalid_format"; got != want {
			t.Errorf("got %v, want %q", got, want)
		}
		if body["got"] == nil || body["fix"] == nil {
			t.Errorf("got %v", body)
		}
	})

	t.Run("reports an upstream 404 as a server error", func(t *testing.T) {
		upstream := httptest.NewServer(http.NotFoundHandler())
		defer upstream.Close()
		h := newTestHandler(t, newTestRunner("blender", "usdzip"))

		rec := do(h, http.MethodPost, "/build-usdz", buildBody(t, map[string]any{
			"imageUrl": upstream.URL + "/notfound.png",
			"widthCm":  10,
			"heightCm": 10,
		}), nil)
		if got, want := rec.Code, http.StatusInternalServerError; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
		reason, _ := decodeBody(t, rec)["reason"].(string)
		if !strings.Contains(reason, "image_fetch_failed_404") {
			t.Errorf("got %q, want image_fetch_failed_404", reason)
		}
	})

	t.Run("rejects a non-http image URL as a client error", func(t *testing.T) {
		h := newTestHandler(t, newTestRunner("blender", "usdzip"))

		rec := do(h, http.MethodPost, "/build-usdz", buildBody(t, map[string]any{
			"imageUrl": "file:///etc/passwd",
			"widthCm":  10,
			"heightCm": 10,
		}), nil)
		if got, want := rec.Code, http.StatusBadRequest; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
		reason, _ := decodeBody(t, rec)["reason"].(string)
		if !strings.HasPrefix(reason, "invalid_params") {
			t.Errorf("got %q, want invalid_params", reason)
		}
	})

	t.Run("attaches tool output to a tool failure", func(t *testing.T) {
		runner := newTestRunner("blender", "usdzip")
		runner.Handlers["blender"] = tooltest.Fail(3, "no GPU")
		h := newTestHandler(t, runner)

		rec := do(h, http.MethodPost, "/build-usdz", buildBody(t, map[string]any{
			"imageData": pngDataURL(t),
			"widthCm":   10,
			"heightCm":  10,
		}), nil)
		if got, want := rec.Code, http.StatusInternalServerError; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
		body := decodeBody(t, rec)
		if got, want := body["reason"], "blender_failed: no GPU"; got != want {
			t.Errorf("got %v, want %q", got, want)
		}
		debug, _ := body["debug"].(map[string]any)
		if debug["exitCode"] != float64(3) || debug["stderr"] != "no GPU" {
			t.Errorf("got %v debug", debug)
		}
	})
}

func TestHandlerArchive(t *testing.T) {
	h := newTestHandler(t, newTestRunner("blender", "usdzip"))
	rec := do(h, http.MethodPost, "/build-usdz", buildBody(t, map[string]any{
		"imageData": pngDataURL(t),
		"widthCm":   10,
		"heightCm":  10,
	}), nil)
	jobID, _ := decodeBody(t, rec)["jobId"].(string)
	if jobID == "" {
		t.Fatalf("got no job id: %s", rec.Body.String())
	}

	for _, target := range []string{
		"/usdz/" + jobID + "/texture.png",
		"/usdz/" + jobID + "/model.usd",
		"/glb/" + jobID + "/" + jobID + ".usdz",
		"/usdz/" + jobID + "/" + jobID + ".glb",
		"/usdz/ffffffffffffffffffffffffffffffff/ffffffffffffffffffffffffffffffff.usdz",
		"/usdz/not-a-job/not-a-job.usdz",
	} {
		t.Run("refuses "+target, func(t *testing.T) {
			rec := do(h, http.MethodGet, target, "", nil)
			if got, want := rec.Code, http.StatusNotFound; got != want {
				t.Fatalf("got %d, want %d", got, want)
			}
			if got, want := rec.Body.String(), "not_found"; got != want {
				t.Errorf("got %q, want %q", got, want)
			}
		})
	}

	t.Run("returns 404 for an unknown build record", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/builds/ffffffffffffffffffffffffffffffff", "", nil)
		if got, want := rec.Code, http.StatusNotFound; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	})
}

type memStorage map[string][]byte

func (s memStorage) UploadArchive(context.Context, *build.StorageUploadArchiveParams) error {
	return nil
}

// OpenArchive honors ranges of the form bytes=<first>-<last> only.
func (s memStorage) OpenArchive(_ context.Context, params *build.StorageOpenArchiveParams) (*build.StorageOpenArchiveResult, error) {
	b, ok := s[params.Key]
	if !ok {
		return nil, build.ErrNotFound
	}
	result := &build.StorageOpenArchiveResult{}
	if params.Range != "" {
		var first, last int
		if _, err := fmt.Sscanf(params.Range, "bytes=%d-%d", &first, &last); err != nil || first > last || last >= len(b) {
			return nil, build.ErrInvalidRange
		}
		result.ContentRange = fmt.Sprintf("bytes %d-%d/%d", first, last, len(b))
		b = b[first : last+1]
	}
	result.Body = io.NopCloser(bytes.NewReader(b))
	result.Size = int64(len(b))
	return result, nil
}

func TestHandlerMirroredArchive(t *testing.T) {
	const id = "0123456789abcdef0123456789abcdef"
	storage := memStorage{build.ArchiveKey(build.FormatUSDZ, id): []byte("mirrored archive")}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	builder := build.NewBuilder(&build.NewBuilderParams{
		Config: &build.Config{WorkDir: filepath.Join(t.TempDir(), "ar"), PublicBaseURL: "http://ar.test"},
		Runner: newTestRunner(),
		Log:    log,
	})
	h := NewHandler(&Config{Version: testVersion}, log, &NewParams{Builder: builder, Storage: storage})

	t.Run("streams a swept archive from the mirror", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/usdz/"+id+"/"+id+".usdz", "", nil)
		if got, want := rec.Code, http.StatusOK; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
		if got, want := rec.Body.String(), "mirrored archive"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		if got, want := rec.Header().Get("Content-Type"), "model/vnd.usdz+zip"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("streams a byte range from the mirror", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/usdz/"+id+"/"+id+".usdz", "", http.Header{"Range": {"bytes=0-7"}})
		if got, want := rec.Code, http.StatusPartialContent; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
		if got, want := rec.Body.String(), "mirrored"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		if got, want := rec.Header().Get("Content-Range"), "bytes 0-7/16"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("refuses an unsatisfiable range from the mirror", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/usdz/"+id+"/"+id+".usdz", "", http.Header{"Range": {"bytes=100-200"}})
		if got, want := rec.Code, http.StatusRequestedRangeNotSatisfiable; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	})

	t.Run("returns 404 when the mirror has no archive", func(t *testing.T) {
		other := "fedcba9876543210fedcba9876543210"
		rec := do(h, http.MethodGet, "/usdz/"+other+"/"+other+".usdz", "", nil)
		if got, want := rec.Code, http.StatusNotFound; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	})
}
