package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jo-hoe/healsmart/internal/analysis"
	"github.com/jo-hoe/healsmart/internal/common"
	"github.com/jo-hoe/healsmart/internal/config"
	"github.com/jo-hoe/healsmart/internal/llm"
	"github.com/jo-hoe/healsmart/internal/session"
)

type fakeModel struct {
	analyses []string
	simple   string
	err      error
	calls    int
}

func (f *fakeModel) GenerateWithImage(context.Context, string, llm.Image) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	out := f.analyses[0]
	if len(f.analyses) > 1 {
		f.analyses = f.analyses[1:]
	}
	return out, nil
}

func (f *fakeModel) GenerateText(context.Context, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.simple, nil
}

type testEnv struct {
	svc    *Service
	model  *fakeModel
	store  *session.MemoryStore
	cookie *http.Cookie
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	model := &fakeModel{analyses: []string{"first analysis"}, simple: "a simple story"}
	store := session.NewMemoryStore(time.Hour)
	cfg := &config.Config{}
	cfg.Server.MaxUploadSize = config.ByteSize(1 << 20)
	cfg.Session.TTL = time.Hour
	cfg.Session.CookieName = common.DefaultSessionCookie
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := &Service{
		Log:      log,
		Cfg:      cfg,
		Analyzer: analysis.New(model, log),
		Sessions: store,
	}
	return &testEnv{svc: svc, model: model, store: store}
}

func (env *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if env.cookie != nil {
		req.AddCookie(env.cookie)
	}
	rec := httptest.NewRecorder()
	NewEcho(env.svc).ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == common.DefaultSessionCookie {
			if c.MaxAge < 0 {
				env.cookie = nil
			} else {
				env.cookie = c
			}
		}
	}
	return rec
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 10, 10)), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func makeMultipart(t *testing.T, fieldName, filename string, content []byte) (string, *bytes.Buffer) {
	t.Helper()
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile(fieldName, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return w.FormDataContentType(), &b
}

func uploadRequest(t *testing.T, path string, content []byte) *http.Request {
	t.Helper()
	ct, body := makeMultipart(t, common.FormFieldFile, "scan.jpg", content)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	return req
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, common.PathHealthz, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["status"] != "ok" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, common.PathMetrics, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestIndex_NoSimplifyButtonBeforeAnalysis(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, common.PathIndex, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Analyze Image") {
		t.Fatalf("upload form missing")
	}
	if strings.Contains(rec.Body.String(), `id="simplify"`) {
		t.Fatalf("simplify button rendered without analysis")
	}
}

func TestSimplify_ConflictBeforeAnalysis(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, httptest.NewRequest(http.MethodPost, common.PathSimplify, nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if env.model.calls != 0 {
		t.Fatalf("model called before analysis")
	}
}

func TestAnalyzeSimplifyReanalyzeFlow(t *testing.T) {
	env := newTestEnv(t)
	env.model.analyses = []string{"first analysis", "second analysis"}

	rec := env.do(t, uploadRequest(t, common.PathAnalyze, jpegBytes(t)))
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "first analysis") || !strings.Contains(body, `id="simplify"`) {
		t.Fatalf("analysis page incomplete: %s", body)
	}
	if !strings.Contains(body, "data:image/jpeg;base64,") {
		t.Fatalf("image preview missing")
	}
	if env.cookie == nil {
		t.Fatalf("session cookie not set")
	}

	rec = env.do(t, httptest.NewRequest(http.MethodPost, common.PathSimplify, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("simplify status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "a simple story") || !strings.Contains(rec.Body.String(), "first analysis") {
		t.Fatalf("simplify page incomplete: %s", rec.Body.String())
	}

	rec = env.do(t, uploadRequest(t, common.PathAnalyze, jpegBytes(t)))
	if rec.Code != http.StatusOK {
		t.Fatalf("re-analyze status = %d", rec.Code)
	}
	st, err := env.store.Get(context.Background(), env.cookie.Value)
	if err != nil {
		t.Fatalf("Get session: %v", err)
	}
	if st.Analysis != "second analysis" || st.Simplified != "" {
		t.Fatalf("re-analysis did not replace state: %+v", st)
	}
}

func TestAnalyze_ValidationStatuses(t *testing.T) {
	cases := []struct {
		name    string
		content []byte
		max     config.ByteSize
		want    int
	}{
		{"unsupported", []byte("GIF89a definitely a gif"), 1 << 20, http.StatusUnsupportedMediaType},
		{"too large", nil, 64, http.StatusRequestEntityTooLarge},
		{"empty", []byte{}, 1 << 20, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.svc.Cfg.Server.MaxUploadSize = tc.max
			content := tc.content
			if content == nil {
				content = jpegBytes(t)
			}
			rec := env.do(t, uploadRequest(t, common.PathAnalyze, content))
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if env.model.calls != 0 {
				t.Fatalf("model called for invalid upload")
			}
		})
	}
}

func TestAnalyze_MissingFile(t *testing.T) {
	env := newTestEnv(t)
	ct, body := makeMultipart(t, "other", "x.jpg", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, common.PathAnalyze, body)
	req.Header.Set("Content-Type", ct)
	if rec := env.do(t, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestModelFailureKeepsPriorAnalysis(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, uploadRequest(t, common.PathAnalyze, jpegBytes(t))); rec.Code != http.StatusOK {
		t.Fatalf("analyze status = %d", rec.Code)
	}

	env.model.err = llm.NewError("fake", llm.OpText, llm.ErrAuth, errors.New("bad key"))
	rec := env.do(t, httptest.NewRequest(http.MethodPost, common.PathSimplify, nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "model rejected credentials") {
		t.Fatalf("auth message missing: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "first analysis") {
		t.Fatalf("prior analysis not shown after failure")
	}
	st, _ := env.store.Get(context.Background(), env.cookie.Value)
	if st == nil || st.Analysis != "first analysis" {
		t.Fatalf("stored analysis changed: %+v", st)
	}
}

func TestReset(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, uploadRequest(t, common.PathAnalyze, jpegBytes(t)))
	if env.cookie == nil {
		t.Fatalf("no session cookie")
	}
	id := env.cookie.Value

	rec := env.do(t, httptest.NewRequest(http.MethodPost, common.PathReset, nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if _, err := env.store.Get(context.Background(), id); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("session not deleted: %v", err)
	}
	if env.cookie != nil {
		t.Fatalf("cookie not cleared")
	}
}

func TestAPI_RequiresKeyWhenConfigured(t *testing.T) {
	env := newTestEnv(t)
	env.svc.Cfg.Server.APIKey = "secret"

	rec := env.do(t, uploadRequest(t, common.PathAnalyses, jpegBytes(t)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req := uploadRequest(t, common.PathAnalyses, jpegBytes(t))
	req.Header.Set(common.HeaderAPIKey, "secret")
	rec = env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var out analysisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || out.Analysis != "first analysis" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestAPI_Simplification(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, common.PathSimplifications, strings.NewReader(`{"text":"any text at all"}`))
	req.Header.Set("Content-Type", common.ContentTypeJSON)
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var out simplificationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || out.Explanation != "a simple story" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, common.PathSimplifications, strings.NewReader(`{"text":"   "}`))
	req.Header.Set("Content-Type", common.ContentTypeJSON)
	if rec := env.do(t, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty text status = %d, want 400", rec.Code)
	}
}

func TestAPI_SimplificationRequiresJSON(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, common.PathSimplifications, strings.NewReader("text=hello"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if rec := env.do(t, req); rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rec.Code)
	}
	if env.model.calls != 0 {
		t.Fatalf("model called for non-json body")
	}
}

func TestAPI_TransportErrorIs502(t *testing.T) {
	env := newTestEnv(t)
	env.model.err = llm.NewError("fake", llm.OpImage, llm.ErrTransport, errors.New("connection reset"))
	rec := env.do(t, uploadRequest(t, common.PathAnalyses, jpegBytes(t)))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestRenderMarkdown(t *testing.T) {
	got := string(renderMarkdown("**x**\n\n<script>alert(1)</script>"))
	if !strings.Contains(got, "<strong>x</strong>") {
		t.Fatalf("bold not rendered: %q", got)
	}
	if strings.Contains(got, "<script") {
		t.Fatalf("script survived sanitizing: %q", got)
	}
	if renderMarkdown("  ") != "" {
		t.Fatalf("blank text should render empty")
	}
}

func TestAnalyze_RendersMarkdown(t *testing.T) {
	env := newTestEnv(t)
	env.model.analyses = []string{"## Findings\n\n- **No fracture** seen\n<script>alert(1)</script>"}

	rec := env.do(t, uploadRequest(t, common.PathAnalyze, jpegBytes(t)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<strong>No fracture</strong>") {
		t.Fatalf("analysis not rendered as markdown: %s", body)
	}
	if strings.Contains(body, "alert(1)</script>") {
		t.Fatalf("model supplied script reached the page")
	}
}

func TestStatusFor_ContextErrors(t *testing.T) {
	wrapped := fmt.Errorf("analyze image: %w", context.Canceled)
	if status, _ := statusFor(wrapped); status != statusClientClosedRequest {
		t.Fatalf("canceled status = %d, want %d", status, statusClientClosedRequest)
	}
	if status, _ := statusFor(context.DeadlineExceeded); status != http.StatusGatewayTimeout {
		t.Fatalf("deadline status = %d, want 504", status)
	}
}

func TestAnalyze_CanceledByClientIsQuiet(t *testing.T) {
	env := newTestEnv(t)
	var logs bytes.Buffer
	env.svc.Log = slog.New(slog.NewTextHandler(&logs, nil))
	env.model.err = context.Canceled

	rec := env.do(t, uploadRequest(t, common.PathAnalyze, jpegBytes(t)))
	if rec.Code != statusClientClosedRequest {
		t.Fatalf("status = %d, want %d", rec.Code, statusClientClosedRequest)
	}
	if strings.Contains(logs.String(), "level=ERROR") {
		t.Fatalf("client cancel logged as error: %s", logs.String())
	}
}

func TestStatusFor_Unknown(t *testing.T) {
	if status, _ := statusFor(errors.New("disk on fire")); status != http.StatusInternalServerError {
		t.Fatalf("status = %d", status)
	}
}
