package server

import (
	"embed"
	"encoding/base64"
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/healsmart/internal/analysis"
	"github.com/jo-hoe/healsmart/internal/common"
	"github.com/jo-hoe/healsmart/internal/session"
	"github.com/jo-hoe/healsmart/internal/upload"
)

const (
	MainPageName = "index.html"
	viewsPattern = "views/*.html"
)

//go:embed views/*.html
var templateFS embed.FS

// Template adapts html/template to echo.Renderer.
type Template struct {
	templates *template.Template
}

func (t *Template) Render(w io.Writer, name string, data any, _ echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}

type pageData struct {
	Analysis    template.HTML
	Simplified  template.HTML
	ImageURL    template.URL
	Error       string
	CanSimplify bool
}

func (svc *Service) handleIndex(c echo.Context) error {
	st, err := svc.loadSession(c)
	return svc.renderPage(c, st, "", err)
}

func (svc *Service) handleAnalyze(c echo.Context) error {
	st, err := svc.loadSession(c)
	if err != nil {
		return svc.renderPage(c, st, "", err)
	}

	var asset analysis.ImageAsset
	fh, err := c.FormFile(common.FormFieldFile)
	if err == nil {
		asset, err = upload.ReadImage(fh, svc.maxUpload())
	}
	if err != nil {
		countRejection(err)
		svc.Log.Info("upload rejected", "err", err)
		return svc.renderPage(c, st, "", err)
	}

	preview := imageURL(asset)
	text, err := svc.Analyzer.Analyze(c.Request().Context(), asset)
	if err != nil {
		svc.logFailure("analyze image", err, "session", st.ID)
		return svc.renderPage(c, st, preview, err)
	}

	st.SetAnalysis(text, time.Now())
	if err := svc.saveSession(c, st); err != nil {
		return svc.renderPage(c, st, preview, err)
	}
	svc.Log.Info("image analyzed", "session", st.ID, "mime", asset.MimeType, "bytes", len(asset.Data))
	return svc.renderPage(c, st, preview, nil)
}

func (svc *Service) handleSimplify(c echo.Context) error {
	st, err := svc.loadSession(c)
	if err != nil {
		return svc.renderPage(c, st, "", err)
	}
	if !st.CanSimplify() {
		return svc.renderPage(c, st, "", errNoAnalysis)
	}

	text, err := svc.Analyzer.Simplify(c.Request().Context(), st.Analysis)
	if err != nil {
		svc.logFailure("simplify analysis", err, "session", st.ID)
		return svc.renderPage(c, st, "", err)
	}

	st.SetSimplified(text, time.Now())
	if err := svc.saveSession(c, st); err != nil {
		return svc.renderPage(c, st, "", err)
	}
	return svc.renderPage(c, st, "", nil)
}

func (svc *Service) handleReset(c echo.Context) error {
	if cookie, err := c.Cookie(svc.cookieName()); err == nil && cookie.Value != "" {
		if err := svc.Sessions.Delete(c.Request().Context(), cookie.Value); err != nil {
			svc.Log.Error("delete session", "err", err)
			return svc.renderPage(c, session.NewState(), "", err)
		}
	}
	c.SetCookie(&http.Cookie{
		Name:     svc.cookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   svc.Cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusSeeOther, common.PathIndex)
}

// renderPage renders the main page; a non-nil err selects the status and message but keeps prior results.
func (svc *Service) renderPage(c echo.Context, st *session.State, preview template.URL, err error) error {
	if st == nil {
		st = session.NewState()
	}
	data := pageData{
		Analysis:    renderMarkdown(st.Analysis),
		Simplified:  renderMarkdown(st.Simplified),
		ImageURL:    preview,
		CanSimplify: st.CanSimplify(),
	}
	status := http.StatusOK
	if err != nil {
		status, data.Error = statusFor(err)
		if status == http.StatusInternalServerError {
			svc.Log.Error("request failed", "path", c.Path(), "err", err)
		}
	}
	return c.Render(status, MainPageName, data)
}

func (svc *Service) logFailure(msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	if isCanceled(err) {
		svc.Log.Info(msg+": canceled by client", attrs...)
		return
	}
	svc.Log.Error(msg, attrs...)
}

// loadSession returns the caller's session, or a fresh unsaved one when there is none yet.
func (svc *Service) loadSession(c echo.Context) (*session.State, error) {
	cookie, err := c.Cookie(svc.cookieName())
	if err != nil || cookie.Value == "" {
		return session.NewState(), nil
	}
	st, err := svc.Sessions.Get(c.Request().Context(), cookie.Value)
	if errors.Is(err, session.ErrNotFound) {
		return session.NewState(), nil
	}
	if err != nil {
		return session.NewState(), err
	}
	return st, nil
}

func (svc *Service) saveSession(c echo.Context, st *session.State) error {
	if err := svc.Sessions.Save(c.Request().Context(), st); err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     svc.cookieName(),
		Value:    st.ID,
		Path:     "/",
		MaxAge:   int(svc.Cfg.Session.TTL.Seconds()),
		HttpOnly: true,
		Secure:   svc.Cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (svc *Service) cookieName() string {
	if svc.Cfg.Session.CookieName != "" {
		return svc.Cfg.Session.CookieName
	}
	return common.DefaultSessionCookie
}

// imageURL inlines the upload for the preview; the mime type was sniffed, so the URL is trusted.
func imageURL(asset analysis.ImageAsset) template.URL {
	return template.URL("data:" + asset.MimeType + ";base64," + base64.StdEncoding.EncodeToString(asset.Data)) // #nosec G203
}
