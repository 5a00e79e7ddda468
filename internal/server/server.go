package server

import (
	"html/template"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jo-hoe/healsmart/internal/analysis"
	"github.com/jo-hoe/healsmart/internal/common"
	"github.com/jo-hoe/healsmart/internal/config"
	"github.com/jo-hoe/healsmart/internal/session"
)

// multipart framing on top of the file itself
const formOverheadBytes = 1 << 20

type Service struct {
	Log      *slog.Logger
	Cfg      *config.Config
	Analyzer *analysis.Service
	Sessions session.Store
}

// NewHTTPServer builds the http.Server with routes and middleware.
func NewHTTPServer(svc *Service) *http.Server {
	return &http.Server{
		Addr:         svc.Cfg.Server.Addr,
		Handler:      NewEcho(svc),
		ReadTimeout:  svc.Cfg.Server.ReadTimeout,
		WriteTimeout: svc.Cfg.Server.WriteTimeout,
		IdleTimeout:  svc.Cfg.Server.IdleTimeout,
	}
}

// NewEcho wires routes and middleware onto a fresh echo instance.
func NewEcho(svc *Service) *echo.Echo {
	if svc.Log == nil {
		svc.Log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = &Template{templates: template.Must(template.New("").ParseFS(templateFS, viewsPattern))}

	e.Use(requestLogger(svc.Log))
	e.Use(middleware.Recover())

	e.GET(common.PathHealthz, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET(common.PathMetrics, echo.WrapHandler(promhttp.Handler()))

	e.GET(common.PathIndex, svc.handleIndex)
	e.POST(common.PathAnalyze, svc.handleAnalyze, svc.limitBody)
	e.POST(common.PathSimplify, svc.handleSimplify, svc.limitBody)
	e.POST(common.PathReset, svc.handleReset)

	api := e.Group(common.PathAPIPrefix, svc.requireAPIKey, svc.limitBody)
	api.POST(strings.TrimPrefix(common.PathAnalyses, common.PathAPIPrefix), svc.handleCreateAnalysis)
	api.POST(strings.TrimPrefix(common.PathSimplifications, common.PathAPIPrefix), svc.handleCreateSimplification)

	return e
}

func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Path()
			return p == common.PathHealthz || p == common.PathMetrics
		},
		LogStatus:    true,
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogError:     true,
		LogRemoteIP:  true,
		LogRoutePath: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"path", v.URI,
				"route", v.RoutePath,
				"status", v.Status,
				"duration", v.Latency.String(),
				"remote", v.RemoteIP,
			}
			if v.Error != nil {
				log.Warn("http", append(attrs, "err", v.Error)...)
				return nil
			}
			log.Info("http", attrs...)
			return nil
		},
	})
}

// requireAPIKey enforces the configured key on the JSON API; no key configured means open access.
func (svc *Service) requireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if key := strings.TrimSpace(svc.Cfg.Server.APIKey); key != "" {
			if c.Request().Header.Get(common.HeaderAPIKey) != key {
				return c.JSON(http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			}
		}
		return next(c)
	}
}

func (svc *Service) limitBody(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if max := svc.maxUpload(); max > 0 {
			r := c.Request()
			r.Body = http.MaxBytesReader(c.Response(), r.Body, max+formOverheadBytes)
		}
		return next(c)
	}
}

func (svc *Service) maxUpload() int64 {
	return safeInt64(svc.Cfg.Server.MaxUploadSize)
}

func safeInt64(u config.ByteSize) int64 {
	if u > config.ByteSize(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(u) // #nosec G115 - safe cast after explicit upper-bound check
}
