package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/healsmart/internal/analysis"
	"github.com/jo-hoe/healsmart/internal/common"
	"github.com/jo-hoe/healsmart/internal/upload"
)

type analysisResponse struct {
	Analysis string `json:"analysis"`
}

type simplificationRequest struct {
	Text string `json:"text"`
}

type simplificationResponse struct {
	Explanation string `json:"explanation"`
}

func (svc *Service) handleCreateAnalysis(c echo.Context) error {
	var asset analysis.ImageAsset
	fh, err := c.FormFile(common.FormFieldFile)
	if err == nil {
		asset, err = upload.ReadImage(fh, svc.maxUpload())
	}
	if err != nil {
		countRejection(err)
		return svc.apiError(c, err)
	}

	text, err := svc.Analyzer.Analyze(c.Request().Context(), asset)
	if err != nil {
		return svc.apiError(c, err)
	}
	return c.JSON(http.StatusOK, analysisResponse{Analysis: text})
}

func (svc *Service) handleCreateSimplification(c echo.Context) error {
	if ct := c.Request().Header.Get(echo.HeaderContentType); !strings.HasPrefix(ct, common.ContentTypeJSON) {
		return c.JSON(http.StatusUnsupportedMediaType, errorBody{Error: "expected " + common.ContentTypeJSON + " body"})
	}
	var req simplificationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid json body"})
	}
	text, err := svc.Analyzer.Simplify(c.Request().Context(), req.Text)
	if err != nil {
		return svc.apiError(c, err)
	}
	return c.JSON(http.StatusOK, simplificationResponse{Explanation: text})
}

func (svc *Service) apiError(c echo.Context, err error) error {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		svc.logFailure("api request failed", err, "path", c.Path(), "status", status)
	}
	return c.JSON(status, errorBody{Error: msg})
}
