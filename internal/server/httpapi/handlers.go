package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/sitevisit/internal/common"
	"github.com/dmitrijs2005/sitevisit/internal/server/models"
	"github.com/dmitrijs2005/sitevisit/internal/server/payload"
	"github.com/dmitrijs2005/sitevisit/internal/server/services"
	"github.com/labstack/echo/v4"
)

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"ok":        true,
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) clientConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"storage_backend": s.config.StorageBackend,
	})
}

func (s *Server) createReport(c echo.Context) error {
	p, err := readPayload(c)
	if err != nil {
		return err
	}
	res, err := s.reports.Create(c.Request().Context(), services.CreateInput{
		Payload:       p,
		UserID:        callerID(c),
		PersistPhotos: true,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newResultView(res))
}

func (s *Server) listReports(c echo.Context) error {
	list, err := s.reports.List(c.Request().Context(), models.ReportFilter{
		SiteID:   c.QueryParam("site_id"),
		Operator: c.QueryParam("operadora"),
		City:     c.QueryParam("cidade"),
	})
	if err != nil {
		return err
	}
	out := make([]reportView, 0, len(list))
	for _, r := range list {
		out = append(out, newReportView(r))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getReport(c echo.Context) error {
	r, err := s.reports.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newReportView(r))
}

func (s *Server) updateReport(c echo.Context) error {
	replace, err := boolQuery(c, "replace_photos", false)
	if err != nil {
		return err
	}
	p, err := readPayload(c)
	if err != nil {
		return err
	}
	res, err := s.reports.Update(c.Request().Context(), services.UpdateInput{
		ReportID:      c.Param("id"),
		Payload:       p,
		ReplacePhotos: replace,
		PersistPhotos: true,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newResultView(res))
}

func (s *Server) createDraft(c echo.Context) error {
	p, err := readPayload(c)
	if err != nil {
		return err
	}
	res, err := s.reports.CreateDraft(c.Request().Context(), p, callerID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newResultView(res))
}

func (s *Server) updateDraft(c echo.Context) error {
	replace, err := boolQuery(c, "replace_photos", true)
	if err != nil {
		return err
	}
	p, err := readPayload(c)
	if err != nil {
		return err
	}
	res, err := s.reports.UpdateDraft(c.Request().Context(), c.Param("id"), p, replace)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newResultView(res))
}

func (s *Server) latestDraft(c echo.Context) error {
	r, err := s.reports.LatestDraft(c.Request().Context(), c.QueryParam("site_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newReportView(r))
}

func (s *Server) presignUpload(c echo.Context) error {
	var body presignBody
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedInput, err)
	}
	slot, err := s.uploads.PresignUpload(c.Request().Context(), callerID(c), services.PresignRequest{
		Filename:    body.Filename,
		ContentType: body.ContentType,
		SizeBytes:   body.SizeBytes,
		SiteID:      body.SiteID,
		DraftID:     body.DraftID,
		ReportID:    body.ReportID,
		Category:    body.Category,
		FieldKey:    body.FieldKey,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newUploadSlotView(slot))
}

func (s *Server) presignDownload(c echo.Context) error {
	var body presignDownloadBody
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedInput, err)
	}
	slot, err := s.uploads.PresignDownload(c.Request().Context(), callerID(c), body.ReportID, body.ObjectKey)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, downloadSlotView{
		DownloadURL: slot.DownloadURL,
		ObjectKey:   slot.ObjectKey,
		ExpiresIn:   slot.ExpiresIn,
	})
}

func readPayload(c echo.Context) (payload.Payload, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", common.ErrMalformedInput, err)
	}
	return payload.Decode(body)
}

func boolQuery(c echo.Context, name string, def bool) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", common.ErrMalformedInput, name)
	}
	return v, nil
}
