package httpapi

import (
	"github.com/dmitrijs2005/sitevisit/internal/server/models"
	"github.com/dmitrijs2005/sitevisit/internal/server/services"
)

type photoView struct {
	ID        string   `json:"id"`
	Category  *string  `json:"categoria"`
	URL       string   `json:"url"`
	CoordsLat *float64 `json:"coords_lat"`
	CoordsLng *float64 `json:"coords_lng"`
}

type reportView struct {
	ID           string         `json:"id"`
	TimestampISO *string        `json:"timestamp_iso"`
	SiteID       *string        `json:"site_id"`
	Operator     *string        `json:"operadora"`
	City         *string        `json:"cidade"`
	Status       string         `json:"status"`
	Payload      map[string]any `json:"payload"`
	Photos       []photoView    `json:"fotos"`
	SheetError   string         `json:"sheet_error,omitempty"`
}

func newReportView(r *models.Report) reportView {
	v := reportView{
		ID:           r.ID,
		TimestampISO: r.TimestampISO,
		SiteID:       r.SiteID,
		Operator:     r.Operator,
		City:         r.City,
		Status:       r.Status,
		Payload:      r.Payload,
		Photos:       make([]photoView, 0, len(r.Photos)),
	}
	for _, p := range r.Photos {
		v.Photos = append(v.Photos, photoView{
			ID:        p.ID,
			Category:  p.Category,
			URL:       p.Reference,
			CoordsLat: p.Lat,
			CoordsLng: p.Lng,
		})
	}
	return v
}

func newResultView(res *services.Result) reportView {
	v := newReportView(res.Report)
	if res.SheetError != nil {
		v.SheetError = res.SheetError.Error()
	}
	return v
}

type presignBody struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   *int64 `json:"size_bytes"`
	SiteID      string `json:"site_id"`
	DraftID     string `json:"draft_id"`
	ReportID    string `json:"visita_id"`
	Category    string `json:"categoria"`
	FieldKey    string `json:"campo_key"`
}

type presignDownloadBody struct {
	ObjectKey string `json:"object_key"`
	ReportID  string `json:"visita_id"`
}

type uploadSlotView struct {
	UploadURL   string            `json:"upload_url"`
	Method      string            `json:"method"`
	Fields      map[string]string `json:"fields,omitempty"`
	ObjectKey   string            `json:"object_key"`
	PublicURL   string            `json:"public_url,omitempty"`
	ContentType string            `json:"content_type"`
	ExpiresIn   int               `json:"expires_in"`
}

func newUploadSlotView(s *models.UploadSlot) uploadSlotView {
	return uploadSlotView{
		UploadURL:   s.UploadURL,
		Method:      s.Method,
		Fields:      s.Fields,
		ObjectKey:   s.ObjectKey,
		PublicURL:   s.PublicURL,
		ContentType: s.ContentType,
		ExpiresIn:   s.ExpiresIn,
	}
}

type downloadSlotView struct {
	DownloadURL string `json:"download_url"`
	ObjectKey   string `json:"object_key"`
	ExpiresIn   int    `json:"expires_in"`
}
