package models

import "time"

// Photo is a stored reference to one image of a report: a local path, a
// public URL or an object key, never the bytes.
type Photo struct {
	ID        string
	ReportID  string
	Category  *string
	Reference string
	Lat       *float64
	Lng       *float64
	Position  int
	CreatedAt time.Time
}
